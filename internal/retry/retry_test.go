package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errQuota    = errors.New("quota")
	errOverload = errors.New("overload")
	errFatal    = errors.New("fatal")
)

type recorder struct {
	slept []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func testPolicy(r *recorder) Policy {
	return Policy{
		MaxAttempts: 3,
		Rules: []Rule{
			{Name: "quota", Match: func(err error) bool { return errors.Is(err, errQuota) }, Delay: Fixed(61 * time.Second)},
			{Name: "overload", Match: func(err error) bool { return errors.Is(err, errOverload) }, Delay: Exponential(2 * time.Second)},
		},
		Sleep: r.sleep,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Do(context.Background(), testPolicy(rec), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || len(rec.slept) != 0 {
		t.Errorf("calls = %d, sleeps = %v", calls, rec.slept)
	}
}

func TestDo_QuotaUsesFixedDelay(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Do(context.Background(), testPolicy(rec), func(context.Context) error {
		calls++
		if calls < 3 {
			return errQuota
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{61 * time.Second, 61 * time.Second}
	if len(rec.slept) != len(want) || rec.slept[0] != want[0] || rec.slept[1] != want[1] {
		t.Errorf("slept = %v, want %v", rec.slept, want)
	}
}

func TestDo_OverloadBacksOffExponentially(t *testing.T) {
	rec := &recorder{}
	err := Do(context.Background(), testPolicy(rec), func(context.Context) error {
		return errOverload
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.Attempts != 3 || !errors.Is(err, errOverload) {
		t.Errorf("unexpected exhausted error: %v", err)
	}
	// No sleep after the final attempt.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.slept) != 2 || rec.slept[0] != want[0] || rec.slept[1] != want[1] {
		t.Errorf("slept = %v, want %v", rec.slept, want)
	}
}

func TestDo_UnmatchedErrorReturnsImmediately(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Do(context.Background(), testPolicy(rec), func(context.Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("err = %v, want errFatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_DefaultDelay(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Default: Fixed(2 * time.Second), Sleep: rec.sleep}
	calls := 0
	_ = Do(context.Background(), p, func(context.Context) error {
		calls++
		return errFatal
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.slept) != 2 {
		t.Errorf("sleeps = %d, want 2", len(rec.slept))
	}
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		Default:     Fixed(time.Hour),
	}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context) error {
			calls++
			return errOverload
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestValue_ReturnsResult(t *testing.T) {
	rec := &recorder{}
	n := 0
	v, err := Value(context.Background(), testPolicy(rec), func(context.Context) (string, error) {
		n++
		if n == 1 {
			return "", errOverload
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("Value = %q, %v", v, err)
	}
}

func TestExponential(t *testing.T) {
	d := Exponential(2 * time.Second)
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		if got := d(attempt); got != want {
			t.Errorf("Exponential(2s)(%d) = %v, want %v", attempt, got, want)
		}
	}
}
