package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to the domain profile stored in SQLite,
// falling back to Default for every key that is not stored.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// GetProfile returns the stored profile merged over the defaults.
func (m *Manager) GetProfile() (Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := copyProfile(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copyProfile(m.cached), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return copyProfile(&p), nil
}

// SetField persists a profile key and invalidates the cache. Lists are
// stored as JSON arrays.
func (m *Manager) SetField(key string, value any) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling value for key %q: %w", key, err)
		}
		str = string(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(key, str); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}

	m.cached = nil
	return nil
}

// GetSummary returns the instruction block injected into classification
// and filter extraction prompts.
func (m *Manager) GetSummary() (string, error) {
	p, err := m.GetProfile()
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return p.Summary(), nil
}

// maxSummaryChars keeps the profile block under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

// Summary renders the profile as a prompt block.
func (p Profile) Summary() string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Perfil de negócio: %s.\n", p.Name)
	}
	if p.Description != "" {
		b.WriteString(p.Description)
		b.WriteString("\n")
	}
	if len(p.Include) > 0 {
		fmt.Fprintf(&b, "Objetos de interesse: %s.\n", strings.Join(p.Include, ", "))
	}
	if len(p.Exclude) > 0 {
		fmt.Fprintf(&b, "Objetos fora do escopo: %s.\n", strings.Join(p.Exclude, ", "))
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return "Perfil de negócio: não configurado."
	}
	if r := []rune(s); len(r) > maxSummaryChars {
		s = string(r[:maxSummaryChars])
		if idx := strings.LastIndex(s, " "); idx > 0 {
			s = s[:idx]
		}
	}
	return s
}

func copyProfile(p *Profile) Profile {
	if p == nil {
		return Profile{}
	}
	cp := *p
	cp.Include = append([]string(nil), p.Include...)
	cp.Exclude = append([]string(nil), p.Exclude...)
	return cp
}

// buildProfile overlays stored keys on Default. A malformed list value is
// logged and the default kept.
func buildProfile(keys map[string]string) Profile {
	p := Default()
	if v, ok := keys[KeyName]; ok && strings.TrimSpace(v) != "" {
		p.Name = v
	}
	if v, ok := keys[KeyDescription]; ok && strings.TrimSpace(v) != "" {
		p.Description = v
	}
	unmarshalProfileKey(keys, KeyInclude, &p.Include)
	unmarshalProfileKey(keys, KeyExclude, &p.Exclude)
	return p
}

func unmarshalProfileKey(keys map[string]string, key string, target *[]string) {
	v, ok := keys[key]
	if !ok {
		return
	}
	var list []string
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
		return
	}
	*target = list
}
