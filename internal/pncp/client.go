// Package pncp is a client for the public procurement portal's
// consultation API.
package pncp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/retry"
)

// ErrFetch is wrapped by every error that survived the retry budget. A sync
// run that sees it is aborted.
var ErrFetch = errors.New("pncp fetch failed")

const queryDateLayout = "20060102"

// StatusError is a non-2xx answer from the portal.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pncp: %s returned HTTP %d", e.URL, e.Code)
}

// Client fetches procurement notices and their attachments.
type Client struct {
	baseURL      string
	filesBaseURL string
	pageSize     int
	modalities   []int
	httpClient   *http.Client
	limiter      *rate.Limiter
	policy       retry.Policy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the sleep used between retry attempts.
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Client) { c.policy.Sleep = fn }
}

// New creates a Client from the pncp config section.
func New(cfg config.PNCPConfig, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		filesBaseURL: strings.TrimRight(cfg.FilesBaseURL, "/"),
		pageSize:     cfg.PageSize,
		modalities:   cfg.ModalityCodes(),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		limiter:      rate.NewLimiter(limit, 1),
		policy: retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			Default:     retry.Fixed(cfg.RetryDelay),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchPage returns one page of notices published on date for a modality.
// A 204 or 404 answer is an empty page.
func (c *Client) FetchPage(ctx context.Context, date time.Time, modality, page int) ([]model.Procurement, error) {
	q := url.Values{}
	day := date.Format(queryDateLayout)
	q.Set("dataInicial", day)
	q.Set("dataFinal", day)
	q.Set("codigoModalidadeContratacao", strconv.Itoa(modality))
	q.Set("pagina", strconv.Itoa(page))
	q.Set("tamanhoPagina", strconv.Itoa(c.pageSize))
	u := c.baseURL + "/v1/contratacoes/publicacao?" + q.Encode()

	body, err := retry.Value(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s modality %d page %d: %w", ErrFetch, date.Format(model.DateLayout), modality, page, err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding page %d: %w", ErrFetch, page, err)
	}
	out := make([]model.Procurement, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, r.toModel())
	}
	return out, nil
}

// FetchAll walks every configured modality from page 1 until a page comes
// back empty, which is the only stop condition. Records without a control
// number are skipped. A control number seen twice keeps its first occurrence.
func (c *Client) FetchAll(ctx context.Context, date time.Time) ([]model.Procurement, error) {
	var all []model.Procurement
	seen := make(map[string]bool)
	for _, modality := range c.modalities {
		for page := 1; ; page++ {
			recs, err := c.FetchPage(ctx, date, modality, page)
			if err != nil {
				return nil, err
			}
			if len(recs) == 0 {
				break
			}
			slog.Debug("pncp page fetched", "date", date.Format(model.DateLayout), "modality", modality, "page", page, "records", len(recs))
			for _, r := range recs {
				if r.ControlNumber == "" {
					slog.Warn("pncp record without control number skipped", "modality", modality, "page", page)
					continue
				}
				if seen[r.ControlNumber] {
					continue
				}
				seen[r.ControlNumber] = true
				all = append(all, r)
			}
		}
	}
	return all, nil
}

// ListAttachments returns the files published with a notice.
func (c *Client) ListAttachments(ctx context.Context, p model.Procurement) ([]Attachment, error) {
	if p.EntityCNPJ == "" || p.Year == 0 || p.Sequence == 0 {
		return nil, fmt.Errorf("pncp: record %s lacks entity, year or sequence", p.ControlNumber)
	}
	u := fmt.Sprintf("%s/v1/orgaos/%s/compras/%d/%d/arquivos", c.filesBaseURL, url.PathEscape(p.EntityCNPJ), p.Year, p.Sequence)

	body, err := retry.Value(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("listing attachments for %s: %w", p.ControlNumber, err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var raw []rawAttachment
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding attachments for %s: %w", p.ControlNumber, err)
	}
	out := make([]Attachment, 0, len(raw))
	for _, r := range raw {
		if r.StatusAtivo != nil && !*r.StatusAtivo {
			continue
		}
		a := r.toAttachment()
		if a.URL == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Download streams the file at rawURL into w.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return nil
}

// get performs one paced GET. 204 and 404 return a nil body and no error.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
