package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
)

const procurementColumns = `control_number, entity_cnpj, entity_name, year, sequence, estimated_value,
	state, city, published_at, updated_at, description, modality, status, source_link,
	summary, keywords, relevance, justification, document_links, viable`

// UpsertProcurement inserts p or updates the row with the same control
// number. Core fields always take the new value. AI fields are only
// overwritten when the new value is non-null, so a re-sync without analysis
// keeps an earlier one.
func (s *Store) UpsertProcurement(ctx context.Context, p model.Procurement) error {
	if p.ControlNumber == "" {
		return errors.New("procurement without control number")
	}

	keywords, err := nullJSON(p.Keywords)
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	links, err := nullJSON(p.DocumentLinks)
	if err != nil {
		return fmt.Errorf("encoding document links: %w", err)
	}
	var relevance sql.NullString
	if p.Relevance != nil {
		relevance = sql.NullString{String: string(*p.Relevance), Valid: true}
	}
	var viable sql.NullInt64
	if p.Viable != nil {
		viable.Valid = true
		if *p.Viable {
			viable.Int64 = 1
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procurements (`+procurementColumns+`, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(control_number) DO UPDATE SET
			entity_cnpj = excluded.entity_cnpj,
			entity_name = excluded.entity_name,
			year = excluded.year,
			sequence = excluded.sequence,
			estimated_value = excluded.estimated_value,
			state = excluded.state,
			city = excluded.city,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at,
			description = excluded.description,
			modality = excluded.modality,
			status = excluded.status,
			source_link = excluded.source_link,
			summary = COALESCE(excluded.summary, procurements.summary),
			keywords = COALESCE(excluded.keywords, procurements.keywords),
			relevance = COALESCE(excluded.relevance, procurements.relevance),
			justification = COALESCE(excluded.justification, procurements.justification),
			document_links = COALESCE(excluded.document_links, procurements.document_links),
			viable = COALESCE(excluded.viable, procurements.viable),
			synced_at = excluded.synced_at`,
		p.ControlNumber, p.EntityCNPJ, p.EntityName, p.Year, p.Sequence, p.EstimatedValue,
		p.State, p.City, formatTime(p.PublishedAt), formatTime(p.UpdatedAt), p.Description,
		p.Modality, p.Status, p.SourceLink,
		nullString(p.Summary), keywords, relevance, nullString(p.Justification), links, viable,
		formatTime(time.Now()),
	)
	return err
}

// UpsertProcurements writes each record independently. A failing record is
// reported in the returned errors and does not stop the others.
func (s *Store) UpsertProcurements(ctx context.Context, records []model.Procurement) (int, []UpsertError) {
	written := 0
	var failed []UpsertError
	for _, p := range records {
		if err := ctx.Err(); err != nil {
			failed = append(failed, UpsertError{ControlNumber: p.ControlNumber, Err: err})
			continue
		}
		if err := s.UpsertProcurement(ctx, p); err != nil {
			failed = append(failed, UpsertError{ControlNumber: p.ControlNumber, Err: err})
			continue
		}
		written++
	}
	return written, failed
}

// GetProcurement returns the record with the given control number.
func (s *Store) GetProcurement(ctx context.Context, controlNumber string) (model.Procurement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+procurementColumns+` FROM procurements WHERE control_number = ?`, controlNumber)
	p, err := scanProcurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Procurement{}, ErrNotFound
	}
	return p, err
}

// CountProcurements returns the number of stored records.
func (s *Store) CountProcurements(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM procurements`).Scan(&n)
	return n, err
}

// QueryProcurements returns records matching q, newest first.
func (s *Store) QueryProcurements(ctx context.Context, q Query) ([]model.Procurement, error) {
	var where []string
	var args []interface{}

	var terms []string
	for _, t := range q.Terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) > 0 {
		ors := make([]string, len(terms))
		for i, t := range terms {
			ors[i] = "lower(description) LIKE ?"
			args = append(args, "%"+t+"%")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	for _, t := range q.Exclude {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			where = append(where, "lower(description) NOT LIKE ?")
			args = append(args, "%"+t+"%")
		}
	}
	if q.ValueMin != nil {
		where = append(where, "estimated_value >= ?")
		args = append(args, *q.ValueMin)
	}
	if q.ValueMax != nil {
		where = append(where, "estimated_value <= ?")
		args = append(args, *q.ValueMax)
	}
	if q.State != "" {
		where = append(where, "state = ?")
		args = append(args, strings.ToUpper(q.State))
	}
	if q.DateFrom != "" {
		where = append(where, portalDate+" >= ?")
		args = append(args, q.DateFrom)
	}
	if q.DateTo != "" {
		where = append(where, portalDate+" <= ?")
		args = append(args, q.DateTo)
	}
	if q.Modality != "" {
		where = append(where, "lower(modality) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Modality)+"%")
	}
	if q.ViableOnly {
		where = append(where, "(viable IS NULL OR viable = 1)")
	}

	query := `SELECT ` + procurementColumns + ` FROM procurements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC, control_number ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying procurements: %w", err)
	}
	defer rows.Close()

	var out []model.Procurement
	for rows.Next() {
		p, err := scanProcurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProcurement(r rowScanner) (model.Procurement, error) {
	var p model.Procurement
	var publishedAt, updatedAt string
	var summary, keywords, relevance, justification, links sql.NullString
	var viable sql.NullInt64
	err := r.Scan(&p.ControlNumber, &p.EntityCNPJ, &p.EntityName, &p.Year, &p.Sequence, &p.EstimatedValue,
		&p.State, &p.City, &publishedAt, &updatedAt, &p.Description, &p.Modality, &p.Status, &p.SourceLink,
		&summary, &keywords, &relevance, &justification, &links, &viable)
	if err != nil {
		return model.Procurement{}, err
	}

	if p.PublishedAt, err = parseTime(publishedAt); err != nil {
		return model.Procurement{}, fmt.Errorf("parsing published_at for %s: %w", p.ControlNumber, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Procurement{}, fmt.Errorf("parsing updated_at for %s: %w", p.ControlNumber, err)
	}
	if summary.Valid {
		p.Summary = &summary.String
	}
	if justification.Valid {
		p.Justification = &justification.String
	}
	if relevance.Valid {
		t := model.Tier(relevance.String)
		p.Relevance = &t
	}
	if viable.Valid {
		v := viable.Int64 == 1
		p.Viable = &v
	}
	if keywords.Valid {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return model.Procurement{}, fmt.Errorf("decoding keywords for %s: %w", p.ControlNumber, err)
		}
	}
	if links.Valid {
		if err := json.Unmarshal([]byte(links.String), &p.DocumentLinks); err != nil {
			return model.Procurement{}, fmt.Errorf("decoding document links for %s: %w", p.ControlNumber, err)
		}
	}
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(v []string) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// portalDate is the publication day on the portal's calendar (UTC-3, no
// daylight saving). published_at is stored in UTC.
const portalDate = "date(published_at, '-3 hours')"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
