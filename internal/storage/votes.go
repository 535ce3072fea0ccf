package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/licitaradar/licitaradar/internal/model"
)

// UpsertVote records userID's vote on a procurement. Voting again on the
// same record overwrites the previous value.
func (s *Store) UpsertVote(ctx context.Context, userID, controlNumber string, value int) error {
	if value != 1 && value != -1 {
		return ErrInvalidVote
	}
	if userID == "" || controlNumber == "" {
		return fmt.Errorf("vote requires user and record")
	}
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relevance_votes (id, user_id, control_number, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, control_number) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		uuid.New().String(), userID, controlNumber, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving vote: %w", err)
	}
	return nil
}

// VotesFor returns every vote cast on a procurement.
func (s *Store) VotesFor(ctx context.Context, controlNumber string) ([]model.RelevanceVote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, control_number, value, updated_at
		FROM relevance_votes WHERE control_number = ? ORDER BY updated_at DESC`, controlNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []model.RelevanceVote
	for rows.Next() {
		var v model.RelevanceVote
		var updatedAt string
		if err := rows.Scan(&v.UserID, &v.ControlNumber, &v.Value, &updatedAt); err != nil {
			return nil, err
		}
		if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// VoteTally returns the number of up and down votes on a procurement.
func (s *Store) VoteTally(ctx context.Context, controlNumber string) (up, down int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0)
		FROM relevance_votes WHERE control_number = ?`, controlNumber,
	).Scan(&up, &down)
	return up, down, err
}
