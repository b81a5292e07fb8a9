// Package session persists user study submissions from the interactive UI.
// Each submission is the full anchor/topic state a user ended with, stored
// as one PostgreSQL row.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/itmlab/anchorserve/pkg/postgres"
)

// Record is one saved study session.
type Record struct {
	ID        int64           `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store writes and reads session records.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store and ensures the backing table exists.
func NewStore(ctx context.Context, db *postgres.Client) (*Store, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS study_sessions (
	id         BIGSERIAL PRIMARY KEY,
	payload    JSONB NOT NULL,
	request_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensuring study_sessions table: %w", err)
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "session-store"),
	}, nil
}

// Save inserts a submission and returns its ID.
func (s *Store) Save(ctx context.Context, payload json.RawMessage, requestID string) (int64, error) {
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO study_sessions (payload, request_id) VALUES ($1, $2) RETURNING id`,
		payload, sql.NullString{String: requestID, Valid: requestID != ""},
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting study session: %w", err)
	}
	s.logger.Info("study session saved", "id", id, "bytes", len(payload))
	return id, nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, payload, COALESCE(request_id, ''), created_at
		 FROM study_sessions ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing study sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Payload, &r.RequestID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning study session: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
