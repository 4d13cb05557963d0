package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a transcript id is unknown.
var ErrNotFound = errors.New("transcript not found")

// Store keeps finished run transcripts in sqlite. The schema is created by
// telemetry.InitDB.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save writes the transcript and its turns in one transaction, replacing an
// earlier record with the same id.
func (s *Store) Save(ctx context.Context, t Transcript) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, topic, start_time, backend, completed, reviewed_copy, report, final_copy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Topic, t.StartTime, t.Backend, t.Completed, t.ReviewedCopy, t.Report, t.FinalCopy,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE run_id = ?", t.ID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	for i, turn := range t.Turns {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO turns (run_id, seq, role, name, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			t.ID, i, string(turn.Role), turn.Name, turn.Content, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get loads a transcript with its turns.
func (s *Store) Get(ctx context.Context, id string) (*Transcript, error) {
	t := Transcript{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT topic, start_time, backend, completed, reviewed_copy, report, final_copy FROM runs WHERE id = ?", id,
	).Scan(&t.Topic, &t.StartTime, &t.Backend, &t.Completed, &t.ReviewedCopy, &t.Report, &t.FinalCopy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, name, content, timestamp FROM turns WHERE run_id = ? ORDER BY seq", id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	t.Turns = []Turn{}
	for rows.Next() {
		var turn Turn
		var role string
		if err := rows.Scan(&role, &turn.Name, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = Role(role)
		t.Turns = append(t.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return &t, nil
}

// List returns the most recent transcripts without their turns.
func (s *Store) List(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, topic, start_time, backend, completed FROM runs ORDER BY start_time DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := []Transcript{}
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.ID, &t.Topic, &t.StartTime, &t.Backend, &t.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return out, nil
}
