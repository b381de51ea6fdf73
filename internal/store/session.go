package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is the history record of one AR session.
type Session struct {
	ID         string
	StartedAt  time.Time
	EndedAt    *time.Time
	RevealedAt *time.Time
}

// SessionRepository records session starts, marker reveals and ends.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start records a new session.
func (r *SessionRepository) Start(id string, at time.Time) error {
	_, err := r.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, at)
	return err
}

// MarkRevealed records the first marker reveal. Later calls keep the first time.
func (r *SessionRepository) MarkRevealed(id string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET revealed_at = COALESCE(revealed_at, ?) WHERE id = ?`, at, id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// End records the session end.
func (r *SessionRepository) End(id string, at time.Time) error {
	result, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(
		`SELECT id, started_at, ended_at, revealed_at FROM sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// List returns up to limit sessions, newest first.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, revealed_at FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row scanner) (*Session, error) {
	s := &Session{}
	var ended, revealed sql.NullTime
	if err := row.Scan(&s.ID, &s.StartedAt, &ended, &revealed); err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedAt = &ended.Time
	}
	if revealed.Valid {
		s.RevealedAt = &revealed.Time
	}
	return s, nil
}
