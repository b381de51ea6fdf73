package store

import (
	"database/sql"
	"errors"
	"time"
)

// Capture is a snapshot written to disk.
type Capture struct {
	ID        string
	SessionID string
	Path      string
	Width     int
	Height    int
	CreatedAt time.Time
}

// CaptureRepository records snapshot files.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Create inserts c. A zero CreatedAt is set to now.
func (r *CaptureRepository) Create(c *Capture) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO captures (id, session_id, path, width, height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, nullString(c.SessionID), c.Path, c.Width, c.Height, c.CreatedAt,
	)
	return err
}

// GetByID retrieves a capture by its ID.
func (r *CaptureRepository) GetByID(id string) (*Capture, error) {
	c := &Capture{}
	var session sql.NullString
	err := r.db.QueryRow(
		`SELECT id, session_id, path, width, height, created_at FROM captures WHERE id = ?`, id,
	).Scan(&c.ID, &session, &c.Path, &c.Width, &c.Height, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.SessionID = session.String
	return c, nil
}

// List returns up to limit captures, newest first. limit <= 0 returns all.
func (r *CaptureRepository) List(limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, path, width, height, created_at
		 FROM captures ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		var session sql.NullString
		if err := rows.Scan(&c.ID, &session, &c.Path, &c.Width, &c.Height, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.SessionID = session.String
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// Delete removes the capture record. The file is left to the caller.
func (r *CaptureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
