package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/arstage/internal/gesture"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Gesture is a stored gesture description.
type Gesture struct {
	ID   string
	Name string
	// Position is the declaration order; lower wins score ties.
	Position   int
	Definition json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Description decodes the stored definition.
func (g *Gesture) Description() (*gesture.Description, error) {
	var d gesture.Description
	if err := json.Unmarshal(g.Definition, &d); err != nil {
		return nil, fmt.Errorf("decode gesture %q: %w", g.Name, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// GestureRepository provides CRUD operations for gestures.
type GestureRepository struct {
	db *sql.DB
}

// Gestures returns the gesture repository for this store.
func (s *Store) Gestures() *GestureRepository {
	return &GestureRepository{db: s.db}
}

const gestureColumns = `id, name, position, definition, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGesture(row scanner) (*Gesture, error) {
	g := &Gesture{}
	var def string
	if err := row.Scan(&g.ID, &g.Name, &g.Position, &def, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Definition = json.RawMessage(def)
	return g, nil
}

// Create inserts a new gesture into the database.
func (r *GestureRepository) Create(g *Gesture) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO gestures (id, name, position, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Position, string(g.Definition), g.CreatedAt, g.UpdatedAt,
	)
	return err
}

// GetByID retrieves a gesture by its ID.
func (r *GestureRepository) GetByID(id string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// GetByName retrieves a gesture by its name.
func (r *GestureRepository) GetByName(name string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// List retrieves all gestures in declaration order.
func (r *GestureRepository) List() ([]*Gesture, error) {
	rows, err := r.db.Query(`SELECT ` + gestureColumns + ` FROM gestures ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g, err := scanGesture(rows)
		if err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return gestures, nil
}

// Update updates an existing gesture in the database.
func (r *GestureRepository) Update(g *Gesture) error {
	g.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE gestures SET name = ?, position = ?, definition = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.Position, string(g.Definition), g.UpdatedAt, g.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Delete removes a gesture from the database by its ID.
func (r *GestureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM gestures WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Append stores d after every existing gesture.
func (r *GestureRepository) Append(d *gesture.Description) (*Gesture, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	def, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	var next int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM gestures`).Scan(&next); err != nil {
		return nil, err
	}

	g := &Gesture{ID: uuid.New().String(), Name: d.Name, Position: next, Definition: def}
	if err := r.Create(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Replace swaps the whole library for lib in one transaction, keeping its order.
func (r *GestureRepository) Replace(lib []*gesture.Description) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM gestures`); err != nil {
		return err
	}

	now := time.Now()
	for i, d := range lib {
		if err := d.Validate(); err != nil {
			return err
		}
		def, err := json.Marshal(d)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO gestures (id, name, position, definition, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), d.Name, i, string(def), now, now,
		)
		if err != nil {
			return fmt.Errorf("store gesture %q: %w", d.Name, err)
		}
	}
	return tx.Commit()
}

// Library decodes every stored gesture in declaration order.
func (r *GestureRepository) Library() ([]*gesture.Description, error) {
	gestures, err := r.List()
	if err != nil {
		return nil, err
	}
	lib := make([]*gesture.Description, 0, len(gestures))
	for _, g := range gestures {
		d, err := g.Description()
		if err != nil {
			return nil, err
		}
		lib = append(lib, d)
	}
	return lib, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
