package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Gesture library - one description per row, kept in declaration order
		`CREATE TABLE IF NOT EXISTS gestures (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			position INTEGER NOT NULL,
			definition TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sessions - one row per session start/restart
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			revealed_at DATETIME
		)`,

		// Captures - snapshot files written to the data directory
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_gestures_position ON gestures(position)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_session_id ON captures(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_created_at ON captures(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
