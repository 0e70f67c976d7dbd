package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS thoughts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT NOT NULL CHECK (source IN ('voice_note', 'text_note', 'document', 'import')),
			audio_file TEXT,
			document_file TEXT,
			summary TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS thought_tags (
			thought_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thought_id, tag_id),
			FOREIGN KEY (thought_id) REFERENCES thoughts(id) ON DELETE CASCADE,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS links (
			id TEXT PRIMARY KEY,
			source_thought_id TEXT NOT NULL,
			target_thought_id TEXT NOT NULL,
			relationship TEXT NOT NULL,
			strength REAL NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (source_thought_id, target_thought_id, relationship),
			FOREIGN KEY (source_thought_id) REFERENCES thoughts(id) ON DELETE CASCADE,
			FOREIGN KEY (target_thought_id) REFERENCES thoughts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			thought_id TEXT NOT NULL,
			content TEXT NOT NULL,
			priority TEXT NOT NULL,
			due_date DATETIME,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (thought_id) REFERENCES thoughts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS imported_conversations (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			format TEXT NOT NULL,
			original_file TEXT NOT NULL,
			metadata TEXT,
			imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_thoughts (
			conversation_id TEXT NOT NULL,
			thought_id TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, thought_id),
			UNIQUE (conversation_id, segment_index),
			FOREIGN KEY (conversation_id) REFERENCES imported_conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (thought_id) REFERENCES thoughts(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			thought_id TEXT,
			file_path TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content TEXT,
			structured TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_thoughts_created_at ON thoughts(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_thought_id);`,
		`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_thought_id);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_thought ON actions(thought_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
