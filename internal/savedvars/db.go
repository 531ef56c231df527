package savedvars

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB persists saved-variable snapshots in a SQLite database.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the saved-variables database in the given directory.
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "savedvars.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for durability without blocking the host on flushes
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	// Single-row snapshot table: the store is one flat mapping, persisted whole.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS saved_variables (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// LoadSnapshot reads the persisted mapping. A fresh database yields an
// empty mapping, not an error.
func (d *DB) LoadSnapshot() (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var data string
	err := d.db.QueryRow(`SELECT data FROM saved_variables WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// SaveSnapshot writes the full mapping, replacing any prior snapshot.
func (d *DB) SaveSnapshot(m map[string]any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.db.Exec(`
		INSERT INTO saved_variables (id, data, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, string(data))
	return err
}
