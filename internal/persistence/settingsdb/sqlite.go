// Package settingsdb persists mod settings and their change history in SQLite.
package settingsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"buildingheight.ai/internal/settings"
)

const schemaVersion = "1"

const (
	keyHeightUnit = "height_unit"
	keyOffset     = "sea_level_offset_meters"
)

type SQLite struct {
	db   *sql.DB
	once sync.Once
	now  func() time.Time
}

// Change is one row of the settings history, newest first from History.
type Change struct {
	ID        int64             `json:"id"`
	Settings  settings.Settings `json:"settings"`
	ChangedAt time.Time         `json:"changed_at"`
}

func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			height_unit TEXT NOT NULL,
			sea_level_offset_meters INTEGER NOT NULL,
			changed_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// Load returns the stored settings layered over base. found is false when nothing was ever saved.
func (s *SQLite) Load(base settings.Settings) (out settings.Settings, found bool, err error) {
	out = base
	rows, err := s.db.Query(`SELECT key,value FROM settings`)
	if err != nil {
		return base, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return base, false, err
		}
		switch k {
		case keyHeightUnit:
			u, err := settings.ParseHeightUnit(v)
			if err != nil {
				return base, false, fmt.Errorf("settingsdb: %s: %w", k, err)
			}
			out.HeightUnit = u
			found = true
		case keyOffset:
			var n int
			if _, err := fmt.Sscan(v, &n); err != nil {
				return base, false, fmt.Errorf("settingsdb: %s: %w", k, err)
			}
			out.SeaLevelOffsetMeters = n
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return base, false, err
	}
	return out.Normalize(), found, nil
}

// SaveSettings writes the current values and appends a history row in one transaction.
func (s *SQLite) SaveSettings(v settings.Settings) error {
	if s == nil {
		return errors.New("settingsdb: closed")
	}
	v = v.Normalize()
	now := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO settings(key,value,updated_at) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if _, err := stmt.Exec(keyHeightUnit, v.HeightUnit.String(), now); err != nil {
		return err
	}
	if _, err := stmt.Exec(keyOffset, fmt.Sprint(v.SeaLevelOffsetMeters), now); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO settings_history(height_unit,sea_level_offset_meters,changed_at) VALUES(?,?,?)`,
		v.HeightUnit.String(), v.SeaLevelOffsetMeters, now); err != nil {
		return err
	}
	return tx.Commit()
}

// History returns up to limit changes, newest first.
func (s *SQLite) History(limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id,height_unit,sea_level_offset_meters,changed_at FROM settings_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c       Change
			unit    string
			changed string
		)
		if err := rows.Scan(&c.ID, &unit, &c.Settings.SeaLevelOffsetMeters, &changed); err != nil {
			return nil, err
		}
		if c.Settings.HeightUnit, err = settings.ParseHeightUnit(unit); err != nil {
			return nil, err
		}
		if c.ChangedAt, err = time.Parse(time.RFC3339Nano, changed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
