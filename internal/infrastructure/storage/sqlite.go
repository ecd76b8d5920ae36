package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id        INTEGER NOT NULL DEFAULT 0,
		merged_into      INTEGER NULL REFERENCES incidents(id),
		source_key       TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL,
		latitude         REAL NULL,
		longitude        REAL NULL,
		incident_type    TEXT NOT NULL DEFAULT 'crime',
		occurred_at      DATETIME NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		semantic_cluster INTEGER NULL,
		geo_cluster      INTEGER NULL,
		risk_score       REAL NULL,
		risk_level       TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS incidents_source_key_idx ON incidents (source_key) WHERE source_key <> ''`,
	`CREATE INDEX IF NOT EXISTS incidents_geo_cluster_idx ON incidents (geo_cluster)`,
}

var memoryDBSeq atomic.Int64

// OpenSQLite opens (or creates) a SQLite database at path and ensures the schema exists.
// ":memory:" yields a private in-memory database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate"

	inMemory := path == ":memory:"
	var connStr string
	if inMemory {
		// Each in-memory store gets its own shared-cache name so parallel stores stay isolated.
		connStr = fmt.Sprintf("file:safemap-%d?mode=memory&cache=shared&%s", memoryDBSeq.Add(1), params)
	} else {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		connStr = path + sep + params
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := migrate(ctx, db, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newStore(db, dialectSQLite, opts...), nil
}
