package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id               BIGSERIAL PRIMARY KEY,
		parent_id        BIGINT NOT NULL DEFAULT 0,
		merged_into      BIGINT NULL REFERENCES incidents(id),
		source_key       TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL,
		latitude         DOUBLE PRECISION NULL,
		longitude        DOUBLE PRECISION NULL,
		incident_type    TEXT NOT NULL DEFAULT 'crime',
		occurred_at      TIMESTAMPTZ NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		semantic_cluster INTEGER NULL,
		geo_cluster      INTEGER NULL,
		risk_score       DOUBLE PRECISION NULL,
		risk_level       TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS incidents_source_key_idx ON incidents (source_key) WHERE source_key <> ''`,
	`CREATE INDEX IF NOT EXISTS incidents_geo_cluster_idx ON incidents (geo_cluster)`,
}

// OpenPostgres connects with lib/pq and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, db, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db, opts...), nil
}

// NewPostgresStore wires an existing sql.DB that speaks Postgres.
func NewPostgresStore(db *sql.DB, opts ...Option) *Store {
	return newStore(db, dialectPostgres, opts...)
}
