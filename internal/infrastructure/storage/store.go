package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
)

// Store implements ports.IncidentStore for Postgres and SQLite.
type Store struct {
	db   *sql.DB
	repo *repository
	// SQLite allows a single writer; writes are serialized in-process.
	writeMu         sync.Mutex
	serializeWrites bool
}

var _ ports.IncidentStore = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.repo.now = now
		}
	}
}

func newStore(db *sql.DB, d dialect, opts ...Option) *Store {
	s := &Store{
		db:              db,
		repo:            newRepository(db, d, time.Now),
		serializeWrites: d == dialectSQLite,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lockWrites() func() {
	if !s.serializeWrites {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// Insert implements ports.IncidentRepository.
func (s *Store) Insert(ctx context.Context, inc domain.Incident) (int64, error) {
	defer s.lockWrites()()
	return s.repo.Insert(ctx, inc)
}

// Update implements ports.IncidentRepository.
func (s *Store) Update(ctx context.Context, inc domain.Incident) error {
	defer s.lockWrites()()
	return s.repo.Update(ctx, inc)
}

// UpdateAnnotation implements ports.IncidentRepository.
func (s *Store) UpdateAnnotation(ctx context.Context, id int64, a domain.Annotation) (bool, error) {
	defer s.lockWrites()()
	return s.repo.UpdateAnnotation(ctx, id, a)
}

// Find implements ports.IncidentRepository.
func (s *Store) Find(ctx context.Context, id int64) (domain.Incident, error) {
	return s.repo.Find(ctx, id)
}

// List implements ports.IncidentRepository.
func (s *Store) List(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	return s.repo.List(ctx, filter)
}

// WithinTx runs fn in one transaction; any error from fn rolls everything back.
func (s *Store) WithinTx(ctx context.Context, fn func(repo ports.IncidentRepository) error) error {
	defer s.lockWrites()()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(s.repo.inTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	defer s.lockWrites()()
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}
