// Package lineage creates, forks and merges incidents while keeping the parent/merge graph acyclic.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
)

// Operation names reported to the Recorder.
const (
	OpCreate = "create"
	OpFork   = "fork"
	OpMerge  = "merge"
)

const mergeSeparator = " | Merged: "

// Recorder observes lineage mutations.
type Recorder interface {
	ObserveLineage(op string, err error)
}

// MergeReport lists which children were absorbed and which were ignored.
type MergeReport struct {
	Parent  domain.Incident `json:"parent"`
	Merged  []int64         `json:"merged"`
	Skipped []int64         `json:"skipped"`
}

// Manager applies lineage operations, one transaction per call.
type Manager struct {
	store    ports.IncidentStore
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder reports every mutation outcome.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock supplies the default timestamp for reports that omit one.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager over store.
func NewManager(store ports.IncidentStore, opts ...Option) *Manager {
	m := &Manager{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new root incident whose parent is itself.
func (m *Manager) Create(ctx context.Context, req domain.NewIncident) (inc domain.Incident, err error) {
	defer func() { m.observe(OpCreate, err) }()

	if err := req.Validate(); err != nil {
		return domain.Incident{}, err
	}
	inc = m.prepare(req)

	err = m.store.WithinTx(ctx, func(repo ports.IncidentRepository) error {
		id, err := repo.Insert(ctx, inc)
		if err != nil {
			return err
		}
		inc.ID = id
		inc.ParentID = id
		if err := repo.Update(ctx, inc); err != nil {
			return err
		}
		inc, err = repo.Find(ctx, id)
		return err
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("create incident: %w", err)
	}

	m.logger.Info("incident created", "id", inc.ID)
	return inc, nil
}

// Fork stores a new incident descending from parentID.
func (m *Manager) Fork(ctx context.Context, parentID int64, req domain.NewIncident) (inc domain.Incident, err error) {
	defer func() { m.observe(OpFork, err) }()

	if err := req.Validate(); err != nil {
		return domain.Incident{}, err
	}
	inc = m.prepare(req)

	err = m.store.WithinTx(ctx, func(repo ports.IncidentRepository) error {
		if _, err := repo.Find(ctx, parentID); err != nil {
			return err
		}
		inc.ParentID = parentID
		id, err := repo.Insert(ctx, inc)
		if err != nil {
			return err
		}
		inc, err = repo.Find(ctx, id)
		return err
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("fork incident %d: %w", parentID, err)
	}

	m.logger.Info("incident forked", "id", inc.ID, "parent_id", parentID)
	return inc, nil
}

// Merge folds children into parentID in request order.
// Missing ids, the parent itself and already merged children are skipped.
// A merged parent cannot absorb others, which keeps every merge chain one hop long.
func (m *Manager) Merge(ctx context.Context, parentID int64, childIDs []int64) (report MergeReport, err error) {
	defer func() { m.observe(OpMerge, err) }()

	report = MergeReport{Merged: []int64{}, Skipped: []int64{}}
	err = m.store.WithinTx(ctx, func(repo ports.IncidentRepository) error {
		parent, err := repo.Find(ctx, parentID)
		if err != nil {
			return err
		}
		if !parent.Active() {
			return fmt.Errorf("%w: incident %d is merged into %d", domain.ErrInvalidInput, parentID, *parent.MergedInto)
		}

		var appended []string
		for _, childID := range childIDs {
			if childID == parentID {
				report.Skipped = append(report.Skipped, childID)
				continue
			}
			child, err := repo.Find(ctx, childID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					report.Skipped = append(report.Skipped, childID)
					continue
				}
				return err
			}
			if !child.Active() {
				report.Skipped = append(report.Skipped, childID)
				continue
			}

			child.MergedInto = &parent.ID
			if err := repo.Update(ctx, child); err != nil {
				return err
			}
			appended = append(appended, child.Description)
			report.Merged = append(report.Merged, childID)
		}

		if len(appended) > 0 {
			parent.Description += mergeSeparator + strings.Join(appended, mergeSeparator)
			if err := repo.Update(ctx, parent); err != nil {
				return err
			}
		}

		report.Parent, err = repo.Find(ctx, parentID)
		return err
	})
	if err != nil {
		return MergeReport{}, fmt.Errorf("merge into incident %d: %w", parentID, err)
	}

	m.logger.Info("incidents merged", "parent_id", parentID, "merged", report.Merged, "skipped", report.Skipped)
	return report, nil
}

// Get returns one incident.
func (m *Manager) Get(ctx context.Context, id int64) (domain.Incident, error) {
	inc, err := m.store.Find(ctx, id)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("get incident %d: %w", id, err)
	}
	return inc, nil
}

// List returns incidents matching filter.
func (m *Manager) List(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	incidents, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

func (m *Manager) prepare(req domain.NewIncident) domain.Incident {
	inc := req.Incident()
	if inc.Timestamp.IsZero() {
		inc.Timestamp = m.now().UTC()
	}
	return inc
}

func (m *Manager) observe(op string, err error) {
	if m.recorder != nil {
		m.recorder.ObserveLineage(op, err)
	}
}
