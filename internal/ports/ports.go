package ports

import (
	"context"
	"time"

	"SafeMap/internal/domain"
)

// ArticleSource pulls fresh articles from upstream providers.
type ArticleSource interface {
	FetchWindow(ctx context.Context, from, to time.Time) ([]domain.Article, error)
}

// Embedder turns texts into fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache stores vectors keyed by model and text hash.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// IncidentRepository is the persistence contract consumed by the pipeline and lineage manager.
type IncidentRepository interface {
	Insert(ctx context.Context, incident domain.Incident) (int64, error)
	Update(ctx context.Context, incident domain.Incident) error
	// UpdateAnnotation writes cluster and risk fields only, and only while the incident is active.
	UpdateAnnotation(ctx context.Context, id int64, annotation domain.Annotation) (bool, error)
	Find(ctx context.Context, id int64) (domain.Incident, error)
	List(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error)
}

// IncidentStore adds transaction scoping; fn sees a repository bound to the transaction.
type IncidentStore interface {
	IncidentRepository
	WithinTx(ctx context.Context, fn func(repo IncidentRepository) error) error
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
