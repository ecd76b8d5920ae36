package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SafeMap/internal/analysis"
	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
	"SafeMap/internal/scoring"
)

// DefaultLookbackDays is how far back ProcessWindow fetches articles.
const DefaultLookbackDays = 30

// Pipeline run statuses reported to the Recorder.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder observes pipeline runs.
type Recorder interface {
	ObservePipeline(status string, summary domain.RunSummary)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source       ports.ArticleSource
	Store        ports.IncidentStore
	Analyzer     *analysis.Analyzer
	Notifier     ports.Notifier
	Recorder     Recorder
	Logger       *slog.Logger
	Clock        func() time.Time
	LookbackDays int
}

// Pipeline turns article batches into annotated, persisted incidents.
type Pipeline struct {
	source       ports.ArticleSource
	store        ports.IncidentStore
	analyzer     *analysis.Analyzer
	notifier     ports.Notifier
	recorder     Recorder
	logger       *slog.Logger
	now          func() time.Time
	lookbackDays int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:       deps.Source,
		store:        deps.Store,
		analyzer:     deps.Analyzer,
		notifier:     deps.Notifier,
		recorder:     deps.Recorder,
		logger:       deps.Logger,
		now:          deps.Clock,
		lookbackDays: deps.LookbackDays,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.lookbackDays <= 0 {
		p.lookbackDays = DefaultLookbackDays
	}
	return p
}

// candidate is an accepted article plus its stored incident, if any.
type candidate struct {
	index    int
	article  domain.Article
	existing *domain.Incident
}

// Run validates one batch and analyses it together with every active stored
// incident, so cluster labels and risk are shared across all runs. New articles
// become root incidents, known ones are refreshed, merged ones are left untouched.
func (p *Pipeline) Run(ctx context.Context, articles []domain.Article) (result domain.PipelineResult, err error) {
	started := time.Now()
	result = emptyResult()
	result.Summary.Received = len(articles)
	defer func() { p.observe(&result.Summary, started, err) }()

	if len(articles) == 0 {
		return result, nil
	}
	if p.analyzer == nil || p.store == nil {
		return result, errors.New("pipeline is not configured")
	}

	accepted := p.validate(articles, &result.Summary)
	candidates, err := p.matchExisting(ctx, accepted, &result.Summary)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	var fresh []candidate
	requested := make(map[int64]int)
	for _, c := range candidates {
		if c.existing != nil {
			requested[c.existing.ID] = c.index
			continue
		}
		fresh = append(fresh, c)
	}

	stats, err := p.annotate(ctx, fresh, requested, &result)
	if err != nil {
		return result, err
	}
	result.Summary.Accepted = len(candidates) - stats.rejected

	p.logger.Info("pipeline run complete",
		"received", result.Summary.Received,
		"accepted", result.Summary.Accepted,
		"rejected", result.Summary.Rejected,
		"inserted", result.Summary.Inserted,
		"updated", result.Summary.Updated,
		"reannotated", result.Summary.Reannotated,
		"skipped_merged", result.Summary.SkippedMerged)
	return result, nil
}

// Reannotate recomputes cluster and risk fields for every active stored incident.
func (p *Pipeline) Reannotate(ctx context.Context) (result domain.PipelineResult, err error) {
	started := time.Now()
	result = emptyResult()
	defer func() { p.observe(&result.Summary, started, err) }()

	if p.analyzer == nil || p.store == nil {
		return result, errors.New("pipeline is not configured")
	}

	stats, err := p.annotate(ctx, nil, nil, &result)
	if err != nil {
		return result, err
	}
	result.Summary.Received = stats.active
	result.Summary.Accepted = stats.active - stats.rejected

	p.logger.Info("reannotation complete", "incidents", result.Summary.Updated, "rejected", result.Summary.Rejected)
	return result, nil
}

type annotateStats struct {
	active   int
	rejected int
}

// annotate analyses all active stored incidents plus the fresh candidates as one set.
// In a single transaction it inserts the fresh ones and rewrites only the annotation
// columns of the stored ones, skipping any that were merged while the analysis ran.
// A nil requested map counts every stored incident as updated.
func (p *Pipeline) annotate(ctx context.Context, fresh []candidate, requested map[int64]int, result *domain.PipelineResult) (annotateStats, error) {
	active, err := p.store.List(ctx, domain.IncidentFilter{ActiveOnly: true})
	if err != nil {
		return annotateStats{}, fmt.Errorf("load active incidents: %w", err)
	}
	stats := annotateStats{active: len(active)}

	batch := make([]domain.Article, 0, len(active)+len(fresh))
	for _, inc := range active {
		batch = append(batch, inc.Article())
	}
	for _, c := range fresh {
		batch = append(batch, c.article)
	}
	if len(batch) == 0 {
		return stats, nil
	}

	an, err := p.analyzer.Analyze(ctx, batch, p.now())
	if err != nil {
		return stats, fmt.Errorf("analyze incidents: %w", err)
	}
	for _, rej := range an.Rejected {
		if rej.Index >= len(active) {
			rej.Index = fresh[rej.Index-len(active)].index
		} else if requested != nil {
			id := active[rej.Index].ID
			idx, ok := requested[id]
			if !ok {
				p.logger.Warn("stored incident left unannotated", "id", id, "reason", rej.Reason)
				continue
			}
			rej.Index = idx
		}
		result.Summary.Reject(rej)
		stats.rejected++
	}

	incidents := make([]domain.Incident, len(an.Kept))
	for pos, idx := range an.Kept {
		if idx < len(active) {
			incidents[pos] = active[idx]
		} else {
			incidents[pos] = newIncident(fresh[idx-len(active)].article)
		}
		incidents[pos].Annotate(an.Annotations[pos])
	}

	written := make([]bool, len(incidents))
	var inserted, updated, refreshed, skipped int
	err = p.store.WithinTx(ctx, func(repo ports.IncidentRepository) error {
		for pos := range incidents {
			inc := &incidents[pos]
			if inc.ID == 0 {
				id, err := repo.Insert(ctx, *inc)
				if err != nil {
					return err
				}
				inc.ID, inc.ParentID = id, id
				if err := repo.Update(ctx, *inc); err != nil {
					return err
				}
				written[pos] = true
				inserted++
				continue
			}

			ok, err := repo.UpdateAnnotation(ctx, inc.ID, an.Annotations[pos])
			if err != nil {
				return err
			}
			if !ok {
				skipped++
				continue
			}
			written[pos] = true
			if _, req := requested[inc.ID]; requested == nil || req {
				updated++
			} else {
				refreshed++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("persist annotations: %w", err)
	}
	if skipped > 0 {
		p.logger.Warn("incidents merged during analysis kept their annotations", "count", skipped)
	}

	result.Summary.Inserted = inserted
	result.Summary.Updated = updated
	result.Summary.Reannotated = refreshed
	result.Summary.SkippedMerged += skipped
	p.fill(result, incidents, an, written)
	return stats, nil
}

// ProcessWindow fetches the lookback window ending at now, runs the batch and
// publishes a digest of high-risk clusters.
func (p *Pipeline) ProcessWindow(ctx context.Context, now time.Time) (domain.PipelineResult, error) {
	if p.source == nil {
		return emptyResult(), nil
	}

	from := now.AddDate(0, 0, -p.lookbackDays)
	articles, err := p.source.FetchWindow(ctx, from, now)
	if err != nil {
		return emptyResult(), fmt.Errorf("fetch window: %w", err)
	}
	p.logger.Info("fetched articles", "count", len(articles), "from", from.Format(time.DateOnly), "to", now.Format(time.DateOnly))

	result, err := p.Run(ctx, articles)
	if err != nil {
		return result, err
	}

	if p.notifier == nil {
		return result, nil
	}
	message := buildDigestMessage(result)
	if message == "" {
		return result, nil
	}
	if err := p.notifier.PublishDigest(ctx, message); err != nil {
		return result, fmt.Errorf("publish digest: %w", err)
	}
	return result, nil
}

func (p *Pipeline) validate(articles []domain.Article, summary *domain.RunSummary) []candidate {
	accepted := make([]candidate, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))
	for i, art := range articles {
		key := art.Key()
		if err := art.Validate(); err != nil {
			p.reject(summary, i, key, err)
			continue
		}
		if _, dup := seen[key]; dup {
			p.reject(summary, i, key, fmt.Errorf("%w: duplicate source key in batch", domain.ErrInvalidInput))
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, candidate{index: i, article: art})
	}
	return accepted
}

func (p *Pipeline) reject(summary *domain.RunSummary, index int, key string, err error) {
	p.logger.Warn("rejecting record", "index", index, "key", key, "error", err)
	summary.Reject(domain.RecordError{Index: index, Key: key, Reason: err.Error()})
}

// matchExisting attaches stored incidents and drops those already merged away.
func (p *Pipeline) matchExisting(ctx context.Context, accepted []candidate, summary *domain.RunSummary) ([]candidate, error) {
	if len(accepted) == 0 {
		return accepted, nil
	}

	keys := make([]string, len(accepted))
	for i, c := range accepted {
		keys[i] = c.article.Key()
	}
	stored, err := p.store.List(ctx, domain.IncidentFilter{SourceKeys: keys})
	if err != nil {
		return nil, fmt.Errorf("load existing incidents: %w", err)
	}
	byKey := make(map[string]domain.Incident, len(stored))
	for _, inc := range stored {
		byKey[inc.SourceKey] = inc
	}

	out := accepted[:0]
	for _, c := range accepted {
		if inc, ok := byKey[c.article.Key()]; ok {
			if !inc.Active() {
				summary.SkippedMerged++
				continue
			}
			c.existing = &inc
		}
		out = append(out, c)
	}
	return out, nil
}

// fill publishes the written incidents; pair indexes are remapped onto them.
func (p *Pipeline) fill(result *domain.PipelineResult, incidents []domain.Incident, an analysis.Analysis, written []bool) {
	remap := make([]int, len(incidents))
	for pos, inc := range incidents {
		if !written[pos] {
			remap[pos] = -1
			continue
		}
		remap[pos] = len(result.Incidents)
		result.Incidents = append(result.Incidents, inc)
		result.Annotations = append(result.Annotations, an.Annotations[pos])
	}
	result.Summary.SemanticClusters = an.SemanticClusters
	result.Summary.GeoClusters = an.GeoClusters
	result.Clusters = scoring.Sorted(an.Clusters)

	for _, m := range an.Merges {
		i, j := remap[m.I], remap[m.J]
		if i < 0 || j < 0 {
			continue
		}
		m.IncidentI, m.IncidentJ = incidents[m.I].ID, incidents[m.J].ID
		m.I, m.J = i, j
		result.MergeSuggestions = append(result.MergeSuggestions, m)
	}
	for _, c := range an.Conflicts {
		i, j := remap[c.I], remap[c.J]
		if i < 0 || j < 0 {
			continue
		}
		c.IncidentI, c.IncidentJ = incidents[c.I].ID, incidents[c.J].ID
		c.I, c.J = i, j
		result.ConflictFlags = append(result.ConflictFlags, c)
	}
}

func (p *Pipeline) observe(summary *domain.RunSummary, started time.Time, err error) {
	summary.Duration = time.Since(started)
	if p.recorder == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	p.recorder.ObservePipeline(status, *summary)
}

func newIncident(art domain.Article) domain.Incident {
	return domain.Incident{
		SourceKey:    art.Key(),
		Title:        art.Title,
		Description:  art.Description,
		Latitude:     art.Latitude,
		Longitude:    art.Longitude,
		IncidentType: domain.DefaultIncidentType,
		Timestamp:    art.PublishedAt.UTC(),
		Source:       art.Source,
		URL:          art.URL,
	}
}

func emptyResult() domain.PipelineResult {
	return domain.PipelineResult{
		Incidents:        []domain.Incident{},
		Annotations:      []domain.Annotation{},
		MergeSuggestions: []domain.MergeSuggestion{},
		ConflictFlags:    []domain.ConflictFlag{},
		Clusters:         []domain.ClusterRisk{},
	}
}

func buildDigestMessage(result domain.PipelineResult) string {
	members := make(map[int][]domain.Incident)
	for _, inc := range result.Incidents {
		if inc.GeoCluster != nil {
			members[*inc.GeoCluster] = append(members[*inc.GeoCluster], inc)
		}
	}

	var b strings.Builder
	for _, c := range result.Clusters {
		if c.RiskLevel != domain.RiskHigh || c.GeoCluster == domain.NoiseCluster {
			continue
		}
		fmt.Fprintf(&b, "- Cluster %d: %d reports, risk %.2f (%s)\n", c.GeoCluster, c.Frequency, c.RiskScore, c.RiskLevel)
		for _, inc := range members[c.GeoCluster] {
			fmt.Fprintf(&b, "  %s\n  %s\n", inc.Title, inc.URL)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "High-risk areas\n\n" + b.String()
}
