package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SafeMap/internal/domain"
	"SafeMap/internal/ports"
)

const incidentsTable = "incidents"

var incidentColumns = []string{
	"id", "parent_id", "merged_into", "source_key", "title", "description",
	"latitude", "longitude", "incident_type", "occurred_at", "source", "url",
	"semantic_cluster", "geo_cluster", "risk_score", "risk_level",
	"created_at", "updated_at",
}

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repository implements ports.IncidentRepository on top of a querier.
type repository struct {
	q         querier
	sb        sq.StatementBuilderType
	dialect   dialect
	forUpdate bool
	now       func() time.Time
}

var _ ports.IncidentRepository = (*repository)(nil)

func newRepository(q querier, d dialect, now func() time.Time) *repository {
	sb := sq.StatementBuilder
	if d == dialectPostgres {
		sb = sb.PlaceholderFormat(sq.Dollar)
	}
	return &repository{q: q, sb: sb, dialect: d, now: now}
}

// inTx returns a copy bound to tx. Postgres transactions lock the rows they read.
func (r *repository) inTx(tx *sql.Tx) *repository {
	cp := *r
	cp.q = tx
	cp.forUpdate = r.dialect == dialectPostgres
	return &cp
}

func (r *repository) Insert(ctx context.Context, inc domain.Incident) (int64, error) {
	now := r.now().UTC()
	query, args, err := r.sb.Insert(incidentsTable).
		Columns(incidentColumns[1:]...).
		Values(
			inc.ParentID,
			nullInt64(inc.MergedInto),
			inc.SourceKey,
			inc.Title,
			inc.Description,
			nullFloat(inc.Latitude),
			nullFloat(inc.Longitude),
			inc.IncidentType,
			inc.Timestamp.UTC(),
			inc.Source,
			inc.URL,
			nullInt(inc.SemanticCluster),
			nullInt(inc.GeoCluster),
			nullFloat(inc.RiskScore),
			string(inc.RiskLevel),
			now,
			now,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert incident: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, inc domain.Incident) error {
	query, args, err := r.sb.Update(incidentsTable).
		SetMap(map[string]any{
			"parent_id":        inc.ParentID,
			"merged_into":      nullInt64(inc.MergedInto),
			"source_key":       inc.SourceKey,
			"title":            inc.Title,
			"description":      inc.Description,
			"latitude":         nullFloat(inc.Latitude),
			"longitude":        nullFloat(inc.Longitude),
			"incident_type":    inc.IncidentType,
			"occurred_at":      inc.Timestamp.UTC(),
			"source":           inc.Source,
			"url":              inc.URL,
			"semantic_cluster": nullInt(inc.SemanticCluster),
			"geo_cluster":      nullInt(inc.GeoCluster),
			"risk_score":       nullFloat(inc.RiskScore),
			"risk_level":       string(inc.RiskLevel),
			"updated_at":       r.now().UTC(),
		}).
		Where(sq.Eq{"id": inc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update incident %d: %w", inc.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident %d: rows affected: %w", inc.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("incident %d: %w", inc.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateAnnotation rewrites only the pipeline-owned columns of an active incident.
// It reports false when the incident is missing or already merged away.
func (r *repository) UpdateAnnotation(ctx context.Context, id int64, a domain.Annotation) (bool, error) {
	query, args, err := r.sb.Update(incidentsTable).
		SetMap(map[string]any{
			"semantic_cluster": a.SemanticCluster,
			"geo_cluster":      a.GeoCluster,
			"risk_score":       a.RiskScore,
			"risk_level":       string(a.RiskLevel),
			"updated_at":       r.now().UTC(),
		}).
		Where(sq.Eq{"id": id, "merged_into": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build annotation update: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("annotate incident %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("annotate incident %d: rows affected: %w", id, err)
	}
	return affected > 0, nil
}

func (r *repository) Find(ctx context.Context, id int64) (domain.Incident, error) {
	b := r.sb.Select(incidentColumns...).From(incidentsTable).Where(sq.Eq{"id": id})
	if r.forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return domain.Incident{}, fmt.Errorf("build find: %w", err)
	}

	inc, err := scanIncident(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Incident{}, fmt.Errorf("incident %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("find incident %d: %w", id, err)
	}
	return inc, nil
}

// sqliteKeyChunk bounds the IN list of one SQLite query, well under its variable limit.
var sqliteKeyChunk = 500

func (r *repository) List(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	if filter.SourceKeys != nil && len(filter.SourceKeys) == 0 {
		return []domain.Incident{}, nil
	}
	if r.dialect == dialectSQLite && len(filter.SourceKeys) > sqliteKeyChunk {
		return r.listChunked(ctx, filter)
	}
	return r.list(ctx, filter)
}

// listChunked splits a large source key lookup into several queries and
// restores id order and the limit across them.
func (r *repository) listChunked(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	keys, limit := filter.SourceKeys, filter.Limit
	filter.Limit = 0

	result := make([]domain.Incident, 0)
	for start := 0; start < len(keys); start += sqliteKeyChunk {
		filter.SourceKeys = keys[start:min(start+sqliteKeyChunk, len(keys))]
		part, err := r.list(ctx, filter)
		if err != nil {
			return nil, err
		}
		result = append(result, part...)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && uint64(len(result)) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *repository) list(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {

	b := r.sb.Select(incidentColumns...).From(incidentsTable).OrderBy("id")
	if filter.ActiveOnly {
		b = b.Where(sq.Eq{"merged_into": nil})
	}
	if len(filter.SourceKeys) > 0 {
		if r.dialect == dialectPostgres {
			b = b.Where(sq.Expr("source_key = ANY(?)", pq.Array(filter.SourceKeys)))
		} else {
			b = b.Where(sq.Eq{"source_key": filter.SourceKeys})
		}
	}
	if filter.GeoCluster != nil {
		b = b.Where(sq.Eq{"geo_cluster": *filter.GeoCluster})
	}
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}

	result := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, inc)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (domain.Incident, error) {
	var (
		inc                       domain.Incident
		mergedInto                sql.NullInt64
		lat, lon, risk            sql.NullFloat64
		semantic, geo             sql.NullInt64
		riskLevel                 string
		occurred, created, update timestamp
	)
	err := row.Scan(
		&inc.ID, &inc.ParentID, &mergedInto, &inc.SourceKey, &inc.Title, &inc.Description,
		&lat, &lon, &inc.IncidentType, &occurred, &inc.Source, &inc.URL,
		&semantic, &geo, &risk, &riskLevel,
		&created, &update,
	)
	if err != nil {
		return domain.Incident{}, err
	}

	if mergedInto.Valid {
		v := mergedInto.Int64
		inc.MergedInto = &v
	}
	inc.Latitude = floatPtr(lat)
	inc.Longitude = floatPtr(lon)
	inc.RiskScore = floatPtr(risk)
	inc.SemanticCluster = intPtr(semantic)
	inc.GeoCluster = intPtr(geo)
	inc.RiskLevel = domain.RiskLevel(riskLevel)
	inc.Timestamp = occurred.Time
	inc.CreatedAt = created.Time
	inc.UpdatedAt = update.Time
	return inc, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// timestamp scans both native time values and the text forms SQLite hands back.
type timestamp struct {
	Time time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	// Strip the monotonic clock suffix time.Time.String appends.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
