package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SafeMap/internal/analysis"
	"SafeMap/internal/domain"
	"SafeMap/internal/infrastructure/embedding"
	"SafeMap/internal/infrastructure/storage"
	"SafeMap/internal/lineage"
	"SafeMap/internal/metrics"
	"SafeMap/internal/usecase"
)

var testClock = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := func() time.Time { return testClock }
	m := metrics.New()
	manager := lineage.NewManager(store, lineage.WithRecorder(m), lineage.WithClock(now))
	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:    store,
		Analyzer: analysis.New(embedding.NewHashingEmbedder(0)),
		Recorder: m,
		Clock:    now,
	})
	handler := NewHandler(manager, pipeline, usecase.NewClusterService(store), store, nil)
	return NewRouter(handler, m.Handler(), nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func incidentBody(title string) map[string]any {
	return map[string]any{
		"title":         title,
		"description":   title + " reported by a commuter",
		"latitude":      19.07,
		"longitude":     72.87,
		"incident_type": "harassment",
		"timestamp":     "2024-05-30T18:00:00Z",
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	w := do(t, setupRouter(t), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])
}

func TestCreateAndGetIncident(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	w := do(t, router, http.MethodPost, "/incidents", incidentBody("Catcalling at bus stop"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Incident](t, w)
	assert.NotZero(t, created.ID)
	assert.Equal(t, created.ID, created.ParentID)
	assert.Nil(t, created.MergedInto)
	assert.Equal(t, "harassment", created.IncidentType)
	assert.True(t, created.Timestamp.Equal(time.Date(2024, 5, 30, 18, 0, 0, 0, time.UTC)))

	w = do(t, router, http.MethodGet, "/incidents/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Title, decode[domain.Incident](t, w).Title)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/incidents/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/incidents/abc", nil).Code)
}

func TestCreateIncidentValidation(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	missing := incidentBody("No coordinates")
	delete(missing, "latitude")
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/incidents", missing).Code)

	badTime := incidentBody("Bad time")
	badTime["timestamp"] = "last tuesday"
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/incidents", badTime).Code)

	outOfRange := incidentBody("Out of range")
	outOfRange["latitude"] = 123.0
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/incidents", outOfRange).Code)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/incidents", "{").Code)
}

func TestForkIncident(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	parent := decode[domain.Incident](t, do(t, router, http.MethodPost, "/incidents", incidentBody("Stalking report")))

	w := do(t, router, http.MethodPost, "/incidents/"+itoa(parent.ID)+"/fork", incidentBody("Stalking report, second witness"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fork := decode[domain.Incident](t, w)
	assert.Equal(t, parent.ID, fork.ParentID)
	assert.NotEqual(t, parent.ID, fork.ID)

	w = do(t, router, http.MethodPost, "/incidents/404/fork", incidentBody("Orphan"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMergeIncidents(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	parent := decode[domain.Incident](t, do(t, router, http.MethodPost, "/incidents", incidentBody("Assault near market")))
	child := decode[domain.Incident](t, do(t, router, http.MethodPost, "/incidents", incidentBody("Market assault")))

	w := do(t, router, http.MethodPost, "/incidents/merge", map[string]any{
		"parent_id": parent.ID,
		"merge_ids": []int64{child.ID, 777},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[lineage.MergeReport](t, w)
	assert.Equal(t, []int64{child.ID}, report.Merged)
	assert.Equal(t, []int64{777}, report.Skipped)
	assert.True(t, strings.Contains(report.Parent.Description, " | Merged: "+child.Description))

	active := decode[[]domain.Incident](t, do(t, router, http.MethodGet, "/incidents", nil))
	require.Len(t, active, 1)
	assert.Equal(t, parent.ID, active[0].ID)

	all := decode[[]domain.Incident](t, do(t, router, http.MethodGet, "/incidents?all=true", nil))
	require.Len(t, all, 2)
	require.NotNil(t, all[1].MergedInto)
	assert.Equal(t, parent.ID, *all[1].MergedInto)

	w = do(t, router, http.MethodPost, "/incidents/merge", map[string]any{"parent_id": 999, "merge_ids": []int64{parent.ID}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/incidents/merge", map[string]any{"parent_id": child.ID, "merge_ids": []int64{parent.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/incidents/merge", map[string]any{"merge_ids": []int64{1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIncidentsQueryValidation(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/incidents?geo_cluster=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/incidents?limit=-1", nil).Code)

	w := do(t, router, http.MethodGet, "/incidents?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestPipelineRunAndClusters(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	body := map[string]any{"articles": []map[string]any{
		{
			"title": "Murder in Andheri", "description": "A man was killed in Andheri east",
			"publishedAt": "2024-05-30T10:00:00Z", "lat": 19.1197, "lon": 72.8468,
			"source": "Mid-Day", "url": "https://example.org/andheri-1",
		},
		{
			"title": "Andheri murder probe", "description": "Police probe the killing of a man in Andheri east",
			"publishedAt": "2024-05-31T10:00:00Z", "lat": 19.1199, "lon": 72.8470,
			"source": "NDTV", "url": "https://example.org/andheri-2",
		},
		{"title": "No description", "publishedAt": "2024-05-31T10:00:00Z", "url": "https://example.org/empty"},
	}}

	w := do(t, router, http.MethodPost, "/pipeline/run", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[domain.PipelineResult](t, w)
	assert.Equal(t, 3, result.Summary.Received)
	assert.Equal(t, 1, result.Summary.Rejected)
	assert.Equal(t, 2, result.Summary.Inserted)
	require.Len(t, result.Incidents, 2)
	require.Len(t, result.Annotations, 2)
	assert.Equal(t, result.Annotations[0].GeoCluster, result.Annotations[1].GeoCluster)
	assert.NotEqual(t, domain.NoiseCluster, result.Annotations[0].GeoCluster)

	w = do(t, router, http.MethodGet, "/clusters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[struct {
		Clusters []usecase.ClusterView `json:"clusters"`
	}](t, w)
	require.Len(t, views.Clusters, 1)
	assert.Equal(t, 2, views.Clusters[0].Count)

	w = do(t, router, http.MethodPost, "/pipeline/reannotate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[domain.PipelineResult](t, w).Incidents, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/pipeline/run", "not json").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	router := setupRouter(t)

	do(t, router, http.MethodPost, "/incidents", incidentBody("Metric probe"))

	w := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `safemap_lineage_operations_total{op="create",result="ok"} 1`)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
