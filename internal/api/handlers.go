package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SafeMap/internal/domain"
	"SafeMap/internal/lineage"
	"SafeMap/internal/usecase"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the incident API.
type Handler struct {
	lineage  *lineage.Manager
	pipeline *usecase.Pipeline
	clusters *usecase.ClusterService
	health   Pinger
	logger   *slog.Logger
}

// NewHandler creates a new API handler. health may be nil.
func NewHandler(manager *lineage.Manager, pipeline *usecase.Pipeline, clusters *usecase.ClusterService, health Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lineage:  manager,
		pipeline: pipeline,
		clusters: clusters,
		health:   health,
		logger:   logger,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			h.logger.Error("storage ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CreateIncident handles POST /incidents
func (h *Handler) CreateIncident(c *gin.Context) {
	req, ok := h.bindIncident(c)
	if !ok {
		return
	}
	inc, err := h.lineage.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// ListIncidents handles GET /incidents. Merged incidents are hidden unless all=true.
func (h *Handler) ListIncidents(c *gin.Context) {
	filter := domain.IncidentFilter{ActiveOnly: c.Query("all") != "true"}

	if raw := c.Query("geo_cluster"); raw != "" {
		label, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: geo_cluster must be an integer", domain.ErrInvalidInput))
			return
		}
		filter.GeoCluster = &label
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
			return
		}
		filter.Limit = limit
	}

	incidents, err := h.lineage.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	c.JSON(http.StatusOK, incidents)
}

// GetIncident handles GET /incidents/:id
func (h *Handler) GetIncident(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inc, err := h.lineage.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// ForkIncident handles POST /incidents/:id/fork
func (h *Handler) ForkIncident(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	req, ok := h.bindIncident(c)
	if !ok {
		return
	}
	inc, err := h.lineage.Fork(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// MergeIncidents handles POST /incidents/merge
func (h *Handler) MergeIncidents(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid merge request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.lineage.Merge(c.Request.Context(), req.ParentID, req.MergeIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListClusters handles GET /clusters
func (h *Handler) ListClusters(c *gin.Context) {
	views, err := h.clusters.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": views})
}

// RunPipeline handles POST /pipeline/run
func (h *Handler) RunPipeline(c *gin.Context) {
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid pipeline request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	articles := make([]domain.Article, 0, len(req.Articles))
	for _, a := range req.Articles {
		articles = append(articles, a.toDomain())
	}

	result, err := h.pipeline.Run(c.Request.Context(), articles)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reannotate handles POST /pipeline/reannotate
func (h *Handler) Reannotate(c *gin.Context) {
	result, err := h.pipeline.Reannotate(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) bindIncident(c *gin.Context) (domain.NewIncident, bool) {
	var body IncidentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Warn("invalid incident request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.NewIncident{}, false
	}
	req, err := body.toDomain()
	if err != nil {
		h.fail(c, err)
		return domain.NewIncident{}, false
	}
	return req, true
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return 0, false
	}
	return id, true
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
