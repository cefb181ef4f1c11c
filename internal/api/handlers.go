package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"

	"github.com/piwi3910/SheetNest/internal/model"
	"github.com/piwi3910/SheetNest/internal/solver"
)

// MaxRetainedJobs bounds how many jobs stay queryable by ID.
const MaxRetainedJobs = 64

// SolveRequest is the body of POST /api/v1/solves. Parts are grouped by
// their material; missing settings fall back to the defaults.
type SolveRequest struct {
	Parts    []model.PartQuantity `json:"parts" binding:"required"`
	Settings *model.Settings      `json:"settings"`
}

// SolveResponse describes one job. Result is set once the job completed.
// Warnings lists materials that were nested on the default sheet because
// the request defined no stock for them.
type SolveResponse struct {
	solver.Status
	Warnings []model.Warning `json:"warnings,omitempty"`
	Result   *model.Result   `json:"result,omitempty"`
}

// trackedJob is a retained job with the warnings raised while starting it.
type trackedJob struct {
	job      *solver.Job
	warnings []model.Warning
}

// Handler serves the solve endpoints.
type Handler struct {
	orch   *solver.Orchestrator
	logger hclog.Logger
	jobs   *lru.Cache // job ID -> *trackedJob
}

// NewHandler creates a new Handler.
func NewHandler(orch *solver.Orchestrator, logger hclog.Logger) *Handler {
	jobs, err := lru.New(MaxRetainedJobs)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	return &Handler{orch: orch, logger: logger, jobs: jobs}
}

// Health reports liveness and how many solves ran the engine.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"runs":   h.orch.Runs(),
	})
}

// CreateSolve starts a solve and answers 202 with the new job. The job
// outlives the request, and a newer solve supersedes it.
func (h *Handler) CreateSolve(c *gin.Context) {
	var req SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := model.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	parts := model.GroupByMaterial(req.Parts)
	settings, defaulted := settings.EnsureStock(parts)
	var warnings []model.Warning
	for _, material := range defaulted {
		warnings = append(warnings, model.Warning{
			Material: material,
			Message:  fmt.Sprintf("no stock defined, using the default %gx%g mm sheet",
				model.DefaultStockWidth, model.DefaultStockHeight),
		})
	}

	job, err := h.orch.Solve(context.Background(), parts, settings)
	switch {
	case errors.Is(err, model.ErrInvalidSettings):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, solver.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("solve rejected", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(defaulted) > 0 {
		h.logger.Warn("no stock defined, using the default sheet", "job", job.ID, "materials", defaulted)
	}
	tracked := &trackedJob{job: job, warnings: warnings}
	h.jobs.Add(job.ID, tracked)
	c.Header("Location", "/api/v1/solves/"+job.ID)
	c.JSON(http.StatusAccepted, describe(tracked))
}

// ListSolves returns the status of every retained job, newest last.
func (h *Handler) ListSolves(c *gin.Context) {
	statuses := make([]solver.Status, 0, h.jobs.Len())
	for _, key := range h.jobs.Keys() {
		if v, ok := h.jobs.Peek(key); ok {
			statuses = append(statuses, v.(*trackedJob).job.Status())
		}
	}
	c.JSON(http.StatusOK, statuses)
}

// GetSolve returns a job's status, with the result once it is complete.
func (h *Handler) GetSolve(c *gin.Context) {
	tracked, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, describe(tracked))
}

// CancelSolve cancels a job. Cancelling a finished job changes nothing.
func (h *Handler) CancelSolve(c *gin.Context) {
	tracked, ok := h.lookup(c)
	if !ok {
		return
	}
	tracked.job.Cancel()
	c.JSON(http.StatusOK, describe(tracked))
}

func (h *Handler) lookup(c *gin.Context) (*trackedJob, bool) {
	v, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "solve not found"})
		return nil, false
	}
	return v.(*trackedJob), true
}

func describe(t *trackedJob) SolveResponse {
	resp := SolveResponse{Status: t.job.Status(), Warnings: t.warnings}
	if result, ok := t.job.Result(); ok {
		resp.Result = &result
	}
	return resp
}
