package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"traderbot/internal/domain"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
)

// Handler serves the REST endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RunBacktest handles POST /api/v1/backtests.
func (h *Handler) RunBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	resp, err := h.svc.RunBacktest(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListRuns handles GET /api/v1/backtests.
func (h *Handler) ListRuns(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun handles GET /api/v1/backtests/:id.
func (h *Handler) GetRun(c *gin.Context) {
	resp, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListStrategies handles GET /api/v1/strategies.
func (h *Handler) ListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": builtins.Names})
}

// ListSignals handles GET /api/v1/signals?strategy=...&limit=...
func (h *Handler) ListSignals(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	recs, err := h.svc.ListSignals(c.Request.Context(), c.Query("strategy"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": recs})
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case domain.IsCoreError(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
