package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("component", "session_handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetMetrics)
	g.GET("/summary", h.GetSummary)
	g.GET("/sessions", h.ListActive)
	g.GET("/sessions/:id", h.GetSession)
}

func (h *Handler) GetMetrics(c echo.Context) error {
	hours := 24
	if hoursStr := c.QueryParam("hours"); hoursStr != "" {
		if hr, err := strconv.Atoi(hoursStr); err == nil && hr > 0 && hr <= 168 {
			hours = hr
		}
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}

	return c.JSON(http.StatusOK, MetricsListResponse{
		Hours:   hours,
		Metrics: metrics,
	})
}

func (h *Handler) GetSummary(c echo.Context) error {
	metrics, err := h.store.GetMetricsForLast7Days(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to get metrics summary", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	return c.JSON(http.StatusOK, summarize(metrics))
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.store.GetSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		h.logger.Error("failed to get session", "error", err, "connection_id", c.Param("id"))
		return shared.InternalError("get_session_failed", "failed to get session")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListActive(c echo.Context) error {
	sessions, err := h.store.ListActive(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		return shared.InternalError("list_sessions_failed", "failed to list sessions")
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	return c.JSON(http.StatusOK, SessionListResponse{
		Total:    len(sessions),
		Sessions: sessions,
	})
}

func summarize(metrics []*Metrics) SummaryResponse {
	summary := SummaryResponse{Period: "7d"}

	var totalLatency int64
	var latencyCount int64
	var errorCount int64

	for _, m := range metrics {
		summary.TotalSessions += m.Sessions
		summary.TotalUtterances += m.Utterances
		summary.TotalResponses += m.Responses
		summary.TotalInterrupts += m.Interrupts
		summary.TotalDropped += m.Dropped
		errorCount += m.Errors
		totalLatency += m.LatencyTotalMs
		latencyCount += m.LatencyCount
	}

	if latencyCount > 0 {
		summary.AvgLatencyMs = totalLatency / latencyCount
	}
	if processed := summary.TotalResponses + errorCount; processed > 0 {
		summary.ErrorRate = float64(errorCount) / float64(processed) * 100
	}

	return summary
}
