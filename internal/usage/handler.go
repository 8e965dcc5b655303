package usage

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/labstack/echo/v4"
)

type ExchangeListResponse struct {
	ConnectionID string      `json:"connection_id"`
	Exchanges    []*Exchange `json:"exchanges"`
}

type SummaryResponse struct {
	Hours int `json:"hours"`
	*Summary
}

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("component", "usage_handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/summary", h.GetSummary)
	g.GET("/:connection_id", h.ListByConnection)
}

func (h *Handler) GetSummary(c echo.Context) error {
	hours := 24
	if hoursStr := c.QueryParam("hours"); hoursStr != "" {
		if hr, err := strconv.Atoi(hoursStr); err == nil && hr > 0 && hr <= 168 {
			hours = hr
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	summary, err := h.store.Summary(c.Request().Context(), since)
	if err != nil {
		h.logger.Error("failed to summarize exchanges", "error", err)
		return shared.InternalError("get_exchanges_failed", "failed to get exchanges")
	}

	return c.JSON(http.StatusOK, SummaryResponse{Hours: hours, Summary: summary})
}

func (h *Handler) ListByConnection(c echo.Context) error {
	connectionID := c.Param("connection_id")
	exchanges, err := h.store.ListByConnection(c.Request().Context(), connectionID)
	if err != nil {
		h.logger.Error("failed to list exchanges", "error", err, "connection_id", connectionID)
		return shared.InternalError("get_exchanges_failed", "failed to get exchanges")
	}
	if len(exchanges) == 0 {
		return shared.NotFound("exchanges_not_found", "no exchanges for connection")
	}

	return c.JSON(http.StatusOK, ExchangeListResponse{
		ConnectionID: connectionID,
		Exchanges:    exchanges,
	})
}
