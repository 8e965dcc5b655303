package relay

import (
	"log/slog"
	"net/http"

	"github.com/eleven-am/voice-relay/internal/generation"
	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type HandlerConfig struct {
	Manager      *Manager
	Processor    generation.Processor
	Synthesizer  synthesis.Synthesizer
	Lifecycle    LifecycleRecorder
	Ledger       ExchangeRecorder
	TextFallback bool
	RateLimit    RateLimiterConfig
	Logger       *slog.Logger
}

type Handler struct {
	manager      *Manager
	processor    generation.Processor
	synth        synthesis.Synthesizer
	lifecycle    LifecycleRecorder
	ledger       ExchangeRecorder
	textFallback bool
	rateLimit    RateLimiterConfig
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Manager == nil {
		cfg.Manager = NewManager(cfg.Logger)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimiterConfig()
	}

	return &Handler{
		manager:      cfg.Manager,
		processor:    cfg.Processor,
		synth:        cfg.Synthesizer,
		lifecycle:    cfg.Lifecycle,
		ledger:       cfg.Ledger,
		textFallback: cfg.TextFallback,
		rateLimit:    cfg.RateLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: cfg.Logger.With("component", "relay_handler"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	serve := RateLimiter(h.rateLimit)(h.Serve)
	e.GET("/ws", serve)
	e.Pre(RootUpgrade(serve))
}

func (h *Handler) Serve(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", &TransportError{Op: "upgrade", Err: err})
		return nil
	}

	id := shared.NewConnectionID()
	conn := NewConnection(ws, id, c.RealIP(), h.logger)
	coord := NewCoordinator(CoordinatorConfig{
		ConnectionID: id,
		RemoteAddr:   c.RealIP(),
		Processor:    h.processor,
		Synthesizer:  h.synth,
		Sender:       conn,
		Lifecycle:    h.lifecycle,
		Ledger:       h.ledger,
		TextFallback: h.textFallback,
		Log:          h.logger,
	})

	h.manager.Register(conn, coord)
	h.logger.Info("client connected", "connection_id", id, "remote_addr", c.RealIP())

	if err := conn.Run(c.Request().Context(), coord.HandleFrame); err != nil {
		h.logger.Warn("connection ended with error", "connection_id", id, "error", err)
	}

	coord.Close()
	h.manager.Unregister(id)
	h.logger.Info("client disconnected", "connection_id", id)
	return nil
}
