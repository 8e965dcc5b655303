package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-relay/internal/generation"
	"github.com/eleven-am/voice-relay/internal/health"
	"github.com/eleven-am/voice-relay/internal/relay"
	"github.com/eleven-am/voice-relay/internal/session"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/eleven-am/voice-relay/internal/usage"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const version = "1.0.0"

type HealthParams struct {
	fx.In

	SessionStore *session.Store
	UsageStore   *usage.Store
	Processor    *generation.GeminiProcessor
	Synthesizer  *synthesis.CommandSynthesizer
	Manager      *relay.Manager
	Logger       *slog.Logger
}

func ProvideHealthHandler(p HealthParams) *health.Handler {
	var db health.Pinger
	if p.UsageStore != nil {
		db = p.UsageStore
	}

	return health.NewHandler(health.Config{
		Redis:                p.SessionStore,
		Database:             db,
		Synthesizer:          p.Synthesizer,
		GenerationConfigured: p.Processor != nil,
		Connections:          p.Manager,
		Version:              version,
		Logger:               p.Logger,
	})
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

func StartHealthWatcher(lc fx.Lifecycle, h *health.Handler, cfg *Config) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go h.Watch(ctx, cfg.HealthInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			h.Shutdown()
			return nil
		},
	})
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
	fx.Invoke(StartHealthWatcher),
)
