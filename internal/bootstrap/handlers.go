package bootstrap

import (
	"log/slog"
	"os"

	"github.com/eleven-am/voice-relay/internal/session"
	"github.com/eleven-am/voice-relay/internal/usage"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	SessionHandler *session.Handler
	UsageStore     *usage.Store
	Config         *Config
	Logger         *slog.Logger
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	metrics := e.Group("/metrics")
	params.SessionHandler.RegisterRoutes(metrics)
	if params.UsageStore != nil {
		usage.NewHandler(params.UsageStore, params.Logger.With("handler", "usage")).
			RegisterRoutes(metrics.Group("/exchanges"))
	}

	e.Static("/", params.Config.StaticDir)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideSessionHandler(store *session.Store, logger *slog.Logger) *session.Handler {
	return session.NewHandler(store, logger.With("handler", "session"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideSessionHandler,
	),
	fx.Invoke(RegisterRoutes),
)
