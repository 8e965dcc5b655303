package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Content-Type",
		"X-Requested-With",
	},
	MaxAge: 86400,
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("relay listening", "addr", cfg.ServerAddr)
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(StartServer),
)

func Run() {
	fx.New(
		fx.Provide(LoadConfig, ProvideLogger),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		InfrastructureModule,
		StoresModule,
		ServerModule,
		RelayModule,
		HealthModule,
		GRPCModule,
		HandlersModule,
	).Run()
}
