package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-relay/internal/generation"
	"github.com/eleven-am/voice-relay/internal/relay"
	"github.com/eleven-am/voice-relay/internal/session"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/eleven-am/voice-relay/internal/usage"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func ProvideGenerationConfig(cfg *Config) generation.Config {
	return generation.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		SystemInstruction: cfg.SystemInstructions,
		Timeout:           cfg.GenerationTimeout,
	}
}

func ProvideSynthesisConfig(cfg *Config) synthesis.Config {
	return synthesis.Config{
		Command:  cfg.TTSCommand,
		Language: cfg.TTSLanguage,
		TempDir:  cfg.TTSTempDir,
		Timeout:  cfg.SynthesisTimeout,
	}
}

func ProvideProcessor(lc fx.Lifecycle, cfg generation.Config, logger *slog.Logger) (*generation.GeminiProcessor, error) {
	p, err := generation.NewGeminiProcessor(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
	return p, nil
}

func ProvideSynthesizer(cfg synthesis.Config, logger *slog.Logger) (*synthesis.CommandSynthesizer, error) {
	s, err := synthesis.NewCommandSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Available(); err != nil {
		logger.Warn("synthesis command not found, replies will be text only", "error", err)
	}
	return s, nil
}

func ProvideRelayManager(lc fx.Lifecycle, logger *slog.Logger) *relay.Manager {
	mgr := relay.NewManager(logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mgr.Close()
		},
	})
	return mgr
}

type RelayParams struct {
	fx.In

	Config       *Config
	Manager      *relay.Manager
	Processor    *generation.GeminiProcessor
	Synthesizer  *synthesis.CommandSynthesizer
	SessionStore *session.Store
	UsageStore   *usage.Store
	Logger       *slog.Logger
}

func ProvideRelayHandler(p RelayParams) *relay.Handler {
	// A nil *usage.Store must not reach the coordinator as a non-nil interface.
	var ledger relay.ExchangeRecorder
	if p.UsageStore != nil {
		ledger = p.UsageStore
	}

	return relay.NewHandler(relay.HandlerConfig{
		Manager:      p.Manager,
		Processor:    p.Processor,
		Synthesizer:  p.Synthesizer,
		Lifecycle:    p.SessionStore,
		Ledger:       ledger,
		TextFallback: p.Config.SynthesisFallback,
		RateLimit: relay.RateLimiterConfig{
			RequestsPerSecond: p.Config.RateLimitRPS,
			Burst:             p.Config.RateLimitBurst,
			CleanupInterval:   relay.DefaultRateLimiterConfig().CleanupInterval,
		},
		Logger: p.Logger,
	})
}

func RegisterRelayRoutes(e *echo.Echo, h *relay.Handler) {
	h.RegisterRoutes(e)
}

var RelayModule = fx.Options(
	fx.Provide(
		ProvideGenerationConfig,
		ProvideSynthesisConfig,
		ProvideProcessor,
		ProvideSynthesizer,
		ProvideRelayManager,
		ProvideRelayHandler,
	),
	fx.Invoke(RegisterRelayRoutes),
)
