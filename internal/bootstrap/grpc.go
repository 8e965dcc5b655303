package bootstrap

import (
	"context"
	"log/slog"
	"net"

	"github.com/eleven-am/voice-relay/internal/health"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewGRPCServer() *grpc.Server {
	return grpc.NewServer()
}

func RegisterHealthService(server *grpc.Server, h *health.Handler) {
	healthpb.RegisterHealthServer(server, h.GRPCServer())
}

func StartGRPCServer(lc fx.Lifecycle, server *grpc.Server, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
				if err := server.Serve(lis); err != nil {
					logger.Error("gRPC server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.GracefulStop()
			return nil
		},
	})
}

var GRPCModule = fx.Options(
	fx.Provide(NewGRPCServer),
	fx.Invoke(RegisterHealthService),
	fx.Invoke(StartGRPCServer),
)
