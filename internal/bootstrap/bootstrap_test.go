package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/eleven-am/voice-relay/internal/usage"
	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestModulesValidate(t *testing.T) {
	err := fx.ValidateApp(
		fx.Provide(LoadConfig, ProvideLogger),
		InfrastructureModule,
		StoresModule,
		ServerModule,
		RelayModule,
		HealthModule,
		GRPCModule,
		HandlersModule,
		fx.NopLogger,
	)
	if err != nil {
		t.Fatalf("dependency graph invalid: %v", err)
	}
}

func TestProvideDatabase_DisabledWithoutDSN(t *testing.T) {
	db, err := ProvideDatabase(&Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != nil {
		t.Error("expected nil database when DSN is empty")
	}
}

func TestProvideUsageStore(t *testing.T) {
	if store := ProvideUsageStore(nil); store != nil {
		t.Error("expected nil store without a database")
	}
	if err := RunMigrations(nil); err != nil {
		t.Errorf("migrations without a database should be a no-op, got %v", err)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	store := ProvideUsageStore(db)
	if store == nil {
		t.Fatal("expected a store")
	}
	if err := RunMigrations(store); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !db.Migrator().HasTable(&usage.Exchange{}) {
		t.Error("expected exchanges table after migration")
	}
}

func TestProvideRelayHandler_NoLedger(t *testing.T) {
	h := ProvideRelayHandler(RelayParams{
		Config: &Config{RateLimitRPS: 5, RateLimitBurst: 10},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if h == nil {
		t.Fatal("expected handler")
	}
}
