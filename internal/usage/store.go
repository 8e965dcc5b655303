package usage

import (
	"context"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Exchange{})
}

func (s *Store) Record(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = shared.NewID("exc_")
	}
	return s.db.WithContext(ctx).Create(ex).Error
}

func (s *Store) ListByConnection(ctx context.Context, connectionID string) ([]*Exchange, error) {
	var exchanges []*Exchange
	err := s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("created_at ASC").
		Find(&exchanges).Error
	return exchanges, err
}

func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	var rows []struct {
		Outcome    Outcome
		Count      int64
		LatencySum int64
	}
	err := s.db.WithContext(ctx).
		Model(&Exchange{}).
		Select("outcome, COUNT(*) AS count, COALESCE(SUM(latency_ms), 0) AS latency_sum").
		Where("created_at >= ?", since).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &Summary{ByOutcome: make(map[Outcome]int64, len(rows))}
	var latencySum int64
	for _, r := range rows {
		summary.ByOutcome[r.Outcome] = r.Count
		summary.Total += r.Count
		latencySum += r.LatencySum
	}
	if summary.Total > 0 {
		summary.AvgLatencyMs = float64(latencySum) / float64(summary.Total)
	}
	return summary, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
