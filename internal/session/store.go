package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	sessionTTL = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewConnectionID()
	}
	now := time.Now()
	sess.Status = StatusActive
	sess.StartedAt = now
	sess.LastActiveAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, SessionRedisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	sess.LastActiveAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) EndSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	sess.Status = StatusEnded
	sess.EndedAt = &now
	return s.UpdateSession(ctx, sess)
}

func (s *Store) ListActive(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	iter := s.redis.Scan(ctx, 0, SessionRedisKey(shared.ConnectionIDPrefix+"*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if sess.Status == StatusActive {
			sessions = append(sessions, &sess)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Started records the first start_session on a connection.
func (s *Store) Started(ctx context.Context, connectionID, remoteAddr string) error {
	if err := s.CreateSession(ctx, &Session{ID: connectionID, RemoteAddr: remoteAddr}); err != nil {
		return err
	}
	return s.IncrementMetric(ctx, FieldSessions, 1)
}

func (s *Store) Ended(ctx context.Context, connectionID string) error {
	return s.EndSession(ctx, connectionID)
}

func (s *Store) IncrementMetric(ctx context.Context, field string, value int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) RecordLatency(ctx context.Context, latencyMs int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, fieldLatencyTotal, latencyMs)
	pipe.HIncrBy(ctx, key, fieldLatencyCount, 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			Date: t.Format("2006-01-02"),
			Hour: t.Hour(),
		}
		m.Sessions = parseCount(data, FieldSessions)
		m.Utterances = parseCount(data, FieldUtterances)
		m.Responses = parseCount(data, FieldResponses)
		m.Errors = parseCount(data, FieldErrors)
		m.Interrupts = parseCount(data, FieldInterrupts)
		m.Dropped = parseCount(data, FieldDropped)

		m.LatencyTotalMs = parseCount(data, fieldLatencyTotal)
		m.LatencyCount = parseCount(data, fieldLatencyCount)
		if m.LatencyCount > 0 {
			m.AvgLatencyMs = m.LatencyTotalMs / m.LatencyCount
		}

		metrics = append(metrics, m)
	}

	return metrics, nil
}

func (s *Store) GetMetricsForLast7Days(ctx context.Context) ([]*Metrics, error) {
	return s.GetMetrics(ctx, 7*24)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func parseCount(data map[string]string, field string) int64 {
	v, ok := data[field]
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
