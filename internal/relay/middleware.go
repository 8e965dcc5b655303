package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		CleanupInterval:   5 * time.Minute,
	}
}

type rateLimiterStore struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   RateLimiterConfig
}

func newRateLimiterStore(cfg RateLimiterConfig) *rateLimiterStore {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	store := &rateLimiterStore{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
	go store.cleanupLoop()
	return store
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.RLock()
	limiter, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		return limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if limiter, exists = s.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)
	s.limiters[key] = limiter
	return limiter
}

func (s *rateLimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		for key := range s.limiters {
			delete(s.limiters, key)
		}
		s.mu.Unlock()
	}
}

// RateLimiter limits websocket upgrades per client IP.
func RateLimiter(cfg RateLimiterConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !store.getLimiter(c.RealIP()).Allow() {
				return shared.TooManyRequests("rate_limit_exceeded", "too many requests")
			}
			return next(c)
		}
	}
}

// RootUpgrade serves websocket upgrades arriving on "/" so clients that open
// the socket on the page origin reach the relay. Other requests fall through.
func RootUpgrade(serve echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet && req.URL.Path == "/" && websocket.IsWebSocketUpgrade(req) {
				return serve(c)
			}
			return next(c)
		}
	}
}
