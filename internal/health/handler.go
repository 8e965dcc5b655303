package health

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-relay/internal/relay"
	"github.com/labstack/echo/v4"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the relay.
const ServiceName = "voicerelay.Relay"

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusDisabled  Status = "disabled"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	LiveConnections int          `json:"live_connections"`
	Requests        RequestStats `json:"requests"`
	Runtime         RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionsResponse struct {
	Total    int                    `json:"total"`
	Sessions []relay.ConnectionInfo `json:"sessions"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Synthesizer interface {
	Available() error
}

type ConnectionLister interface {
	Count() int
	List() []relay.ConnectionInfo
}

type Config struct {
	Redis                Pinger
	Database             Pinger
	Synthesizer          Synthesizer
	GenerationConfigured bool
	Connections          ConnectionLister
	Version              string
	Logger               *slog.Logger
}

type Handler struct {
	redis                Pinger
	db                   Pinger
	synth                Synthesizer
	generationConfigured bool
	conns                ConnectionLister
	version              string
	startTime            time.Time
	grpc                 *grpchealth.Server
	logger               *slog.Logger

	totalRequests     uint64
	activeConnections int64
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		redis:                cfg.Redis,
		db:                   cfg.Database,
		synth:                cfg.Synthesizer,
		generationConfigured: cfg.GenerationConfigured,
		conns:                cfg.Connections,
		version:              cfg.Version,
		startTime:            time.Now(),
		grpc:                 grpchealth.NewServer(),
		logger:               logger.With("component", "health"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/sessions", h.Sessions)
}

// GRPCServer is the grpc.health.v1 implementation kept in sync by Watch.
func (h *Handler) GRPCServer() *grpchealth.Server {
	return h.grpc
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	overallStatus, components := h.Check(ctx)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			LiveConnections: h.liveConnections(),
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func (h *Handler) Sessions(c echo.Context) error {
	sessions := []relay.ConnectionInfo{}
	if h.conns != nil {
		sessions = h.conns.List()
	}
	return c.JSON(http.StatusOK, SessionsResponse{
		Total:    len(sessions),
		Sessions: sessions,
	})
}

// Check runs every component probe concurrently and folds them into one
// status. The gRPC health server is updated to match.
func (h *Handler) Check(ctx context.Context) (Status, map[string]ComponentStatus) {
	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []struct {
		name  string
		check func(context.Context) ComponentStatus
	}{
		{"redis", h.checkRedis},
		{"database", h.checkDatabase},
		{"synthesis", h.checkSynthesis},
		{"generation", h.checkGeneration},
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overall := computeOverallStatus(components)
	h.setServing(overall)
	return overall, components
}

// Watch re-checks readiness every interval until ctx is done.
func (h *Handler) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.probe(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx, interval)
		}
	}
}

// Shutdown flips every gRPC service to NOT_SERVING.
func (h *Handler) Shutdown() {
	h.grpc.Shutdown()
}

func (h *Handler) probe(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if status, _ := h.Check(ctx); status != StatusHealthy {
		h.logger.Warn("relay not fully healthy", "status", status)
	}
}

func (h *Handler) setServing(status Status) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == StatusUnhealthy {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.grpc.SetServingStatus("", serving)
	h.grpc.SetServingStatus(ServiceName, serving)
}

func (h *Handler) liveConnections() int {
	if h.conns == nil {
		return 0
	}
	return h.conns.Count()
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	return ping(ctx, h.redis, "redis not configured", StatusUnhealthy)
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	return ping(ctx, h.db, "exchange ledger disabled", StatusDisabled)
}

func ping(ctx context.Context, p Pinger, missing string, missingStatus Status) ComponentStatus {
	start := time.Now()
	if p == nil {
		return ComponentStatus{
			Status:    missingStatus,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     missing,
		}
	}

	if err := p.Ping(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkSynthesis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.synth == nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "synthesizer not configured",
		}
	}

	if err := h.synth.Available(); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "synthesis command not found",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkGeneration(ctx context.Context) ComponentStatus {
	if !h.generationConfigured {
		return ComponentStatus{
			Status: StatusUnhealthy,
			Error:  "generation not configured",
		}
	}
	return ComponentStatus{Status: StatusHealthy}
}

// computeOverallStatus treats synthesis and generation as critical. The
// stores only hold bookkeeping, so losing them degrades the relay.
func computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"synthesis", "generation"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	for _, status := range components {
		if status.Status == StatusUnhealthy || status.Status == StatusDegraded {
			return StatusDegraded
		}
	}

	return StatusHealthy
}
