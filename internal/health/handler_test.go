package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/voice-relay/internal/relay"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeSynth struct {
	err error
}

func (f fakeSynth) Available() error { return f.err }

type fakeConns struct {
	infos []relay.ConnectionInfo
}

func (f fakeConns) Count() int                   { return len(f.infos) }
func (f fakeConns) List() []relay.ConnectionInfo { return f.infos }

type redisPinger struct {
	client *redis.Client
}

func (r redisPinger) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]ComponentStatus
		want       Status
	}{
		{
			name: "all healthy",
			components: map[string]ComponentStatus{
				"redis":      {Status: StatusHealthy},
				"synthesis":  {Status: StatusHealthy},
				"generation": {Status: StatusHealthy},
			},
			want: StatusHealthy,
		},
		{
			name: "ledger disabled stays healthy",
			components: map[string]ComponentStatus{
				"database":   {Status: StatusDisabled},
				"synthesis":  {Status: StatusHealthy},
				"generation": {Status: StatusHealthy},
			},
			want: StatusHealthy,
		},
		{
			name: "redis down degrades",
			components: map[string]ComponentStatus{
				"redis":      {Status: StatusUnhealthy},
				"synthesis":  {Status: StatusHealthy},
				"generation": {Status: StatusHealthy},
			},
			want: StatusDegraded,
		},
		{
			name: "synthesis down is unhealthy",
			components: map[string]ComponentStatus{
				"redis":     {Status: StatusHealthy},
				"synthesis": {Status: StatusUnhealthy},
			},
			want: StatusUnhealthy,
		},
		{
			name: "generation missing is unhealthy",
			components: map[string]ComponentStatus{
				"generation": {Status: StatusUnhealthy},
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOverallStatus(tt.components); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	e := echo.New()
	h := NewHandler(Config{})
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestReadiness_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	e := echo.New()
	h := NewHandler(Config{
		Redis:                redisPinger{client: client},
		Synthesizer:          fakeSynth{},
		GenerationConfigured: true,
		Connections:          fakeConns{infos: []relay.ConnectionInfo{{ConnectionID: "conn_a"}}},
		Version:              "test",
	})
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	if resp.Components["database"].Status != StatusDisabled {
		t.Errorf("expected database disabled, got %s", resp.Components["database"].Status)
	}
	if resp.Stats.LiveConnections != 1 {
		t.Errorf("expected 1 live connection, got %d", resp.Stats.LiveConnections)
	}
	if resp.Version != "test" {
		t.Errorf("expected version test, got %s", resp.Version)
	}
}

func TestReadiness_Unhealthy(t *testing.T) {
	e := echo.New()
	h := NewHandler(Config{
		Redis:                fakePinger{},
		Database:             fakePinger{},
		Synthesizer:          fakeSynth{err: errors.New("not found")},
		GenerationConfigured: true,
	})
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestReadiness_DegradedOnStoreFailure(t *testing.T) {
	h := NewHandler(Config{
		Redis:                fakePinger{err: errors.New("refused")},
		Database:             fakePinger{err: errors.New("refused")},
		Synthesizer:          fakeSynth{},
		GenerationConfigured: true,
	})

	status, components := h.Check(context.Background())
	if status != StatusDegraded {
		t.Errorf("expected degraded, got %s", status)
	}
	if components["redis"].Error != "ping failed" {
		t.Errorf("expected ping failed, got %q", components["redis"].Error)
	}
}

func TestSessions(t *testing.T) {
	started := time.Now()
	e := echo.New()
	h := NewHandler(Config{
		Connections: fakeConns{infos: []relay.ConnectionInfo{
			{ConnectionID: "conn_a", State: "idle", StartedAt: &started},
			{ConnectionID: "conn_b", State: "uninitialized"},
		}},
	})
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 sessions, got %d", resp.Total)
	}
	if resp.Sessions[0].ConnectionID != "conn_a" {
		t.Errorf("expected conn_a first, got %s", resp.Sessions[0].ConnectionID)
	}
}

func TestSessions_NoManager(t *testing.T) {
	e := echo.New()
	h := NewHandler(Config{})
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 0 || resp.Sessions == nil {
		t.Errorf("expected empty non-nil list, got %+v", resp)
	}
}

func TestCheck_UpdatesGRPCStatus(t *testing.T) {
	tests := []struct {
		name  string
		synth Synthesizer
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{name: "serving", synth: fakeSynth{}, want: healthpb.HealthCheckResponse_SERVING},
		{name: "not serving", synth: fakeSynth{err: errors.New("missing")}, want: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Config{
				Redis:                fakePinger{},
				Synthesizer:          tt.synth,
				GenerationConfigured: true,
			})
			h.Check(context.Background())

			for _, service := range []string{"", ServiceName} {
				resp, err := h.GRPCServer().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
				if err != nil {
					t.Fatalf("grpc check %q: %v", service, err)
				}
				if resp.Status != tt.want {
					t.Errorf("service %q: expected %s, got %s", service, tt.want, resp.Status)
				}
			}
		})
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	h := NewHandler(Config{Synthesizer: fakeSynth{}, GenerationConfigured: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	resp, err := h.GRPCServer().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("grpc check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", resp.Status)
	}
}

func TestRequestCounters(t *testing.T) {
	h := NewHandler(Config{})
	h.IncrementRequests()
	h.IncrementRequests()
	h.IncrementConnections()
	h.DecrementConnections()

	if h.totalRequests != 2 {
		t.Errorf("expected 2 requests, got %d", h.totalRequests)
	}
	if h.activeConnections != 0 {
		t.Errorf("expected 0 active connections, got %d", h.activeConnections)
	}
}
