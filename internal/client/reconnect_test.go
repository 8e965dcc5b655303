package client

import (
	"testing"
	"time"
)

func TestReconnector_LinearDelaysThenStop(t *testing.T) {
	r := NewReconnector(MaxReconnectAttempts, ReconnectBaseDelay)

	want := []time.Duration{
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		6000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for i, w := range want {
		got, ok := r.Next()
		if !ok {
			t.Fatalf("attempt %d: expected a delay, got exhausted", i+1)
		}
		if got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}

	if _, ok := r.Next(); ok {
		t.Error("expected attempts to be exhausted after 5")
	}
	if r.Attempts() != 5 {
		t.Errorf("expected 5 attempts, got %d", r.Attempts())
	}
}

func TestReconnector_Reset(t *testing.T) {
	r := NewReconnector(MaxReconnectAttempts, ReconnectBaseDelay)
	r.Next()
	r.Next()
	r.Reset()

	got, ok := r.Next()
	if !ok || got != 2*time.Second {
		t.Errorf("expected 2s after reset, got %v (ok=%v)", got, ok)
	}
}

func TestNewReconnector_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		base        time.Duration
		wantMax     int
		wantFirst   time.Duration
	}{
		{name: "zero values", wantMax: 5, wantFirst: 2 * time.Second},
		{name: "custom", maxAttempts: 2, base: time.Millisecond, wantMax: 2, wantFirst: time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconnector(tt.maxAttempts, tt.base)
			if r.MaxAttempts() != tt.wantMax {
				t.Errorf("expected max %d, got %d", tt.wantMax, r.MaxAttempts())
			}
			if got, _ := r.Next(); got != tt.wantFirst {
				t.Errorf("expected first delay %v, got %v", tt.wantFirst, got)
			}
		})
	}
}
