package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-relay/internal/protocol"
	"github.com/eleven-am/voice-relay/internal/usage"
)

const waitTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type procResult struct {
	text string
	err  error
}

type procCall struct {
	audio    []byte
	mimeType string
	release  chan procResult
}

// gatedProcessor blocks every call until the test releases it.
type gatedProcessor struct {
	started chan *procCall
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{started: make(chan *procCall, 16)}
}

func (p *gatedProcessor) Process(ctx context.Context, audio []byte, mimeType string) (string, error) {
	call := &procCall{audio: audio, mimeType: mimeType, release: make(chan procResult, 1)}
	p.started <- call
	select {
	case r := <-call.release:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *gatedProcessor) next(t *testing.T) *procCall {
	t.Helper()
	select {
	case call := <-p.started:
		return call
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for processor call")
		return nil
	}
}

func (p *gatedProcessor) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case <-p.started:
		t.Fatal("unexpected processor call")
	case <-time.After(50 * time.Millisecond):
	}
}

type staticProcessor struct {
	mu    sync.Mutex
	text  string
	err   error
	panic bool
	calls int
}

func (p *staticProcessor) Process(context.Context, []byte, string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.panic {
		panic("processor exploded")
	}
	return p.text, p.err
}

func (p *staticProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeSynth struct {
	audio []byte
	err   error
	mu    sync.Mutex
	texts []string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return s.audio, s.err
}

func (s *fakeSynth) Available() error {
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []protocol.Message
	ch   chan protocol.Message
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan protocol.Message, 64)}
}

func (s *recordingSender) Send(_ context.Context, msg protocol.Message) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	s.ch <- msg
	return nil
}

func (s *recordingSender) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-s.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for outbound message")
		return protocol.Message{}
	}
}

func (s *recordingSender) assertNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-s.ch:
		t.Fatalf("unexpected outbound message %s", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *recordingSender) All() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

type fakeLifecycle struct {
	mu        sync.Mutex
	started   []string
	ended     []string
	metrics   map[string]int64
	latencies []int64
	err       error
	// block, when set, holds every call until it is closed.
	block chan struct{}
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{metrics: make(map[string]int64)}
}

func (f *fakeLifecycle) wait(ctx context.Context) {
	if f.block == nil {
		return
	}
	select {
	case <-f.block:
	case <-ctx.Done():
	}
}

func (f *fakeLifecycle) Started(ctx context.Context, connectionID, _ string) error {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, connectionID)
	return f.err
}

func (f *fakeLifecycle) Ended(ctx context.Context, connectionID string) error {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, connectionID)
	return f.err
}

func (f *fakeLifecycle) IncrementMetric(ctx context.Context, field string, value int64) error {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[field] += value
	return f.err
}

func (f *fakeLifecycle) RecordLatency(ctx context.Context, latencyMs int64) error {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies = append(f.latencies, latencyMs)
	return f.err
}

func (f *fakeLifecycle) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeLifecycle) endedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ended)
}

func (f *fakeLifecycle) metric(field string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics[field]
}

type fakeLedger struct {
	mu        sync.Mutex
	exchanges []usage.Exchange
}

func (f *fakeLedger) Record(_ context.Context, ex *usage.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, *ex)
	return nil
}

func (f *fakeLedger) all() []usage.Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usage.Exchange(nil), f.exchanges...)
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s, got %s", want, c.State())
}
