package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/generation"
	"github.com/eleven-am/voice-relay/internal/protocol"
	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/eleven-am/voice-relay/internal/usage"
	"github.com/google/uuid"
)

const (
	recordTimeout   = 2 * time.Second
	recordQueueSize = 64
)

const (
	MetricUtterances = "utterances"
	MetricResponses  = "responses"
	MetricErrors     = "errors"
	MetricInterrupts = "interrupts"
	MetricDropped    = "dropped"
)

type Sender interface {
	Send(ctx context.Context, msg protocol.Message) error
}

type LifecycleRecorder interface {
	Started(ctx context.Context, connectionID, remoteAddr string) error
	Ended(ctx context.Context, connectionID string) error
	IncrementMetric(ctx context.Context, field string, value int64) error
	RecordLatency(ctx context.Context, latencyMs int64) error
}

type ExchangeRecorder interface {
	Record(ctx context.Context, ex *usage.Exchange) error
}

type CoordinatorConfig struct {
	ConnectionID string
	RemoteAddr   string
	Processor    generation.Processor
	Synthesizer  synthesis.Synthesizer
	Sender       Sender
	Lifecycle    LifecycleRecorder
	Ledger       ExchangeRecorder
	TextFallback bool
	Log          *slog.Logger
}

// Coordinator applies the relay protocol to one connection. HandleFrame is
// called from the connection's reader goroutine; accepted utterances run in
// their own goroutine so interrupts are seen while they are in flight.
type Coordinator struct {
	id           string
	remoteAddr   string
	session      *Session
	processor    generation.Processor
	synth        synthesis.Synthesizer
	sender       Sender
	lifecycle    LifecycleRecorder
	ledger       ExchangeRecorder
	textFallback bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	log       *slog.Logger

	recMu      sync.Mutex
	recClosed  bool
	records    chan record
	recordDone chan struct{}
}

// record is one bookkeeping call, run by the coordinator's record loop.
type record struct {
	what string
	fn   func(ctx context.Context) error
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ConnectionID == "" {
		cfg.ConnectionID = shared.NewConnectionID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		id:           cfg.ConnectionID,
		remoteAddr:   cfg.RemoteAddr,
		session:      NewSession(),
		processor:    cfg.Processor,
		synth:        cfg.Synthesizer,
		sender:       cfg.Sender,
		lifecycle:    cfg.Lifecycle,
		ledger:       cfg.Ledger,
		textFallback: cfg.TextFallback,
		ctx:          ctx,
		cancel:       cancel,
		log:          cfg.Log.With("component", "coordinator", "connection_id", cfg.ConnectionID),
		records:      make(chan record, recordQueueSize),
		recordDone:   make(chan struct{}),
	}
	go c.recordLoop()
	return c
}

func (c *Coordinator) ID() string {
	return c.id
}

func (c *Coordinator) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Coordinator) State() State {
	return c.session.State()
}

func (c *Coordinator) StartedAt() time.Time {
	return c.session.StartedAt()
}

func (c *Coordinator) HandleFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic handling message", "panic", r)
			c.reply(protocol.Error(protocol.ErrorGeneric))
		}
	}()

	msg, err := protocol.Decode(frame)
	if err != nil {
		c.log.Warn("rejecting malformed message", "error", err)
		c.reply(protocol.Error(protocol.ErrorGeneric))
		return
	}
	c.Handle(msg)
}

func (c *Coordinator) Handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeStartSession:
		c.handleStart()
	case protocol.MessageTypeAudio:
		c.handleAudio(msg)
	case protocol.MessageTypeInterrupt:
		c.handleInterrupt()
	default:
		c.log.Debug("ignoring message", "type", msg.Type)
	}
}

func (c *Coordinator) handleStart() {
	fresh, err := c.session.Start(time.Now())
	if err != nil {
		c.log.Debug("start after close ignored", "error", err)
		return
	}

	c.reply(protocol.SessionStarted())

	if !fresh {
		c.log.Debug("session re-acknowledged", "state", c.session.State())
		return
	}
	c.log.Info("session started", "remote_addr", c.remoteAddr)
	if c.lifecycle != nil {
		c.observe("session_started", func(ctx context.Context) error {
			return c.lifecycle.Started(ctx, c.id, c.remoteAddr)
		})
	}
}

func (c *Coordinator) handleAudio(msg protocol.Message) {
	ticket, err := c.session.Begin()
	if err != nil {
		c.log.Debug("dropping audio", "reason", err)
		if errors.Is(err, shared.ErrBusy) {
			c.count(MetricDropped)
		}
		return
	}

	c.wg.Add(1)
	go c.pipeline(ticket, msg)
}

func (c *Coordinator) handleInterrupt() {
	if !c.session.Interrupt() {
		return
	}
	c.log.Info("processing interrupted")
	c.count(MetricInterrupts)
}

func (c *Coordinator) pipeline(ticket Ticket, msg protocol.Message) {
	defer c.wg.Done()

	log := c.log.With("request_id", uuid.NewString())
	start := time.Now()

	mimeType := msg.MimeType
	if mimeType == "" {
		mimeType = protocol.DefaultMimeType
	}
	ex := &usage.Exchange{
		ConnectionID: c.id,
		MimeType:     mimeType,
		AudioBytes:   len(msg.Audio),
	}
	c.count(MetricUtterances)

	var reply protocol.Message
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in pipeline", "panic", r)
			reply = protocol.Error(protocol.ErrorProcessing)
			ex.Outcome = usage.OutcomeInternalError
		}

		ex.LatencyMs = time.Since(start).Milliseconds()
		deliver, current := c.session.Release(ticket)
		switch {
		case !deliver:
			log.Info("connection closed before reply", "outcome", ex.Outcome)
			ex.Outcome = usage.OutcomeAbandoned
		case !current:
			log.Info("delivering reply that finished after an interrupt", "outcome", ex.Outcome)
			ex.Interrupted = true
			c.reply(reply)
		default:
			c.reply(reply)
		}
		c.finish(ex)
	}()

	reply, ex.Outcome = c.process(log, msg, ex)
}

func (c *Coordinator) process(log *slog.Logger, msg protocol.Message, ex *usage.Exchange) (protocol.Message, usage.Outcome) {
	text, err := c.processor.Process(c.ctx, msg.Audio, msg.MimeType)
	if err != nil {
		log.Error("generation failed", "error", err)
		return protocol.Error(protocol.ErrorProcessing), usage.OutcomeUpstreamError
	}
	ex.ReplyChars = len(text)

	audio, err := c.synth.Synthesize(c.ctx, text)
	if err != nil {
		log.Error("synthesis failed", "error", err, "text_fallback", c.textFallback)
		if c.textFallback {
			return protocol.AudioResponse(text, nil), usage.OutcomeTextOnly
		}
		return protocol.Error(protocol.ErrorProcessing), usage.OutcomeSynthesisError
	}
	ex.SpeechBytes = len(audio)

	log.Info("reply ready", "reply_chars", ex.ReplyChars, "speech_bytes", ex.SpeechBytes)
	return protocol.AudioResponse(text, audio), usage.OutcomeOK
}

func (c *Coordinator) finish(ex *usage.Exchange) {
	switch ex.Outcome {
	case usage.OutcomeOK, usage.OutcomeTextOnly:
		c.count(MetricResponses)
	case usage.OutcomeAbandoned:
	default:
		c.count(MetricErrors)
	}

	if c.lifecycle != nil {
		c.observe("latency", func(ctx context.Context) error {
			return c.lifecycle.RecordLatency(ctx, ex.LatencyMs)
		})
	}
	if c.ledger != nil {
		c.observe("exchange", func(ctx context.Context) error {
			return c.ledger.Record(ctx, ex)
		})
	}
}

func (c *Coordinator) reply(msg protocol.Message) {
	if err := c.sender.Send(c.ctx, msg); err != nil {
		c.log.Debug("reply not delivered", "type", msg.Type, "error", err)
	}
}

func (c *Coordinator) count(field string) {
	if c.lifecycle == nil {
		return
	}
	c.observe(field, func(ctx context.Context) error {
		return c.lifecycle.IncrementMetric(ctx, field, 1)
	})
}

// observe queues a bookkeeping call without blocking the caller. A full
// queue drops the record. Failures are logged and never reach the client.
func (c *Coordinator) observe(what string, fn func(ctx context.Context) error) {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	if c.recClosed {
		return
	}
	select {
	case c.records <- record{what: what, fn: fn}:
	default:
		c.log.Warn("bookkeeping queue full, dropping record", "what", what)
	}
}

func (c *Coordinator) recordLoop() {
	defer close(c.recordDone)
	for r := range c.records {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.fn(ctx); err != nil {
			c.log.Warn("failed to record", "what", r.what, "error", err)
		}
		cancel()
	}
}

// Close discards the session, cancels any in-flight utterance and waits for it
// and the queued bookkeeping to finish. It must not race with HandleFrame.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		started := c.session.State() != StateUninitialized
		c.session.Close()
		c.cancel()
		c.wg.Wait()

		if started && c.lifecycle != nil {
			c.observe("session_ended", func(ctx context.Context) error {
				return c.lifecycle.Ended(ctx, c.id)
			})
		}

		c.recMu.Lock()
		c.recClosed = true
		close(c.records)
		c.recMu.Unlock()
		<-c.recordDone

		c.log.Info("session closed")
	})
}
