package relay

import (
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/shared"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateIdle          State = "idle"
	StateProcessing    State = "processing"
	StateClosed        State = "closed"
)

// Ticket identifies one accepted utterance for gating. A ticket stops being
// current once the session is interrupted or closed.
type Ticket uint64

// Session is the per-connection gate that admits at most one utterance at a
// time.
type Session struct {
	mu         sync.Mutex
	state      State
	generation uint64
	startedAt  time.Time
}

func NewSession() *Session {
	return &Session{state: StateUninitialized}
}

// Start initializes the session. Calling it again on a live session keeps the
// current state and reports fresh=false.
func (s *Session) Start(now time.Time) (fresh bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return false, shared.ErrSessionClosed
	case StateUninitialized:
		s.state = StateIdle
		s.startedAt = now
		return true, nil
	}
	return false, nil
}

func (s *Session) Begin() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return 0, shared.ErrSessionNotStarted
	case StateProcessing:
		return 0, shared.ErrBusy
	case StateClosed:
		return 0, shared.ErrSessionClosed
	}

	s.generation++
	s.state = StateProcessing
	return Ticket(s.generation), nil
}

// Release returns the session to idle if t is still current. A ticket made
// stale by an interrupt leaves the gate alone, but its result is still
// delivered; only a closed session reports deliver=false.
func (s *Session) Release(t Ticket) (deliver, current bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false, false
	}
	if s.state != StateProcessing || uint64(t) != s.generation {
		return true, false
	}
	s.state = StateIdle
	return true, true
}

// Interrupt clears processing so the next utterance is accepted. It reports
// whether anything was in flight.
func (s *Session) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateProcessing {
		return false
	}
	s.generation++
	s.state = StateIdle
	return true
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.state = StateClosed
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}
