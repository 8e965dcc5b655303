package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

const MaxRecordingDuration = 5 * time.Second

var ErrAlreadyRecording = errors.New("already recording")

// Source captures one utterance between Start and Stop.
type Source interface {
	Start(ctx context.Context) error
	Stop() (audio []byte, mimeType string, err error)
}

// Recorder wraps a Source with a hard capture ceiling. onDone fires exactly
// once per recording, whether stopped by hand or by the timer.
type Recorder struct {
	source Source
	limit  time.Duration
	onDone func(audio []byte, mimeType string, err error)

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  *time.Timer
}

func NewRecorder(source Source, limit time.Duration, onDone func([]byte, string, error)) *Recorder {
	if limit <= 0 {
		limit = MaxRecordingDuration
	}
	return &Recorder{source: source, limit: limit, onDone: onDone}
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyRecording
	}
	if err := r.source.Start(ctx); err != nil {
		return err
	}

	r.active = true
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.limit, func() { r.finish(gen) })
	return nil
}

// Stop ends the current recording early. It reports false when nothing was
// being recorded.
func (r *Recorder) Stop() bool {
	r.mu.Lock()
	gen, active := r.gen, r.active
	r.mu.Unlock()

	if !active {
		return false
	}
	return r.finish(gen)
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) finish(gen uint64) bool {
	r.mu.Lock()
	if !r.active || gen != r.gen {
		r.mu.Unlock()
		return false
	}
	r.active = false
	r.timer.Stop()
	r.mu.Unlock()

	audio, mimeType, err := r.source.Stop()
	if r.onDone != nil {
		r.onDone(audio, mimeType, err)
	}
	return true
}
