package client

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/protocol"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var (
	ErrReconnectExhausted = errors.New("connection failed after retries")
	ErrNotConnected       = errors.New("not connected")
	ErrNoRecorder         = errors.New("no recording source configured")
)

const (
	StatusConnecting   = "Connecting..."
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
	StatusReconnecting = "Reconnecting..."
	StatusFailed       = "Connection failed. Please restart."
	StatusListening    = "Listening..."
	StatusProcessing   = "Processing..."
	StatusInterrupted  = "Interrupted. Ready for new input."
)

// UI is a snapshot of the affordances a front end should show.
type UI struct {
	Status           string
	StartEnabled     bool
	InterruptEnabled bool
	Recording        bool
	Playing          bool
	Attempt          int
}

type Entry struct {
	Role string
	Text string
}

type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

type Config struct {
	URL         string
	Player      Player
	Speaker     Speaker
	Source      Source
	RecordLimit time.Duration
	Reconnect   *Reconnector
	Dial        DialFunc
	Sleep       func(ctx context.Context, d time.Duration) error
	OnChange    func(UI)
	OnReply     func(Entry)
	Log         *slog.Logger
}

// Client is the peer side of the relay: it keeps one connection open,
// reconnecting with bounded backoff, and drives recording and playback.
type Client struct {
	url       string
	player    Player
	speaker   Speaker
	recorder  *Recorder
	reconnect *Reconnector
	dial      DialFunc
	sleep     func(ctx context.Context, d time.Duration) error
	onChange  func(UI)
	onReply   func(Entry)
	log       *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	ws         *websocket.Conn
	ui         UI
	transcript []Entry
	playGen    uint64
	playCancel context.CancelFunc
}

func New(cfg Config) *Client {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Reconnect == nil {
		cfg.Reconnect = NewReconnector(MaxReconnectAttempts, ReconnectBaseDelay)
	}
	if cfg.Dial == nil {
		cfg.Dial = defaultDial
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	c := &Client{
		url:       cfg.URL,
		player:    cfg.Player,
		speaker:   cfg.Speaker,
		reconnect: cfg.Reconnect,
		dial:      cfg.Dial,
		sleep:     cfg.Sleep,
		onChange:  cfg.OnChange,
		onReply:   cfg.OnReply,
		log:       cfg.Log.With("component", "relay_client"),
		ui:        UI{Status: StatusDisconnected},
	}
	if cfg.Source != nil {
		c.recorder = NewRecorder(cfg.Source, cfg.RecordLimit, c.recorded)
	}
	return c
}

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return ws, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and serves until ctx is done or reconnect attempts run out.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.update(func(ui *UI) { ui.Status = StatusConnecting })

		ws, err := c.dial(ctx, c.url)
		if err == nil {
			err = c.serve(ctx, ws)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.log.Warn("connection closed", "error", err)
		c.update(func(ui *UI) {
			ui.Status = StatusDisconnected
			ui.StartEnabled = false
			ui.InterruptEnabled = false
		})

		delay, ok := c.reconnect.Next()
		if !ok {
			c.update(func(ui *UI) { ui.Status = StatusFailed })
			c.log.Error("giving up on relay", "attempts", c.reconnect.MaxAttempts())
			return ErrReconnectExhausted
		}

		attempt := c.reconnect.Attempts()
		c.log.Info("reconnecting", "attempt", attempt, "max", c.reconnect.MaxAttempts(), "delay", delay)
		c.update(func(ui *UI) {
			ui.Status = StatusReconnecting
			ui.Attempt = attempt
		})
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	c.reconnect.Reset()
	if err := c.write(protocol.StartSession()); err != nil {
		return err
	}
	c.update(func(ui *UI) {
		ui.Status = StatusConnected
		ui.StartEnabled = true
		ui.Attempt = 0
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("undecodable frame from relay", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeSessionStarted:
		c.log.Info("session started")
	case protocol.MessageTypeAudioResponse:
		entry := Entry{Role: "assistant", Text: msg.Text}
		c.mu.Lock()
		c.transcript = append(c.transcript, entry)
		c.mu.Unlock()
		if c.onReply != nil {
			c.onReply(entry)
		}

		if len(msg.Audio) > 0 {
			c.play(msg.Audio, msg.Text)
		} else {
			c.speak(msg.Text)
		}
	case protocol.MessageTypeError:
		c.log.Warn("relay reported an error", "message", msg.Error)
		c.stopPlayback()
		c.update(func(ui *UI) {
			ui.Status = "Error: " + msg.Error
			ui.StartEnabled = true
			ui.InterruptEnabled = false
			ui.Recording = false
			ui.Playing = false
		})
	default:
		c.log.Debug("ignoring message", "type", msg.Type)
	}
}

func (c *Client) play(audio []byte, text string) {
	if c.player == nil {
		c.log.Warn("no player configured, falling back to text")
		c.speak(text)
		return
	}
	c.startPlayback(func(ctx context.Context) error {
		return c.player.Play(ctx, audio)
	})
}

func (c *Client) speak(text string) {
	if c.speaker == nil || text == "" {
		return
	}
	c.startPlayback(func(ctx context.Context) error {
		return c.speaker.Speak(ctx, text)
	})
}

// startPlayback replaces whatever is playing with fn.
func (c *Client) startPlayback(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.playCancel != nil {
		c.playCancel()
	}
	c.playGen++
	gen := c.playGen
	c.playCancel = cancel
	c.mu.Unlock()

	c.update(func(ui *UI) {
		ui.Playing = true
		ui.StartEnabled = false
		ui.InterruptEnabled = true
	})

	go func() {
		defer cancel()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("playback failed", "error", err)
		}

		c.mu.Lock()
		current := gen == c.playGen
		if current {
			c.playCancel = nil
		}
		c.mu.Unlock()

		if current {
			c.update(func(ui *UI) {
				ui.Playing = false
				ui.StartEnabled = true
				ui.InterruptEnabled = false
			})
		}
	}()
}

func (c *Client) stopPlayback() {
	c.mu.Lock()
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
	c.playGen++
	c.mu.Unlock()
}

// Interrupt stops local playback and tells the relay to accept the next
// utterance. A reply already in flight on the relay still arrives. It does
// nothing unless a reply is playing.
func (c *Client) Interrupt() (bool, error) {
	if !c.UI().Playing {
		return false, nil
	}

	c.stopPlayback()
	err := c.write(protocol.Interrupt())
	c.update(func(ui *UI) {
		ui.Playing = false
		ui.StartEnabled = true
		ui.InterruptEnabled = false
		ui.Status = StatusInterrupted
	})
	return true, err
}

// Toggle starts a recording, or stops the one in progress. It is ignored
// while a reply is playing.
func (c *Client) Toggle(ctx context.Context) error {
	if c.recorder == nil {
		return ErrNoRecorder
	}

	c.mu.Lock()
	ui, connected := c.ui, c.ws != nil
	c.mu.Unlock()

	// An error frame clears ui.Recording while the recorder may still run.
	switch {
	case ui.Recording || c.recorder.Recording():
		c.recorder.Stop()
		return nil
	case ui.Playing:
		return nil
	case !connected:
		return ErrNotConnected
	}

	c.update(func(ui *UI) {
		ui.Recording = true
		ui.Status = StatusListening
	})
	if err := c.recorder.Start(ctx); err != nil {
		c.update(func(ui *UI) { ui.Recording = false })
		return err
	}
	return nil
}

func (c *Client) recorded(audio []byte, mimeType string, err error) {
	c.update(func(ui *UI) {
		ui.Recording = false
		ui.Status = StatusProcessing
	})
	if err != nil {
		c.log.Warn("recording failed", "error", err)
		c.update(func(ui *UI) { ui.Status = "Recording failed" })
		return
	}
	if err := c.SendAudio(audio, mimeType); err != nil {
		c.log.Warn("failed to send utterance", "error", err)
	}
}

// SendAudio sends one complete utterance. Parameters on the mime type are
// dropped.
func (c *Client) SendAudio(audio []byte, mimeType string) error {
	return c.write(protocol.Audio(audio, baseMimeType(mimeType)))
}

func baseMimeType(mimeType string) string {
	if mimeType == "" {
		return protocol.DefaultMimeType
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return mimeType
	}
	return base
}

func (c *Client) write(msg protocol.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) update(fn func(ui *UI)) {
	c.mu.Lock()
	fn(&c.ui)
	snapshot := c.ui
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snapshot)
	}
}

func (c *Client) UI() UI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ui
}

func (c *Client) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.transcript))
	copy(out, c.transcript)
	return out
}
