package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

const (
	placeholderFile   = "{file}"
	placeholderText   = "{text}"
	placeholderOutput = "{output}"

	stopGrace = 2 * time.Second
)

var (
	ErrEmptyCommand   = errors.New("command empty")
	errEmptyRecording = errors.New("recording produced no audio")
)

// Player plays a synthesized reply. Cancelling ctx stops playback.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Speaker voices reply text locally when the relay sent no audio.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

func parseCommand(line, placeholder string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return args, nil
		}
	}
	return nil, fmt.Errorf("command %q has no %s placeholder", line, placeholder)
}

func expand(args []string, placeholder, value string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = strings.ReplaceAll(arg, placeholder, value)
	}
	return out
}

func run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = stopGrace
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// CommandPlayer writes each reply to a temp file and runs a template such as
// "mpg123 -q {file}".
type CommandPlayer struct {
	args    []string
	tempDir string
}

func NewCommandPlayer(command, tempDir string) (*CommandPlayer, error) {
	args, err := parseCommand(command, placeholderFile)
	if err != nil {
		return nil, err
	}
	return &CommandPlayer{args: args, tempDir: tempDir}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, audio []byte) error {
	f, err := os.CreateTemp(p.tempDir, "relay-reply-*.mp3")
	if err != nil {
		return fmt.Errorf("create playback file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write playback file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close playback file: %w", err)
	}

	return run(ctx, expand(p.args, placeholderFile, path))
}

// CommandSpeaker runs a template such as "espeak {text}".
type CommandSpeaker struct {
	args []string
}

func NewCommandSpeaker(command string) (*CommandSpeaker, error) {
	args, err := parseCommand(command, placeholderText)
	if err != nil {
		return nil, err
	}
	return &CommandSpeaker{args: args}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	return run(ctx, expand(s.args, placeholderText, text))
}

// CommandSource captures audio with a long-running command such as
// "arecord -q -f cd -t wav {output}". Stop interrupts it and reads the file.
type CommandSource struct {
	args     []string
	mimeType string
	tempDir  string

	mu     sync.Mutex
	cmd    *exec.Cmd
	path   string
	done   chan error
	stderr bytes.Buffer
}

func NewCommandSource(command, mimeType, tempDir string) (*CommandSource, error) {
	args, err := parseCommand(command, placeholderOutput)
	if err != nil {
		return nil, err
	}
	return &CommandSource{args: args, mimeType: mimeType, tempDir: tempDir}, nil
}

func (s *CommandSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return ErrAlreadyRecording
	}

	f, err := os.CreateTemp(s.tempDir, "relay-utterance-*")
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	path := f.Name()
	f.Close()

	args := expand(s.args, placeholderOutput, path)
	s.stderr.Reset()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &s.stderr
	cmd.WaitDelay = stopGrace
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return fmt.Errorf("start recorder: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	s.cmd, s.path, s.done = cmd, path, done
	return nil
}

func (s *CommandSource) Stop() ([]byte, string, error) {
	s.mu.Lock()
	cmd, path, done := s.cmd, s.path, s.done
	s.cmd, s.path, s.done = nil, "", nil
	s.mu.Unlock()

	if cmd == nil {
		return nil, "", errEmptyRecording
	}
	defer os.Remove(path)

	var waitErr error
	select {
	case waitErr = <-done:
	default:
		cmd.Process.Signal(os.Interrupt)
		select {
		case waitErr = <-done:
		case <-time.After(stopGrace):
			cmd.Process.Kill()
			waitErr = <-done
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		if waitErr != nil {
			return nil, "", fmt.Errorf("recorder: %w: %s", waitErr, strings.TrimSpace(s.stderr.String()))
		}
		return nil, "", errEmptyRecording
	}
	return data, s.mimeType, nil
}
