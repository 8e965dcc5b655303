package synthesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

var errEmptyArtifact = errors.New("tts command produced no audio")

// CommandSynthesizer runs an external text-to-speech program that writes its
// output to a file. Each call gets its own temp file, removed before return.
type CommandSynthesizer struct {
	args     []string
	language string
	tempDir  string
	timeout  time.Duration
	log      *slog.Logger
}

func NewCommandSynthesizer(cfg Config, log *slog.Logger) (*CommandSynthesizer, error) {
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}

	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	if !hasPlaceholder(args, placeholderOutput) {
		return nil, ErrMissingOutput
	}

	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}
	if log == nil {
		log = slog.Default()
	}

	return &CommandSynthesizer{
		args:     args,
		language: language,
		tempDir:  cfg.TempDir,
		timeout:  cfg.Timeout,
		log:      log.With("component", "synthesis", "program", args[0]),
	}, nil
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := os.CreateTemp(s.tempDir, "relay-tts-*.mp3")
	if err != nil {
		return nil, &SynthesisError{Op: "tempfile", Err: err}
	}
	path := out.Name()
	out.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove temp audio", "path", path, "error", err)
		}
	}()

	args := s.expand(text, path)
	start := time.Now()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &SynthesisError{Op: "exec", Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, &SynthesisError{Op: "read", Err: err}
	}
	if len(audio) == 0 {
		return nil, &SynthesisError{Op: "read", Err: errEmptyArtifact}
	}

	s.log.Debug("synthesized reply", "chars", len(text), "bytes", len(audio), "latency_ms", time.Since(start).Milliseconds())
	return audio, nil
}

// Available reports whether the configured program can be resolved on PATH.
func (s *CommandSynthesizer) Available() error {
	if _, err := exec.LookPath(s.args[0]); err != nil {
		return fmt.Errorf("tts program %q: %w", s.args[0], err)
	}
	return nil
}

func (s *CommandSynthesizer) expand(text, output string) []string {
	r := strings.NewReplacer(
		placeholderText, text,
		placeholderLang, s.language,
		placeholderOutput, output,
	)
	args := make([]string, len(s.args))
	for i, arg := range s.args {
		args[i] = r.Replace(arg)
	}
	return args
}

func hasPlaceholder(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}
