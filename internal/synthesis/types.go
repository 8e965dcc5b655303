package synthesis

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultCommand  = "gtts-cli --lang {lang} --output {output} -- {text}"
	DefaultLanguage = "en"

	placeholderText   = "{text}"
	placeholderLang   = "{lang}"
	placeholderOutput = "{output}"
)

var (
	ErrEmptyCommand  = errors.New("tts command empty")
	ErrMissingOutput = errors.New("tts command has no {output} placeholder")
)

type Config struct {
	Command  string
	Language string
	TempDir  string
	Timeout  time.Duration
}

// SynthesisError reports the stage that failed: "tempfile", "exec" or "read".
type SynthesisError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("synthesis %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("synthesis %s: %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
