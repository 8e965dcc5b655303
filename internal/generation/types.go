package generation

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultModel = "gemini-1.5-flash-latest"

	DefaultSystemInstruction = `You are Rev, an AI assistant for Revolt Motors. Only provide information about Revolt Motors products, services, and company. If asked about unrelated topics, politely redirect to Revolt Motors. Be helpful, friendly, and concise. Revolt Motors specializes in electric motorcycles and scooters.`
)

var ErrMissingAPIKey = errors.New("missing gemini api key")

type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Timeout           time.Duration
}

// UpstreamError carries the upstream status and raw body for logs. It must
// not be forwarded to clients.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
