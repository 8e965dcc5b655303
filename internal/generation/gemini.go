package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-relay/internal/protocol"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiProcessor sends one utterance per request with a fixed system
// instruction. It keeps no chat history and never retries.
type GeminiProcessor struct {
	client  *genai.Client
	model   contentGenerator
	timeout time.Duration
	log     *slog.Logger
}

func NewGeminiProcessor(ctx context.Context, cfg Config, log *slog.Logger) (*GeminiProcessor, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	instruction := cfg.SystemInstruction
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}
	model.ResponseMIMEType = "text/plain"

	return &GeminiProcessor{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
		log:     log.With("component", "generation", "model", modelName),
	}, nil
}

func (p *GeminiProcessor) Process(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = protocol.DefaultMimeType
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	p.log.Debug("sending utterance", "mime_type", mimeType, "bytes", len(audio))

	resp, err := p.model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: audio})
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			p.log.Warn("response blocked, returning empty reply", "reason", blocked.Error())
			return "", nil
		}

		uerr := toUpstreamError(err)
		p.log.Error("gemini request failed",
			"status", uerr.StatusCode,
			"body", uerr.Body,
			"error", err)
		return "", uerr
	}

	text := firstText(resp)
	p.log.Debug("reply received", "chars", len(text), "latency_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (p *GeminiProcessor) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func toUpstreamError(err error) *UpstreamError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &UpstreamError{StatusCode: gerr.Code, Body: gerr.Body, Err: err}
	}
	return &UpstreamError{Err: err}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	for _, part := range content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return ""
}
