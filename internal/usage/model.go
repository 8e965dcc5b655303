package usage

import "time"

type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeUpstreamError  Outcome = "upstream_error"
	OutcomeSynthesisError Outcome = "synthesis_error"
	OutcomeTextOnly       Outcome = "text_only"
	OutcomeAbandoned      Outcome = "abandoned"
	OutcomeInternalError  Outcome = "internal_error"
)

// Exchange is one processed utterance. Only sizes and timings are kept.
// Interrupted marks a reply that finished after the client interrupted.
type Exchange struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	ConnectionID string    `gorm:"not null;index" json:"connection_id"`
	MimeType     string    `gorm:"not null" json:"mime_type"`
	AudioBytes   int       `json:"audio_bytes"`
	ReplyChars   int       `json:"reply_chars"`
	SpeechBytes  int       `json:"speech_bytes"`
	Outcome      Outcome   `gorm:"not null;index" json:"outcome"`
	LatencyMs    int64     `json:"latency_ms"`
	Interrupted  bool      `json:"interrupted"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

type Summary struct {
	Total        int64             `json:"total"`
	ByOutcome    map[Outcome]int64 `json:"by_outcome"`
	AvgLatencyMs float64           `json:"avg_latency_ms"`
}
