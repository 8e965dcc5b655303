package session

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

const (
	FieldSessions     = "sessions"
	FieldUtterances   = "utterances"
	FieldResponses    = "responses"
	FieldErrors       = "errors"
	FieldInterrupts   = "interrupts"
	FieldDropped      = "dropped"
	fieldLatencyTotal = "total_latency_ms"
	fieldLatencyCount = "latency_count"
)

// Session is lifecycle metadata for one relay connection. Audio and reply
// text are never stored.
type Session struct {
	ID           string     `json:"id"`
	RemoteAddr   string     `json:"remote_addr,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) RedisKey() string {
	return SessionRedisKey(s.ID)
}

func SessionRedisKey(id string) string {
	return "session:" + id
}

type Metrics struct {
	Date           string `json:"date"`
	Hour           int    `json:"hour"`
	Sessions       int64  `json:"sessions"`
	Utterances     int64  `json:"utterances"`
	Responses      int64  `json:"responses"`
	Errors         int64  `json:"errors"`
	Interrupts     int64  `json:"interrupts"`
	Dropped        int64  `json:"dropped"`
	AvgLatencyMs   int64  `json:"avg_latency_ms"`
	LatencyTotalMs int64  `json:"latency_total_ms"`
	LatencyCount   int64  `json:"latency_count"`
}

func MetricsRedisKey(date string, hour int) string {
	return "relay:metrics:" + date + ":" + strconv.Itoa(hour)
}

type MetricsListResponse struct {
	Hours   int        `json:"hours"`
	Metrics []*Metrics `json:"metrics"`
}

type SessionListResponse struct {
	Total    int        `json:"total"`
	Sessions []*Session `json:"sessions"`
}

type SummaryResponse struct {
	Period          string  `json:"period"`
	TotalSessions   int64   `json:"total_sessions"`
	TotalUtterances int64   `json:"total_utterances"`
	TotalResponses  int64   `json:"total_responses"`
	TotalInterrupts int64   `json:"total_interrupts"`
	TotalDropped    int64   `json:"total_dropped"`
	AvgLatencyMs    int64   `json:"avg_latency_ms"`
	ErrorRate       float64 `json:"error_rate"`
}
