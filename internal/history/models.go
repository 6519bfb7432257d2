package history

import (
	"time"
)

// Call is one routed or streamed agent call and its outcome.
type Call struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Transport string    `json:"transport"` // "local", "http", "none"
	Status    string    `json:"status"`    // "completed" or "error"
	Task      string    `json:"task"`
	Response  string    `json:"response"`
	ElapsedMs int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one decoded stream event recorded against a call.
type Event struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Kind      string    `json:"kind"` // "log", "highlight", "output"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
