package acp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known endpoint paths every ACP agent exposes.
const (
	DiscoveryPath = "/.well-known/agent.json"
	PingPath      = "/ping"
	RunsPath      = "/runs"
)

// Run modes accepted by POST /runs.
const (
	ModeSync   = "sync"
	ModeStream = "stream"
)

// Transport identifies the execution path a call took.
const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportNone  = "none"
)

// Response statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// MessagePart is one chunk of message content.
type MessagePart struct {
	Content string `json:"content"`
}

// Message is an ordered sequence of parts.
type Message struct {
	Parts []MessagePart `json:"parts"`
}

// Text concatenates the message's part contents in order.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Content)
	}
	return b.String()
}

// TextMessage wraps plain text in the single-part message shape.
func TextMessage(content string) Message {
	return Message{Parts: []MessagePart{{Content: content}}}
}

// JoinText concatenates the content of every part of every message.
func JoinText(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Text())
	}
	return b.String()
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	AgentName string    `json:"agent_name"`
	Input     []Message `json:"input"`
	Mode      string    `json:"mode"`
}

// RunResponse is the body of a sync run result.
type RunResponse struct {
	Status string    `json:"status"`
	Output []Message `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Response is the normalized result every routed call produces, regardless
// of transport or outcome. Status "error" carries a human-readable
// diagnostic in Content.
type Response struct {
	Content   string `json:"content"`
	Agent     string `json:"agent"`
	Status    string `json:"status"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Transport string `json:"transport_used"`
}

// Request is the message handed to an agent.
type Request struct {
	Content  string         `json:"content"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stream event types carried in "data:" records.
const (
	EventGeneric      = "generic"
	EventMessage      = "message"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// StreamEvent is one wire-level event of a streaming run. Type selects
// which of the optional payloads is populated.
type StreamEvent struct {
	Type    string        `json:"type"`
	Generic *GenericEvent `json:"generic,omitempty"`
	Message *Message      `json:"message,omitempty"`
	Run     *RunStatus    `json:"run,omitempty"`
}

// GenericEvent carries free-text agent thoughts.
type GenericEvent struct {
	Thought string `json:"thought"`
}

// RunStatus carries terminal run state, populated on run.failed.
type RunStatus struct {
	Error string `json:"error,omitempty"`
}

// AgentDescriptor is one agent entry of a discovery manifest.
type AgentDescriptor struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Model        string         `json:"model,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Raw          map[string]any `json:"-"`
}

// Manifest is the document served at the discovery path.
type Manifest struct {
	Schema      string            `json:"schema,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Agents      []AgentDescriptor `json:"agents"`
}

// ParseManifest decodes a discovery payload. The body is either a single
// agent descriptor or an object with an "agents" list; descriptors without
// a name are skipped. The raw descriptor map is retained on each entry.
func ParseManifest(body []byte) ([]AgentDescriptor, error) {
	var envelope struct {
		Agents []json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	raws := envelope.Agents
	if raws == nil {
		// Single-descriptor form.
		raws = []json.RawMessage{body}
	}

	var agents []AgentDescriptor
	for _, raw := range raws {
		var desc AgentDescriptor
		if err := json.Unmarshal(raw, &desc); err != nil || desc.Name == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err == nil {
			desc.Raw = fields
		}
		agents = append(agents, desc)
	}
	return agents, nil
}
