package stream

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/zhound420/acp-agents-skill/internal/acp"
)

// Decoded event kinds.
const (
	KindLog       = "log"
	KindHighlight = "highlight"
	KindOutput    = "output"
)

// Event is one decoded event: full-detail log text, a chat-worthy
// highlight, or the final output.
type Event struct {
	Kind string
	Text string
}

type state int

const (
	stateStreaming state = iota
	stateCompleted
	stateFailed
)

const (
	orchestrationStartMarker    = "[ORCHESTRATION PROTOCOL INITIATED]"
	orchestrationCompleteMarker = "[ORCHESTRATION COMPLETE"

	// Sentinel key in the seen set so the synthesis highlight fires at
	// most once per session.
	synthesisKey = "synthesis"

	maxRoleLen = 40
)

var agentPattern = regexp.MustCompile(`(Agent-\d+)\s*[:\(]([^:\)\n]+)`)

var synthesisKeywords = []string{"synthesis coordinator", "combining findings", "final synthesis"}

// Decoder consumes the line feed of one streaming run and classifies each
// wire event. It is single-consumer state: create one per run, discard at
// stream end.
type Decoder struct {
	state         state
	output        strings.Builder
	failure       string
	seen          map[string]struct{}
	orchestration bool
}

// NewDecoder creates a Decoder in the streaming state.
func NewDecoder() *Decoder {
	return &Decoder{seen: make(map[string]struct{})}
}

// Decode processes one raw protocol line and returns zero or more decoded
// events. Lines without the "data:" prefix and payloads that fail to
// parse are dropped. After a terminal event, every further line decodes
// to nothing.
func (d *Decoder) Decode(line string) []Event {
	if d.state != stateStreaming {
		return nil
	}
	if !strings.HasPrefix(line, "data:") {
		return nil
	}
	payload := strings.TrimSpace(line[len("data:"):])
	if payload == "" {
		return nil
	}

	var ev acp.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case acp.EventGeneric:
		if ev.Generic == nil || ev.Generic.Thought == "" {
			return nil
		}
		events := []Event{{Kind: KindLog, Text: ev.Generic.Thought}}
		if highlight, ok := d.extractHighlight(ev.Generic.Thought); ok {
			events = append(events, Event{Kind: KindHighlight, Text: highlight})
		}
		return events

	case acp.EventMessage:
		if ev.Message == nil {
			return nil
		}
		var events []Event
		for _, part := range ev.Message.Parts {
			if part.Content == "" {
				continue
			}
			d.output.WriteString(part.Content)
			events = append(events, Event{
				Kind: KindLog,
				Text: fmt.Sprintf("output chunk: %d chars", len(part.Content)),
			})
		}
		return events

	case acp.EventRunCompleted:
		d.state = stateCompleted
		events := []Event{{Kind: KindLog, Text: "run completed"}}
		if d.output.Len() > 0 {
			events = append(events, Event{Kind: KindOutput, Text: d.output.String()})
		}
		return append(events, Event{Kind: KindHighlight, Text: "done"})

	case acp.EventRunFailed:
		d.state = stateFailed
		reason := "unknown error"
		if ev.Run != nil && ev.Run.Error != "" {
			reason = ev.Run.Error
		}
		d.failure = reason
		return []Event{
			{Kind: KindLog, Text: "run failed: " + reason},
			{Kind: KindHighlight, Text: "failed: " + reason},
		}
	}
	return nil
}

// extractHighlight applies the highlight heuristic to thought text. The
// rules are a fixed best-effort policy over free-text model output:
// missed highlights are acceptable, duplicates are suppressed.
func (d *Decoder) extractHighlight(thought string) (string, bool) {
	if strings.Contains(thought, orchestrationStartMarker) {
		d.orchestration = true
		return "swarm activated", true
	}
	if strings.Contains(thought, orchestrationCompleteMarker) {
		return "synthesis complete", true
	}

	if m := agentPattern.FindStringSubmatch(thought); m != nil {
		name := m[1]
		role := strings.TrimSpace(m[2])
		if len(role) > maxRoleLen {
			role = role[:maxRoleLen]
		}
		if _, ok := d.seen[name]; !ok {
			d.seen[name] = struct{}{}
			return name + ": " + role, true
		}
		return "", false
	}

	lower := strings.ToLower(thought)
	for _, kw := range synthesisKeywords {
		if strings.Contains(lower, kw) {
			if _, ok := d.seen[synthesisKey]; !ok {
				d.seen[synthesisKey] = struct{}{}
				return "synthesizing findings", true
			}
			break
		}
	}
	return "", false
}

// Done reports whether a terminal event has been consumed.
func (d *Decoder) Done() bool { return d.state != stateStreaming }

// Completed reports whether the run finished successfully.
func (d *Decoder) Completed() bool { return d.state == stateCompleted }

// Failed reports whether the run ended with run.failed.
func (d *Decoder) Failed() bool { return d.state == stateFailed }

// Failure returns the run.failed error text, or "" if the run did not fail.
func (d *Decoder) Failure() string { return d.failure }

// Output returns the accumulated output text so far.
func (d *Decoder) Output() string { return d.output.String() }
