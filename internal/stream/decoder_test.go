package stream

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genericLine(thought string) string {
	return fmt.Sprintf(`data: {"type":"generic","generic":{"thought":%q}}`, thought)
}

func messageLine(contents ...string) string {
	var parts []string
	for _, c := range contents {
		parts = append(parts, fmt.Sprintf(`{"content":%q}`, c))
	}
	return fmt.Sprintf(`data: {"type":"message","message":{"parts":[%s]}}`, strings.Join(parts, ","))
}

func decodeAll(d *Decoder, lines ...string) []Event {
	var events []Event
	for _, line := range lines {
		events = append(events, d.Decode(line)...)
	}
	return events
}

func byKind(events []Event, kind string) []string {
	var texts []string
	for _, ev := range events {
		if ev.Kind == kind {
			texts = append(texts, ev.Text)
		}
	}
	return texts
}

func TestDecodeOrchestrationScenario(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(d,
		genericLine("[ORCHESTRATION PROTOCOL INITIATED] plan"),
		genericLine("Agent-1: researching"),
		genericLine("Agent-1: still researching"),
		messageLine("final answer"),
		`data: {"type":"run.completed"}`,
	)

	highlights := byKind(events, KindHighlight)
	require.Len(t, highlights, 3)
	assert.Equal(t, "swarm activated", highlights[0])
	assert.Equal(t, "Agent-1: researching", highlights[1], "second Agent-1 mention suppressed")
	assert.Equal(t, "done", highlights[2])

	outputs := byKind(events, KindOutput)
	require.Len(t, outputs, 1)
	assert.Equal(t, "final answer", outputs[0])

	assert.True(t, d.Completed())
}

func TestDecodeRunFailed(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(d,
		genericLine("working on it"),
		genericLine("still working"),
		`data: {"type":"run.failed","run":{"error":"boom"}}`,
	)

	assert.Empty(t, byKind(events, KindOutput), "no output on failure")

	highlights := byKind(events, KindHighlight)
	require.Len(t, highlights, 1)
	assert.Contains(t, highlights[0], "boom")

	logs := byKind(events, KindLog)
	assert.Contains(t, logs, "run failed: boom")
	assert.True(t, d.Failed())
	assert.Equal(t, "boom", d.Failure())
}

func TestDecodeRunFailedWithoutError(t *testing.T) {
	d := NewDecoder()
	events := d.Decode(`data: {"type":"run.failed"}`)
	assert.Contains(t, byKind(events, KindHighlight)[0], "unknown error")
}

func TestDecodeSkipsNonDataLines(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Decode(""))
	assert.Empty(t, d.Decode("event: ping"))
	assert.Empty(t, d.Decode(": comment"))
	assert.Empty(t, d.Decode("data:"))
	assert.False(t, d.Done())
}

func TestDecodeDropsUnparseablePayloads(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Decode("data: {not json"))

	// The stream survives the bad payload.
	events := d.Decode(genericLine("still alive"))
	assert.Equal(t, []string{"still alive"}, byKind(events, KindLog))
}

func TestDecodeIgnoresEventsAfterTerminal(t *testing.T) {
	d := NewDecoder()
	decodeAll(d, messageLine("answer"), `data: {"type":"run.completed"}`)

	assert.Empty(t, d.Decode(genericLine("late thought")))
	assert.Empty(t, d.Decode(messageLine("late chunk")))
	assert.Equal(t, "answer", d.Output(), "late chunks do not mutate the output")
}

func TestDecodeMessageChunksConcatenate(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(d,
		messageLine("chunk one, "),
		messageLine("chunk ", "two"),
		`data: {"type":"run.completed"}`,
	)

	logs := byKind(events, KindLog)
	assert.Contains(t, logs, "output chunk: 11 chars")

	outputs := byKind(events, KindOutput)
	require.Len(t, outputs, 1)
	assert.Equal(t, "chunk one, chunk two", outputs[0])
}

func TestDecodeCompletedWithoutOutput(t *testing.T) {
	d := NewDecoder()
	events := d.Decode(`data: {"type":"run.completed"}`)

	assert.Empty(t, byKind(events, KindOutput))
	assert.Equal(t, []string{"done"}, byKind(events, KindHighlight))
	assert.True(t, d.Completed())
}

func TestHighlightOrchestrationMarkersAlwaysFire(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(d,
		genericLine("[ORCHESTRATION PROTOCOL INITIATED] phase one"),
		genericLine("[ORCHESTRATION PROTOCOL INITIATED] phase two"),
		genericLine("[ORCHESTRATION COMPLETE] wrap up"),
	)

	assert.Equal(t,
		[]string{"swarm activated", "swarm activated", "synthesis complete"},
		byKind(events, KindHighlight))
}

func TestHighlightAgentAnnouncementParenForm(t *testing.T) {
	d := NewDecoder()
	events := d.Decode(genericLine("spawning Agent-2 (deep analysis"))

	highlights := byKind(events, KindHighlight)
	require.Len(t, highlights, 1)
	assert.Equal(t, "Agent-2: deep analysis", highlights[0])
}

func TestHighlightRoleTruncatedTo40Chars(t *testing.T) {
	longRole := strings.Repeat("r", 60)
	d := NewDecoder()
	events := d.Decode(genericLine("Agent-7: " + longRole))

	highlights := byKind(events, KindHighlight)
	require.Len(t, highlights, 1)
	assert.Equal(t, "Agent-7: "+strings.Repeat("r", 40), highlights[0])
}

func TestHighlightSynthesisKeywordsDeduplicated(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(d,
		genericLine("the Synthesis Coordinator is taking over"),
		genericLine("now combining findings from all agents"),
		genericLine("final synthesis underway"),
	)

	assert.Equal(t, []string{"synthesizing findings"}, byKind(events, KindHighlight))
}

func TestHighlightPlainThoughtYieldsNone(t *testing.T) {
	d := NewDecoder()
	events := d.Decode(genericLine("just thinking about the problem"))

	assert.Equal(t, []string{"just thinking about the problem"}, byKind(events, KindLog))
	assert.Empty(t, byKind(events, KindHighlight))
}

func TestDecodeEmptyThoughtYieldsNothing(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Decode(`data: {"type":"generic","generic":{"thought":""}}`))
}
