package runtime

import (
	"context"
	"fmt"
	"strings"
)

// EchoAgent returns the task text unchanged. Useful for wiring checks and
// as the minimal example of the runtime contract.
func EchoAgent(ctx context.Context, task string, emit func(string)) (string, error) {
	if task == "" {
		return "", fmt.Errorf("no task provided")
	}
	emit(fmt.Sprintf("Received task: %s", truncate(task, 100)))
	return "ECHO: " + task, nil
}

// SwarmDemoAgent simulates an orchestrated multi-agent run, emitting the
// marker vocabulary the stream decoder's highlight heuristic understands.
// It stands in for a model-backed swarm agent when no backend is wired.
func SwarmDemoAgent(ctx context.Context, task string, emit func(string)) (string, error) {
	if task == "" {
		return "", fmt.Errorf("no task provided")
	}

	emit("[ORCHESTRATION PROTOCOL INITIATED] decomposing task")
	emit(fmt.Sprintf("Task: %s", truncate(task, 100)))

	roles := []string{"researching the task", "analyzing constraints", "drafting the response"}
	for i, role := range roles {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		emit(fmt.Sprintf("Agent-%d: %s", i+1, role))
	}

	emit("final synthesis of agent findings")
	emit("[ORCHESTRATION COMPLETE]")

	var b strings.Builder
	b.WriteString("Swarm result for: ")
	b.WriteString(task)
	b.WriteString("\n")
	for i, role := range roles {
		fmt.Fprintf(&b, "- Agent-%d handled %s\n", i+1, role)
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
