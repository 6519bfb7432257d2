package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/zhound420/acp-agents-skill/internal/acp"
)

const defaultRunTimeout = 300 * time.Second

// EventHandler receives each decoded event in arrival order.
type EventHandler func(Event)

// Client executes streaming runs against one ACP endpoint.
type Client struct {
	Endpoint string
	// Timeout is the hard per-run cap. Defaults to 300s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a streaming client for endpoint.
func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint}
}

// Run starts a streaming run and decodes the event feed, invoking handle
// for every decoded event. It returns the final output text on
// run.completed. A run.failed event, a transport failure, or a feed that
// ends before a terminal event all yield an error; in those cases no
// output is returned.
func (c *Client) Run(ctx context.Context, agent, task string, handle EventHandler) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := acp.RunRequest{
		AgentName: agent,
		Input:     []acp.Message{acp.TextMessage(task)},
		Mode:      acp.ModeStream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+acp.RunsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stream request failed: status %d", resp.StatusCode)
	}

	runID := resp.Header.Get("Run-ID")
	if runID == "" {
		runID = "unknown"
	}
	log.Printf("[Stream] Run started: %s (agent=%s)", runID, agent)
	if handle != nil {
		handle(Event{Kind: KindLog, Text: "run started: " + runID})
	}

	dec := NewDecoder()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		for _, ev := range dec.Decode(scanner.Text()) {
			if handle != nil {
				handle(ev)
			}
		}
		if dec.Done() {
			break
		}
	}

	if dec.Failed() {
		return "", fmt.Errorf("run failed: %s", dec.Failure())
	}
	if !dec.Completed() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("stream aborted: %w", err)
		}
		// Dropped connection before a terminal event: an unresolved run
		// is a failed run.
		return "", fmt.Errorf("stream ended before run completion")
	}
	return dec.Output(), nil
}
