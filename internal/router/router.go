package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zhound420/acp-agents-skill/internal/acp"
	"github.com/zhound420/acp-agents-skill/internal/registry"
)

const defaultCallTimeout = 300 * time.Second

// Handler is an in-process agent implementation.
type Handler func(ctx context.Context, content string) (string, error)

// Target binds an agent name to exactly one execution path: a local
// handler or an HTTP endpoint.
type Target struct {
	Name      string
	Transport string
	Endpoint  string
	Handler   Handler
	Metadata  map[string]any
}

// Config holds router configuration.
type Config struct {
	// Timeout bounds each HTTP call. Defaults to 300s.
	Timeout time.Duration
	// OnResult, if set, is called with every normalized response.
	OnResult func(*acp.Response)
}

// Router resolves agent names to call targets and executes one call per
// request, normalizing every outcome into an acp.Response. It never
// returns an error to the caller; failures become error-status responses.
type Router struct {
	mu       sync.RWMutex
	targets  map[string]*Target
	client   *http.Client
	timeout  time.Duration
	onResult func(*acp.Response)
}

// New creates a Router.
func New(cfg Config) *Router {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Router{
		targets:  make(map[string]*Target),
		timeout:  timeout,
		onResult: cfg.OnResult,
	}
}

// RegisterLocal binds name to an in-process handler, overwriting any
// prior binding.
func (r *Router) RegisterLocal(name string, handler Handler, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[name] = &Target{
		Name:      name,
		Transport: acp.TransportLocal,
		Handler:   handler,
		Metadata:  metadata,
	}
	log.Printf("[Router] Registered %s → LOCAL", name)
}

// RegisterHTTP binds name to a network endpoint, overwriting any prior
// binding.
func (r *Router) RegisterHTTP(name, endpoint string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	endpoint = strings.TrimRight(endpoint, "/")
	r.targets[name] = &Target{
		Name:      name,
		Transport: acp.TransportHTTP,
		Endpoint:  endpoint,
		Metadata:  metadata,
	}
	log.Printf("[Router] Registered %s → HTTP %s", name, endpoint)
}

// ImportRegistry bulk-registers HTTP targets for every registry record
// that is online or registered. Returns the number imported.
func (r *Router) ImportRegistry(reg *registry.Registry) int {
	count := 0
	for _, rec := range reg.List() {
		if rec.Status != registry.StatusOnline && rec.Status != registry.StatusRegistered {
			continue
		}
		meta := map[string]any{"capabilities": rec.Capabilities}
		if rec.Model != "" {
			meta["model"] = rec.Model
		}
		r.RegisterHTTP(rec.Name, rec.Endpoint, meta)
		count++
	}
	return count
}

// Targets returns the registered call targets in no particular order;
// callers must not mutate the returned targets.
func (r *Router) Targets() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	return out
}

// Has reports whether name resolves to a target.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[name]
	return ok
}

// Call resolves name and executes the call over the bound transport.
// The response always records elapsed time and the transport attempted;
// an unresolved name yields status error with transport "none".
func (r *Router) Call(ctx context.Context, name, content string, metadata map[string]any) *acp.Response {
	r.mu.RLock()
	target, ok := r.targets[name]
	r.mu.RUnlock()

	var resp *acp.Response
	switch {
	case !ok:
		resp = &acp.Response{
			Content:   fmt.Sprintf("agent %q not found", name),
			Agent:     name,
			Status:    acp.StatusError,
			Transport: acp.TransportNone,
		}
	case target.Transport == acp.TransportLocal:
		resp = r.callLocal(ctx, target, content)
	default:
		resp = r.callHTTP(ctx, target, content)
	}

	if r.onResult != nil {
		r.onResult(resp)
	}
	return resp
}

func (r *Router) callLocal(ctx context.Context, target *Target, content string) (resp *acp.Response) {
	start := time.Now()
	resp = &acp.Response{
		Agent:     target.Name,
		Status:    acp.StatusCompleted,
		Transport: acp.TransportLocal,
	}
	defer func() {
		if rec := recover(); rec != nil {
			resp.Status = acp.StatusError
			resp.Content = fmt.Sprintf("handler panic: %v", rec)
		}
		resp.ElapsedMs = time.Since(start).Milliseconds()
	}()

	result, err := target.Handler(ctx, content)
	if err != nil {
		resp.Status = acp.StatusError
		resp.Content = err.Error()
		return resp
	}
	resp.Content = result
	return resp
}

func (r *Router) callHTTP(ctx context.Context, target *Target, content string) *acp.Response {
	start := time.Now()
	resp := &acp.Response{
		Agent:     target.Name,
		Transport: acp.TransportHTTP,
	}
	fail := func(err error) *acp.Response {
		resp.Status = acp.StatusError
		resp.Content = err.Error()
		resp.ElapsedMs = time.Since(start).Milliseconds()
		return resp
	}

	// "server/agent" names address the agent's last path segment.
	parts := strings.Split(target.Name, "/")
	payload := acp.RunRequest{
		AgentName: parts[len(parts)-1],
		Input:     []acp.Message{acp.TextMessage(content)},
		Mode:      acp.ModeSync,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint+acp.RunsPath, bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := r.httpClient().Do(req)
	if err != nil {
		return fail(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fail(err)
	}

	var runResp acp.RunResponse
	if err := json.Unmarshal(respBody, &runResp); err != nil {
		return fail(fmt.Errorf("invalid response body: %w", err))
	}

	text := acp.JoinText(runResp.Output)
	if text == "" {
		// Nonconforming agents still get surfaced rather than silently
		// returning nothing.
		text = string(respBody)
	}
	status := runResp.Status
	if status == "" {
		status = acp.StatusCompleted
	}

	resp.Content = text
	resp.Status = status
	resp.ElapsedMs = time.Since(start).Milliseconds()
	return resp
}

// httpClient lazily creates the pooled client on first use, including
// after Close.
func (r *Router) httpClient() *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		r.client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return r.client
}

// Close releases the pooled client. Close is idempotent and a subsequent
// Call re-creates the client.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return
	}
	r.client.CloseIdleConnections()
	r.client = nil
}
