package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhound420/acp-agents-skill/internal/acp"
)

// Agent statuses.
const (
	StatusUnknown    = "unknown"
	StatusRegistered = "registered"
	StatusOnline     = "online"
	StatusOffline    = "offline"
	StatusError      = "error"
)

// ErrNotFound is returned by Probe for a name that was never registered.
var ErrNotFound = errors.New("agent not registered")

const (
	defaultDiscoverTimeout = 10 * time.Second
	probeTimeout           = 5 * time.Second
)

// Record holds everything known about one agent. Name is the unique key;
// re-registering overwrites in place.
type Record struct {
	Name         string         `json:"name"`
	Endpoint     string         `json:"endpoint"`
	Capabilities []string       `json:"capabilities"`
	Model        string         `json:"model,omitempty"`
	Description  string         `json:"description,omitempty"`
	Transport    string         `json:"transport"`
	Status       string         `json:"status"`
	LastSeen     time.Time      `json:"last_seen"`
	LatencyMs    int64          `json:"latency_ms"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Capabilities = append([]string(nil), r.Capabilities...)
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// snapshot is the on-disk registry file format.
type snapshot struct {
	Agents  map[string]*Record `json:"agents"`
	Updated time.Time          `json:"updated"`
}

// Registry is the local store of known agents. All mutations rewrite the
// snapshot file in full; a missing or corrupt file degrades to an empty
// registry rather than failing.
type Registry struct {
	path   string
	mu     sync.Mutex
	agents map[string]*Record
	client *http.Client
	now    func() time.Time
}

// DefaultPath returns the registry file under the user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agents.json"
	}
	return filepath.Join(home, ".acp", "agents.json")
}

// New creates a Registry backed by the snapshot file at path.
func New(path string) *Registry {
	r := &Registry{
		path:   path,
		agents: make(map[string]*Record),
		client: &http.Client{},
		now:    time.Now,
	}
	r.load()
	return r
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Registry] Failed to load %s: %v", r.path, err)
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Registry] Failed to load %s: %v", r.path, err)
		return
	}
	for name, rec := range snap.Agents {
		if rec == nil {
			continue
		}
		rec.Name = name
		r.agents[name] = rec
	}
}

// save rewrites the snapshot file. Caller holds the mutex.
func (r *Registry) save() {
	snap := snapshot{Agents: r.agents, Updated: r.now()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("[Registry] Failed to encode registry: %v", err)
		return
	}
	if dir := filepath.Dir(r.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		log.Printf("[Registry] Failed to save %s: %v", r.path, err)
	}
}

// Register upserts an agent record and persists immediately.
func (r *Registry) Register(name, endpoint string, capabilities []string, model, description string, metadata map[string]any) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &Record{
		Name:         name,
		Endpoint:     strings.TrimRight(endpoint, "/"),
		Capabilities: dedupe(capabilities),
		Model:        model,
		Description:  description,
		Transport:    acp.TransportHTTP,
		Status:       StatusRegistered,
		LastSeen:     r.now(),
		Metadata:     metadata,
	}
	r.agents[name] = rec
	r.save()
	log.Printf("[Registry] Registered: %s → %s", name, rec.Endpoint)
	return rec.clone()
}

// Discover fetches the discovery manifest at endpoint and upserts a record
// per descriptor. Any transport failure, non-200 status, or unparseable
// body is logged and yields an empty result; existing records are left
// untouched.
func (r *Registry) Discover(ctx context.Context, endpoint string, timeout time.Duration) []*Record {
	if timeout <= 0 {
		timeout = defaultDiscoverTimeout
	}
	endpoint = strings.TrimRight(endpoint, "/")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+acp.DiscoveryPath, nil)
	if err != nil {
		log.Printf("[Registry] Discovery error: %v", err)
		return nil
	}

	start := r.now()
	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("[Registry] Discovery error: %s: %v", endpoint, err)
		return nil
	}
	defer resp.Body.Close()
	latency := r.now().Sub(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Registry] Discovery failed: %s returned %d", endpoint, resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Registry] Discovery error: %s: %v", endpoint, err)
		return nil
	}
	descriptors, err := acp.ParseManifest(body)
	if err != nil {
		log.Printf("[Registry] Discovery error: %s: %v", endpoint, err)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var discovered []*Record
	for _, desc := range descriptors {
		rec := &Record{
			Name:         desc.Name,
			Endpoint:     endpoint,
			Capabilities: dedupe(desc.Capabilities),
			Model:        desc.Model,
			Description:  desc.Description,
			Transport:    acp.TransportHTTP,
			Status:       StatusOnline,
			LastSeen:     r.now(),
			LatencyMs:    latency,
			Metadata:     desc.Raw,
		}
		r.agents[desc.Name] = rec
		discovered = append(discovered, rec.clone())
		log.Printf("[Registry] Discovered: %s at %s", desc.Name, endpoint)
	}
	if len(discovered) > 0 {
		r.save()
	}
	return discovered
}

// Probe checks whether a registered agent is reachable and updates its
// status. The only hard failure is an unknown name; transport errors
// surface as a status transition, never as an error.
func (r *Registry) Probe(ctx context.Context, name string) (*Record, error) {
	r.mu.Lock()
	rec, ok := r.agents[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	endpoint := rec.Endpoint
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := StatusOffline
	var latency int64
	start := r.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+acp.PingPath, nil)
	if err == nil {
		resp, doErr := r.client.Do(req)
		if doErr == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				status = StatusOnline
				latency = r.now().Sub(start).Milliseconds()
			} else {
				status = StatusError
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok = r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec.Status = status
	if status == StatusOnline {
		rec.LatencyMs = latency
		rec.LastSeen = r.now()
	}
	r.save()
	return rec.clone(), nil
}

// Filter narrows Find results. Zero-value fields are no-ops; set fields
// compose conjunctively.
type Filter struct {
	Capability string
	Status     string
	OnlineOnly bool
}

// Find returns records matching the filter, sorted by name.
func (r *Registry) Find(f Filter) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []*Record
	for _, rec := range r.agents {
		if f.Capability != "" && !contains(rec.Capabilities, f.Capability) {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.OnlineOnly && rec.Status != StatusOnline {
			continue
		}
		results = append(results, rec.clone())
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// List returns all records sorted by name.
func (r *Registry) List() []*Record {
	return r.Find(Filter{})
}

// Get returns the record for name, or nil if unknown.
func (r *Registry) Get(name string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return nil
	}
	return rec.clone()
}

// Remove deletes an agent. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return
	}
	delete(r.agents, name)
	r.save()
	log.Printf("[Registry] Removed: %s", name)
}

// Clear drops every record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*Record)
	r.save()
	log.Printf("[Registry] Cleared all agents")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
