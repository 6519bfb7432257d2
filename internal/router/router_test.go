package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhound420/acp-agents-skill/internal/acp"
	"github.com/zhound420/acp-agents-skill/internal/registry"
)

func TestCallUnknownAgent(t *testing.T) {
	rt := New(Config{})

	resp := rt.Call(context.Background(), "ghost", "x", nil)
	assert.Equal(t, acp.StatusError, resp.Status)
	assert.Equal(t, acp.TransportNone, resp.Transport)
	assert.Contains(t, resp.Content, "ghost")
}

func TestCallLocal(t *testing.T) {
	rt := New(Config{})
	rt.RegisterLocal("echo", func(ctx context.Context, content string) (string, error) {
		return "ECHO: " + content, nil
	}, nil)

	resp := rt.Call(context.Background(), "echo", "hi", nil)
	assert.Equal(t, acp.StatusCompleted, resp.Status)
	assert.Equal(t, acp.TransportLocal, resp.Transport)
	assert.Equal(t, "ECHO: hi", resp.Content)
	assert.GreaterOrEqual(t, resp.ElapsedMs, int64(0))
}

func TestCallLocalHandlerError(t *testing.T) {
	rt := New(Config{})
	rt.RegisterLocal("broken", func(ctx context.Context, content string) (string, error) {
		return "", errors.New("handler exploded")
	}, nil)

	resp := rt.Call(context.Background(), "broken", "x", nil)
	assert.Equal(t, acp.StatusError, resp.Status)
	assert.Equal(t, acp.TransportLocal, resp.Transport)
	assert.Contains(t, resp.Content, "handler exploded")
	assert.GreaterOrEqual(t, resp.ElapsedMs, int64(0))
}

func TestCallLocalHandlerPanic(t *testing.T) {
	rt := New(Config{})
	rt.RegisterLocal("panicky", func(ctx context.Context, content string) (string, error) {
		panic("boom")
	}, nil)

	resp := rt.Call(context.Background(), "panicky", "x", nil)
	assert.Equal(t, acp.StatusError, resp.Status)
	assert.Equal(t, acp.TransportLocal, resp.Transport)
	assert.Contains(t, resp.Content, "boom")
}

func TestCallHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/runs", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req acp.RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kimi", req.AgentName, "last path segment of the registered name")
		assert.Equal(t, acp.ModeSync, req.Mode)
		require.Len(t, req.Input, 1)
		assert.Equal(t, "do the thing", req.Input[0].Text())

		json.NewEncoder(w).Encode(acp.RunResponse{
			Status: acp.StatusCompleted,
			Output: []acp.Message{
				{Parts: []acp.MessagePart{{Content: "part one "}, {Content: "part two"}}},
				acp.TextMessage(" and three"),
			},
		})
	}))
	defer srv.Close()

	rt := New(Config{})
	rt.RegisterHTTP("remote/kimi", srv.URL, nil)

	resp := rt.Call(context.Background(), "remote/kimi", "do the thing", nil)
	assert.Equal(t, acp.StatusCompleted, resp.Status)
	assert.Equal(t, acp.TransportHTTP, resp.Transport)
	assert.Equal(t, "part one part two and three", resp.Content)
	assert.GreaterOrEqual(t, resp.ElapsedMs, int64(0))
}

func TestCallHTTPTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	rt := New(Config{})
	rt.RegisterHTTP("down", srv.URL, nil)

	resp := rt.Call(context.Background(), "down", "x", nil)
	assert.Equal(t, acp.StatusError, resp.Status)
	assert.Equal(t, acp.TransportHTTP, resp.Transport)
	assert.NotEmpty(t, resp.Content)
}

func TestCallHTTPMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely-not-json"))
	}))
	defer srv.Close()

	rt := New(Config{})
	rt.RegisterHTTP("weird", srv.URL, nil)

	resp := rt.Call(context.Background(), "weird", "x", nil)
	assert.Equal(t, acp.StatusError, resp.Status)
	assert.Equal(t, acp.TransportHTTP, resp.Transport)
}

func TestCloseIsIdempotentAndReusable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(acp.RunResponse{
			Status: acp.StatusCompleted,
			Output: []acp.Message{acp.TextMessage("ok")},
		})
	}))
	defer srv.Close()

	rt := New(Config{})
	rt.RegisterHTTP("kimi", srv.URL, nil)

	resp := rt.Call(context.Background(), "kimi", "first", nil)
	assert.Equal(t, acp.StatusCompleted, resp.Status)

	rt.Close()
	rt.Close()

	// Calling after close re-creates the client rather than failing.
	resp = rt.Call(context.Background(), "kimi", "second", nil)
	assert.Equal(t, acp.StatusCompleted, resp.Status)
}

func TestRegisterOverwritesBinding(t *testing.T) {
	rt := New(Config{})
	rt.RegisterHTTP("agent", "http://nowhere.invalid", nil)
	rt.RegisterLocal("agent", func(ctx context.Context, content string) (string, error) {
		return "local wins", nil
	}, nil)

	resp := rt.Call(context.Background(), "agent", "x", nil)
	assert.Equal(t, acp.TransportLocal, resp.Transport)
	assert.Equal(t, "local wins", resp.Content)
}

func TestImportRegistry(t *testing.T) {
	reg := registry.New(filepath.Join(t.TempDir(), "agents.json"))
	reg.Register("ready", "http://localhost:8000", []string{"chat"}, "", "", nil)
	reg.Register("also-ready", "http://localhost:8001", nil, "llama3:8b", "", nil)

	rt := New(Config{})
	count := rt.ImportRegistry(reg)

	assert.Equal(t, 2, count)
	assert.True(t, rt.Has("ready"))
	assert.True(t, rt.Has("also-ready"))
}

func TestOnResultCallback(t *testing.T) {
	var seen []*acp.Response
	rt := New(Config{OnResult: func(r *acp.Response) { seen = append(seen, r) }})
	rt.RegisterLocal("echo", func(ctx context.Context, content string) (string, error) {
		return content, nil
	}, nil)

	rt.Call(context.Background(), "echo", "hi", nil)
	rt.Call(context.Background(), "ghost", "hi", nil)

	require.Len(t, seen, 2)
	assert.Equal(t, acp.StatusCompleted, seen[0].Status)
	assert.Equal(t, acp.TransportNone, seen[1].Transport)
}
