package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaSession_SendMessage(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		n := len(requests)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		reply := map[string]any{
			"model":   "llama3",
			"message": map[string]any{"role": "assistant", "content": map[int]string{1: "first", 2: "second"}[n]},
			"done":    true,
		}
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer ts.Close()

	p, err := NewOllama(ts.URL)
	require.NoError(t, err)
	cfg := testAgentConfig()
	cfg.ModelName = "llama3"
	s, err := p.NewSession(context.Background(), cfg)
	require.NoError(t, err)

	reply, err := s.SendMessage(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)

	reply, err = s.SendMessage(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "second", reply)

	require.Len(t, requests, 2)
	assert.Equal(t, "llama3", requests[0]["model"])
	opts := requests[0]["options"].(map[string]any)
	assert.InDelta(t, 0.3, opts["temperature"], 1e-9)
	assert.EqualValues(t, 256, opts["num_predict"])
	assert.Len(t, requests[1]["messages"], 3)
}

func TestOllamaSession_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'missing' not found"}`))
	}))
	defer ts.Close()

	p, err := NewOllama(ts.URL)
	require.NoError(t, err)
	s, err := p.NewSession(context.Background(), testAgentConfig())
	require.NoError(t, err)

	_, err = s.SendMessage(context.Background(), "hi")
	assert.ErrorContains(t, err, "not found")
}

func TestNewOllama_InvalidURL(t *testing.T) {
	_, err := NewOllama("://bad")
	assert.Error(t, err)
}
