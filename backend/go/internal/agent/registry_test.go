package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gemini_agent_api/backend/go/internal/llm/llmtest"
	"gemini_agent_api/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, p *llmtest.Provider) *Registry {
	t.Helper()
	r := NewRegistry(p, testConfig())
	require.NoError(t, r.Init(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_InitCreatesDefault(t *testing.T) {
	r := NewRegistry(llmtest.New(nil), testConfig())
	assert.False(t, r.Ready())
	_, ok := r.Get(DefaultAgentName)
	assert.False(t, ok)

	require.NoError(t, r.Init(context.Background()))
	assert.True(t, r.Ready())
	assert.Equal(t, []string{DefaultAgentName}, r.List())

	// 重复初始化不报错
	require.NoError(t, r.Init(context.Background()))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InitFailure(t *testing.T) {
	p := llmtest.New(nil)
	p.FailNewSession(errors.New("missing credential"))
	r := NewRegistry(p, testConfig())

	err := r.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing credential")
	assert.False(t, r.Ready())
}

func TestRegistry_CreateAndList(t *testing.T) {
	for _, order := range [][]string{{"alpha", "beta"}, {"beta", "alpha"}} {
		r := newTestRegistry(t, llmtest.New(nil))
		for _, name := range order {
			_, err := r.Create(context.Background(), name, AgentOptions{})
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"alpha", "beta", DefaultAgentName}, r.List())
	}
}

func TestRegistry_CreateDuplicateConflicts(t *testing.T) {
	p := llmtest.New(nil)
	r := newTestRegistry(t, p)

	first, err := r.Create(context.Background(), "x", AgentOptions{})
	require.NoError(t, err)
	_, err = r.Create(context.Background(), "x", AgentOptions{})
	assert.ErrorIs(t, err, ErrAgentExists)

	got, ok := r.Get("x")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentCreateSameName(t *testing.T) {
	p := llmtest.New(nil)
	r := newTestRegistry(t, p)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create(context.Background(), "racer", AgentOptions{})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrAgentExists):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 19, conflicts.Load())
	assert.Equal(t, []string{DefaultAgentName, "racer"}, r.List())

	// 落败者申请到的会话都已关闭
	open := 0
	for _, s := range p.Sessions() {
		if !s.Closed() {
			open++
		}
	}
	assert.Equal(t, 2, open)
}

func TestRegistry_CreateAppliesOverrides(t *testing.T) {
	r := newTestRegistry(t, llmtest.New(nil))
	temp := 0.3
	maxTokens := 100

	a, err := r.Create(context.Background(), "analyst", AgentOptions{
		ModelName:   "gemini-1.5-pro",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	cfg := a.Config()
	assert.Equal(t, "gemini-1.5-pro", cfg.ModelName)
	assert.Equal(t, 0.3, cfg.Temperature)
	assert.Equal(t, 0.9, cfg.TopP)
	assert.Equal(t, 40, cfg.TopK)
	assert.Equal(t, 100, *cfg.MaxTokens)
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestRegistry_CreateInvalid(t *testing.T) {
	r := newTestRegistry(t, llmtest.New(nil))
	hot := 1.2

	_, err := r.Create(context.Background(), "hot", AgentOptions{Temperature: &hot})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	_, err = r.Create(context.Background(), "  ", AgentOptions{})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	_, ok := r.Get("hot")
	assert.False(t, ok)
}

func TestRegistry_RemoveDefaultIsProtected(t *testing.T) {
	r := newTestRegistry(t, llmtest.New(nil))
	_, err := r.Create(context.Background(), "other", AgentOptions{})
	require.NoError(t, err)
	_, err = r.Remove("other")
	require.NoError(t, err)

	removed, err := r.Remove(DefaultAgentName)
	assert.ErrorIs(t, err, ErrDefaultAgentProtected)
	assert.False(t, removed)
	_, ok := r.Get(DefaultAgentName)
	assert.True(t, ok)

	// 即使尚未初始化也同样拒绝
	empty := NewRegistry(llmtest.New(nil), testConfig())
	_, err = empty.Remove(DefaultAgentName)
	assert.ErrorIs(t, err, ErrDefaultAgentProtected)
}

func TestRegistry_Remove(t *testing.T) {
	p := llmtest.New(nil)
	r := newTestRegistry(t, p)
	a, err := r.Create(context.Background(), "temp", AgentOptions{})
	require.NoError(t, err)

	removed, err := r.Remove("temp")
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok := r.Get("temp")
	assert.False(t, ok)

	_, err = a.SendMessage(context.Background(), "hi", "")
	assert.ErrorIs(t, err, ErrAgentClosed)

	removed, err = r.Remove("temp")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := newTestRegistry(t, llmtest.New(nil))
	a, ok := r.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, a)
}

func TestRegistry_SlowProviderDoesNotBlockRegistry(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := llmtest.New(func(_ context.Context, _ models.AgentConfig, prompt string) (string, error) {
		if prompt == "slow" {
			started <- struct{}{}
			<-release
		}
		return "ok", nil
	})
	r := newTestRegistry(t, p)
	def, _ := r.Get(DefaultAgentName)

	go func() { _, _ = def.SendMessage(context.Background(), "slow", "") }()
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		other, err := r.Create(context.Background(), "other", AgentOptions{})
		if !assert.NoError(t, err) {
			return
		}
		_, err = other.SendMessage(context.Background(), "fast", "")
		assert.NoError(t, err)
		_ = r.List()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry operations blocked by a slow provider call")
	}
	close(release)
}

func TestRegistry_AnalystScenario(t *testing.T) {
	p := llmtest.New(func(_ context.Context, cfg models.AgentConfig, _ string) (string, error) {
		return fmt.Sprintf("summary at t=%.1f", cfg.Temperature), nil
	})
	r := newTestRegistry(t, p)
	temp := 0.3

	a, err := r.Create(context.Background(), "analyst", AgentOptions{Temperature: &temp})
	require.NoError(t, err)

	reply, err := a.Summarize(context.Background(), "The quick brown fox jumps over the lazy dog.", 50)
	require.NoError(t, err)
	assert.Equal(t, "summary at t=0.3", reply)
	assert.Len(t, a.History(), 2)
}

func TestRegistry_Close(t *testing.T) {
	p := llmtest.New(nil)
	r := NewRegistry(p, testConfig(), WithAgentOptions(Options{Timeout: time.Second}))
	require.NoError(t, r.Init(context.Background()))
	_, err := r.Create(context.Background(), "a", AgentOptions{})
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.False(t, r.Ready())
	assert.Equal(t, 0, r.Len())
	for _, s := range p.Sessions() {
		assert.True(t, s.Closed())
	}
}
