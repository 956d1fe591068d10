package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"gemini_agent_api/backend/go/internal/agent"
	"gemini_agent_api/backend/go/internal/llm/llmtest"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AgentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.AgentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []models.AgentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AgentEvent(nil), p.events...)
}

func quietLogger() *logger.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logger.FromEntry(logrus.NewEntry(l))
}

func newTestService(t *testing.T, p *llmtest.Provider) (*Service, *recordingPublisher) {
	t.Helper()
	registry := agent.NewRegistry(p, models.AgentConfig{ModelName: "test-model", Temperature: 0.7, TopP: 0.9, TopK: 40},
		agent.WithLogger(quietLogger()))
	require.NoError(t, registry.Init(context.Background()))
	t.Cleanup(func() { _ = registry.Close() })

	pub := &recordingPublisher{}
	return NewService(registry, pub, quietLogger()), pub
}

func TestService_SendMessage(t *testing.T) {
	svc, pub := newTestService(t, llmtest.New(nil))
	ctx := WithRequestID(context.Background(), "req-1")

	reply, err := svc.SendMessage(ctx, agent.DefaultAgentName, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)

	history, err := svc.History(agent.DefaultAgentName)
	require.NoError(t, err)
	assert.Equal(t, []models.ConversationTurn{models.UserTurn("hello"), models.AssistantTurn("echo: hello")}, history)

	svc.Close()
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCompleted, events[0].Status)
	assert.Equal(t, "message", events[0].Operation)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, 5, events[0].MessageLength)
	assert.Equal(t, len("echo: hello"), events[0].ResponseLength)
}

func TestService_ProviderErrorRendersAsText(t *testing.T) {
	p := llmtest.New(func(context.Context, models.AgentConfig, string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	svc, pub := newTestService(t, p)

	reply, err := svc.SendMessage(context.Background(), agent.DefaultAgentName, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Error generating response: quota exceeded", reply)

	history, err := svc.History(agent.DefaultAgentName)
	require.NoError(t, err)
	assert.Empty(t, history)

	svc.Close()
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventProviderError, events[0].Status)
	assert.Equal(t, "quota exceeded", events[0].Error)
}

func TestService_UnknownAgent(t *testing.T) {
	svc, _ := newTestService(t, llmtest.New(nil))

	_, err := svc.Summarize(context.Background(), "ghost", "text", 100)
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)
	_, err = svc.History("ghost")
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)
	assert.ErrorIs(t, svc.ClearHistory(context.Background(), "ghost"), agent.ErrAgentNotFound)
	assert.ErrorIs(t, svc.RemoveAgent(context.Background(), "ghost"), agent.ErrAgentNotFound)
}

func TestService_SummarizeInvalidLength(t *testing.T) {
	svc, pub := newTestService(t, llmtest.New(nil))

	_, err := svc.Summarize(context.Background(), agent.DefaultAgentName, "text", 0)
	assert.ErrorIs(t, err, agent.ErrInvalidArgument)

	svc.Close()
	assert.Empty(t, pub.Events())
}

func TestService_NotReady(t *testing.T) {
	registry := agent.NewRegistry(llmtest.New(nil), models.AgentConfig{ModelName: "m"}, agent.WithLogger(quietLogger()))
	svc := NewService(registry, nil, quietLogger())

	assert.False(t, svc.Ready())
	_, err := svc.SendMessage(context.Background(), agent.DefaultAgentName, "hi", "")
	assert.ErrorIs(t, err, agent.ErrRegistryNotReady)
	_, err = svc.ListAgents()
	assert.ErrorIs(t, err, agent.ErrRegistryNotReady)
	_, err = svc.CreateAgent(context.Background(), "x", agent.AgentOptions{})
	assert.ErrorIs(t, err, agent.ErrRegistryNotReady)
}

func TestService_AgentLifecycle(t *testing.T) {
	svc, pub := newTestService(t, llmtest.New(nil))
	ctx := context.Background()
	temp := 0.3

	info, err := svc.CreateAgent(ctx, "analyst", agent.AgentOptions{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "analyst", info.Name)
	assert.Equal(t, 0.3, info.Temperature)
	assert.Equal(t, "test-model", info.ModelName)

	_, err = svc.CreateAgent(ctx, "analyst", agent.AgentOptions{})
	assert.ErrorIs(t, err, agent.ErrAgentExists)

	names, err := svc.ListAgents()
	require.NoError(t, err)
	assert.Equal(t, []string{"analyst", agent.DefaultAgentName}, names)

	_, err = svc.AnalyzeSentiment(ctx, "analyst", "great day")
	require.NoError(t, err)
	require.NoError(t, svc.ClearHistory(ctx, "analyst"))
	history, err := svc.History("analyst")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, svc.RemoveAgent(ctx, agent.DefaultAgentName), agent.ErrDefaultAgentProtected)
	require.NoError(t, svc.RemoveAgent(ctx, "analyst"))
	assert.Equal(t, 1, svc.ActiveAgents())

	svc.Close()
	var statuses []models.AgentEventStatus
	for _, e := range pub.Events() {
		statuses = append(statuses, e.Status)
	}
	assert.ElementsMatch(t, []models.AgentEventStatus{
		models.EventAgentCreated, models.EventCompleted, models.EventHistoryClear, models.EventAgentRemoved,
	}, statuses)
}

func TestService_ClearHistoryProviderFailure(t *testing.T) {
	p := llmtest.New(nil)
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, agent.DefaultAgentName, "keep me", "")
	require.NoError(t, err)

	p.FailNewSession(errors.New("provider down"))
	err = svc.ClearHistory(ctx, agent.DefaultAgentName)
	var perr *agent.ProviderError
	assert.ErrorAs(t, err, &perr)

	history, err := svc.History(agent.DefaultAgentName)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestService_Operations(t *testing.T) {
	svc, _ := newTestService(t, llmtest.New(nil))
	ctx := context.Background()
	name := agent.DefaultAgentName

	reply, err := svc.AnswerQuestion(ctx, name, "What is Go?", "Go is a language.")
	require.NoError(t, err)
	assert.Contains(t, reply, "Go is a language.")

	reply, err = svc.ExtractEntities(ctx, name, "Ada lives in London")
	require.NoError(t, err)
	assert.Contains(t, reply, "Ada lives in London")

	reply, err = svc.GenerateStructured(ctx, name, "list colors", "yaml")
	require.NoError(t, err)
	assert.Contains(t, reply, "yaml")

	reply, err = svc.SendMessageWithContext(ctx, name, "hi", []agent.ContextEntry{{Key: "user", Value: "Ada"}})
	require.NoError(t, err)
	assert.Contains(t, reply, "user: Ada")

	info, err := svc.AgentInfo(name)
	require.NoError(t, err)
	assert.Equal(t, 8, info.Messages)
}
