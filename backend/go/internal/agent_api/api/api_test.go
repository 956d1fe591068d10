package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gemini_agent_api/backend/go/internal/agent"
	"gemini_agent_api/backend/go/internal/agent_api/service"
	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/events"
	"gemini_agent_api/backend/go/internal/llm/llmtest"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"
	"gemini_agent_api/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	provider *llmtest.Provider
	registry *agent.Registry
}

func quietLogger() *logger.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logger.FromEntry(logrus.NewEntry(l))
}

func newTestEnv(t *testing.T, mutate func(*config.AppConfig), limiter ratelimiter.RateLimiter) *testEnv {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	log := quietLogger()

	p := llmtest.New(nil)
	registry := agent.NewRegistry(p, models.AgentConfig{
		ModelName:   cfg.LLM.Defaults.Model,
		Temperature: cfg.LLM.Defaults.Temperature,
		TopP:        cfg.LLM.Defaults.TopP,
		TopK:        cfg.LLM.Defaults.TopK,
	}, agent.WithLogger(log))
	require.NoError(t, registry.Init(context.Background()))

	svc := service.NewService(registry, events.NewLogPublisher(log), log)
	t.Cleanup(func() {
		svc.Close()
		_ = registry.Close()
	})

	router, err := SetupRouter(NewHandler(svc, cfg.App, log), cfg, limiter, log)
	require.NoError(t, err)
	return &testEnv{router: router, provider: p, registry: registry}
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	banner := decode[map[string]string](t, w)
	assert.Equal(t, "Gemini Agent API", banner["message"])
	assert.Equal(t, "1.0.0", banner["version"])
	assert.Equal(t, "/health", banner["health"])

	w = env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.AgentsActive)
	assert.NotEmpty(t, health.Timestamp)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealth_NotReady(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	require.NoError(t, env.registry.Close())

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "Agent system not initialized", body.Error)

	w = env.do(http.MethodPost, "/message", gin.H{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodPost, "/message", gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[MessageResponse](t, w)
	assert.Equal(t, "echo: hello", resp.Response)
	assert.Equal(t, agent.DefaultAgentName, resp.AgentName)
	assert.NotEmpty(t, resp.Timestamp)

	w = env.do(http.MethodGet, "/agents/default/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[HistoryResponse](t, w)
	assert.Equal(t, 2, history.MessageCount)
	assert.Equal(t, models.SpeakerUser, history.History[0].Role)
	assert.Equal(t, "hello", history.History[0].Content)
	assert.Equal(t, models.SpeakerAssistant, history.History[1].Role)
}

func TestSendMessage_ProviderErrorIsText(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.provider.SetResponder(func(context.Context, models.AgentConfig, string) (string, error) {
		return "", errors.New("upstream unavailable")
	})

	w := env.do(http.MethodPost, "/message", gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[MessageResponse](t, w)
	assert.Equal(t, "Error generating response: upstream unavailable", resp.Response)

	w = env.do(http.MethodGet, "/agents/default/history", nil)
	assert.Equal(t, 0, decode[HistoryResponse](t, w).MessageCount)
}

func TestValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	long := string(bytes.Repeat([]byte("a"), 5001))

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"empty message", "/message", gin.H{"message": ""}},
		{"missing message", "/message", gin.H{}},
		{"summary too short", "/summarize", gin.H{"text": "abc", "max_length": 5}},
		{"summary too long", "/summarize", gin.H{"text": "abc", "max_length": 1001}},
		{"sentiment too long", "/sentiment", gin.H{"text": long}},
		{"empty question", "/question", gin.H{"question": ""}},
		{"agent name too long", "/agents", gin.H{"name": string(bytes.Repeat([]byte("n"), 51))}},
		{"temperature out of range", "/agents", gin.H{"name": "hot", "temperature": 1.5}},
		{"malformed json", "/message", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[models.ErrorResponse](t, w)
			assert.Equal(t, "Invalid request", body.Error)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestNLPEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodPost, "/summarize", gin.H{"text": "long text"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "no more than 200 words")

	w = env.do(http.MethodPost, "/summarize", gin.H{"text": "long text", "max_length": 50})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "no more than 50 words")

	w = env.do(http.MethodPost, "/sentiment", gin.H{"text": "I love it"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "I love it")

	w = env.do(http.MethodPost, "/question", gin.H{"question": "Why?", "context": "Because."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "Context: Because.")

	w = env.do(http.MethodPost, "/entities", gin.H{"text": "Ada in London"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "json format")

	w = env.do(http.MethodPost, "/structured", gin.H{"prompt": "colors", "format": "yaml"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "yaml format")

	w = env.do(http.MethodPost, "/message/context", gin.H{"message": "hi", "context": []gin.H{{"key": "user", "value": "Ada"}}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[MessageResponse](t, w).Response, "user: Ada")
}

func TestUnknownAgentIs404(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	cases := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/message", gin.H{"message": "hi", "agent_name": "ghost"}},
		{http.MethodPost, "/summarize", gin.H{"text": "hi", "agent_name": "ghost"}},
		{http.MethodPost, "/sentiment", gin.H{"text": "hi", "agent_name": "ghost"}},
		{http.MethodPost, "/question", gin.H{"question": "hi", "agent_name": "ghost"}},
		{http.MethodGet, "/agents/ghost", nil},
		{http.MethodGet, "/agents/ghost/history", nil},
		{http.MethodPost, "/agents/ghost/clear-history", nil},
		{http.MethodDelete, "/agents/ghost", nil},
	}
	for _, tc := range cases {
		w := env.do(tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "Agent 'ghost' not found", decode[models.ErrorResponse](t, w).Error)
	}
}

func TestAgentManagement(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(http.MethodPost, "/agents", gin.H{"name": "analyst", "temperature": 0.3})
	require.Equal(t, http.StatusCreated, w.Code)
	info := decode[models.AgentInfo](t, w)
	assert.Equal(t, "analyst", info.Name)
	assert.Equal(t, 0.3, info.Temperature)
	assert.Equal(t, config.DefaultModel, info.ModelName)
	assert.False(t, info.CreatedAt.IsZero())

	w = env.do(http.MethodPost, "/agents", gin.H{"name": "analyst"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Agent 'analyst' already exists", decode[models.ErrorResponse](t, w).Error)

	w = env.do(http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"analyst", "default"}, decode[[]string](t, w))

	w = env.do(http.MethodPost, "/message", gin.H{"message": "Q3 numbers", "agent_name": "analyst"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analyst", decode[MessageResponse](t, w).AgentName)

	w = env.do(http.MethodGet, "/agents/analyst", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.AgentInfo](t, w).Messages)

	w = env.do(http.MethodPost, "/agents/analyst/clear-history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "History cleared for agent 'analyst'", decode[map[string]string](t, w)["message"])

	w = env.do(http.MethodGet, "/agents/analyst/history", nil)
	assert.Equal(t, 0, decode[HistoryResponse](t, w).MessageCount)

	w = env.do(http.MethodDelete, "/agents/default", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Cannot delete the default agent", decode[models.ErrorResponse](t, w).Error)

	w = env.do(http.MethodDelete, "/agents/analyst", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.do(http.MethodDelete, "/agents/analyst", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAgent_SessionFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.provider.FailNewSession(errors.New("bad key"))

	w := env.do(http.MethodPost, "/agents", gin.H{"name": "broken"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Error, "Error creating agent")

	w = env.do(http.MethodGet, "/agents", nil)
	assert.Equal(t, []string{"default"}, decode[[]string](t, w))
}

func TestAPIPrefix(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.AppConfig) { cfg.Server.APIPrefix = "/api/v1" }, nil)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/health", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/health", nil).Code)
}

func TestSetupRouter_InvalidCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Server.CORS.AllowOrigins = []string{"frontend.local"}
	log := quietLogger()
	registry := agent.NewRegistry(llmtest.New(nil), models.AgentConfig{ModelName: "m"}, agent.WithLogger(log))
	svc := service.NewService(registry, events.NewLogPublisher(log), log)
	defer svc.Close()

	_, err := SetupRouter(NewHandler(svc, cfg.App, log), cfg, nil, log)
	assert.ErrorContains(t, err, "invalid CORS config")
}

func TestRateLimited(t *testing.T) {
	env := newTestEnv(t, nil, ratelimiter.NewFixedWindowCounter(2, time.Minute))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/health", nil).Code)
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	env := newTestEnv(t, func(cfg *config.AppConfig) {
		cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k-123"}, JwtSecret: secret}
	}, nil)
	body := gin.H{"message": "hi"}

	// 健康检查无需认证
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil).Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/message", body).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/message", body, APIKeyHeader, "wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/message", body, APIKeyHeader, "k-123").Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "cli-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/message", body, "Authorization", "Bearer "+signed).Code)

	forged, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/message", body, "Authorization", "Bearer "+forged).Code)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "cli-user",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err = expired.SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/message", body, "Authorization", "Bearer "+signed).Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/message", body, "Authorization", "Basic abc").Code)
}
