package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"gemini_agent_api/backend/go/internal/models"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于本地 Ollama 服务的 Provider。不声明工具。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
}

// NewOllama 创建一个新的 Ollama 提供方。
// baseURL 为空时默认为 "http://localhost:11434"。
func NewOllama(baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &Ollama{client: olla.NewClient(parsedURL, hc)}, nil
}

// Name 返回提供方名称。
func (o *Ollama) Name() string { return "ollama" }

// NewSession 创建一个新的会话，采样参数通过 Options 传给 Ollama。
func (o *Ollama) NewSession(_ context.Context, cfg models.AgentConfig) (Session, error) {
	options := map[string]any{
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"top_k":       cfg.TopK,
	}
	if cfg.MaxTokens != nil {
		options["num_predict"] = *cfg.MaxTokens
	}
	return &ollamaSession{client: o.client, model: cfg.ModelName, options: options}, nil
}

// Close 无需释放资源。
func (o *Ollama) Close() error { return nil }

type ollamaSession struct {
	client   *olla.Client
	model    string
	options  map[string]any
	messages []olla.Message
	closed   atomic.Bool
}

// SendMessage 以非流式方式调用 /api/chat。
func (s *ollamaSession) SendMessage(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}

	messages := append(s.messages[:len(s.messages):len(s.messages)], olla.Message{Role: "user", Content: prompt})
	stream := false
	var sb strings.Builder
	err := s.client.Chat(ctx, &olla.ChatRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   &stream,
		Options:  s.options,
	}, func(resp olla.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to chat with ollama: %w", err)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}

	reply := sb.String()
	s.messages = append(messages, olla.Message{Role: "assistant", Content: reply})
	return reply, nil
}

func (s *ollamaSession) Close() error {
	s.closed.Store(true)
	return nil
}
