package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/internal/tools"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI 兼容接口的 Provider。
type OpenAI struct {
	apiKey  string
	baseURL string
	toolbox *tools.Toolbox
	tools   []openai.Tool // 为该提供方配置的工具列表
}

// NewOpenAI 创建一个新的 OpenAI 提供方。baseURL 为空时使用官方地址。
func NewOpenAI(apiKey, baseURL string, toolbox *tools.Toolbox) (*OpenAI, error) {
	converted, err := ConvertMCPToolsToOpenAI(toolbox.Definitions())
	if err != nil {
		return nil, err
	}
	return &OpenAI{apiKey: apiKey, baseURL: baseURL, toolbox: toolbox, tools: converted}, nil
}

// Name 返回提供方名称。
func (o *OpenAI) Name() string { return "openai" }

// NewSession 创建一个新的会话，会话自行保存消息列表。
func (o *OpenAI) NewSession(_ context.Context, cfg models.AgentConfig) (Session, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = o.apiKey
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		clientCfg.BaseURL = o.baseURL
	}
	return &openAISession{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		toolbox: o.toolbox,
		tools:   o.tools,
	}, nil
}

// Close 无需释放资源。
func (o *OpenAI) Close() error { return nil }

type openAISession struct {
	client   *openai.Client
	cfg      models.AgentConfig
	toolbox  *tools.Toolbox
	tools    []openai.Tool
	messages []openai.ChatCompletionMessage
	closed   atomic.Bool
}

// SendMessage 使用 Chat Completions 接口发送一条消息，并处理模型发起的工具调用。
// 失败时会话的消息列表回到发送前的状态。
func (s *openAISession) SendMessage(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}

	messages := append(s.messages[:len(s.messages):len(s.messages)], openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	for round := 0; ; round++ {
		resp, err := s.client.CreateChatCompletion(ctx, s.request(messages))
		if err != nil {
			return "", fmt.Errorf("failed to create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)
		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				return "", ErrEmptyResponse
			}
			s.messages = messages
			return msg.Content, nil
		}
		if round >= maxToolRounds {
			return "", ErrTooManyToolRounds
		}

		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    s.callTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}
}

func (s *openAISession) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	temperature := float32(s.cfg.Temperature)
	req := openai.ChatCompletionRequest{
		Model:       s.cfg.ModelName,
		Messages:    messages,
		Temperature: &temperature,
		TopP:        float32(s.cfg.TopP),
	}
	if s.cfg.MaxTokens != nil {
		req.MaxTokens = *s.cfg.MaxTokens
	}
	if len(s.tools) > 0 {
		req.Tools = s.tools
	}
	return req
}

// callTool 执行一次工具调用，错误以文本形式反馈给模型。
func (s *openAISession) callTool(ctx context.Context, call openai.ToolCall) string {
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments: %v", err)
		}
	}
	out, err := s.toolbox.Call(ctx, call.Function.Name, args)
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

func (s *openAISession) Close() error {
	s.closed.Store(true)
	return nil
}
