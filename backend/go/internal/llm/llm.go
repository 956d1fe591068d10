package llm

import (
	"context"
	"errors"
	"fmt"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/internal/tools"
)

// maxToolRounds 限制一次发送中模型连续请求工具调用的轮数。
const maxToolRounds = 5

var (
	// ErrSessionClosed 表示在已关闭的会话上发送消息。
	ErrSessionClosed = errors.New("llm session closed")
	// ErrEmptyResponse 表示模型没有返回任何文本。
	ErrEmptyResponse = errors.New("llm returned an empty response")
	// ErrTooManyToolRounds 表示模型的工具调用超过了 maxToolRounds 轮。
	ErrTooManyToolRounds = errors.New("llm exceeded the tool call limit")
)

// Provider 是大模型提供方。它按 Agent 配置创建会话，会话之间互不共享上下文。
type Provider interface {
	Name() string
	NewSession(ctx context.Context, cfg models.AgentConfig) (Session, error)
	Close() error
}

// Session 是一条与模型的对话连接，内部持有提供方侧累积的上下文。
// 清空历史即丢弃旧会话、创建新会话。
type Session interface {
	SendMessage(ctx context.Context, prompt string) (string, error)
	Close() error
}

// NewProvider 是一个工厂函数，根据配置创建对应的 Provider。
// toolbox 中的工具会声明给支持函数调用的提供方。
func NewProvider(ctx context.Context, cfg config.LLMConfig, toolbox *tools.Toolbox) (Provider, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(ctx, cfg.Gemini.APIKey, toolbox)
	case "openai":
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, toolbox)
	case "ollama":
		return NewOllama(cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// DefaultToolbox 根据配置组装模型可用的工具。
func DefaultToolbox(cfg config.ToolsConfig) *tools.Toolbox {
	var enabled []tools.Tool
	if cfg.Calculator {
		enabled = append(enabled, tools.Calculator())
	}
	return tools.NewToolbox(enabled...)
}
