package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gemini_agent_api/backend/go/internal/llm"
	"gemini_agent_api/backend/go/internal/models"
)

// ErrAgentClosed 表示 Agent 已从注册表移除并释放了会话。
var ErrAgentClosed = errors.New("agent closed")

// Options 是所有 Agent 共享的运行参数。
type Options struct {
	Timeout         time.Duration // 单次模型调用超时，0 表示不限制
	MaxHistoryTurns int           // 对话记录上限，0 表示不限制
}

// Agent 包装一条模型会话和它的对话记录。
// 同一个 Agent 上的发送与清空历史互斥执行；不同 Agent 之间互不影响。
type Agent struct {
	name      string
	cfg       models.AgentConfig
	createdAt time.Time
	provider  llm.Provider
	timeout   time.Duration
	log       *ConversationLog

	mu      sync.Mutex // 保护 session，并串行化发送与清空
	session llm.Session
	closed  bool
}

// New 校验配置并创建一个 Agent，同时向提供方申请会话。
func New(ctx context.Context, name string, provider llm.Provider, cfg models.AgentConfig, opts Options) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	session, err := provider.NewSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("agent %q: create session: %w", name, err)
	}
	return &Agent{
		name:      name,
		cfg:       cfg,
		createdAt: time.Now().UTC(),
		provider:  provider,
		timeout:   opts.Timeout,
		log:       NewConversationLog(opts.MaxHistoryTurns),
		session:   session,
	}, nil
}

// Name 返回 Agent 在注册表中的名称。
func (a *Agent) Name() string { return a.name }

// Config 返回 Agent 的配置。
func (a *Agent) Config() models.AgentConfig { return a.cfg }

// CreatedAt 返回创建时间。
func (a *Agent) CreatedAt() time.Time { return a.createdAt }

// SendMessage 发送一条消息并返回模型回复。
// 成功时用户消息和回复作为一对追加到对话记录；失败返回 *ProviderError，记录不变。
func (a *Agent) SendMessage(ctx context.Context, message, systemPrompt string) (string, error) {
	prompt := message
	if systemPrompt != "" {
		prompt = systemPromptTemplate(systemPrompt, message)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", &ProviderError{Agent: a.name, Err: ErrAgentClosed}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	reply, err := a.session.SendMessage(ctx, prompt)
	if err != nil {
		return "", &ProviderError{Agent: a.name, Err: err}
	}

	a.log.AppendExchange(models.UserTurn(message), models.AssistantTurn(reply))
	return reply, nil
}

// SendMessageWithContext 把上下文逐行渲染在消息之前发送。
func (a *Agent) SendMessageWithContext(ctx context.Context, message string, entries []ContextEntry) (string, error) {
	return a.SendMessage(ctx, contextTemplate(message, entries), "")
}

// Summarize 生成不超过 maxWords 个词的摘要。maxWords 至少为 1。
func (a *Agent) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if maxWords < 1 {
		return "", fmt.Errorf("%w: max words %d must be at least 1", ErrInvalidArgument, maxWords)
	}
	return a.SendMessage(ctx, summarizeTemplate(text, maxWords), "")
}

// AnalyzeSentiment 分析文本的情感倾向。
func (a *Agent) AnalyzeSentiment(ctx context.Context, text string) (string, error) {
	return a.SendMessage(ctx, sentimentTemplate(text), "")
}

// AnswerQuestion 回答问题，contextText 非空时基于它作答。
func (a *Agent) AnswerQuestion(ctx context.Context, question, contextText string) (string, error) {
	return a.SendMessage(ctx, questionTemplate(question, contextText), "")
}

// ExtractEntities 以 JSON 形式提取命名实体。
func (a *Agent) ExtractEntities(ctx context.Context, text string) (string, error) {
	return a.GenerateStructuredResponse(ctx, entitiesTemplate(text), "json")
}

// GenerateStructuredResponse 要求模型按指定格式回复。
func (a *Agent) GenerateStructuredResponse(ctx context.Context, prompt, format string) (string, error) {
	return a.SendMessage(ctx, structuredTemplate(prompt, format), "")
}

// ClearHistory 丢弃当前会话并申请新会话，然后清空对话记录。
// 申请新会话失败时什么都不改变。
func (a *Agent) ClearHistory(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAgentClosed
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	session, err := a.provider.NewSession(ctx, a.cfg)
	if err != nil {
		return &ProviderError{Agent: a.name, Err: err}
	}
	old := a.session
	a.session = session
	a.log.Clear()
	_ = old.Close()
	return nil
}

// History 返回对话记录的快照。
func (a *Agent) History() []models.ConversationTurn {
	return a.log.Snapshot()
}

// Info 返回对外展示的 Agent 信息。
func (a *Agent) Info() models.AgentInfo {
	return models.AgentInfo{
		Name:        a.name,
		ModelName:   a.cfg.ModelName,
		Temperature: a.cfg.Temperature,
		TopP:        a.cfg.TopP,
		TopK:        a.cfg.TopK,
		MaxTokens:   a.cfg.MaxTokens,
		CreatedAt:   a.createdAt,
		Messages:    a.log.Len(),
	}
}

// Close 释放会话。会等待正在进行的发送完成。
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.session.Close()
}
