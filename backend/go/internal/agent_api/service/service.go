package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"gemini_agent_api/backend/go/internal/agent"
	"gemini_agent_api/backend/go/internal/events"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"
)

// publishTimeout 是后台发布单个事件的超时。
const publishTimeout = 5 * time.Second

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入 ctx，随后的日志和事件都会带上它。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Service 封装了 Agent API 的业务逻辑：解析 Agent、调用操作、渲染结果、发布事件。
type Service struct {
	registry  *agent.Registry
	publisher events.Publisher
	log       *logger.Logger

	inflight sync.WaitGroup
}

// NewService 创建一个新的 Service 实例。
func NewService(registry *agent.Registry, publisher events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("agent-api", "", "")
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}
	return &Service{registry: registry, publisher: publisher, log: log}
}

// Ready 报告注册表是否已完成初始化。
func (s *Service) Ready() bool {
	return s.registry.Ready()
}

// ActiveAgents 返回当前注册的 Agent 数量。
func (s *Service) ActiveAgents() int {
	return s.registry.Len()
}

// Agent 按名称解析 Agent。
func (s *Service) Agent(name string) (*agent.Agent, error) {
	if !s.registry.Ready() {
		return nil, agent.ErrRegistryNotReady
	}
	a, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrAgentNotFound, name)
	}
	return a, nil
}

// SendMessage 向指定 Agent 发送一条消息。
func (s *Service) SendMessage(ctx context.Context, agentName, message, systemPrompt string) (string, error) {
	reply, err := s.run(ctx, agentName, "message", message, func(a *agent.Agent) (string, error) {
		return a.SendMessage(ctx, message, systemPrompt)
	})
	if err == nil {
		// 与原服务保持一致的处理日志
		s.log.WithTrace(requestID(ctx)).Info(fmt.Sprintf("Message processed - Agent: %s, Message length: %d, Response length: %d",
			agentName, utf8.RuneCountInString(message), utf8.RuneCountInString(reply)))
	}
	return reply, err
}

// SendMessageWithContext 发送一条附带键值上下文的消息。
func (s *Service) SendMessageWithContext(ctx context.Context, agentName, message string, entries []agent.ContextEntry) (string, error) {
	return s.run(ctx, agentName, "message_context", message, func(a *agent.Agent) (string, error) {
		return a.SendMessageWithContext(ctx, message, entries)
	})
}

// Summarize 让指定 Agent 对文本做摘要。
func (s *Service) Summarize(ctx context.Context, agentName, text string, maxLength int) (string, error) {
	return s.run(ctx, agentName, "summarize", text, func(a *agent.Agent) (string, error) {
		return a.Summarize(ctx, text, maxLength)
	})
}

// AnalyzeSentiment 让指定 Agent 分析文本情感。
func (s *Service) AnalyzeSentiment(ctx context.Context, agentName, text string) (string, error) {
	return s.run(ctx, agentName, "sentiment", text, func(a *agent.Agent) (string, error) {
		return a.AnalyzeSentiment(ctx, text)
	})
}

// AnswerQuestion 让指定 Agent 回答问题，contextText 可为空。
func (s *Service) AnswerQuestion(ctx context.Context, agentName, question, contextText string) (string, error) {
	return s.run(ctx, agentName, "question", question, func(a *agent.Agent) (string, error) {
		return a.AnswerQuestion(ctx, question, contextText)
	})
}

// ExtractEntities 让指定 Agent 以 JSON 形式抽取实体。
func (s *Service) ExtractEntities(ctx context.Context, agentName, text string) (string, error) {
	return s.run(ctx, agentName, "entities", text, func(a *agent.Agent) (string, error) {
		return a.ExtractEntities(ctx, text)
	})
}

// GenerateStructured 让指定 Agent 以给定格式生成结构化结果。
func (s *Service) GenerateStructured(ctx context.Context, agentName, prompt, format string) (string, error) {
	return s.run(ctx, agentName, "structured", prompt, func(a *agent.Agent) (string, error) {
		return a.GenerateStructuredResponse(ctx, prompt, format)
	})
}

// run 解析 Agent 并执行一次模型调用。模型调用失败被渲染为带前缀的文本，不作为错误返回。
func (s *Service) run(ctx context.Context, agentName, operation, input string, call func(*agent.Agent) (string, error)) (string, error) {
	a, err := s.Agent(agentName)
	if err != nil {
		return "", err
	}

	reply, err := call(a)
	if errors.Is(err, agent.ErrAgentClosed) {
		// 调用期间 Agent 被删除
		return "", fmt.Errorf("%w: %s", agent.ErrAgentNotFound, agentName)
	}

	event := events.NewEvent(agentName, operation, models.EventCompleted)
	event.RequestID = requestID(ctx)
	event.MessageLength = utf8.RuneCountInString(input)

	var perr *agent.ProviderError
	if errors.As(err, &perr) {
		event.Status = models.EventProviderError
		event.Error = perr.Err.Error()
		s.log.WithTrace(event.RequestID).WithField("agent_name", agentName).
			WithError(models.ErrorInfo{Message: perr.Err.Error(), Type: "provider_error"}).
			Error("Error generating response")
	}

	text, err := agent.RenderReply(reply, err)
	if err != nil {
		return "", err
	}
	event.ResponseLength = utf8.RuneCountInString(text)
	s.publish(event)
	return text, nil
}

// CreateAgent 创建一个新的 Agent。
func (s *Service) CreateAgent(ctx context.Context, name string, opts agent.AgentOptions) (models.AgentInfo, error) {
	if !s.registry.Ready() {
		return models.AgentInfo{}, agent.ErrRegistryNotReady
	}
	a, err := s.registry.Create(ctx, name, opts)
	if err != nil {
		return models.AgentInfo{}, err
	}
	s.log.WithTrace(requestID(ctx)).Info("Created new agent: " + name)
	s.publishStatus(ctx, name, "create_agent", models.EventAgentCreated)
	return a.Info(), nil
}

// ListAgents 返回所有 Agent 名称。
func (s *Service) ListAgents() ([]string, error) {
	if !s.registry.Ready() {
		return nil, agent.ErrRegistryNotReady
	}
	return s.registry.List(), nil
}

// AgentInfo 返回指定 Agent 的信息。
func (s *Service) AgentInfo(name string) (models.AgentInfo, error) {
	a, err := s.Agent(name)
	if err != nil {
		return models.AgentInfo{}, err
	}
	return a.Info(), nil
}

// RemoveAgent 删除指定 Agent。默认 Agent 返回 ErrDefaultAgentProtected。
func (s *Service) RemoveAgent(ctx context.Context, name string) error {
	if !s.registry.Ready() {
		return agent.ErrRegistryNotReady
	}
	removed, err := s.registry.Remove(name)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", agent.ErrAgentNotFound, name)
	}
	s.log.WithTrace(requestID(ctx)).Info("Deleted agent: " + name)
	s.publishStatus(ctx, name, "delete_agent", models.EventAgentRemoved)
	return nil
}

// ClearHistory 清空指定 Agent 的对话记录并重建模型会话。
func (s *Service) ClearHistory(ctx context.Context, name string) error {
	a, err := s.Agent(name)
	if err != nil {
		return err
	}
	if err := a.ClearHistory(ctx); err != nil {
		if errors.Is(err, agent.ErrAgentClosed) {
			return fmt.Errorf("%w: %s", agent.ErrAgentNotFound, name)
		}
		return err
	}
	s.log.WithTrace(requestID(ctx)).Info("Cleared history for agent: " + name)
	s.publishStatus(ctx, name, "clear_history", models.EventHistoryClear)
	return nil
}

// History 返回指定 Agent 的对话记录快照。
func (s *Service) History(name string) ([]models.ConversationTurn, error) {
	a, err := s.Agent(name)
	if err != nil {
		return nil, err
	}
	return a.History(), nil
}

// Close 等待仍在进行的事件发布完成。
func (s *Service) Close() {
	s.inflight.Wait()
}

func (s *Service) publishStatus(ctx context.Context, name, operation string, status models.AgentEventStatus) {
	event := events.NewEvent(name, operation, status)
	event.RequestID = requestID(ctx)
	s.publish(event)
}

// publish 在后台发布事件，不影响已经返回给调用方的响应。
func (s *Service) publish(event models.AgentEvent) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.WithTrace(event.RequestID).WithField("event_id", event.EventID).
				WithError(models.ErrorInfo{Message: err.Error(), Type: "event_publish"}).
				Warn("failed to publish agent event")
		}
	}()
}
