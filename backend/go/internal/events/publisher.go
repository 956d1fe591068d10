package events

import (
	"context"
	"time"

	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"

	"github.com/google/uuid"
)

// Publisher 发布 Agent 事件。实现必须可并发调用，且 Publish 不应阻塞在网络上。
type Publisher interface {
	Publish(ctx context.Context, event models.AgentEvent) error
	Close() error
}

// NewEvent 填好事件 ID 和时间戳。
func NewEvent(agentName, operation string, status models.AgentEventStatus) models.AgentEvent {
	return models.AgentEvent{
		EventID:   uuid.NewString(),
		AgentName: agentName,
		Operation: operation,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// LogPublisher 把事件写入结构化日志，在没有配置 Kafka 时使用。
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher 创建一个新的 LogPublisher 实例。
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event models.AgentEvent) error {
	l := p.log.WithTrace(event.RequestID).WithPayload(map[string]interface{}{
		"event_id":        event.EventID,
		"agent_name":      event.AgentName,
		"operation":       event.Operation,
		"status":          event.Status,
		"message_length":  event.MessageLength,
		"response_length": event.ResponseLength,
	})
	if event.Error != "" {
		l = l.WithError(models.ErrorInfo{Message: event.Error, Type: string(event.Status)})
	}
	l.Debug("agent event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
