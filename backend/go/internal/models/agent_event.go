package models

import "time"

// AgentEventStatus 定义了 Agent 事件的状态枚举。
type AgentEventStatus string

const (
	EventCompleted     AgentEventStatus = "COMPLETED"
	EventProviderError AgentEventStatus = "PROVIDER_ERROR"
	EventAgentCreated  AgentEventStatus = "AGENT_CREATED"
	EventAgentRemoved  AgentEventStatus = "AGENT_REMOVED"
	EventHistoryClear  AgentEventStatus = "HISTORY_CLEARED"
)

// AgentEvent 是在一次操作结束后异步发布的事件。
// 发布是 fire-and-forget 的，与已返回给调用方的响应没有先后关系。
type AgentEvent struct {
	EventID        string           `json:"event_id"`
	RequestID      string           `json:"request_id,omitempty"`
	AgentName      string           `json:"agent_name"`
	Operation      string           `json:"operation"` // 例如 "message", "summarize"
	Status         AgentEventStatus `json:"status"`
	Timestamp      time.Time        `json:"timestamp"`
	MessageLength  int              `json:"message_length,omitempty"`
	ResponseLength int              `json:"response_length,omitempty"`
	Error          string           `json:"error,omitempty"`
}
