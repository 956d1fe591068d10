package models

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser      SpeakerRole = "user"      // 用户角色。
	SpeakerAssistant SpeakerRole = "assistant" // 助手角色。
)

// ConversationTurn 是对话记录中的一轮发言，追加后不再修改。
type ConversationTurn struct {
	Role    SpeakerRole `json:"role"`
	Content string      `json:"content"`
}

// UserTurn 构造一条用户发言。
func UserTurn(content string) ConversationTurn {
	return ConversationTurn{Role: SpeakerUser, Content: content}
}

// AssistantTurn 构造一条助手回复。
func AssistantTurn(content string) ConversationTurn {
	return ConversationTurn{Role: SpeakerAssistant, Content: content}
}
