package agent

import (
	"sync"

	"gemini_agent_api/backend/go/internal/models"
)

// ConversationLog 是单个 Agent 的有序对话记录，只由其所属 Agent 修改。
// 读取不会等待正在进行的模型调用。
type ConversationLog struct {
	mu       sync.RWMutex
	turns    []models.ConversationTurn
	maxTurns int // 0 表示不限制
}

// NewConversationLog 创建对话记录。maxTurns > 0 时超出部分按整对从最早的开始淘汰。
func NewConversationLog(maxTurns int) *ConversationLog {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &ConversationLog{maxTurns: maxTurns}
}

// Append 在末尾追加一条记录。
func (l *ConversationLog) Append(turn models.ConversationTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
	l.evict()
}

// AppendExchange 以一个原子单元追加一问一答。
func (l *ConversationLog) AppendExchange(user, assistant models.ConversationTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, user, assistant)
	l.evict()
}

// evict 需在持有写锁时调用。
func (l *ConversationLog) evict() {
	if l.maxTurns == 0 || len(l.turns) <= l.maxTurns {
		return
	}
	drop := len(l.turns) - l.maxTurns
	if drop%2 == 1 {
		drop++
	}
	if drop > len(l.turns) {
		drop = len(l.turns)
	}
	l.turns = append([]models.ConversationTurn(nil), l.turns[drop:]...)
}

// Snapshot 返回当前记录的副本。
func (l *ConversationLog) Snapshot() []models.ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ConversationTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Clear 清空记录。
func (l *ConversationLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}

// Len 返回记录条数。
func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}
