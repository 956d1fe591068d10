package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig 表示 Agent 配置不合法（参数超出范围或缺少必填项）。
var ErrInvalidConfig = errors.New("invalid agent config")

// AgentConfig 是一个 Agent 在创建后不可变的模型连接配置。
type AgentConfig struct {
	ModelName   string  `json:"model_name"`           // 使用的模型名称
	Temperature float64 `json:"temperature"`          // 采样温度，范围 [0, 1]
	TopP        float64 `json:"top_p"`                // Top-p 采样参数，范围 [0, 1]
	TopK        int     `json:"top_k"`                // Top-k 采样参数，>= 0
	MaxTokens   *int    `json:"max_tokens,omitempty"` // 可选。最大输出 token 数
	APIKey      string  `json:"-"`                    // 模型提供方的密钥，永不序列化
}

// Validate 检查配置是否在合法范围内。超出范围的值直接报错，不做截断。
func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidConfig)
	}
	if !inUnitRange(c.Temperature) {
		return fmt.Errorf("%w: temperature %v out of range [0, 1]", ErrInvalidConfig, c.Temperature)
	}
	if !inUnitRange(c.TopP) {
		return fmt.Errorf("%w: top_p %v out of range [0, 1]", ErrInvalidConfig, c.TopP)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top_k %d must not be negative", ErrInvalidConfig, c.TopK)
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens %d must be positive", ErrInvalidConfig, *c.MaxTokens)
	}
	return nil
}

// inUnitRange 判断 v 是否在 [0, 1] 内，NaN 不在范围内。
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// AgentInfo 描述一个已注册的 Agent，用于对外展示。
type AgentInfo struct {
	Name        string    `json:"name"`
	ModelName   string    `json:"model_name"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	TopK        int       `json:"top_k"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Messages    int       `json:"message_count"`
}
