package agent

import (
	"errors"
	"fmt"
)

// DefaultAgentName 是启动时创建、不可删除的 Agent 名称。
const DefaultAgentName = "default"

// ErrorPrefix 是模型调用失败时呈现给用户的文本前缀。
const ErrorPrefix = "Error generating response: "

var (
	// ErrAgentNotFound 表示按名称找不到 Agent。
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentExists 表示同名 Agent 已存在。
	ErrAgentExists = errors.New("agent already exists")
	// ErrDefaultAgentProtected 表示试图删除默认 Agent。
	ErrDefaultAgentProtected = errors.New("cannot delete the default agent")
	// ErrRegistryNotReady 表示注册表尚未完成初始化。
	ErrRegistryNotReady = errors.New("agent registry not initialized")
	// ErrInvalidArgument 表示调用参数不合法，请求不会发给模型。
	ErrInvalidArgument = errors.New("invalid argument")
)

// ProviderError 表示一次模型调用失败。失败不会修改对话记录。
type ProviderError struct {
	Agent string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("agent %q: provider call failed: %v", e.Agent, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RenderReply 把发送结果转换为展示给用户的文本。
// 模型调用失败渲染为带 ErrorPrefix 的文本；其他错误原样返回。
func RenderReply(reply string, err error) (string, error) {
	if err == nil {
		return reply, nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return ErrorPrefix + perr.Err.Error(), nil
	}
	return "", err
}
