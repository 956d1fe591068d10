package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ErrToolNotFound 表示模型请求了一个未注册的工具。
var ErrToolNotFound = errors.New("tool not found")

// Tool 把一个 MCP 工具定义和它的本地处理函数绑定在一起。
type Tool struct {
	Definition mcp.Tool
	Handler    server.ToolHandlerFunc
}

// Toolbox 是模型可调用的工具集合，创建后只读，可并发使用。
type Toolbox struct {
	tools map[string]Tool
	order []string
}

// NewToolbox 创建工具集合。同名工具以后注册的为准。
func NewToolbox(tools ...Tool) *Toolbox {
	b := &Toolbox{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Definition.Name
		if _, exists := b.tools[name]; !exists {
			b.order = append(b.order, name)
		}
		b.tools[name] = t
	}
	return b
}

// Len 返回工具数量，nil 的 Toolbox 视为空。
func (b *Toolbox) Len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}

// Definitions 按注册顺序返回所有工具定义。
func (b *Toolbox) Definitions() []*mcp.Tool {
	if b == nil {
		return nil
	}
	defs := make([]*mcp.Tool, 0, len(b.order))
	for _, name := range b.order {
		def := b.tools[name].Definition
		defs = append(defs, &def)
	}
	return defs
}

// Call 执行指定工具并返回文本结果。
// 工具自身报告的错误（IsError）以 error 返回，调用方可以把它原样反馈给模型。
func (b *Toolbox) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	t, ok := b.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := t.Handler(ctx, req)
	if err != nil {
		return "", err
	}
	text := resultText(result)
	if result != nil && result.IsError {
		return "", errors.New(text)
	}
	return text, nil
}

// resultText 拼接结果中的所有文本内容。
func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}
