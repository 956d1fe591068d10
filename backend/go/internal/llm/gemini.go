package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/internal/tools"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 Provider 接口的结构体，用于与 Gemini API 交互。
// 同一个 API 密钥的所有会话共享一个 genai.Client。
type Gemini struct {
	apiKey       string
	toolbox      *tools.Toolbox
	declarations []*genai.FunctionDeclaration
	clientOpts   []option.ClientOption

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini 创建一个新的 Gemini 提供方。
//
// 参数:
//
//	ctx: 上下文，保留给需要预先建立连接的场景。
//	apiKey: 默认的 Gemini API 密钥，Agent 配置中的密钥优先。
//	toolbox: 声明给模型的工具，可以为 nil。
//	opts: 附加的客户端选项，例如 option.WithEndpoint。
func NewGemini(_ context.Context, apiKey string, toolbox *tools.Toolbox, opts ...option.ClientOption) (*Gemini, error) {
	declarations, err := ConvertMCPToolsToGemini(toolbox.Definitions())
	if err != nil {
		return nil, err
	}
	return &Gemini{
		apiKey:       apiKey,
		toolbox:      toolbox,
		declarations: declarations,
		clientOpts:   opts,
		clients:      make(map[string]*genai.Client),
	}, nil
}

// Name 返回提供方名称。
func (g *Gemini) Name() string { return "gemini" }

// NewSession 按 Agent 的采样参数创建一个新的聊天会话。
func (g *Gemini) NewSession(ctx context.Context, cfg models.AgentConfig) (Session, error) {
	client, err := g.client(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(float32(cfg.Temperature))
	model.SetTopP(float32(cfg.TopP))
	model.SetTopK(int32(cfg.TopK))
	if cfg.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*cfg.MaxTokens))
	}
	if len(g.declarations) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: g.declarations}}
	}

	return &geminiSession{chat: model.StartChat(), toolbox: g.toolbox}, nil
}

// client 返回指定密钥对应的客户端，不存在时创建。
func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		apiKey = g.apiKey
	}
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.clientOpts...)
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Close 关闭所有底层客户端。
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for key, c := range g.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(g.clients, key)
	}
	return errors.Join(errs...)
}

type geminiSession struct {
	chat    *genai.ChatSession
	toolbox *tools.Toolbox
	closed  atomic.Bool
}

// SendMessage 发送一条消息。模型请求函数调用时在本地执行工具并回传结果，直到模型给出文本回复。
// genai 在请求前就把消息写入 History，失败时需要截回发送前的长度。
func (s *geminiSession) SendMessage(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}

	n := len(s.chat.History)
	reply, err := s.send(ctx, prompt)
	if err != nil {
		s.chat.History = s.chat.History[:n]
		return "", err
	}
	return reply, nil
}

func (s *geminiSession) send(ctx context.Context, prompt string) (string, error) {
	resp, err := s.chat.SendMessage(ctx, genai.Text(prompt))
	for round := 0; ; round++ {
		if err != nil {
			return "", err
		}
		calls := geminiFunctionCalls(resp)
		if len(calls) == 0 {
			return geminiResponseText(resp)
		}
		if round >= maxToolRounds {
			return "", ErrTooManyToolRounds
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			out, callErr := s.toolbox.Call(ctx, call.Name, call.Args)
			response := map[string]any{"result": out}
			if callErr != nil {
				response = map[string]any{"error": callErr.Error()}
			}
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: response})
		}
		resp, err = s.chat.SendMessage(ctx, parts...)
	}
}

func (s *geminiSession) Close() error {
	s.closed.Store(true)
	return nil
}

// geminiFunctionCalls 取出第一个候选回复中的函数调用。
func geminiFunctionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, p := range resp.Candidates[0].Content.Parts {
		switch v := p.(type) {
		case genai.FunctionCall:
			calls = append(calls, v)
		case *genai.FunctionCall:
			calls = append(calls, *v)
		}
	}
	return calls
}

// geminiResponseText 拼接第一个候选回复中的所有文本部分。
func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
