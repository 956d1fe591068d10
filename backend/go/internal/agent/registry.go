package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gemini_agent_api/backend/go/internal/llm"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"
)

// AgentOptions 是创建 Agent 时对默认配置的覆盖，nil 或空值表示沿用默认值。
type AgentOptions struct {
	ModelName   string
	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int
	APIKey      string
}

func (o AgentOptions) apply(cfg models.AgentConfig) models.AgentConfig {
	if o.ModelName != "" {
		cfg.ModelName = o.ModelName
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		cfg.TopP = *o.TopP
	}
	if o.TopK != nil {
		cfg.TopK = *o.TopK
	}
	if o.MaxTokens != nil {
		cfg.MaxTokens = o.MaxTokens
	}
	if o.APIKey != "" {
		cfg.APIKey = o.APIKey
	}
	return cfg
}

// Registry 在内存中按名称存储和管理 Agent 实例。
// 读写锁只保护名称到 Agent 的映射，模型调用永远不在锁内进行。
type Registry struct {
	provider llm.Provider
	defaults models.AgentConfig
	opts     Options
	log      *logger.Logger

	mutex  sync.RWMutex
	agents map[string]*Agent
	ready  atomic.Bool
}

// RegistryOption 配置 Registry。
type RegistryOption func(*Registry)

// WithAgentOptions 设置所有 Agent 共享的运行参数。
func WithAgentOptions(opts Options) RegistryOption {
	return func(r *Registry) { r.opts = opts }
}

// WithLogger 设置注册表使用的日志记录器。
func WithLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry 创建一个新的注册表实例。调用 Init 之后才会创建默认 Agent。
func NewRegistry(provider llm.Provider, defaults models.AgentConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		provider: provider,
		defaults: defaults,
		agents:   make(map[string]*Agent),
		log:      logger.New("agent-registry", "", ""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init 创建默认 Agent 并把注册表标记为就绪。失败应视为启动失败。
func (r *Registry) Init(ctx context.Context) error {
	if _, err := r.Create(ctx, DefaultAgentName, AgentOptions{}); err != nil && !errors.Is(err, ErrAgentExists) {
		return fmt.Errorf("failed to create default agent: %w", err)
	}
	r.ready.Store(true)
	r.log.WithField("agent_name", DefaultAgentName).Info("agent registry initialized")
	return nil
}

// Ready 报告 Init 是否已成功完成。
func (r *Registry) Ready() bool { return r.ready.Load() }

// Create 以默认配置加上 opts 的覆盖创建 Agent，并以 name 注册。
// 同名 Agent 已存在时返回 ErrAgentExists，注册表保持不变。
func (r *Registry) Create(ctx context.Context, name string, opts AgentOptions) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: agent name is empty", models.ErrInvalidConfig)
	}
	if _, ok := r.Get(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, name)
	}

	// 会话在锁外创建，插入时再次检查名称
	a, err := New(ctx, name, r.provider, opts.apply(r.defaults), r.opts)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	if _, exists := r.agents[name]; exists {
		r.mutex.Unlock()
		_ = a.Close()
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	r.agents[name] = a
	r.mutex.Unlock()

	r.log.WithPayload(map[string]interface{}{
		"agent_name":  name,
		"model_name":  a.cfg.ModelName,
		"temperature": a.cfg.Temperature,
	}).Info("agent created")
	return a, nil
}

// Get 根据名称检索一个 Agent。
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// List 返回所有 Agent 名称，按字典序排列。
func (r *Registry) List() []string {
	r.mutex.RLock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mutex.RUnlock()
	sort.Strings(names)
	return names
}

// Len 返回已注册 Agent 的数量。
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.agents)
}

// Remove 移除并关闭指定 Agent。不存在时返回 false；默认 Agent 不可删除。
func (r *Registry) Remove(name string) (bool, error) {
	if name == DefaultAgentName {
		return false, ErrDefaultAgentProtected
	}

	r.mutex.Lock()
	a, ok := r.agents[name]
	if ok {
		delete(r.agents, name)
	}
	r.mutex.Unlock()
	if !ok {
		return false, nil
	}

	if err := a.Close(); err != nil {
		r.log.WithField("agent_name", name).WithError(models.ErrorInfo{Message: err.Error(), Type: "session_close"}).Warn("failed to close agent session")
	}
	r.log.WithField("agent_name", name).Info("agent removed")
	return true, nil
}

// Close 关闭所有 Agent 的会话。之后注册表不再就绪。
func (r *Registry) Close() error {
	r.ready.Store(false)

	r.mutex.Lock()
	agents := r.agents
	r.agents = make(map[string]*Agent)
	r.mutex.Unlock()

	var errs []error
	for _, a := range agents {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
