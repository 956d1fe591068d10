package llm

import (
	"context"
	"errors"
	"fmt"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"

	"github.com/sony/gobreaker/v2"
)

// 熔断器默认参数。
const (
	defaultCBMaxFailures uint32 = 5
)

// ErrCircuitOpen 表示熔断器处于打开状态，调用被快速拒绝。
var ErrCircuitOpen = errors.New("llm circuit open")

// CircuitBreakerProvider 为一个 Provider 的所有会话共享同一个熔断器。
// 连续失败达到阈值后熔断打开，后续调用直接失败，不再请求上游。
type CircuitBreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[string]
}

// WithCircuitBreaker 用熔断器包装 inner。配置中缺省的值使用默认参数。
func WithCircuitBreaker(inner Provider, cfg config.CircuitBreakerConfig, log *logger.Logger) (*CircuitBreakerProvider, error) {
	maxFailures := cfg.FailureThreshold
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout, err := config.ParseDuration(cfg.Timeout, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout: %w", err)
	}
	interval, err := config.ParseDuration(cfg.Interval, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker interval: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // 半开状态只放行一个探测请求
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithPayload(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
		// 调用方取消不算上游故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &CircuitBreakerProvider{inner: inner, breaker: cb}, nil
}

// Name 返回被包装的提供方名称。
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// NewSession 创建会话，会话的每次发送都经过熔断器。
func (p *CircuitBreakerProvider) NewSession(ctx context.Context, cfg models.AgentConfig) (Session, error) {
	s, err := p.inner.NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &breakerSession{inner: s, provider: p}, nil
}

// Close 关闭被包装的提供方。
func (p *CircuitBreakerProvider) Close() error { return p.inner.Close() }

// State 返回当前熔断器状态。
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

type breakerSession struct {
	inner    Session
	provider *CircuitBreakerProvider
}

func (s *breakerSession) SendMessage(ctx context.Context, prompt string) (string, error) {
	reply, err := s.provider.breaker.Execute(func() (string, error) {
		return s.inner.SendMessage(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: provider %q: %v", ErrCircuitOpen, s.provider.Name(), err)
	}
	return reply, err
}

func (s *breakerSession) Close() error { return s.inner.Close() }

var (
	_ Provider = (*CircuitBreakerProvider)(nil)
	_ Provider = (*Gemini)(nil)
	_ Provider = (*OpenAI)(nil)
	_ Provider = (*Ollama)(nil)
)
