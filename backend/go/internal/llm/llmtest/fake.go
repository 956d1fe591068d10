// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"gemini_agent_api/backend/go/internal/llm"
	"gemini_agent_api/backend/go/internal/models"
)

// Responder produces the reply for one prompt.
type Responder func(ctx context.Context, cfg models.AgentConfig, prompt string) (string, error)

// Echo replies with "echo: " followed by the prompt.
func Echo(_ context.Context, _ models.AgentConfig, prompt string) (string, error) {
	return "echo: " + prompt, nil
}

// Provider is an in-memory llm.Provider. The zero value is not usable; call New.
type Provider struct {
	mu            sync.Mutex
	respond       Responder
	newSessionErr error
	blockSessions bool
	sessions      []*Session
	closed        bool
}

// New returns a provider that answers every prompt with respond (Echo when nil).
func New(respond Responder) *Provider {
	if respond == nil {
		respond = Echo
	}
	return &Provider{respond: respond}
}

// SetResponder replaces the responder for subsequent sends.
func (p *Provider) SetResponder(respond Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = respond
}

// FailNewSession makes NewSession return err until called again with nil.
func (p *Provider) FailNewSession(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newSessionErr = err
}

// BlockNewSession makes NewSession wait until its context is done.
func (p *Provider) BlockNewSession(block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockSessions = block
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) NewSession(ctx context.Context, cfg models.AgentConfig) (llm.Session, error) {
	p.mu.Lock()
	block := p.blockSessions
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.newSessionErr != nil {
		return nil, p.newSessionErr
	}
	s := &Session{provider: p, Config: cfg}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Sessions returns every session created so far, oldest first.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Prompts returns every prompt sent through any session, in send order per session.
func (p *Provider) Prompts() []string {
	var out []string
	for _, s := range p.Sessions() {
		out = append(out, s.Prompts()...)
	}
	return out
}

func (p *Provider) responder() Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.respond
}

// Session records prompts and its closed state.
type Session struct {
	provider *Provider
	Config   models.AgentConfig

	mu      sync.Mutex
	prompts []string
	closed  bool
}

func (s *Session) SendMessage(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", llm.ErrSessionClosed
	}
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.provider.responder()(ctx, s.Config, prompt)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Prompts returns the prompts received by this session.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Closed reports whether the session was closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ llm.Provider = (*Provider)(nil)
