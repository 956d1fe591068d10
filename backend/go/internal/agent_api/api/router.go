package api

import (
	"fmt"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/pkg/httpmiddleware"
	"gemini_agent_api/backend/go/pkg/logger"
	"gemini_agent_api/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。limiter 为 nil 时不限流。
func SetupRouter(h *Handler, cfg *config.AppConfig, limiter ratelimiter.RateLimiter, log *logger.Logger) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	corsMiddleware, err := httpmiddleware.CORS(cfg.Server.CORS)
	if err != nil {
		return nil, err
	}
	r.Use(gin.Recovery(), httpmiddleware.RequestID(), httpmiddleware.RequestLogger(log), corsMiddleware)
	if limiter != nil {
		r.Use(httpmiddleware.RateLimit(limiter, log))
	}

	base := r.Group(cfg.Server.APIPrefix)
	{
		// 横幅与健康检查不需要认证
		base.GET("/", h.Root)
		base.GET("/health", h.Health)

		protected := base.Group("")
		if cfg.Auth.Enabled {
			protected.Use(AuthMiddleware(cfg.Auth))
		}

		protected.POST("/message", h.SendMessage)
		protected.POST("/message/context", h.SendMessageWithContext)
		protected.POST("/summarize", h.Summarize)
		protected.POST("/sentiment", h.AnalyzeSentiment)
		protected.POST("/question", h.AnswerQuestion)
		protected.POST("/entities", h.ExtractEntities)
		protected.POST("/structured", h.GenerateStructured)

		agents := protected.Group("/agents")
		{
			agents.POST("", h.CreateAgent)
			agents.GET("", h.ListAgents)
			agents.GET("/:name", h.GetAgent)
			agents.DELETE("/:name", h.DeleteAgent)
			agents.POST("/:name/clear-history", h.ClearHistory)
			agents.GET("/:name/history", h.GetHistory)
		}
	}

	return r, nil
}
