package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini_agent_api/backend/go/internal/agent"
	"gemini_agent_api/backend/go/internal/agent_api/api"
	"gemini_agent_api/backend/go/internal/agent_api/service"
	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/database/redis"
	"gemini_agent_api/backend/go/internal/events"
	"gemini_agent_api/backend/go/internal/llm"
	"gemini_agent_api/backend/go/internal/models"
	httpserver "gemini_agent_api/backend/go/pkg/http"
	"gemini_agent_api/backend/go/pkg/logger"
	"gemini_agent_api/backend/go/pkg/ratelimiter"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

// configEnv 是指定配置文件路径的环境变量。
const configEnv = "AGENT_API_CONFIG"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "agent_api",
		Short:         "Gemini Agent API 服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("config") {
				if v := os.Getenv(configEnv); v != "" {
					configPath = v
				}
			}
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径 (也可通过 "+configEnv+" 指定)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logFile, err := logger.Init(logger.ParseLevel(cfg.Logger.Level), cfg.Logger.File)
	appLogger := logger.New("agent_api", "", "")
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "log_file"}).Warn("logging to stdout only")
	}
	defer logFile.Close()
	appLogger.Info("Logger initialized")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Model provider (+ circuit breaker)
	var provider llm.Provider
	provider, err = llm.NewProvider(ctx, cfg.LLM, llm.DefaultToolbox(cfg.LLM.Tools))
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	defer provider.Close()
	if cfg.Middleware.CircuitBreaker.Enabled {
		provider, err = llm.WithCircuitBreaker(provider, cfg.Middleware.CircuitBreaker, appLogger)
		if err != nil {
			return fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		appLogger.Info("Circuit breaker enabled for provider " + provider.Name())
	}

	// Agent registry; failure to build the default agent is fatal.
	timeout, err := config.ParseDuration(cfg.LLM.Timeout, 0)
	if err != nil {
		return fmt.Errorf("invalid llm.timeout: %w", err)
	}
	shutdownTimeout, err := config.ParseDuration(cfg.Server.ShutdownTimeout, 15*time.Second)
	if err != nil {
		return fmt.Errorf("invalid server.shutdownTimeout: %w", err)
	}
	registry := agent.NewRegistry(provider, defaultAgentConfig(cfg.LLM),
		agent.WithAgentOptions(agent.Options{Timeout: timeout, MaxHistoryTurns: cfg.LLM.MaxHistoryTurns}),
		agent.WithLogger(logger.New("agent-registry", "", "")),
	)
	if err := registry.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize agent system: %w", err)
	}
	defer registry.Close()
	appLogger.Info("Agent system initialized")

	// Background events
	publisher := events.New(ctx, cfg.Databases.Kafka, logger.New("agent-events", "", ""))
	defer publisher.Close()

	// Rate limiting
	var limiter ratelimiter.RateLimiter
	if cfg.Middleware.RateLimiter.Enabled {
		var rdb *goredis.Client
		if cfg.Middleware.RateLimiter.Algorithm == "redisFixedWindow" {
			rdb, err = redis.NewClient(ctx, cfg.Databases.Redis)
			if err != nil {
				return fmt.Errorf("failed to connect rate limiter store: %w", err)
			}
			defer rdb.Close()
		}
		limiter, err = httpserver.NewRateLimiter(cfg.Middleware.RateLimiter, rdb)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		appLogger.Info("Rate limiter enabled with algorithm: " + cfg.Middleware.RateLimiter.Algorithm)
	}

	// Initialize dependencies (Service -> Handler -> Router)
	agentService := service.NewService(registry, publisher, logger.New("agent-service", "", ""))
	defer agentService.Close()
	handler := api.NewHandler(agentService, cfg.App, appLogger)
	router, err := api.SetupRouter(handler, cfg, limiter, logger.New("http", "", ""))
	if err != nil {
		return err
	}

	server, err := httpserver.NewServer(cfg.Server, router)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down Gemini Agent API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// defaultAgentConfig 把配置中的默认模型参数转换为 Agent 配置。
func defaultAgentConfig(cfg config.LLMConfig) models.AgentConfig {
	ac := models.AgentConfig{
		ModelName:   cfg.Defaults.Model,
		Temperature: cfg.Defaults.Temperature,
		TopP:        cfg.Defaults.TopP,
		TopK:        cfg.Defaults.TopK,
		APIKey:      cfg.APIKey(),
	}
	if cfg.Defaults.MaxTokens > 0 {
		maxTokens := cfg.Defaults.MaxTokens
		ac.MaxTokens = &maxTokens
	}
	return ac
}
