package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值与原有服务保持一致。
const (
	DefaultAppName     = "Gemini Agent API"
	DefaultAppVersion  = "1.0.0"
	DefaultModel       = "gemini-2.0-flash-exp"
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTopK        = 40
	DefaultMaxTokens   = 2048
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// CORSConfig 定义了跨域访问的配置。
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	AllowMethods     []string `yaml:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders"`
}

// ServerConfig 定义了 HTTP 服务器的监听与超时配置。
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	APIPrefix       string     `yaml:"apiPrefix"`       // 路由前缀，默认为空
	ReadTimeout     string     `yaml:"readTimeout"`     // 例如: "30s"
	WriteTimeout    string     `yaml:"writeTimeout"`    // 例如: "120s"
	ShutdownTimeout string     `yaml:"shutdownTimeout"` // 例如: "15s"
	TrustedProxies  []string   `yaml:"trustedProxies"`
	CORS            CORSConfig `yaml:"cors"`
}

// Address 返回 host:port 形式的监听地址。
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AgentDefaults 是新建 Agent 时使用的默认模型参数。
type AgentDefaults struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"topP"`
	TopK        int     `yaml:"topK"`
	MaxTokens   int     `yaml:"maxTokens"` // 0 表示不限制
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

// OllamaConfig 包含了本地 Ollama 服务的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"` // 默认 "http://localhost:11434"
}

// ToolsConfig 控制哪些工具对模型可见。
type ToolsConfig struct {
	Calculator bool `yaml:"calculator"`
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // LLM提供商 ("gemini", "openai", "ollama")
	Defaults        AgentDefaults `yaml:"defaults"`
	Timeout         string        `yaml:"timeout"`         // 单次模型调用的超时，例如 "60s"
	MaxHistoryTurns int           `yaml:"maxHistoryTurns"` // 对话记录上限，0 表示不限制
	Tools           ToolsConfig   `yaml:"tools"`
	Gemini          GeminiConfig  `yaml:"gemini"`
	OpenAI          OpenAIConfig  `yaml:"openai"`
	Ollama          OllamaConfig  `yaml:"ollama"`
}

// APIKey 返回当前提供商使用的密钥。
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAI.APIKey
	case "ollama":
		return ""
	default:
		return c.Gemini.APIKey
	}
}

// AuthConfig 用于配置 API 访问认证。
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	APIKeys   []string `yaml:"apiKeys"`   // 允许通过 X-API-Key 访问的密钥
	JwtSecret string   `yaml:"jwtSecret"` // 非空时同时接受 Bearer JWT
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
	File  string `yaml:"file"`  // 可选。同时写入的日志文件
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // Agent 事件主题，默认 "agent_events"
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "tokenBucket", "fixedWindow", "redisFixedWindow"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了模型调用熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	Timeout          string `yaml:"timeout"`  // 熔断打开后多久进入半开，例如: "30s"
	Interval         string `yaml:"interval"` // 闭合状态下清零失败计数的周期
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Auth       AuthConfig       `yaml:"auth"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// Default 返回一份填好默认值的配置。
func Default() *AppConfig {
	return &AppConfig{
		App: AppInfo{Name: DefaultAppName, Version: DefaultAppVersion, Environment: "development"},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     "30s",
			WriteTimeout:    "120s",
			ShutdownTimeout: "15s",
			CORS: CORSConfig{
				AllowOrigins:     []string{"*"},
				AllowCredentials: true,
				AllowMethods:     []string{"*"},
				AllowHeaders:     []string{"*"},
			},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Defaults: AgentDefaults{
				Model:       DefaultModel,
				Temperature: DefaultTemperature,
				TopP:        DefaultTopP,
				TopK:        DefaultTopK,
				MaxTokens:   DefaultMaxTokens,
			},
			Timeout: "60s",
			Tools:   ToolsConfig{Calculator: true},
		},
		Logger: LoggerConfig{Level: "info"},
		Databases: DatabaseConfigs{
			Kafka: KafkaConfig{Topic: "agent_events"},
		},
		Middleware: MiddlewareConfig{
			RateLimiter: RateLimiterConfig{
				Enabled:     true,
				Algorithm:   "fixedWindow",
				FixedWindow: FixedWindowConfig{Limit: 100, Window: "60s"},
				TokenBucket: TokenBucketConfig{Rate: 100.0 / 60.0, Capacity: 100},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          "30s",
				Interval:         "60s",
			},
		},
	}
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件，然后应用环境变量覆盖。
// 文件不存在时仅使用默认值和环境变量。
func LoadConfig(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		yamlFile, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// 允许只通过环境变量配置
		case err != nil:
			return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
		default:
			if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
				return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置，变量名沿用原服务的 .env 约定。
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GEMINI_API_KEY", &cfg.LLM.Gemini.APIKey)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	str("OLLAMA_HOST", &cfg.LLM.Ollama.BaseURL)
	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("DEFAULT_MODEL", &cfg.LLM.Defaults.Model)
	str("HOST", &cfg.Server.Host)
	str("API_PREFIX", &cfg.Server.APIPrefix)
	str("LOG_LEVEL", &cfg.Logger.Level)
	str("LOG_FILE", &cfg.Logger.File)

	if v, ok := lookup("DEFAULT_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEFAULT_TEMPERATURE 不是合法的数字: %w", err)
		}
		cfg.LLM.Defaults.Temperature = f
	}
	if v, ok := lookup("MAX_TOKENS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TOKENS 不是合法的整数: %w", err)
		}
		cfg.LLM.Defaults.MaxTokens = n
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT 不是合法的整数: %w", err)
		}
		cfg.Server.Port = n
	}
	if v, ok := lookup("API_KEYS"); ok && v != "" {
		cfg.Auth.APIKeys = splitList(v)
		cfg.Auth.Enabled = true
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate 检查启动所必需的配置项。缺少密钥会导致默认 Agent 无法创建，属于启动期致命错误。
func (c *AppConfig) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
		if c.LLM.APIKey() == "" {
			return fmt.Errorf("%s API key not found: set it in config.yaml or via environment", c.LLM.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	// 写成 >= && <= 的形式，NaN 也会被拒绝
	if d := c.LLM.Defaults; !(d.Temperature >= 0 && d.Temperature <= 1) {
		return fmt.Errorf("default temperature %v out of range [0, 1]", d.Temperature)
	}
	if d := c.LLM.Defaults; !(d.TopP >= 0 && d.TopP <= 1) {
		return fmt.Errorf("default top_p %v out of range [0, 1]", d.TopP)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JwtSecret == "" {
		return errors.New("auth is enabled but neither apiKeys nor jwtSecret is configured")
	}
	for name, d := range map[string]string{
		"server.readTimeout":     c.Server.ReadTimeout,
		"server.writeTimeout":    c.Server.WriteTimeout,
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"llm.timeout":            c.LLM.Timeout,
	} {
		if _, err := ParseDuration(d, 0); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration 解析形如 "30s" 的时长，空字符串返回 fallback。
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
