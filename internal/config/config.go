package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Relay     RelayConfig
	Providers ProvidersConfig
	Storage   StorageConfig
	Events    EventsConfig
	// PersonasFile 指向可选的 YAML 角色文件。
	PersonasFile string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Relay:     relay,
		Providers: providers,
		Storage: StorageConfig{
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
			SQLitePath:  strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		},
		Events: EventsConfig{
			NATSURL:   strings.TrimSpace(os.Getenv("NATS_URL")),
			NATSToken: strings.TrimSpace(os.Getenv("NATS_TOKEN")),
			Subject:   getEnvOrDefault("NATS_SUBJECT_PREFIX", "debate.turn"),
		},
		PersonasFile: strings.TrimSpace(os.Getenv("PERSONAS_FILE")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RelayConfig 描述辩论转发相关的参数。
type RelayConfig struct {
	HistoryLimit          int
	StreamResponse        bool
	DefaultTemperature    float64
	DefaultMaxTokens      int
	SessionTimeout        time.Duration
	UpstreamHeaderTimeout time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		HistoryLimit:          6,
		DefaultTemperature:    0.7,
		DefaultMaxTokens:      1024,
		SessionTimeout:        120 * time.Second,
		UpstreamHeaderTimeout: 30 * time.Second,
	}

	if limit, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if limit != nil {
		if *limit < 1 {
			cfg.HistoryLimit = 1
		} else {
			cfg.HistoryLimit = *limit
		}
	}

	stream, err := parseBoolEnv("RELAY_STREAM", true)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.StreamResponse = stream

	if temperature, err := parseOptionalFloatEnv("DEFAULT_TEMPERATURE"); err != nil {
		return RelayConfig{}, err
	} else if temperature != nil {
		cfg.DefaultTemperature = *temperature
	}

	if maxTokens, err := parseOptionalIntEnv("DEFAULT_MAX_TOKENS"); err != nil {
		return RelayConfig{}, err
	} else if maxTokens != nil {
		if *maxTokens <= 0 {
			return RelayConfig{}, fmt.Errorf("invalid DEFAULT_MAX_TOKENS value %d: must be positive", *maxTokens)
		}
		cfg.DefaultMaxTokens = *maxTokens
	}

	if timeout, err := parseDurationEnv("RELAY_SESSION_TIMEOUT", cfg.SessionTimeout); err != nil {
		return RelayConfig{}, err
	} else {
		cfg.SessionTimeout = timeout
	}

	if timeout, err := parseDurationEnv("UPSTREAM_HEADER_TIMEOUT", cfg.UpstreamHeaderTimeout); err != nil {
		return RelayConfig{}, err
	} else {
		cfg.UpstreamHeaderTimeout = timeout
	}

	return cfg, nil
}

// ProvidersConfig 汇总各上游模型服务的接入信息。
type ProvidersConfig struct {
	OpenAI     ProviderEndpoint
	OpenRouter ProviderEndpoint
	LMStudio   ProviderEndpoint
	Anthropic  AnthropicEndpoint
	Ollama     ProviderEndpoint
	Ark        AIConfig
}

// ProviderEndpoint 描述一个基于 HTTP 的上游。
type ProviderEndpoint struct {
	BaseURL string
	APIKey  string
}

// AnthropicEndpoint 额外携带 API 版本头。
type AnthropicEndpoint struct {
	ProviderEndpoint
	Version string
}

func loadProvidersConfig() (ProvidersConfig, error) {
	ark, err := loadAIConfig()
	if err != nil {
		return ProvidersConfig{}, err
	}

	return ProvidersConfig{
		OpenAI: ProviderEndpoint{
			BaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		},
		OpenRouter: ProviderEndpoint{
			BaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		},
		LMStudio: ProviderEndpoint{
			BaseURL: getEnvOrDefault("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
		},
		Anthropic: AnthropicEndpoint{
			ProviderEndpoint: ProviderEndpoint{
				BaseURL: getEnvOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			},
			Version: getEnvOrDefault("ANTHROPIC_VERSION", "2023-06-01"),
		},
		Ollama: ProviderEndpoint{
			BaseURL: getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Ark: ark,
	}, nil
}

// StorageConfig 选择消息存储后端：DATABASE_URL 优先，其次 SQLITE_PATH，否则使用内存。
type StorageConfig struct {
	DatabaseURL string
	SQLitePath  string
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMemory   = "memory"
)

// Driver 返回实际使用的存储类型。
func (c StorageConfig) Driver() string {
	switch {
	case c.DatabaseURL != "":
		return StorageDriverPostgres
	case c.SQLitePath != "":
		return StorageDriverSQLite
	default:
		return StorageDriverMemory
	}
}

// EventsConfig 描述回合事件的 NATS 发布配置。
type EventsConfig struct {
	NATSURL   string
	NATSToken string
	Subject   string
}

// Enabled 表示是否配置了 NATS。
func (c EventsConfig) Enabled() bool {
	return c.NATSURL != ""
}

// AIConfig 描述火山方舟模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个模型实例，modelName 为空时回退到 ARK_MODEL。
func (c AIConfig) NewChatModel(ctx context.Context, modelName, apiKey string) (model.ChatModel, error) {
	if apiKey == "" {
		apiKey = c.APIKey
	}
	if modelName == "" {
		modelName = c.Model
	}
	if modelName == "" || (apiKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + 模型 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      apiKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 Go duration 字符串（"90s"）或纯秒数（"90"）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
