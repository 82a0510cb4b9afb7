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
	Server ServerConfig
	AI     AIConfig
	Cache  CacheConfig
	Preset PresetConfig
	Poll   PollConfig
	TTS    TTSConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	cacheCfg, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	poll, err := loadPollConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Cache:  cacheCfg,
		Preset: loadPresetConfig(),
		Poll:   poll,
		TTS:    loadTTSConfig(),
		Log:    loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。BaseURL 用于拼接 WebGAL 脚本里的跳转地址，
// 必须是客户端可达的外部地址。
type ServerConfig struct {
	Addr    string
	BaseURL string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "10228"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	baseURL := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if baseURL == "" {
		hostPort := strings.TrimPrefix(addr, ":")
		if !strings.Contains(hostPort, ":") {
			hostPort = "127.0.0.1:" + hostPort
		}
		baseURL = "http://" + hostPort
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return ServerConfig{Addr: addr, BaseURL: baseURL}, nil
}

// AIConfig 描述大模型相关配置。
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
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
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

// CacheConfig 描述 Redis 缓存配置，连接失败时服务会退化为进程内缓存。
type CacheConfig struct {
	Host      string
	Port      int
	Password  string
	Namespace string
	TTL       time.Duration
}

// Addr 返回 host:port 形式的连接地址。
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadCacheConfig() (CacheConfig, error) {
	port := 6379
	if override, err := parseOptionalIntEnv("REDIS_PORT"); err != nil {
		return CacheConfig{}, err
	} else if override != nil {
		port = *override
	}

	ttl := 24 * time.Hour
	if raw := strings.TrimSpace(os.Getenv("CACHE_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("invalid CACHE_TTL value %q: %w", raw, err)
		}
		ttl = parsed
	}

	return CacheConfig{
		Host:      getEnvOrDefault("REDIS_HOST", "127.0.0.1"),
		Port:      port,
		Password:  os.Getenv("REDIS_PASSWORD"),
		Namespace: getEnvOrDefault("REDIS_NAMESPACE", "llm_webgal"),
		TTL:       ttl,
	}, nil
}

// PresetConfig 描述木偶角色预设文件与默认角色。
type PresetConfig struct {
	// Files 是以冒号分隔的 YAML 文件列表，后加载的覆盖先加载的。
	Files       string
	DefaultBot  string
	ArchivePath string
}

func loadPresetConfig() PresetConfig {
	return PresetConfig{
		Files:       getEnvOrDefault("PRESET_FILES", "presets.yml:presets.dev.yml"),
		DefaultBot:  getEnvOrDefault("DEFAULT_BOT", "sakiko"),
		ArchivePath: getEnvOrDefault("ARCHIVE_PATH", "data/turns.db"),
	}
}

// PollConfig 描述 next.txt 轮询协议的节奏：单次请求内的重试与跨请求的放弃阈值。
type PollConfig struct {
	Attempts   int
	Interval   time.Duration
	MaxPending int
}

func loadPollConfig() (PollConfig, error) {
	attempts := 5
	if override, err := parseOptionalIntEnv("POLL_ATTEMPTS"); err != nil {
		return PollConfig{}, err
	} else if override != nil && *override > 0 {
		attempts = *override
	}

	interval := 500 * time.Millisecond
	if raw := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return PollConfig{}, fmt.Errorf("invalid POLL_INTERVAL value %q: %w", raw, err)
		}
		interval = parsed
	}

	maxPending := 10
	if override, err := parseOptionalIntEnv("POLL_MAX_PENDING"); err != nil {
		return PollConfig{}, err
	} else if override != nil && *override > 0 {
		maxPending = *override
	}

	return PollConfig{Attempts: attempts, Interval: interval, MaxPending: maxPending}, nil
}

// TTSConfig 描述语音合成相关配置。
type TTSConfig struct {
	ProxyURL string
	Timeout  time.Duration
}

func loadTTSConfig() TTSConfig {
	timeout := 20 * time.Second
	if raw := strings.TrimSpace(os.Getenv("TTS_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			timeout = parsed
		}
	}
	return TTSConfig{
		ProxyURL: strings.TrimSpace(os.Getenv("PROXY_URL")),
		Timeout:  timeout,
	}
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level string
}

func loadLogConfig() LogConfig {
	return LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
