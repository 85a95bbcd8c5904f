package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrMissingCredentials 表示未配置 Ark 凭证或模型。
var ErrMissingCredentials = errors.New("at least ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY plus DEFAULT_MODEL must be set")

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Agent  AgentConfig
	Tools  ToolsConfig
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

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	tools, err := loadToolsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Agent:  agent,
		Tools:  tools,
		Log:    loadLogConfig(),
	}, nil
}

// Validate 校验必需的配置项。
func (c *Config) Validate() error {
	if !c.AI.Enabled() {
		return ErrMissingCredentials
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
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

// NewChatModel 使用配置创建模型实例，工具通过 BindTools 绑定。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, ErrMissingCredentials
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
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := 0.7
		temperature = &val
	}
	if *temperature < 0 || *temperature > 1 {
		return AIConfig{}, fmt.Errorf("invalid TEMPERATURE value %v: must be within [0, 1]", *temperature)
	}

	topP, err := parseOptionalFloatEnv("TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("DEFAULT_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// AgentConfig 描述代理执行与会话记忆相关配置。
type AgentConfig struct {
	MaxIterations    int
	Verbose          bool
	MaxHistoryLength int
}

func loadAgentConfig() (AgentConfig, error) {
	maxIterations, err := parseIntEnvOrDefault("MAX_ITERATIONS", 5)
	if err != nil {
		return AgentConfig{}, err
	}
	if maxIterations < 1 {
		maxIterations = 1
	}

	verbose, err := parseBoolEnv("VERBOSE", true)
	if err != nil {
		return AgentConfig{}, err
	}

	historyLength, err := parseIntEnvOrDefault("MAX_HISTORY_LENGTH", 10)
	if err != nil {
		return AgentConfig{}, err
	}
	if historyLength < 2 {
		// 至少保留一轮完整的问答。
		historyLength = 2
	}

	return AgentConfig{
		MaxIterations:    maxIterations,
		Verbose:          verbose,
		MaxHistoryLength: historyLength,
	}, nil
}

// ToolsConfig 描述外部工具相关配置。
type ToolsConfig struct {
	OutputDir        string
	WikiTopK         int
	WikiMaxChars     int
	WikiLang         string
	SearchMaxResults int
	Timeout          time.Duration
}

func loadToolsConfig() (ToolsConfig, error) {
	topK, err := parseIntEnvOrDefault("WIKI_TOP_K", 2)
	if err != nil {
		return ToolsConfig{}, err
	}
	if topK < 1 {
		topK = 1
	}

	maxChars, err := parseIntEnvOrDefault("WIKI_MAX_CHARS", 1000)
	if err != nil {
		return ToolsConfig{}, err
	}

	searchMax, err := parseIntEnvOrDefault("SEARCH_MAX_RESULTS", 5)
	if err != nil {
		return ToolsConfig{}, err
	}
	if searchMax < 1 {
		searchMax = 1
	}

	timeoutSeconds, err := parseIntEnvOrDefault("TOOL_TIMEOUT_SECONDS", 15)
	if err != nil {
		return ToolsConfig{}, err
	}

	return ToolsConfig{
		OutputDir:        getEnvOrDefault("OUTPUT_DIR", "outputs"),
		WikiTopK:         topK,
		WikiMaxChars:     maxChars,
		WikiLang:         getEnvOrDefault("WIKI_LANG", "en"),
		SearchMaxResults: searchMax,
		Timeout:          time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	File       string
	Production bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		File:       getEnvOrDefault("LOG_FILE", "logs/agent.log"),
		Production: strings.EqualFold(getEnvOrDefault("APP_ENV", "development"), "production"),
	}
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

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
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
