// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultProvider 默认 LLM 提供商（Ollama 的 OpenAI 兼容端点）
	DefaultProvider = "ollama"
	// DefaultModelKey 默认模型 key
	DefaultModelKey = "llama3_groq_tool_use"
	// DefaultModelName Ollama 中的模型名
	DefaultModelName = "llama3-groq-tool-use:8b"
	// DefaultOllamaBaseURL Ollama OpenAI 兼容 API 地址
	DefaultOllamaBaseURL = "http://localhost:11434/v1"

	// DefaultSearchToolName 搜索工具名（模型按此名称发起调用）
	DefaultSearchToolName = "duckduckgo_search"
	// DefaultSearchDescription 搜索工具描述，是引导模型是否调用工具的唯一手段
	DefaultSearchDescription = "Use this tool to search the web for real-time information, " +
		"such as weather, current events, or facts you do not know. " +
		"Be specific with your search query. Do not use this tool to " +
		"answer basic questions that have well-defined answers. In case " +
		"of uncertainty, fallback to this tool and search the web."
	// DefaultSearchEndpoint DuckDuckGo lite HTML 接口
	DefaultSearchEndpoint = "https://lite.duckduckgo.com/lite/"

	// DefaultMaxToolRounds 单轮对话内 模型→工具 的最大往返次数
	DefaultMaxToolRounds = 5
	// DefaultFallbackReply 超过工具轮次上限时返回给用户的回复
	DefaultFallbackReply = "I could not finish looking this up within the allowed number of searches. Please try rephrasing your question."
)

// Config 应用配置结构体，构造时显式传入各组件
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Search     SearchConfig     `mapstructure:"search"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置（OpenAI 兼容端点）
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Timeout string               `mapstructure:"timeout"` // 如 "120s"，空则不设超时
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name        string   `mapstructure:"name"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置，格式 provider.model_key
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// AgentConfig 推理/行动循环配置
type AgentConfig struct {
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
	FallbackReply string `mapstructure:"fallback_reply"`
	SystemPrompt  string `mapstructure:"system_prompt"`
	StripThink    bool   `mapstructure:"strip_think"` // 打印前去掉 <think>…</think>
	Stream        bool   `mapstructure:"stream"`      // 边生成边打印 assistant 回复
}

// SearchConfig 网页搜索工具配置
type SearchConfig struct {
	ToolName    string  `mapstructure:"tool_name"`
	Description string  `mapstructure:"description"`
	Endpoint    string  `mapstructure:"endpoint"`
	Region      string  `mapstructure:"region"` // DuckDuckGo kl 参数，如 "wt-wt"
	MaxResults  int     `mapstructure:"max_results"`
	Timeout     string  `mapstructure:"timeout"`
	QPS         float64 `mapstructure:"qps"`
	RetryCount  int     `mapstructure:"retry_count"` // 429/5xx 重试次数
	CacheTTL    string  `mapstructure:"cache_ttl"`   // storage.cache 启用时生效
}

// StorageConfig 存储配置
type StorageConfig struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // none | memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置；命令行进程不监听端口，退出时把指标写入 File
type PrometheusConfig struct {
	Enable bool   `mapstructure:"enable"`
	File   string `mapstructure:"file"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// RateLimitsConfig 限流配置
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// SecretsConfig 密钥来源；api_key 写成 "secret:<key>" 时从该来源读取
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 配置（KV 引擎）
type VaultConfig struct {
	Address    string `mapstructure:"address"`     // 如 http://localhost:8200
	Token      string `mapstructure:"token"`       // 支持 ${VAULT_TOKEN}
	PathPrefix string `mapstructure:"path_prefix"` // 如 secret/data
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.defaults.llm", DefaultProvider+"."+DefaultModelKey)

	v.SetDefault("agent.max_tool_rounds", DefaultMaxToolRounds)
	v.SetDefault("agent.fallback_reply", DefaultFallbackReply)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.strip_think", true)
	v.SetDefault("agent.stream", true)

	v.SetDefault("search.tool_name", DefaultSearchToolName)
	v.SetDefault("search.description", DefaultSearchDescription)
	v.SetDefault("search.endpoint", DefaultSearchEndpoint)
	v.SetDefault("search.region", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("search.qps", 1.0)
	v.SetDefault("search.retry_count", 3)
	v.SetDefault("search.cache_ttl", "10m")

	v.SetDefault("storage.cache.type", "none")
	v.SetDefault("storage.cache.addr", "localhost:6379")
	v.SetDefault("storage.cache.db", 0)
	v.SetDefault("storage.cache.password", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("monitoring.prometheus.enable", false)
	v.SetDefault("monitoring.prometheus.file", "")
	v.SetDefault("monitoring.tracing.enable", false)
	v.SetDefault("monitoring.tracing.service_name", "search-agent")
	v.SetDefault("monitoring.tracing.export_endpoint", "localhost:4318")
	v.SetDefault("monitoring.tracing.insecure", true)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.vault.address", "http://localhost:8200")
	v.SetDefault("secrets.vault.token", "${VAULT_TOKEN}")
	v.SetDefault("secrets.vault.path_prefix", "secret/data")
}

// LoadConfig 加载配置；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyProviderDefaults(&cfg)
	replaceEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回全部默认值的配置（等价于无配置文件、无环境变量）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	applyProviderDefaults(&cfg)
	replaceEnvVars(&cfg)
	return &cfg
}

// applyProviderDefaults 未配置任何 provider 时注入本地 Ollama 默认模型
func applyProviderDefaults(cfg *Config) {
	if cfg.Model.LLM.Providers == nil {
		cfg.Model.LLM.Providers = make(map[string]ProviderConfig)
	}
	if len(cfg.Model.LLM.Providers) > 0 {
		return
	}
	cfg.Model.LLM.Providers[DefaultProvider] = ProviderConfig{
		APIKey:  "ollama",
		BaseURL: DefaultOllamaBaseURL,
		Timeout: "120s",
		Models: map[string]ModelInfo{
			DefaultModelKey: {Name: DefaultModelName},
		},
	}
}

// replaceEnvVars 替换配置中 ${VAR} 形式的密钥
func replaceEnvVars(cfg *Config) {
	for provider, pc := range cfg.Model.LLM.Providers {
		pc.APIKey = expandEnv(pc.APIKey)
		cfg.Model.LLM.Providers[provider] = pc
	}
	cfg.Storage.Cache.Password = expandEnv(cfg.Storage.Cache.Password)
	cfg.Secrets.Vault.Token = expandEnv(cfg.Secrets.Vault.Token)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return ""
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if c.Agent.MaxToolRounds < 0 {
		return fmt.Errorf("agent.max_tool_rounds must be >= 0, got %d", c.Agent.MaxToolRounds)
	}
	if strings.TrimSpace(c.Agent.FallbackReply) == "" {
		return fmt.Errorf("agent.fallback_reply must not be empty")
	}
	if strings.TrimSpace(c.Search.ToolName) == "" {
		return fmt.Errorf("search.tool_name must not be empty")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0, got %d", c.Search.MaxResults)
	}
	if c.Search.QPS < 0 {
		return fmt.Errorf("search.qps must be >= 0, got %v", c.Search.QPS)
	}
	switch c.Storage.Cache.Type {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage.cache.type: %s", c.Storage.Cache.Type)
	}
	switch c.Secrets.Provider {
	case "", "env", "vault":
	default:
		return fmt.Errorf("unsupported secrets.provider: %s", c.Secrets.Provider)
	}
	for _, d := range []struct{ key, val string }{
		{"search.timeout", c.Search.Timeout},
		{"search.cache_ttl", c.Search.CacheTTL},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

// ParseDuration 解析 "30s" 形式的时长，空或非法时返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
