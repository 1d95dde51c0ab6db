package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Credits   CreditsConfig   `mapstructure:"credits"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	Mode         string          `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int             `mapstructure:"read_timeout"`
	WriteTimeout int             `mapstructure:"write_timeout"` // 同步对话接口需覆盖 agent.turn_timeout
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 按用户限流，作用于对话接口
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int    `mapstructure:"min_idle_conns"` // 最小空闲连接数
}

// Addr Redis 地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig 对话模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	OrgID       string  `mapstructure:"org_id"`
	Model       string  `mapstructure:"model"`
	MaxRetries  int     `mapstructure:"max_retries"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// AgentConfig 对话轮次控制配置
type AgentConfig struct {
	MaxRounds          int           `mapstructure:"max_rounds"`           // 单轮请求内模型往返上限
	TurnTimeout        time.Duration `mapstructure:"turn_timeout"`         // 整轮软超时
	TextToolTimeout    time.Duration `mapstructure:"text_tool_timeout"`    // 文本类工具超时
	MediaToolTimeout   time.Duration `mapstructure:"media_tool_timeout"`   // 媒体生成类工具超时
	HistoryLimit       int           `mapstructure:"history_limit"`        // 读取历史消息条数
	HistoryTokenBudget int           `mapstructure:"history_token_budget"` // 历史消息 Token 预算
	MeterModelTokens   bool          `mapstructure:"meter_model_tokens"`   // 是否按 Token 计费模型本身
	SystemPrompt       string        `mapstructure:"system_prompt"`        // 额外系统提示词
}

// CreditsConfig 积分计费配置
type CreditsConfig struct {
	ExemptTools            []string      `mapstructure:"exempt_tools"`             // 免计费工具
	DefaultDurationSeconds float64       `mapstructure:"default_duration_seconds"` // 缺省时长（按秒计费）
	RequirePricing         bool          `mapstructure:"require_pricing"`          // 无定价规则时拒绝执行
	PricingCacheTTL        time.Duration `mapstructure:"pricing_cache_ttl"`
	LockTTL                time.Duration `mapstructure:"lock_ttl"`     // 分布式锁过期时间
	LockTimeout            time.Duration `mapstructure:"lock_timeout"` // 获取锁等待上限
	SeedPricing            bool          `mapstructure:"seed_pricing"` // 启动时写入默认定价
}

// ProvidersConfig 生成服务提供方配置
type ProvidersConfig struct {
	Replicate ReplicateConfig   `mapstructure:"replicate"`
	Vision    OpenAIMediaConfig `mapstructure:"vision"`
	Speech    OpenAIMediaConfig `mapstructure:"speech"`
}

// ReplicateConfig Replicate 模型映射
type ReplicateConfig struct {
	APIToken string            `mapstructure:"api_token"`
	Models   map[string]string `mapstructure:"models"` // 任务类型 -> owner/model[:version]
}

// OpenAIMediaConfig 视觉/语音模型配置（复用 ai.openai 的凭证）
type OpenAIMediaConfig struct {
	Model       string `mapstructure:"model"`
	MaxFileSize int64  `mapstructure:"max_file_size"` // 下载输入文件的大小上限（字节）
}

// QueueConfig 异步任务配置
type QueueConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Concurrency int           `mapstructure:"concurrency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

var globalConfig *Config

// Defaults 返回完整的默认配置
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080, Mode: "release", ReadTimeout: 30, WriteTimeout: 360,
			RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 10},
		},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres", DBName: "aistudio", SSLMode: "disable",
			MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 3600, AutoMigrate: true,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
		Log:   LogConfig{Level: "info", Format: "console", OutputPath: "stdout"},
		AI: AIConfig{OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini", MaxRetries: 2, Temperature: 0.7, MaxTokens: 2048,
		}},
		Agent: AgentConfig{
			MaxRounds:          8,
			TurnTimeout:        5 * time.Minute,
			TextToolTimeout:    30 * time.Second,
			MediaToolTimeout:   5 * time.Minute,
			HistoryLimit:       50,
			HistoryTokenBudget: 6000,
			MeterModelTokens:   true,
		},
		Credits: CreditsConfig{
			ExemptTools:            []string{"text_completion"},
			DefaultDurationSeconds: 5,
			PricingCacheTTL:        5 * time.Minute,
			LockTTL:                30 * time.Second,
			LockTimeout:            10 * time.Second,
			SeedPricing:            true,
		},
		Providers: ProvidersConfig{
			Vision: OpenAIMediaConfig{Model: "gpt-4o-mini", MaxFileSize: 20 << 20},
			Speech: OpenAIMediaConfig{Model: "whisper-1", MaxFileSize: 25 << 20},
		},
		Queue: QueueConfig{Concurrency: 10, TaskTimeout: 15 * time.Minute},
	}
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	setDefaults(v, Defaults())

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds 必须大于 0")
	}
	if c.Agent.TurnTimeout <= 0 {
		return fmt.Errorf("agent.turn_timeout 必须大于 0")
	}
	if c.Credits.DefaultDurationSeconds <= 0 {
		return fmt.Errorf("credits.default_duration_seconds 必须大于 0")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// setDefaults 将默认值注册到 viper，环境变量覆盖依赖已注册的键
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.requests_per_second", d.Server.RateLimit.RequestsPerSecond)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_path", d.Log.OutputPath)

	v.SetDefault("ai.openai.api_key", d.AI.OpenAI.APIKey)
	v.SetDefault("ai.openai.base_url", d.AI.OpenAI.BaseURL)
	v.SetDefault("ai.openai.org_id", d.AI.OpenAI.OrgID)
	v.SetDefault("ai.openai.model", d.AI.OpenAI.Model)
	v.SetDefault("ai.openai.max_retries", d.AI.OpenAI.MaxRetries)
	v.SetDefault("ai.openai.temperature", d.AI.OpenAI.Temperature)
	v.SetDefault("ai.openai.max_tokens", d.AI.OpenAI.MaxTokens)

	v.SetDefault("agent.max_rounds", d.Agent.MaxRounds)
	v.SetDefault("agent.turn_timeout", d.Agent.TurnTimeout)
	v.SetDefault("agent.text_tool_timeout", d.Agent.TextToolTimeout)
	v.SetDefault("agent.media_tool_timeout", d.Agent.MediaToolTimeout)
	v.SetDefault("agent.history_limit", d.Agent.HistoryLimit)
	v.SetDefault("agent.history_token_budget", d.Agent.HistoryTokenBudget)
	v.SetDefault("agent.meter_model_tokens", d.Agent.MeterModelTokens)
	v.SetDefault("agent.system_prompt", d.Agent.SystemPrompt)

	v.SetDefault("credits.exempt_tools", d.Credits.ExemptTools)
	v.SetDefault("credits.default_duration_seconds", d.Credits.DefaultDurationSeconds)
	v.SetDefault("credits.require_pricing", d.Credits.RequirePricing)
	v.SetDefault("credits.pricing_cache_ttl", d.Credits.PricingCacheTTL)
	v.SetDefault("credits.lock_ttl", d.Credits.LockTTL)
	v.SetDefault("credits.lock_timeout", d.Credits.LockTimeout)
	v.SetDefault("credits.seed_pricing", d.Credits.SeedPricing)

	v.SetDefault("providers.replicate.api_token", d.Providers.Replicate.APIToken)
	v.SetDefault("providers.vision.model", d.Providers.Vision.Model)
	v.SetDefault("providers.vision.max_file_size", d.Providers.Vision.MaxFileSize)
	v.SetDefault("providers.speech.model", d.Providers.Speech.Model)
	v.SetDefault("providers.speech.max_file_size", d.Providers.Speech.MaxFileSize)

	v.SetDefault("queue.enabled", d.Queue.Enabled)
	v.SetDefault("queue.concurrency", d.Queue.Concurrency)
	v.SetDefault("queue.task_timeout", d.Queue.TaskTimeout)
}
