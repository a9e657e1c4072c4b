package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件路径，不存在时只使用默认值与环境变量
const DefaultPath = "configs/config.yaml"

// ErrMissingAPIKey 未配置 LLM 凭证
var ErrMissingAPIKey = errors.New("config: LLM_API_KEY is required")

// Config 项目配置结构体
type Config struct {
	LLM      LLMConfig      `yaml:"llm" toml:"llm"`
	Snapshot SnapshotConfig `yaml:"snapshot" toml:"snapshot"`
	Batch    BatchConfig    `yaml:"batch" toml:"batch"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	DB       DBConfig       `yaml:"db" toml:"db"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	Provider        string `yaml:"provider" toml:"provider"` // openai 或 gemini
	BaseURL         string `yaml:"base_url" toml:"base_url"` // 为空时使用各 provider 的官方地址
	APIKey          string `yaml:"api_key" toml:"api_key"`
	Model           string `yaml:"model" toml:"model"`
	MaxTokens       int    `yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxAttempts     int    `yaml:"max_attempts" toml:"max_attempts"`
	RetryBaseMillis int    `yaml:"retry_base_ms" toml:"retry_base_ms"`
	MaxContentChars int    `yaml:"max_content_chars" toml:"max_content_chars"`
	RPM             int    `yaml:"rpm" toml:"rpm"` // 0 表示不限流
}

// SnapshotConfig 快照文件位置
type SnapshotConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// BatchConfig 批处理配置
type BatchConfig struct {
	Size             int `yaml:"size" toml:"size"`
	DelayMillis      int `yaml:"delay_ms" toml:"delay_ms"`
	MinContentLength int `yaml:"min_content_length" toml:"min_content_length"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	File   string `yaml:"file" toml:"file"`
	Format string `yaml:"format" toml:"format"` // text 或 json
}

// DBConfig 运行记录数据库，DSN 为空时不记录
type DBConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// Default 返回填充了默认值的配置
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			MaxTokens:       1024,
			TimeoutSeconds:  60,
			MaxAttempts:     3,
			RetryBaseMillis: 1000,
			MaxContentChars: 8000,
		},
		Snapshot: SnapshotConfig{Dir: "data"},
		Batch: BatchConfig{
			Size:             3,
			DelayMillis:      1000,
			MinContentLength: 50,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig 从指定路径加载配置
//
// 顺序: 默认值 -> 配置文件(yaml/toml，可选) -> .env -> 环境变量。
// path 为空时尝试 DefaultPath，文件不存在不算错误。
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := loadFile(path, cfg); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	// .env 不覆盖已有环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("LLM_API_KEY", &cfg.LLM.APIKey)
	setString("LLM_PROVIDER", &cfg.LLM.Provider)
	setString("LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("LLM_MODEL", &cfg.LLM.Model)
	setString("DATA_DIR", &cfg.Snapshot.Dir)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FILE", &cfg.Log.File)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("DATABASE_URL", &cfg.DB.DSN)

	ints := []struct {
		key string
		dst *int
	}{
		{"LLM_MAX_TOKENS", &cfg.LLM.MaxTokens},
		{"LLM_RPM", &cfg.LLM.RPM},
		{"BATCH_SIZE", &cfg.Batch.Size},
		{"BATCH_DELAY_MS", &cfg.Batch.DelayMillis},
		{"MIN_CONTENT_LENGTH", &cfg.Batch.MinContentLength},
	}
	for _, it := range ints {
		if err := setInt(it.key, it.dst); err != nil {
			return err
		}
	}
	return nil
}

// normalize 把非法或缺省的数值恢复为默认值
func (c *Config) normalize() {
	d := Default()
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = d.LLM.MaxAttempts
	}
	if c.LLM.RetryBaseMillis <= 0 {
		c.LLM.RetryBaseMillis = d.LLM.RetryBaseMillis
	}
	if c.LLM.MaxContentChars <= 0 {
		c.LLM.MaxContentChars = d.LLM.MaxContentChars
	}
	if c.LLM.RPM < 0 {
		c.LLM.RPM = 0
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = d.Snapshot.Dir
	}
	if c.Batch.Size <= 0 {
		c.Batch.Size = d.Batch.Size
	}
	if c.Batch.DelayMillis < 0 {
		c.Batch.DelayMillis = d.Batch.DelayMillis
	}
	if c.Batch.MinContentLength <= 0 {
		c.Batch.MinContentLength = d.Batch.MinContentLength
	}
}

// Validate 检查启动前必须的配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingAPIKey
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// BatchDelay 批次间隔
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Batch.DelayMillis) * time.Millisecond
}

// RetryBaseDelay 限流重试的基础等待时间
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.LLM.RetryBaseMillis) * time.Millisecond
}

// Timeout 单次 LLM 请求超时
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
