package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Doubao  DoubaoConfig  `mapstructure:"doubao"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Qwen    QwenConfig    `mapstructure:"qwen"`
	Image   ImageConfig   `mapstructure:"image"`
	Article ArticleConfig `mapstructure:"article"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// ModelConfig 选择文本模型提供方
type ModelConfig struct {
	Provider string `mapstructure:"provider"` // doubao, openai, qwen
}

type DoubaoConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

// ImageConfig 配图生成服务（OpenAI 兼容接口）
type ImageConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`      // 仅限流错误重试
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"` // 线性退避基数
	Workers        int           `mapstructure:"workers"`          // 并发上限
	Stagger        time.Duration `mapstructure:"stagger"`          // 请求间隔
}

// ArticleConfig 生成流程的整体约束
type ArticleConfig struct {
	SystemPrompt   string        `mapstructure:"system_prompt"`
	MaxPlaceholder int           `mapstructure:"max_placeholder"` // 单篇配图上限
	StreamTimeout  time.Duration `mapstructure:"stream_timeout"`
	DefaultWords   int           `mapstructure:"default_words"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	DataDir   string `mapstructure:"data_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DRAFTSMITH")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 配置文件优先，缺省时回退到环境变量
	if cfg.Doubao.APIKey == "" {
		if apiKey := os.Getenv("ARK_API_KEY"); apiKey != "" {
			cfg.Doubao.APIKey = apiKey
		}
	}
	if cfg.OpenAI.APIKey == "" {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			cfg.OpenAI.APIKey = apiKey
		}
	}
	if cfg.Qwen.APIKey == "" {
		if apiKey := os.Getenv("DASHSCOPE_API_KEY"); apiKey != "" {
			cfg.Qwen.APIKey = apiKey
		}
	}
	// 配图服务默认复用 OpenAI 凭证
	if cfg.Image.APIKey == "" {
		cfg.Image.APIKey = cfg.OpenAI.APIKey
	}
	if cfg.Image.MaxRetries <= 0 {
		cfg.Image.MaxRetries = 3
	}
	if cfg.Image.RetryBaseDelay <= 0 {
		cfg.Image.RetryBaseDelay = time.Second
	}
	if cfg.Image.Workers <= 0 {
		cfg.Image.Workers = 2
	}
	if cfg.Image.Stagger < 0 {
		cfg.Image.Stagger = 0
	}
	if cfg.Article.MaxPlaceholder <= 0 {
		cfg.Article.MaxPlaceholder = 10
	}

	return cfg, nil
}

func Get() *Config {
	return cfg
}
