package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	AI      AIConfig      `mapstructure:"ai"`
	Log     LogConfig     `mapstructure:"log"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
// WriteTimeout 为 0 表示不限制，SSE 长连接依赖这一点
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig 对话补全服务配置
// BaseURL 指向 OpenAI 兼容端点 (OpenRouter / OpenAI / 代理)
type AIConfig struct {
	APIKey  string          `mapstructure:"api_key"`
	Model   string          `mapstructure:"model"`
	BaseURL string          `mapstructure:"base_url"`
	Referer string          `mapstructure:"referer"` // OpenRouter HTTP-Referer 头（可选）
	Options AIOptionsConfig `mapstructure:"options"`
	Title   TitleConfig     `mapstructure:"title"`
}

// AIOptionsConfig 对话模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// TitleConfig 标题生成配置
// 标题走独立的非流式请求，模型参数与对话流互不影响
type TitleConfig struct {
	Provider    string  `mapstructure:"provider"` // openai / azure / ark
	Model       string  `mapstructure:"model"`    // 为空时复用 ai.model
	APIKey      string  `mapstructure:"api_key"`  // 为空时复用 ai.api_key
	BaseURL     string  `mapstructure:"base_url"` // 为空时复用 ai.base_url
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`           // JWT密钥
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`  // Access Token过期时间
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"` // Refresh Token过期时间
}

// StorageConfig 附件存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 基础路径
	BaseURL  string `mapstructure:"base_url"`  // 基础URL（用于生成访问URL）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`          // OSS端点
	Bucket          string `mapstructure:"bucket"`            // Bucket名称
	AccessKeyID     string `mapstructure:"access_key_id"`     // AccessKey ID
	AccessKeySecret string `mapstructure:"access_key_secret"` // AccessKey Secret
	PresignExpiry   int    `mapstructure:"presign_expiry"`    // 预签名URL过期时间（秒）
}

// TitleModel 标题模型名，未配置时回落到对话模型
func (c *AIConfig) TitleModel() string {
	if c.Title.Model != "" {
		return c.Title.Model
	}
	return c.Model
}

// TitleAPIKey 标题请求使用的 API Key
func (c *AIConfig) TitleAPIKey() string {
	if c.Title.APIKey != "" {
		return c.Title.APIKey
	}
	return c.APIKey
}

// TitleBaseURL 标题请求使用的端点
func (c *AIConfig) TitleBaseURL() string {
	if c.Title.BaseURL != "" {
		return c.Title.BaseURL
	}
	return c.BaseURL
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.AI.BaseURL == "" {
		return errors.New("ai.base_url is required")
	}

	return nil
}
