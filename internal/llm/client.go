package llm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Client 对话模型客户端
type Client interface {
	// Generate 以单条用户消息发送提示词
	Generate(ctx context.Context, prompt string, options ...RequestOption) (*Response, error)

	// Chat 发送完整的消息列表，系统提示词放在第一条
	Chat(ctx context.Context, messages []Message, options ...RequestOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 对话客户端配置
type Config struct {
	APIKey      string        // OPENAI_API_KEY
	BaseURL     string        // 兼容接口地址，为空时使用官方地址
	Model       string        // 生成模型
	Timeout     time.Duration // 单次请求超时
	MaxRetries  int           // 限流或服务端错误时的重试次数
	MaxTokens   int           // 0表示不限制
	Temperature float32       // 摘要需要可复现，默认0
	Logger      *logrus.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:      ModelGPT4oMini,
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
	}
}

// Option 客户端配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置兼容接口地址
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置生成模型
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries 设置重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithMaxTokens 设置默认的最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature 设置默认采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithLogger 设置日志器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// RequestOptions 单次请求的参数，nil表示沿用客户端配置
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float32
}

// RequestOption 单次请求选项
type RequestOption func(*RequestOptions)

// WithRequestMaxTokens 覆盖本次请求的最大Token数
func WithRequestMaxTokens(tokens int) RequestOption {
	return func(o *RequestOptions) {
		o.MaxTokens = &tokens
	}
}

// WithRequestTemperature 覆盖本次请求的采样温度
func WithRequestTemperature(temp float32) RequestOption {
	return func(o *RequestOptions) {
		o.Temperature = &temp
	}
}

func applyRequestOptions(options []RequestOption) *RequestOptions {
	opts := &RequestOptions{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端工厂，在各实现的init中调用
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按提供商名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewLLMError(ErrCodeInvalidRequest, "llm provider not registered: "+name)
	}
	return factory(opts...)
}
