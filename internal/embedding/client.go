package embedding

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Client 把文本转换为向量
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 结果与输入一一对应
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Name() string
}

// 常用的OpenAI嵌入模型
const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"
	ModelAda002              = "text-embedding-ada-002"
)

// modelDimensions 各模型的默认输出维度
var modelDimensions = map[string]int{
	ModelTextEmbedding3Small: 1536,
	ModelTextEmbedding3Large: 3072,
	ModelAda002:              1536,
}

// ModelDimensions 返回模型的默认向量维度，未知模型返回0
func ModelDimensions(model string) int {
	return modelDimensions[model]
}

// Config 嵌入客户端配置
type Config struct {
	APIKey     string
	BaseURL    string // 为空时使用OpenAI官方地址
	Model      string
	Timeout    time.Duration // 单次请求超时
	MaxRetries int
	Dimensions int // 请求的向量维度，0表示模型默认值
	BatchSize  int // 单次请求的最大文本数
	Logger     *logrus.Logger
}

// Dimension 返回客户端实际产出的向量维度，无法确定时返回0
func (c *Config) Dimension() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	return ModelDimensions(c.Model)
}

// Option 客户端配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithMaxRetries 限流和服务端错误的重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

// WithDimensions 只有text-embedding-3系列支持缩短维度
func WithDimensions(dimensions int) Option {
	return func(c *Config) { c.Dimensions = dimensions }
}

func WithBatchSize(size int) Option {
	return func(c *Config) { c.BatchSize = size }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Model:      ModelTextEmbedding3Small,
		Timeout:    time.Minute,
		MaxRetries: 3,
		BatchSize:  64,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Factory 嵌入客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册提供商，在各实现的init中调用
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按提供商名称创建嵌入客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "embedding provider not registered: "+name)
	}
	return factory(opts...)
}
