package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultConfigFile 默认配置文件路径
const DefaultConfigFile = "config.yaml"

// Config 应用程序配置结构体
type Config struct {
	Paper    PaperConfig    `mapstructure:"paper"`
	ArXiv    ArXivConfig    `mapstructure:"arxiv"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
	Log      LogConfig      `mapstructure:"log"`
}

// PaperConfig 待摘要论文配置
type PaperConfig struct {
	ID           string `mapstructure:"id" validate:"required"`            // arXiv标识符
	DocumentPath string `mapstructure:"document_path" validate:"required"` // 本地PDF缓存路径
	Query        string `mapstructure:"query" validate:"required"`         // 摘要查询语句
}

// ArXivConfig arXiv接口配置
type ArXivConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"` // Atom API地址
	Timeout   time.Duration `mapstructure:"timeout"`                          // 请求超时
	UserAgent string        `mapstructure:"user_agent"`                       // 请求UA
}

// StorageConfig 论文镜像存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"omitempty,oneof=local minio"` // 存储类型：空(禁用)、local 或 minio
	Path      string `mapstructure:"path"`                                        // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                                      // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                                    // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=sqlite memory pgvector"` // 向量数据库类型
	Path     string `mapstructure:"path" validate:"required"`                     // 向量库目录
	Dim      int    `mapstructure:"dim" validate:"gte=0"`                         // 向量维度，0表示按嵌入模型推断
	Distance string `mapstructure:"distance" validate:"oneof=cosine dot l2"`      // 距离度量方式
	DSN      string `mapstructure:"dsn"`                                          // pgvector连接串
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" validate:"required"` // 提供商
	Model       string        `mapstructure:"model" validate:"required"`    // 模型名称
	APIKey      string        `mapstructure:"api_key"`                      // API密钥
	Endpoint    string        `mapstructure:"endpoint"`                     // API端点
	MaxTokens   int           `mapstructure:"max_tokens" validate:"gte=0"`  // 最大生成token数量
	Temperature float32       `mapstructure:"temperature" validate:"gte=0"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout"`
	Template    string        `mapstructure:"template" validate:"oneof=summary qa"` // summary 或 qa
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"`  // 提供商
	Model      string        `mapstructure:"model" validate:"required"`     // 模型名称
	APIKey     string        `mapstructure:"api_key"`                       // API密钥
	Endpoint   string        `mapstructure:"endpoint"`                      // API端点
	BatchSize  int           `mapstructure:"batch_size" validate:"gt=0"`    // 批处理大小
	Workers    int           `mapstructure:"workers" validate:"gt=0"`       // 并发批次数
	Dimensions int           `mapstructure:"dimensions" validate:"gte=0"`   // 向量维度
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`  // 最大重试次数
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                                // 是否启用嵌入缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"`    // 缓存类型
	Address  string `mapstructure:"address"`                               // Redis地址
	Password string `mapstructure:"password"`                              // Redis密码
	DB       int    `mapstructure:"db"`                                    // Redis数据库
	TTL      int    `mapstructure:"ttl" validate:"gte=0"`                  // 缓存TTL（秒）
}

// DatabaseConfig 运行记录数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite postgres"` // 数据库类型
	DSN  string `mapstructure:"dsn" validate:"required"`               // 数据源名称
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size" validate:"gt=0"`                            // 分块大小
	ChunkOverlap int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`      // 分块重叠大小
	SplitType    string `mapstructure:"split_type" validate:"oneof=paragraph sentence length"` // 分块边界
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit int `mapstructure:"limit" validate:"gt=0"` // 检索片段数k
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件，空则输出到stderr
	MaxSize    int    `mapstructure:"max_size"`    // 单个文件大小(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留文件数
	MaxAge     int    `mapstructure:"max_age"`     // 保留天数
}

// flagKeys 命令行参数到配置键的映射
var flagKeys = map[string]string{
	"paper":         "paper.id",
	"pdf":           "paper.document_path",
	"query":         "paper.query",
	"store":         "vectordb.path",
	"store-type":    "vectordb.type",
	"dim":           "vectordb.dim",
	"embed-model":   "embed.model",
	"llm-model":     "llm.model",
	"template":      "llm.template",
	"chunk-size":    "document.chunk_size",
	"chunk-overlap": "document.chunk_overlap",
	"split-type":    "document.split_type",
	"k":             "search.limit",
	"log-level":     "log.level",
}

// Load 从文件、环境变量和命令行参数加载配置
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = DefaultConfigFile
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
			// 未找到默认配置文件时使用默认值
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed on %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.VectorDB.Type == "pgvector" && c.VectorDB.DSN == "" {
		return errors.New("invalid config: vectordb.dsn is required for pgvector")
	}
	return nil
}

// expandEnv 展开 ${VAR} 形式的值
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// processEnvironmentVariables 处理配置项中的环境变量引用
func processEnvironmentVariables(cfg *Config) {
	cfg.Embed.APIKey = expandEnv(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.VectorDB.DSN = expandEnv(cfg.VectorDB.DSN)

	// 与OpenAI SDK保持一致的端点变量
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		if cfg.Embed.Endpoint == "" {
			cfg.Embed.Endpoint = base
		}
		if cfg.LLM.Endpoint == "" {
			cfg.LLM.Endpoint = base
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 论文默认配置（ReAct）
	v.SetDefault("paper.id", "2210.03629")
	v.SetDefault("paper.document_path", "./react.pdf")
	v.SetDefault("paper.query", "Please provide a comprehensive summary of this document.")

	v.SetDefault("arxiv.base_url", "http://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "2m")
	v.SetDefault("arxiv.user_agent", "paper-rag/1.0")

	// 镜像存储默认关闭
	v.SetDefault("storage.type", "")
	v.SetDefault("storage.path", "./papers")
	v.SetDefault("storage.bucket", "papers")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "sqlite")
	v.SetDefault("vectordb.path", "./db")
	v.SetDefault("vectordb.dim", 0)
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.dsn", "")

	// LLM默认配置
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.timeout", "2m")
	v.SetDefault("llm.template", "summary")

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.max_retries", 3)
	v.SetDefault("embed.timeout", "1m")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.ttl", 7*24*3600) // 7天

	// 运行记录数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "./db/papers.db")

	// 文档处理默认配置
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)
	v.SetDefault("document.split_type", "paragraph")

	// 检索默认配置
	v.SetDefault("search.limit", 3)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}
