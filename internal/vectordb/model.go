package vectordb

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// 常用错误定义
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid document ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// Document 论文片段模型
// 包含向量表示及其元数据
type Document struct {
	ID        string                 // 唯一标识符
	FileID    string                 // 所属论文ID
	FileName  string                 // 来源文件
	Position  int                    // 在原文中的片段序号
	Text      string                 // 原始文本内容
	Vector    []float32              // 向量表示
	CreatedAt time.Time              // 创建时间
	Metadata  map[string]interface{} // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦距离
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
	Distance float32  // 计算的距离
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	FileIDs    []string               // 按论文ID过滤
	Metadata   map[string]interface{} // 按元数据过滤
	MinScore   float32                // 最小相似度分数
	MaxResults int                    // 最大返回结果数，<=0表示不限制
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 3,
	}
}

// Repository 向量存储接口
type Repository interface {
	// Add 添加单个文档，ID已存在时覆盖
	Add(doc Document) error

	// AddBatch 批量添加文档
	AddBatch(docs []Document) error

	// Get 获取单个文档
	Get(id string) (Document, error)

	// Delete 删除单个文档
	Delete(id string) error

	// DeleteByFileID 删除指定论文的所有片段
	DeleteByFileID(fileID string) error

	// Search 相似度搜索
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 获取文档总数
	Count() (int, error)

	// GetDimension 返回向量维数
	GetDimension() int

	// Close 关闭存储
	Close() error
}

// Config 向量存储配置
type Config struct {
	Type         string         // 存储类型："sqlite", "memory", "pgvector"
	Path         string         // sqlite存储目录
	DSN          string         // pgvector连接串
	Dimension    int            // 向量维度
	DistanceType DistanceType   // 距离计算类型
	Logger       *logrus.Logger // 日志
}

// Factory 向量存储工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量存储实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量存储工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量存储实例
func NewRepository(config Config) (Repository, error) {
	if config.DistanceType == "" {
		config.DistanceType = Cosine
	}
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		return nil, errors.New("unsupported vector store type: " + config.Type)
	}
	return factory(config)
}
