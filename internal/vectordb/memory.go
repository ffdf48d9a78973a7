package vectordb

import (
	"sync"
	"time"
)

// MemoryRepository 内存向量存储实现
// 用于测试和一次性运行，进程退出后数据丢失
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	documents map[string]Document
}

// NewMemoryRepository 创建内存向量存储
func NewMemoryRepository(config Config) (Repository, error) {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
		documents: make(map[string]Document),
	}, nil
}

// Add 添加单个文档
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档，任一文档无效时不写入
func (r *MemoryRepository) AddBatch(docs []Document) error {
	for _, doc := range docs {
		if err := validateDocument(doc, r.dimension); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, doc := range docs {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		// 复制向量，避免调用方后续修改
		doc.Vector = append([]float32(nil), doc.Vector...)
		r.documents[doc.ID] = doc
	}
	return nil
}

// Get 获取单个文档
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(r.documents, id)
	return nil
}

// DeleteByFileID 删除指定论文的所有片段
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, doc := range r.documents {
		if doc.FileID == fileID {
			delete(r.documents, id)
		}
	}
	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	docs := make([]Document, 0, len(r.documents))
	for _, doc := range r.documents {
		docs = append(docs, doc)
	}
	r.mu.RUnlock()

	return rankDocuments(vector, docs, filter, r.distType)
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭存储
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
