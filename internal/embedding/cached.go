package embedding

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/fyerfyer/paper-rag/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 以模型名和文本摘要为键缓存向量，同一段文本不会重复请求嵌入服务
type CachedClient struct {
	Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 包装嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CachedClient{Client: client, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedClient) key(text string) string {
	return cache.GenerateCacheKey("embed", c.Client.Name(), cache.HashText(text))
}

// lookup 读取缓存，读失败视为未命中
func (c *CachedClient) lookup(text string) ([]float32, bool) {
	value, found, err := c.cache.Get(c.key(text))
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal([]byte(value), &vector); err != nil || len(vector) == 0 {
		return nil, false
	}
	return vector, true
}

func (c *CachedClient) store(text string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.cache.Set(c.key(text), string(data), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to write embedding cache")
	}
}

// Embed 生成单条文本的向量表示
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := c.lookup(text); ok {
		return vector, nil
	}
	vector, err := c.Client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, vector)
	return vector, nil
}

// EmbedBatch 只对未命中缓存的文本发起一次批量请求
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missTexts   []string
		missIndices []int
	)
	for i, text := range texts {
		if vector, ok := c.lookup(text); ok {
			results[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	c.logger.WithFields(logrus.Fields{
		"total":  len(texts),
		"misses": len(missTexts),
	}).Debug("Embedding cache lookup")

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.Client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
	}
	for j, idx := range missIndices {
		results[idx] = vectors[j]
		c.store(missTexts[j], vectors[j])
	}
	return results, nil
}
