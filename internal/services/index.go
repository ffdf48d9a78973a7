package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// IndexService 将论文片段向量化并写入向量存储
type IndexService struct {
	embedder  embedding.Client    // 嵌入模型客户端
	store     vectordb.Repository // 向量存储
	batchSize int                 // 单次嵌入请求的片段数
	workers   int                 // 并发请求数
	logger    *logrus.Logger
}

// IndexOption 索引服务配置选项
type IndexOption func(*IndexService)

// WithIndexBatchSize 设置嵌入批大小
func WithIndexBatchSize(size int) IndexOption {
	return func(s *IndexService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithIndexWorkers 设置并发嵌入请求数
func WithIndexWorkers(workers int) IndexOption {
	return func(s *IndexService) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithIndexLogger 设置日志记录器
func WithIndexLogger(logger *logrus.Logger) IndexOption {
	return func(s *IndexService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIndexService 创建索引服务
func NewIndexService(embedder embedding.Client, store vectordb.Repository, opts ...IndexOption) *IndexService {
	s := &IndexService{
		embedder:  embedder,
		store:     store,
		batchSize: 64,
		workers:   4,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildStore 重建指定论文在向量存储中的片段，返回写入的片段数
// 先嵌入全部片段，全部成功后才清除旧数据并写入
func (s *IndexService) BuildStore(ctx context.Context, paperID string, segments []document.Content) (int, error) {
	log := s.logger.WithField("paper_id", paperID)

	kept := make([]document.Content, 0, len(segments))
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		kept = append(kept, seg)
		texts = append(texts, seg.Text)
	}
	if len(kept) == 0 {
		return 0, stageError(StageIndex, ErrParse, fmt.Errorf("no text segments to index for paper %s", paperID))
	}

	start := time.Now()
	processor := embedding.NewBatchProcessor(s.embedder, s.batchSize, s.workers)
	vectors, err := processor.Process(ctx, texts)
	if err != nil {
		return 0, stageError(StageIndex, ErrEmbeddingService, fmt.Errorf("failed to embed segments: %w", err))
	}
	log.WithFields(logrus.Fields{
		"segments": len(kept),
		"duration": time.Since(start).String(),
	}).Debug("Segments embedded")

	now := time.Now()
	docs := make([]vectordb.Document, len(kept))
	for i, seg := range kept {
		docs[i] = vectordb.Document{
			ID:        fmt.Sprintf("%s_%d", paperID, seg.Index),
			FileID:    paperID,
			FileName:  seg.Source,
			Position:  seg.Index,
			Text:      seg.Text,
			Vector:    vectors[i],
			CreatedAt: now,
			Metadata: map[string]interface{}{
				"source": seg.Source,
				"page":   seg.Page,
				"start":  seg.Start,
				"end":    seg.End,
			},
		}
	}

	if err := s.store.DeleteByFileID(paperID); err != nil {
		return 0, stageError(StageIndex, ErrIO, fmt.Errorf("failed to clear previous segments: %w", err))
	}
	if err := s.store.AddBatch(docs); err != nil {
		return 0, stageError(StageIndex, ErrIO, fmt.Errorf("failed to write vector store: %w", err))
	}

	log.WithField("segments", len(docs)).Info("Vector store built")
	return len(docs), nil
}
