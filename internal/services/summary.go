package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/llm"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultQuery 默认的摘要请求
const DefaultQuery = "Please provide a comprehensive summary of this document."

// Source 生成摘要时使用的片段
type Source struct {
	ID    string  // 片段ID
	Page  int     // 所在页码，从0开始
	Score float32 // 相似度得分
	Text  string  // 片段文本
}

// Summary 摘要结果
type Summary struct {
	PaperID      string   // 论文ID
	Title        string   // 论文标题，本地缓存命中时可能为空
	Query        string   // 请求
	Text         string   // 摘要正文，不含markdown/HTML标记
	Sources      []Source // 检索到的上下文片段
	SegmentCount int      // 本次写入向量存储的片段数
	Cached       bool     // 是否复用了本地PDF
	RunID        string   // 运行ID
}

// SummaryService 检索相关片段并生成摘要
type SummaryService struct {
	embedder embedding.Client
	store    vectordb.Repository
	rag      *llm.RAGService
	k        int
	logger   *logrus.Logger
}

// SummaryOption 摘要服务配置选项
type SummaryOption func(*summaryOptions)

type summaryOptions struct {
	k          int
	logger     *logrus.Logger
	ragOptions []llm.RAGOption
}

// WithRetrievalK 设置检索的片段数
func WithRetrievalK(k int) SummaryOption {
	return func(o *summaryOptions) {
		if k > 0 {
			o.k = k
		}
	}
}

// WithSummaryLogger 设置日志记录器
func WithSummaryLogger(logger *logrus.Logger) SummaryOption {
	return func(o *summaryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRAGOptions 追加生成配置
func WithRAGOptions(opts ...llm.RAGOption) SummaryOption {
	return func(o *summaryOptions) {
		o.ragOptions = append(o.ragOptions, opts...)
	}
}

// NewSummaryService 创建摘要服务
func NewSummaryService(embedder embedding.Client, store vectordb.Repository, generator llm.Client, opts ...SummaryOption) *SummaryService {
	o := &summaryOptions{k: 3, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}

	return &SummaryService{
		embedder: embedder,
		store:    store,
		rag:      llm.NewRAG(generator, o.ragOptions...),
		k:        o.k,
		logger:   o.logger,
	}
}

// Answer 检索与query最相近的k个片段并生成摘要
func (s *SummaryService) Answer(ctx context.Context, query, paperID string) (*Summary, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	log := s.logger.WithField("paper_id", paperID)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, stageError(StageAnswer, ErrEmbeddingService, fmt.Errorf("failed to embed query: %w", err))
	}

	results, err := s.store.Search(vector, vectordb.SearchFilter{
		FileIDs:    []string{paperID},
		MaxResults: s.k,
	})
	if err != nil {
		return nil, stageError(StageAnswer, ErrIO, fmt.Errorf("failed to search vector store: %w", err))
	}
	if len(results) == 0 {
		return nil, stageError(StageAnswer, ErrIO, fmt.Errorf("vector store has no segments for paper %s", paperID))
	}

	contexts := make([]string, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		contexts[i] = r.Document.Text
		sources[i] = Source{
			ID:    r.Document.ID,
			Page:  pageOf(r.Document),
			Score: r.Score,
			Text:  r.Document.Text,
		}
	}
	log.WithField("retrieved", len(results)).Debug("Context retrieved")

	resp, err := s.rag.Answer(ctx, query, contexts)
	if err != nil {
		return nil, stageError(StageAnswer, ErrGeneration, fmt.Errorf("summary generation failed: %w", err))
	}
	log.WithFields(logrus.Fields{
		"prompt_chars": len(resp.Prompt),
		"tokens":       resp.TokenCount,
	}).Debug("Answer generated")

	text := document.StripMarkup(resp.Answer)
	if text == "" {
		return nil, stageError(StageAnswer, ErrGeneration, errors.New("model returned an empty summary"))
	}

	return &Summary{
		PaperID: paperID,
		Query:   query,
		Text:    text,
		Sources: sources,
	}, nil
}

// pageOf 从元数据读取页码，JSON往返后可能是float64
func pageOf(doc vectordb.Document) int {
	switch v := doc.Metadata["page"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
