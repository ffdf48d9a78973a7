package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyerfyer/paper-rag/internal/arxiv"
	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/llm"
	applog "github.com/fyerfyer/paper-rag/internal/logger"
	"github.com/fyerfyer/paper-rag/internal/models"
	"github.com/fyerfyer/paper-rag/internal/repository"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options 一次运行的参数
type Options struct {
	PaperID         string // arXiv ID
	DocumentPath    string // 本地PDF路径
	StoreDirectory  string // 向量存储目录
	EmbeddingModel  string // 嵌入模型
	GenerationModel string // 生成模型
	ChunkSize       int    // 分块大小
	ChunkOverlap    int    // 分块重叠
	RetrievalK      int    // 检索片段数
	Query           string // 摘要请求
}

// DefaultOptions 返回默认运行参数
func DefaultOptions() Options {
	return Options{
		PaperID:         "2210.03629",
		DocumentPath:    "./react.pdf",
		StoreDirectory:  "./db",
		EmbeddingModel:  "text-embedding-3-small",
		GenerationModel: llm.ModelGPT4oMini,
		ChunkSize:       1000,
		ChunkOverlap:    200,
		RetrievalK:      3,
		Query:           DefaultQuery,
	}
}

// Validate 校验运行参数
func (o Options) Validate() error {
	if o.PaperID == "" {
		return errors.New("paper id is required")
	}
	if o.DocumentPath == "" {
		return errors.New("document path is required")
	}
	if o.RetrievalK <= 0 {
		return fmt.Errorf("retrieval k must be positive, got %d", o.RetrievalK)
	}
	return o.splitterConfig().Validate()
}

func (o Options) splitterConfig() document.SplitterConfig {
	cfg := document.DefaultSplitterConfig()
	cfg.ChunkSize = o.ChunkSize
	cfg.ChunkOverlap = o.ChunkOverlap
	return cfg
}

// DocumentAcquirer 确保论文PDF在本地存在
type DocumentAcquirer interface {
	EnsureDocument(ctx context.Context, id, dest string) (*arxiv.Result, error)
}

// Pipeline 获取、解析、分块、索引、生成摘要的完整流程
type Pipeline struct {
	opts       Options
	acquirer   DocumentAcquirer
	splitter   document.Splitter
	indexer    *IndexService
	summarizer *SummaryService
	tracker    *PaperStatusTracker
	logger     *logrus.Logger
}

// PipelineOption 流水线配置选项
type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	repo        repository.PaperRepository
	logger      *logrus.Logger
	batchSize   int
	workers     int
	ragOptions  []llm.RAGOption
	splitType   document.SplitType
	generatorTO time.Duration
}

// WithPaperRepository 设置运行记录仓储
func WithPaperRepository(repo repository.PaperRepository) PipelineOption {
	return func(c *pipelineConfig) {
		c.repo = repo
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(c *pipelineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEmbeddingConcurrency 设置嵌入批大小和并发数
func WithEmbeddingConcurrency(batchSize, workers int) PipelineOption {
	return func(c *pipelineConfig) {
		c.batchSize = batchSize
		c.workers = workers
	}
}

// WithSplitType 设置分块边界类型
func WithSplitType(splitType document.SplitType) PipelineOption {
	return func(c *pipelineConfig) {
		c.splitType = splitType
	}
}

// WithGenerationTimeout 设置生成摘要的超时时间
func WithGenerationTimeout(timeout time.Duration) PipelineOption {
	return func(c *pipelineConfig) {
		c.generatorTO = timeout
	}
}

// WithGenerationOptions 追加生成配置
func WithGenerationOptions(opts ...llm.RAGOption) PipelineOption {
	return func(c *pipelineConfig) {
		c.ragOptions = append(c.ragOptions, opts...)
	}
}

// NewPipeline 创建流水线
func NewPipeline(
	opts Options,
	acquirer DocumentAcquirer,
	embedder embedding.Client,
	store vectordb.Repository,
	generator llm.Client,
	popts ...PipelineOption,
) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if acquirer == nil || embedder == nil || store == nil || generator == nil {
		return nil, errors.New("acquirer, embedder, store and generator are required")
	}
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}

	cfg := &pipelineConfig{logger: logrus.StandardLogger()}
	for _, opt := range popts {
		opt(cfg)
	}

	splitCfg := opts.splitterConfig()
	if cfg.splitType != "" {
		splitCfg.SplitType = cfg.splitType
		if err := splitCfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
	}

	ragOptions := cfg.ragOptions
	if cfg.generatorTO > 0 {
		ragOptions = append(ragOptions, llm.WithRAGTimeout(cfg.generatorTO))
	}

	return &Pipeline{
		opts:     opts,
		acquirer: acquirer,
		splitter: document.NewTextSplitter(splitCfg),
		indexer: NewIndexService(embedder, store,
			WithIndexBatchSize(cfg.batchSize),
			WithIndexWorkers(cfg.workers),
			WithIndexLogger(cfg.logger),
		),
		summarizer: NewSummaryService(embedder, store, generator,
			WithRetrievalK(opts.RetrievalK),
			WithSummaryLogger(cfg.logger),
			WithRAGOptions(ragOptions...),
		),
		tracker: NewPaperStatusTracker(cfg.repo, cfg.logger),
		logger:  cfg.logger,
	}, nil
}

// Run 依次执行获取、解析、分块、索引和摘要
// 任一阶段失败都返回*PipelineError，由调用方负责输出
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	paperID := arxiv.NormalizeID(p.opts.PaperID)
	log := p.logger.WithFields(logrus.Fields{
		applog.FieldRunID:   runID,
		applog.FieldPaperID: paperID,
	})
	started := time.Now()
	log.Info("Pipeline started")

	p.tracker.Start(paperID, runID, p.opts.DocumentPath)

	// 获取PDF
	acquired, err := p.acquirer.EnsureDocument(ctx, paperID, p.opts.DocumentPath)
	if err != nil {
		kind := ErrIO
		if errors.Is(err, arxiv.ErrPaperNotFound) {
			kind = ErrNotFound
		}
		return nil, p.fail(log, paperID, models.StageAcquiring,
			stageError(StageAcquire, kind, fmt.Errorf("failed to acquire paper %s: %w", paperID, err)))
	}
	p.tracker.Acquired(paperID, acquired, fileSize(acquired.Path))

	// 解析
	pages, err := loadPages(acquired.Path)
	if err != nil {
		kind := ErrIO
		if errors.Is(err, document.ErrParse) {
			kind = ErrParse
		}
		return nil, p.fail(log, paperID, models.StageParsing, stageError(StageLoad, kind, err))
	}
	log.WithField("pages", len(pages)).Debug("Document loaded")

	// 分块
	p.tracker.Stage(paperID, models.StageChunking)
	segments, err := p.splitter.SplitPages(pages)
	if err != nil {
		return nil, p.fail(log, paperID, models.StageChunking, stageError(StageSplit, ErrParse, err))
	}
	if len(segments) == 0 {
		return nil, p.fail(log, paperID, models.StageChunking,
			stageError(StageSplit, ErrParse, fmt.Errorf("no extractable text in %s", acquired.Path)))
	}
	log.WithField("segments", len(segments)).Debug("Document split")

	// 向量化并写入存储
	p.tracker.Stage(paperID, models.StageVectorizing)
	count, err := p.indexer.BuildStore(ctx, paperID, segments)
	if err != nil {
		return nil, p.fail(log, paperID, models.StageVectorizing, err)
	}

	// 检索并生成摘要
	p.tracker.Stage(paperID, models.StageSummarizing)
	summary, err := p.summarizer.Answer(ctx, p.opts.Query, paperID)
	if err != nil {
		return nil, p.fail(log, paperID, models.StageSummarizing, err)
	}

	summary.RunID = runID
	summary.SegmentCount = count
	summary.Cached = acquired.Cached
	if acquired.Paper != nil {
		summary.Title = acquired.Paper.Title
	}

	p.tracker.Completed(paperID, count, map[string]interface{}{
		"embedding_model":  p.opts.EmbeddingModel,
		"generation_model": p.opts.GenerationModel,
		"chunk_size":       p.opts.ChunkSize,
		"chunk_overlap":    p.opts.ChunkOverlap,
		"retrieval_k":      p.opts.RetrievalK,
		"summary_length":   len(summary.Text),
	})
	log.WithFields(logrus.Fields{
		"segments": count,
		"cached":   acquired.Cached,
		"duration": time.Since(started).String(),
	}).Info("Pipeline completed")

	return summary, nil
}

// fail 记录失败并原样返回错误
func (p *Pipeline) fail(log *logrus.Entry, paperID string, stage models.ProcessStage, err error) error {
	p.tracker.Failed(paperID, stage, err)

	entry := log.WithFields(logrus.Fields{
		applog.FieldStage: stage,
		applog.FieldError: err.Error(),
	})
	var perr *PipelineError
	if errors.As(err, &perr) {
		entry = entry.WithField("kind", perr.Kind.Error())
	}
	entry.Info("Pipeline failed")
	return err
}

// loadPages 按文件类型读取页面，扩展名未知时按内容判断
func loadPages(path string) ([]document.Page, error) {
	loader, err := document.LoaderFactory(path)
	if err != nil {
		return nil, err
	}
	return loader.Load(path)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
