package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fyerfyer/paper-rag/config"
	"github.com/fyerfyer/paper-rag/internal/arxiv"
	"github.com/fyerfyer/paper-rag/internal/cache"
	"github.com/fyerfyer/paper-rag/internal/database"
	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/llm"
	"github.com/fyerfyer/paper-rag/internal/logger"
	"github.com/fyerfyer/paper-rag/internal/models"
	"github.com/fyerfyer/paper-rag/internal/repository"
	"github.com/fyerfyer/paper-rag/internal/services"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/fyerfyer/paper-rag/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	loadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// execute 运行根命令，失败时输出一行错误并返回1
func execute(ctx context.Context, args []string, stdout io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(stdout, err)
		return 1
	}
	return 0
}

// loadDotEnv 从当前目录的.env加载环境变量
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "paper-rag",
		Short:         "Download an arXiv paper and summarize it with retrieval-augmented generation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			summary, err := run(cmd.Context(), cfg, stdout)
			if err != nil {
				return err
			}
			printSummary(stdout, summary)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml if present)")

	flags := cmd.Flags()
	flags.String("paper", "2210.03629", "arXiv identifier of the paper")
	flags.String("pdf", "./react.pdf", "local path of the cached PDF")
	flags.String("query", services.DefaultQuery, "summary request sent to the model")
	flags.String("store", "./db", "vector store directory")
	flags.String("store-type", "sqlite", "vector store backend (sqlite, memory, pgvector)")
	flags.String("embed-model", "text-embedding-3-small", "embedding model")
	flags.Int("dim", 0, "vector dimension (0 infers it from the embedding model)")
	flags.String("llm-model", llm.ModelGPT4oMini, "generation model")
	flags.String("template", "summary", "prompt template (summary, qa)")
	flags.Int("chunk-size", 1000, "segment length in characters")
	flags.Int("chunk-overlap", 200, "overlap between consecutive segments")
	flags.String("split-type", string(document.ByParagraph), "segment boundaries (paragraph, sentence, length)")
	flags.Int("k", 3, "number of segments retrieved as context")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newRunsCmd(stdout, &configPath))
	return cmd
}

// newRunsCmd 列出运行记录
func newRunsCmd(stdout io.Writer, configPath *string) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List papers recorded in the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch models.PaperStatus(status) {
			case "", models.PaperStatusProcessing, models.PaperStatusCompleted, models.PaperStatusFailed:
			default:
				return fmt.Errorf("%w: %s", models.ErrInvalidPaperStatus, status)
			}

			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			log := setupLogger(cfg)

			db := setupDatabase(cfg, log)
			if db == nil {
				return fmt.Errorf("run ledger %s is unavailable", cfg.Database.DSN)
			}
			defer database.Close(db)

			papers, total, err := repository.NewPaperRepository(db).List(0, limit, models.PaperStatus(status))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			printRuns(stdout, papers, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show runs with this status (processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	return cmd
}

// printRuns 按列输出运行记录
func printRuns(w io.Writer, papers []*models.Paper, total int64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAPER\tSTATUS\tSTAGE\tSEGMENTS\tUPDATED\tTITLE")
	for _, p := range papers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Status, p.Stage, p.SegmentCount, p.UpdatedAt.Format(time.RFC3339), p.Title)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d of %d runs\n", len(papers), total)
}

// run 按配置组装依赖并执行流水线
func run(ctx context.Context, cfg *config.Config, stdout io.Writer) (*services.Summary, error) {
	log := setupLogger(cfg)

	embedder, closeCache, err := setupEmbedding(cfg, log)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	generator, err := setupLLM(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := setupVectorDB(cfg, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	db := setupDatabase(cfg, log)
	defer database.Close(db)

	var popts []services.PipelineOption
	if db != nil {
		popts = append(popts, services.WithPaperRepository(repository.NewPaperRepository(db)))
	}
	popts = append(popts,
		services.WithPipelineLogger(log),
		services.WithEmbeddingConcurrency(cfg.Embed.BatchSize, cfg.Embed.Workers),
		services.WithSplitType(document.SplitType(cfg.Document.SplitType)),
		services.WithGenerationTimeout(cfg.LLM.Timeout),
		services.WithGenerationOptions(ragOptions(cfg)...),
	)

	pipeline, err := services.NewPipeline(
		optionsFromConfig(cfg),
		setupAcquirer(cfg, log, stdout),
		embedder,
		store,
		generator,
		popts...,
	)
	if err != nil {
		return nil, err
	}

	return pipeline.Run(ctx)
}

// ragOptions 生成参数，qa模板把--query当作问题回答
func ragOptions(cfg *config.Config) []llm.RAGOption {
	opts := []llm.RAGOption{
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
	}
	if cfg.LLM.Template == "qa" {
		opts = append(opts, llm.WithQuestionAnswering())
	}
	return opts
}

// optionsFromConfig 从配置构建运行参数
func optionsFromConfig(cfg *config.Config) services.Options {
	return services.Options{
		PaperID:         cfg.Paper.ID,
		DocumentPath:    cfg.Paper.DocumentPath,
		StoreDirectory:  cfg.VectorDB.Path,
		EmbeddingModel:  cfg.Embed.Model,
		GenerationModel: cfg.LLM.Model,
		ChunkSize:       cfg.Document.ChunkSize,
		ChunkOverlap:    cfg.Document.ChunkOverlap,
		RetrievalK:      cfg.Search.Limit,
		Query:           cfg.Paper.Query,
	}
}

// printSummary 输出摘要
func printSummary(w io.Writer, summary *services.Summary) {
	fmt.Fprintf(w, "\nDocument Summary:\n%s\n%s\n", strings.Repeat("-", 50), summary.Text)
}

// reportError 把错误压成一行输出
func reportError(w io.Writer, err error) {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	fmt.Fprintf(w, "Error: %s\n", msg)
}

// setupLogger 设置日志系统
func setupLogger(cfg *config.Config) *logrus.Logger {
	return logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Output:     os.Stderr,
	})
}

// setupEmbedding 设置嵌入模型，启用缓存时包装为CachedClient
func setupEmbedding(cfg *config.Config, log *logrus.Logger) (embedding.Client, func(), error) {
	noop := func() {}

	client, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithTimeout(cfg.Embed.Timeout),
		embedding.WithMaxRetries(cfg.Embed.MaxRetries),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
		embedding.WithLogger(log),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	if !cfg.Cache.Enable {
		return client, noop, nil
	}

	ttl := time.Duration(cfg.Cache.TTL) * time.Second
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cfg.Cache.Type
	cacheCfg.RedisAddr = cfg.Cache.Address
	cacheCfg.RedisPassword = cfg.Cache.Password
	cacheCfg.RedisDB = cfg.Cache.DB
	cacheCfg.DefaultTTL = ttl

	c, err := cache.NewCache(cacheCfg)
	if err != nil {
		// 缓存不可用时直接调用嵌入服务
		log.WithError(err).Warn("Embedding cache unavailable, continuing without it")
		return client, noop, nil
	}

	closeCache := noop
	if closer, ok := c.(io.Closer); ok {
		closeCache = func() { _ = closer.Close() }
	}
	return embedding.NewCachedClient(client, c, ttl, log), closeCache, nil
}

// setupLLM 设置大语言模型
func setupLLM(cfg *config.Config, log *logrus.Logger) (llm.Client, error) {
	client, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.Endpoint),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

// setupVectorDB 设置向量存储
func setupVectorDB(cfg *config.Config, log *logrus.Logger) (vectordb.Repository, error) {
	dim, err := resolveDimension(cfg)
	if err != nil {
		return nil, err
	}

	store, err := vectordb.NewRepository(vectordb.Config{
		Type:         cfg.VectorDB.Type,
		Path:         cfg.VectorDB.Path,
		DSN:          cfg.VectorDB.DSN,
		Dimension:    dim,
		DistanceType: vectordb.DistanceType(cfg.VectorDB.Distance),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return store, nil
}

// resolveDimension 确定向量维度，未配置时按嵌入模型推断
func resolveDimension(cfg *config.Config) (int, error) {
	dim := cfg.VectorDB.Dim
	if dim == 0 {
		dim = embedding.NewConfig(
			embedding.WithModel(cfg.Embed.Model),
			embedding.WithDimensions(cfg.Embed.Dimensions),
		).Dimension()
	}
	if dim == 0 {
		return 0, fmt.Errorf("cannot infer vector dimension for embedding model %s, set --dim", cfg.Embed.Model)
	}
	if cfg.Embed.Dimensions > 0 && cfg.Embed.Dimensions != dim {
		return 0, fmt.Errorf("embed.dimensions (%d) does not match vectordb.dim (%d)", cfg.Embed.Dimensions, dim)
	}
	return dim, nil
}

// setupDatabase 打开运行记录数据库，失败时返回nil，不影响流水线
func setupDatabase(cfg *config.Config, log *logrus.Logger) *gorm.DB {
	db, err := database.Open(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, log)
	if err != nil {
		log.WithError(err).Warn("Run ledger unavailable")
		return nil
	}
	if err := database.Migrate(db, &models.Paper{}); err != nil {
		log.WithError(err).Warn("Run ledger unavailable")
		_ = database.Close(db)
		return nil
	}
	return db
}

// setupStorage 设置论文镜像存储，未配置时返回nil
func setupStorage(cfg *config.Config, log *logrus.Logger) storage.Storage {
	if cfg.Storage.Type == "" {
		return nil
	}

	mirror, err := storage.New(storage.Config{
		Type:  cfg.Storage.Type,
		Local: storage.LocalConfig{Path: cfg.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    "arxiv/",
		},
	})
	if err != nil {
		log.WithError(err).Warn("Paper mirror unavailable")
		return nil
	}
	return mirror
}

// setupAcquirer 设置论文获取器，进度信息写到stdout
func setupAcquirer(cfg *config.Config, log *logrus.Logger, stdout io.Writer) *arxiv.Acquirer {
	source := arxiv.NewHTTPSource(
		arxiv.WithBaseURL(cfg.ArXiv.BaseURL),
		arxiv.WithTimeout(cfg.ArXiv.Timeout),
		arxiv.WithUserAgent(cfg.ArXiv.UserAgent),
		arxiv.WithLogger(log),
	)

	opts := []arxiv.AcquirerOption{
		arxiv.WithProgress(stdout),
		arxiv.WithAcquirerLogger(log),
	}
	if mirror := setupStorage(cfg, log); mirror != nil {
		opts = append(opts, arxiv.WithMirror(mirror))
	}
	return arxiv.NewAcquirer(source, opts...)
}
