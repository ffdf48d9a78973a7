package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyerfyer/paper-rag/internal/arxiv"
	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/llm"
	"github.com/fyerfyer/paper-rag/internal/models"
	"github.com/fyerfyer/paper-rag/internal/repository"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	source   *fakeSource
	embedder *hashEmbedder
	chat     *fakeChat
	store    vectordb.Repository
	repo     repository.PaperRepository
	opts     Options
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	opts := DefaultOptions()
	opts.DocumentPath = filepath.Join(t.TempDir(), "react.pdf")
	opts.ChunkSize = 200
	opts.ChunkOverlap = 40

	return &pipelineFixture{
		source:   &fakeSource{pdf: paperPDF(t)},
		embedder: &hashEmbedder{},
		chat:     &fakeChat{answer: "**ReAct** interleaves <em>reasoning</em> traces and actions.\n\n- It reduces hallucination."},
		store:    newMemoryStore(t),
		repo:     newPaperRepo(t),
		opts:     opts,
	}
}

func (f *pipelineFixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	acquirer := arxiv.NewAcquirer(f.source, arxiv.WithProgress(io.Discard), arxiv.WithAcquirerLogger(quietLogger()))
	p, err := NewPipeline(f.opts, acquirer, f.embedder, f.store, f.chat,
		WithPaperRepository(f.repo),
		WithPipelineLogger(quietLogger()),
		WithEmbeddingConcurrency(2, 2),
	)
	require.NoError(t, err)
	return p
}

func TestPipelineDocumentPathWithoutExtension(t *testing.T) {
	f := newFixture(t)
	f.opts.DocumentPath = filepath.Join(t.TempDir(), "react")

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.source.downloads)
	assert.FileExists(t, f.opts.DocumentPath)
	assert.Greater(t, summary.SegmentCount, 1)
	assert.Equal(t, 1, f.chat.calls())
}

func TestPipelineColdStart(t *testing.T) {
	f := newFixture(t)

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.source.downloads)
	assert.FileExists(t, f.opts.DocumentPath)
	assert.False(t, summary.Cached)
	assert.Equal(t, "ReAct: Synergizing Reasoning and Acting in Language Models", summary.Title)
	assert.NotEmpty(t, summary.RunID)

	// 摘要不含标记
	assert.NotEmpty(t, summary.Text)
	assert.Contains(t, summary.Text, "ReAct interleaves reasoning traces and actions.")
	assert.NotContains(t, summary.Text, "<")
	assert.NotContains(t, summary.Text, "**")

	count, err := f.store.Count()
	require.NoError(t, err)
	assert.Greater(t, count, 1)
	assert.Equal(t, count, summary.SegmentCount)
	assert.Len(t, summary.Sources, 3)

	require.Equal(t, 1, f.chat.calls())
	msgs := f.chat.requests[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Context: ")
	assert.Contains(t, msgs[0].Content, summary.Sources[0].Text)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, DefaultQuery, msgs[1].Content)

	paper, err := f.repo.GetByID("2210.03629")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusCompleted, paper.Status)
	assert.Equal(t, count, paper.SegmentCount)
	assert.Equal(t, summary.RunID, paper.RunID)
	assert.Equal(t, "Shunyu Yao, Jeffrey Zhao", paper.Authors)
	assert.NotNil(t, paper.FetchedAt)
	assert.Positive(t, paper.FileSize)
}

func TestPipelineCacheHit(t *testing.T) {
	f := newFixture(t)

	first, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	second, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.source.lookups)
	assert.EqualValues(t, 1, f.source.downloads)
	assert.True(t, second.Cached)

	// 重建而不是累积
	count, err := f.store.Count()
	require.NoError(t, err)
	assert.Equal(t, first.SegmentCount, count)
	assert.Equal(t, first.SegmentCount, second.SegmentCount)

	// 相同输入得到相同的检索结果
	require.Equal(t, 2, f.chat.calls())
	assert.Equal(t, f.chat.requests[0], f.chat.requests[1])

	paper, err := f.repo.GetByID("2210.03629")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, paper.RunID)
	// 缓存命中时保留首次下载的标题
	assert.Equal(t, first.Title, paper.Title)
}

func TestPipelineQuestionTemplate(t *testing.T) {
	f := newFixture(t)
	f.opts.Query = "Which benchmarks does ReAct use?"
	acquirer := arxiv.NewAcquirer(f.source, arxiv.WithProgress(io.Discard))
	p, err := NewPipeline(f.opts, acquirer, f.embedder, f.store, f.chat,
		WithPipelineLogger(quietLogger()),
		WithSplitType(document.BySentence),
		WithGenerationOptions(llm.WithQuestionAnswering()),
	)
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.opts.Query, summary.Query)

	require.Equal(t, 1, f.chat.calls())
	msgs := f.chat.requests[0]
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[1] "+summary.Sources[0].Text)
	assert.Contains(t, msgs[0].Content, "Question: Which benchmarks does ReAct use?")
}

func TestPipelineUnknownSplitType(t *testing.T) {
	f := newFixture(t)
	_, err := NewPipeline(f.opts, arxiv.NewAcquirer(f.source), f.embedder, f.store, f.chat,
		WithSplitType(document.SplitType("semantic")))
	assert.Error(t, err)
}

func TestPipelineNotFound(t *testing.T) {
	f := newFixture(t)
	f.source.notFound = true
	f.opts.PaperID = "0000.00000"

	summary, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, arxiv.ErrPaperNotFound))

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageAcquire, perr.Stage)
	assert.Contains(t, err.Error(), "0000.00000")

	assert.NoFileExists(t, f.opts.DocumentPath)
	assert.EqualValues(t, 0, f.source.downloads)
	assert.Equal(t, 0, f.chat.calls())

	paper, err := f.repo.GetByID("0000.00000")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusFailed, paper.Status)
	assert.Equal(t, models.StageAcquiring, paper.Stage)
}

func TestPipelineParseError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.opts.DocumentPath, []byte("this is not a pdf"), 0644))

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.EqualValues(t, 0, f.source.downloads)
	assert.EqualValues(t, 0, f.embedder.calls)
}

func TestPipelineEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = embedding.NewEmbeddingError(embedding.ErrCodeRateLimited, "rate limited")

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingService))

	var embErr embedding.EmbeddingError
	assert.True(t, errors.As(err, &embErr))

	count, err := f.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.chat.calls())

	paper, err := f.repo.GetByID("2210.03629")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusFailed, paper.Status)
	assert.Equal(t, models.StageVectorizing, paper.Stage)
}

func TestPipelineGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.chat.err = llm.NewLLMError(llm.ErrCodeServerError, llm.ErrMsgServerError)

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageAnswer, perr.Stage)
}

func TestPipelineWithoutLedger(t *testing.T) {
	f := newFixture(t)
	acquirer := arxiv.NewAcquirer(f.source, arxiv.WithProgress(io.Discard))
	p, err := NewPipeline(f.opts, acquirer, f.embedder, f.store, f.chat, WithPipelineLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.Text)
}

func TestNewPipelineInvalidOptions(t *testing.T) {
	f := newFixture(t)
	acquirer := arxiv.NewAcquirer(f.source)

	opts := f.opts
	opts.ChunkOverlap = opts.ChunkSize
	_, err := NewPipeline(opts, acquirer, f.embedder, f.store, f.chat)
	assert.Error(t, err)

	opts = f.opts
	opts.RetrievalK = 0
	_, err = NewPipeline(opts, acquirer, f.embedder, f.store, f.chat)
	assert.Error(t, err)

	_, err = NewPipeline(f.opts, acquirer, nil, f.store, f.chat)
	assert.Error(t, err)
}

func TestPipelineErrorClassification(t *testing.T) {
	cause := errors.New("disk full")
	err := error(stageError(StageIndex, ErrIO, cause))

	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrParse))
	assert.Equal(t, "disk full", err.Error())
	assert.Equal(t, "io error", stageError(StageIndex, ErrIO, nil).Error())
}
