package services

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fyerfyer/paper-rag/internal/arxiv"
	"github.com/fyerfyer/paper-rag/internal/database"
	"github.com/fyerfyer/paper-rag/internal/llm"
	"github.com/fyerfyer/paper-rag/internal/models"
	"github.com/fyerfyer/paper-rag/internal/repository"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testDim = 16

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// paperPDF 生成一篇多页的测试论文
func paperPDF(t *testing.T) []byte {
	t.Helper()
	pages := []string{
		"ReAct: Synergizing Reasoning and Acting in Language Models. " +
			"We explore the use of large language models to generate both reasoning traces and task-specific actions in an interleaved manner. " +
			"Reasoning traces help the model induce, track, and update action plans as well as handle exceptions.",
		"Actions allow the model to interface with external sources such as knowledge bases or environments to gather additional information. " +
			"On question answering with HotpotQA and fact verification with Fever, ReAct overcomes hallucination and error propagation.",
		"On two interactive decision making benchmarks, ALFWorld and WebShop, ReAct outperforms imitation and reinforcement learning methods " +
			"by an absolute success rate of 34% and 10% respectively, while being prompted with only one or two in-context examples.",
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// fakeSource 模拟arXiv，统计网络调用次数
type fakeSource struct {
	pdf       []byte
	notFound  bool
	lookups   int32
	downloads int32
}

func (f *fakeSource) Lookup(ctx context.Context, id string) (*arxiv.Paper, error) {
	atomic.AddInt32(&f.lookups, 1)
	if f.notFound {
		return nil, fmt.Errorf("%w: %s", arxiv.ErrPaperNotFound, id)
	}
	return &arxiv.Paper{
		ID:      id,
		Title:   "ReAct: Synergizing Reasoning and Acting in Language Models",
		Authors: []string{"Shunyu Yao", "Jeffrey Zhao"},
		PDFURL:  "http://arxiv.test/pdf/" + id,
	}, nil
}

func (f *fakeSource) Download(ctx context.Context, paper *arxiv.Paper, w io.Writer) error {
	atomic.AddInt32(&f.downloads, 1)
	_, err := w.Write(f.pdf)
	return err
}

// hashEmbedder 按词哈希生成确定性的向量
type hashEmbedder struct {
	err   error
	calls int32
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, testDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			v[h.Sum32()%testDim]++
		}
		v[0] += 0.01
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Name() string {
	return "hash-embedder"
}

// fakeChat 记录收到的消息并返回固定回答
type fakeChat struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests [][]llm.Message
}

func (c *fakeChat) Generate(ctx context.Context, prompt string, options ...llm.RequestOption) (*llm.Response, error) {
	return c.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (c *fakeChat) Chat(ctx context.Context, messages []llm.Message, options ...llm.RequestOption) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, messages)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.answer, ModelName: "fake"}, nil
}

func (c *fakeChat) Name() string {
	return "fake"
}

func (c *fakeChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func newMemoryStore(t *testing.T) vectordb.Repository {
	t.Helper()
	store, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: testDim})
	require.NoError(t, err)
	return store
}

func newPaperRepo(t *testing.T) repository.PaperRepository {
	t.Helper()
	db, err := database.Open(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "papers.db"),
	}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, &models.Paper{}))
	t.Cleanup(func() { _ = database.Close(db) })
	return repository.NewPaperRepository(db)
}
