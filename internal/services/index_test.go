package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fyerfyer/paper-rag/internal/document"
	"github.com/fyerfyer/paper-rag/internal/embedding"
	"github.com/fyerfyer/paper-rag/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegments() []document.Content {
	return []document.Content{
		{Text: "ReAct interleaves reasoning and acting.", Index: 0, Start: 0, End: 39, Page: 0, Source: "react.pdf"},
		{Text: "   \n ", Index: 1, Start: 39, End: 44, Page: 0, Source: "react.pdf"},
		{Text: "It is evaluated on HotpotQA and Fever.", Index: 2, Start: 44, End: 82, Page: 1, Source: "react.pdf"},
	}
}

func TestBuildStore(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewIndexService(&hashEmbedder{}, store, WithIndexBatchSize(1), WithIndexWorkers(2), WithIndexLogger(quietLogger()))

	count, err := svc.BuildStore(context.Background(), "2210.03629", testSegments())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	doc, err := store.Get("2210.03629_2")
	require.NoError(t, err)
	assert.Equal(t, "2210.03629", doc.FileID)
	assert.Equal(t, 2, doc.Position)
	assert.Equal(t, "react.pdf", doc.Metadata["source"])
	assert.Equal(t, 1, doc.Metadata["page"])
	assert.Equal(t, 44, doc.Metadata["start"])
	assert.Equal(t, 82, doc.Metadata["end"])

	_, err = store.Get("2210.03629_1")
	assert.ErrorIs(t, err, vectordb.ErrDocumentNotFound)
}

func TestBuildStoreReplacesPreviousRun(t *testing.T) {
	store := newMemoryStore(t)
	svc := NewIndexService(&hashEmbedder{}, store, WithIndexLogger(quietLogger()))

	stale := make([]float32, testDim)
	stale[0] = 1
	require.NoError(t, store.AddBatch([]vectordb.Document{
		{ID: "2210.03629_9", FileID: "2210.03629", Vector: stale},
		{ID: "other_0", FileID: "other", Vector: stale},
	}))

	_, err := svc.BuildStore(context.Background(), "2210.03629", testSegments())
	require.NoError(t, err)

	_, err = store.Get("2210.03629_9")
	assert.ErrorIs(t, err, vectordb.ErrDocumentNotFound)
	_, err = store.Get("other_0")
	assert.NoError(t, err)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBuildStoreEmbeddingFailureKeepsStore(t *testing.T) {
	store := newMemoryStore(t)
	old := make([]float32, testDim)
	old[1] = 1
	require.NoError(t, store.Add(vectordb.Document{ID: "2210.03629_0", FileID: "2210.03629", Vector: old}))

	embedder := &hashEmbedder{err: embedding.NewEmbeddingError(embedding.ErrCodeServerError, embedding.ErrMsgServerError)}
	svc := NewIndexService(embedder, store, WithIndexLogger(quietLogger()))

	_, err := svc.BuildStore(context.Background(), "2210.03629", testSegments())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingService))

	// 嵌入失败时不触碰已有数据
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuildStoreNoText(t *testing.T) {
	svc := NewIndexService(&hashEmbedder{}, newMemoryStore(t), WithIndexLogger(quietLogger()))

	_, err := svc.BuildStore(context.Background(), "2210.03629", []document.Content{{Text: "  "}})
	assert.True(t, errors.Is(err, ErrParse))
}

func TestBuildStoreWriteFailure(t *testing.T) {
	// 维度不匹配的存储会拒绝写入
	store, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: testDim + 1})
	require.NoError(t, err)
	svc := NewIndexService(&hashEmbedder{}, store, WithIndexLogger(quietLogger()))

	_, err = svc.BuildStore(context.Background(), "2210.03629", testSegments())
	assert.True(t, errors.Is(err, ErrIO))
}
