package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fyerfyer/paper-rag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryAnswer(t *testing.T) {
	store := newMemoryStore(t)
	embedder := &hashEmbedder{}
	_, err := NewIndexService(embedder, store, WithIndexLogger(quietLogger())).
		BuildStore(context.Background(), "2210.03629", testSegments())
	require.NoError(t, err)

	chat := &fakeChat{answer: "# Summary\n\nReAct combines *reasoning* and acting."}
	svc := NewSummaryService(embedder, store, chat, WithRetrievalK(3), WithSummaryLogger(quietLogger()))

	summary, err := svc.Answer(context.Background(), "", "2210.03629")
	require.NoError(t, err)

	assert.Equal(t, DefaultQuery, summary.Query)
	assert.Equal(t, "Summary\n\nReAct combines reasoning and acting.", summary.Text)
	// 只有两个非空片段，少于k
	require.Len(t, summary.Sources, 2)
	assert.GreaterOrEqual(t, summary.Sources[0].Score, summary.Sources[1].Score)
}

func TestSummaryKeepsAnswerText(t *testing.T) {
	store := newMemoryStore(t)
	embedder := &hashEmbedder{}
	_, err := NewIndexService(embedder, store, WithIndexLogger(quietLogger())).
		BuildStore(context.Background(), "2210.03629", testSegments())
	require.NoError(t, err)

	answer := "ReAct loops through three steps:\n\n1. Reason\n2. Act\n3. Observe\n\nIt helps when a<b and c>d."
	svc := NewSummaryService(embedder, store, &fakeChat{answer: answer}, WithSummaryLogger(quietLogger()))

	summary, err := svc.Answer(context.Background(), DefaultQuery, "2210.03629")
	require.NoError(t, err)
	assert.Equal(t, answer, summary.Text)
}

func TestSummaryOtherPaperIsolated(t *testing.T) {
	store := newMemoryStore(t)
	embedder := &hashEmbedder{}
	_, err := NewIndexService(embedder, store, WithIndexLogger(quietLogger())).
		BuildStore(context.Background(), "other", testSegments())
	require.NoError(t, err)

	chat := &fakeChat{answer: "unused"}
	svc := NewSummaryService(embedder, store, chat, WithSummaryLogger(quietLogger()))

	_, err = svc.Answer(context.Background(), DefaultQuery, "2210.03629")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
	assert.Equal(t, 0, chat.calls())
}

func TestSummaryErrors(t *testing.T) {
	store := newMemoryStore(t)
	embedder := &hashEmbedder{}
	_, err := NewIndexService(embedder, store, WithIndexLogger(quietLogger())).
		BuildStore(context.Background(), "2210.03629", testSegments())
	require.NoError(t, err)

	t.Run("query embedding fails", func(t *testing.T) {
		failing := &hashEmbedder{err: errors.New("connection refused")}
		svc := NewSummaryService(failing, store, &fakeChat{answer: "x"}, WithSummaryLogger(quietLogger()))
		_, err := svc.Answer(context.Background(), DefaultQuery, "2210.03629")
		assert.True(t, errors.Is(err, ErrEmbeddingService))
	})

	t.Run("model fails", func(t *testing.T) {
		chat := &fakeChat{err: llm.NewLLMError(llm.ErrCodeTimeout, llm.ErrMsgTimeout)}
		svc := NewSummaryService(embedder, store, chat, WithSummaryLogger(quietLogger()))
		_, err := svc.Answer(context.Background(), DefaultQuery, "2210.03629")
		assert.True(t, errors.Is(err, ErrGeneration))

		var llmErr llm.LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, llm.ErrCodeTimeout, llmErr.Code)
	})

	t.Run("answer is only markup", func(t *testing.T) {
		svc := NewSummaryService(embedder, store, &fakeChat{answer: "<p></p>"}, WithSummaryLogger(quietLogger()))
		_, err := svc.Answer(context.Background(), DefaultQuery, "2210.03629")
		assert.True(t, errors.Is(err, ErrGeneration))
	})
}
