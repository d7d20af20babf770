package retriever_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/index"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/retriever"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// letterEmbedder 向量为 a/b 两个字母的出现次数。
type letterEmbedder struct{ failQuery bool }

func (letterEmbedder) Name() string { return "letters" }

func (e letterEmbedder) vec(s string) []float32 {
	return []float32{float32(strings.Count(s, "a")), float32(strings.Count(s, "b")) + 0.01}
}

func (e letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func (e letterEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	if e.failQuery {
		return nil, stderrors.New("timeout")
	}
	return e.vec(text), nil
}

func buildIndex(t *testing.T, e letterEmbedder, texts ...string) *index.Index {
	t.Helper()
	chunks := make([]textutil.Chunk, len(texts))
	for i, s := range texts {
		chunks[i] = textutil.Chunk{Text: s, Seq: i}
	}
	idx, err := index.Build(context.Background(), e, chunks, index.Options{})
	require.NoError(t, err)
	return idx
}

func TestRetrieve_WithinBudget(t *testing.T) {
	idx := buildIndex(t, letterEmbedder{}, "aaaa", "bbbb", "aabb")

	got, err := retriever.Retrieve(context.Background(), idx, "a", retriever.Options{TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, "aaaa\n\naabb", got.Text)
	assert.Len(t, got.Hits, 2)
	assert.Zero(t, got.Dropped)
	assert.False(t, got.Truncated)
}

func TestRetrieve_DropsLowestScoring(t *testing.T) {
	idx := buildIndex(t, letterEmbedder{}, "aaaaaaaaaa", "bbbbbbbbbb", "aaaaabbbbb")

	// 三块共 34 字符，超出 15 的预算，从得分最低的块开始丢弃
	got, err := retriever.Retrieve(context.Background(), idx, "a", retriever.Options{TopK: 3, MaxChars: 15})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaa", got.Text)
	assert.Equal(t, 2, got.Dropped)
	assert.False(t, got.Truncated)
}

func TestRetrieve_TruncatesSingleOversizedChunk(t *testing.T) {
	idx := buildIndex(t, letterEmbedder{}, strings.Repeat("a", 50))

	got, err := retriever.Retrieve(context.Background(), idx, "a", retriever.Options{MaxChars: 20})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 20), got.Text)
	assert.True(t, got.Truncated)
}

func TestRetrieve_CustomSeparator(t *testing.T) {
	idx := buildIndex(t, letterEmbedder{}, "aa", "ab")

	got, err := retriever.Retrieve(context.Background(), idx, "a", retriever.Options{Separator: "\n---\n"})
	require.NoError(t, err)
	assert.Equal(t, "aa\n---\nab", got.Text)
}

func TestRetrieve_QueryEmbeddingFails(t *testing.T) {
	idx := buildIndex(t, letterEmbedder{failQuery: true}, "aa")

	_, err := retriever.Retrieve(context.Background(), idx, "a", retriever.Options{})
	assert.True(t, stderrors.Is(err, errors.ErrEmbeddingUnavailable))
}
