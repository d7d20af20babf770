// Package index 提供单次请求内的内存向量索引。
//
// 索引生命周期：Build 阶段只追加，构建完成后只读，查询可并发。
// 索引持有构建时使用的 Embedder，查询向量由同一实例生成，避免混用向量空间。
package index

import (
	"context"
	"sort"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/llm"
)

const (
	// DefaultTopK 默认返回的结果数。
	DefaultTopK = 4
	// DefaultBatchSize 每次向量化请求的文本数。
	DefaultBatchSize = 16
)

// Hit 查询结果。
type Hit struct {
	Chunk textutil.Chunk `json:"chunk"`
	Score float64        `json:"score"`
}

// Options 构建参数。
type Options struct {
	BatchSize int
}

// Index 文档块及其向量。
type Index struct {
	embedder llm.EmbeddingProvider
	chunks   []textutil.Chunk
	vectors  [][]float32
	dim      int
}

// Build 为所有文档块生成向量。任何一个块失败都会导致整体失败，不返回部分索引。
func Build(ctx context.Context, embedder llm.EmbeddingProvider, chunks []textutil.Chunk, opts Options) (*Index, error) {
	if embedder == nil {
		return nil, errors.ErrEmbeddingUnavailable
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	idx := &Index{
		embedder: embedder,
		chunks:   make([]textutil.Chunk, 0, len(chunks)),
		vectors:  make([][]float32, 0, len(chunks)),
	}

	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, errors.ErrEmbeddingUnavailable.
				WithMessagef("embedding chunks %d-%d with %s failed", start, end-1, embedder.Name()).
				WithCause(err)
		}
		if len(vectors) != len(texts) {
			return nil, errors.ErrEmbeddingUnavailable.
				WithMessagef("embedder %s returned %d vectors for %d chunks", embedder.Name(), len(vectors), len(texts))
		}

		for i, v := range vectors {
			if err := idx.checkDim(v); err != nil {
				return nil, err
			}
			idx.chunks = append(idx.chunks, chunks[start+i])
			idx.vectors = append(idx.vectors, v)
		}
	}

	logger.Debugw("index built", "chunks", len(idx.chunks), "dimension", idx.dim, "embedder", embedder.Name())
	return idx, nil
}

func (ix *Index) checkDim(v []float32) error {
	if len(v) == 0 {
		return errors.ErrEmbeddingUnavailable.WithMessage("embedder returned an empty vector")
	}
	if ix.dim == 0 {
		ix.dim = len(v)
		return nil
	}
	if len(v) != ix.dim {
		return errors.ErrEmbeddingUnavailable.WithMessagef("vector dimension mismatch: got %d, want %d", len(v), ix.dim)
	}
	return nil
}

// Len 返回索引中的块数。
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Dimension 返回向量维度，空索引为 0。
func (ix *Index) Dimension() int {
	return ix.dim
}

// Query 返回与 text 最相似的 k 个块，按得分降序、得分相同时按块序号升序。
// k <= 0 时使用 DefaultTopK。
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if len(ix.chunks) == 0 {
		return nil, nil
	}

	q, err := ix.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, errors.ErrEmbeddingUnavailable.WithMessage("embedding query failed").WithCause(err)
	}
	if len(q) != ix.dim {
		return nil, errors.ErrEmbeddingUnavailable.WithMessagef("query dimension mismatch: got %d, want %d", len(q), ix.dim)
	}

	hits := make([]Hit, len(ix.chunks))
	for i, v := range ix.vectors {
		hits[i] = Hit{Chunk: ix.chunks[i], Score: textutil.CosineSimilarity(q, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Seq < hits[j].Chunk.Seq
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}
