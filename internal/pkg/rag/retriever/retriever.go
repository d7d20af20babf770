// Package retriever 从索引中取出与任务查询相关的上下文，并控制总长度。
package retriever

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/index"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/textutil"
)

const (
	// DefaultMaxChars 上下文默认字符预算。
	DefaultMaxChars = 12000
	// DefaultSeparator 拼接块时使用的分隔符。
	DefaultSeparator = "\n\n"
)

// Options 检索参数。
type Options struct {
	TopK      int
	MaxChars  int
	Separator string
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = index.DefaultTopK
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.Separator == "" {
		o.Separator = DefaultSeparator
	}
	return o
}

// Context 检索结果。
type Context struct {
	// Text 拼接后的上下文，按得分降序。
	Text string
	// Hits 实际进入上下文的块。
	Hits []index.Hit
	// Dropped 因超出预算被丢弃的块数。
	Dropped int
	// Truncated 得分最高的块本身超出预算而被截断。
	Truncated bool
}

// Retrieve 查询索引并拼接上下文。
// 超出 MaxChars 时从得分最低的块开始丢弃；只剩一块仍超出时截断该块。
func Retrieve(ctx context.Context, idx *index.Index, query string, opts Options) (*Context, error) {
	opts = opts.withDefaults()

	hits, err := idx.Query(ctx, query, opts.TopK)
	if err != nil {
		return nil, err
	}

	out := &Context{}
	sepLen := textutil.RuneLen(opts.Separator)

	total := 0
	for i, h := range hits {
		if i > 0 {
			total += sepLen
		}
		total += textutil.RuneLen(h.Chunk.Text)
	}

	for len(hits) > 1 && total > opts.MaxChars {
		last := hits[len(hits)-1]
		total -= textutil.RuneLen(last.Chunk.Text) + sepLen
		hits = hits[:len(hits)-1]
		out.Dropped++
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	if len(hits) == 1 && total > opts.MaxChars {
		texts[0] = textutil.TruncateString(texts[0], opts.MaxChars)
		out.Truncated = true
	}

	out.Hits = hits
	out.Text = strings.Join(texts, opts.Separator)

	logger.Debugw("context retrieved",
		"hits", len(hits),
		"dropped", out.Dropped,
		"truncated", out.Truncated,
		"chars", textutil.RuneLen(out.Text),
	)
	return out, nil
}
