package textutil

import (
	"strings"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

const (
	// DefaultChunkSize 默认块大小（字符数）
	DefaultChunkSize = 5000
	// DefaultChunkOverlap 默认相邻块重叠字符数
	DefaultChunkOverlap = 500
)

// DefaultSeparators 按段落、行、句子、单词、字符逐级回退。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk 文档切分后的片段。
type Chunk struct {
	Text string `json:"text"`
	Seq  int    `json:"seq"`
}

// RecursiveSplitter 递归字符切分器。
// 优先在自然边界处切分，只有当片段仍超过 ChunkSize 时才退回到更细的分隔符，
// 最终退化为按字符的滑动窗口硬切。
type RecursiveSplitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

// NewRecursiveSplitter 创建切分器，separators 为空时使用 DefaultSeparators。
func NewRecursiveSplitter(chunkSize, overlap int, separators ...string) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, errors.ErrConfiguration.WithMessagef("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, errors.ErrConfiguration.WithMessagef("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveSplitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: separators,
	}, nil
}

// Split 使用默认分隔符切分文本。
func Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	s, err := NewRecursiveSplitter(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// Split 切分文本，空白文本返回空切片。
// 块保留原文中的空白，去掉重叠部分后按顺序拼接即得原文。纯空白片段会并入前一块，
// 因此块长度只可能因空白超出 ChunkSize。
func (s *RecursiveSplitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks  []Chunk
		pending string
	)
	for _, piece := range s.split(text, s.Separators) {
		// 纯空白片段并入相邻块，不单独成块，也不丢弃
		if strings.TrimSpace(piece) == "" {
			if len(chunks) > 0 {
				chunks[len(chunks)-1].Text += piece
			} else {
				pending += piece
			}
			continue
		}
		chunks = append(chunks, Chunk{Text: pending + piece, Seq: len(chunks)})
		pending = ""
	}
	return chunks
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.window(text)
	}

	var out, small []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if RuneLen(piece) <= s.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(small) > 0 {
		out = append(out, s.merge(small)...)
	}
	return out
}

// merge 贪心合并小片段，输出一个块后保留不超过 Overlap 的尾部片段作为下一块的开头。
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		out   []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		n := RuneLen(p)
		if total+n > s.ChunkSize && len(cur) > 0 {
			out = append(out, strings.Join(cur, ""))
			for total > s.Overlap || (total+n > s.ChunkSize && total > 0) {
				total -= RuneLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, ""))
	}
	return out
}

// window 按字符硬切，步长为 ChunkSize-Overlap。
// 去掉后续每块的前 Overlap 个字符后拼接即可还原原文。
func (s *RecursiveSplitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// splitKeepSeparator 切分并把分隔符保留在后一片段开头，片段拼接后与原文一致。
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}
