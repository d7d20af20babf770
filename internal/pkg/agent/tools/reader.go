package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/docutil"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/textutil"
)

// DefaultDocumentMaxChars read_document 默认返回的最大字符数。
const DefaultDocumentMaxChars = 20000

// DocumentReader 读取 baseDir 下的文档文本。
type DocumentReader struct {
	baseDir   string
	extractor docutil.Extractor
	maxChars  int
}

// NewDocumentReader 创建文档读取工具，路径被限制在 baseDir 内。
func NewDocumentReader(baseDir string, extractor docutil.Extractor, maxChars int) *DocumentReader {
	if maxChars <= 0 {
		maxChars = DefaultDocumentMaxChars
	}
	return &DocumentReader{baseDir: baseDir, extractor: extractor, maxChars: maxChars}
}

func (d *DocumentReader) Name() string { return NameReadDocument }
func (d *DocumentReader) Description() string {
	return "Read the text content of a PDF, text or Markdown document given its relative path"
}

// Invoke 输入为相对路径，可带引号。
func (d *DocumentReader) Invoke(_ context.Context, query string) string {
	name := strings.Trim(strings.TrimSpace(query), `"'`)

	path, err := docutil.ResolveWithin(d.baseDir, name)
	if err != nil {
		return fmt.Sprintf("Error reading document: %v", err)
	}

	text, err := d.extractor.Extract(path)
	if err != nil {
		return fmt.Sprintf("Error reading document: %v", err)
	}
	return textutil.TruncateString(text, d.maxChars)
}
