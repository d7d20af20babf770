// Package docutil 提供文档读取相关的工具函数。
package docutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// DefaultMaxBytes 单个文档允许的最大字节数。
const DefaultMaxBytes = 32 << 20

// SupportedExtensions 可提取文本的扩展名。
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// Extractor 把文件转换为纯文本。
type Extractor struct {
	// MaxBytes 超出后拒绝读取，<=0 使用默认值。
	MaxBytes int64
}

// Extract 按扩展名读取文件文本。
// 任何失败（包括提取结果为空）都返回 ErrExtraction。
func (e Extractor) Extract(path string) (string, error) {
	maxBytes := e.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(ext) {
		return "", errors.ErrExtraction.WithMessagef("unsupported document type %q", ext)
	}

	data, err := readLimited(path, maxBytes)
	if err != nil {
		return "", errors.ErrExtraction.WithCause(err)
	}

	var text string
	switch ext {
	case ".pdf":
		text, err = pdfText(data)
		if err != nil {
			return "", errors.ErrExtraction.WithCause(err)
		}
	default:
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.ErrExtraction.WithMessage("document contains no extractable text")
	}

	logger.Debugw("document extracted", "ext", ext, "bytes", len(data), "chars", len(text))
	return text, nil
}

// IsSupported 判断扩展名是否可提取。
func IsSupported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func readLimited(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// pdfText 逐页提取文本，无法解析的页面跳过。
func pdfText(data []byte) (text string, err error) {
	// ledongthuc/pdf 遇到损坏的结构会 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var content strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}

		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(pageText)
	}

	return content.String(), nil
}

// ResolveWithin 把 name 解析为 base 目录下的路径。
// 结果逃出 base（例如 "../x" 或绝对路径）时返回错误。
func ResolveWithin(base, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path %q must be relative", name)
	}

	root, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, name)

	// 与 ZipSlip 检查相同：结果必须位于 root 之下
	if !strings.HasPrefix(path, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes %s", name, base)
	}
	return path, nil
}
