package tools

import (
	"time"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/docutil"
)

// Config 内置工具配置。
type Config struct {
	// Timeout 单次外部请求超时。
	Timeout time.Duration
	// MaxResults 每次搜索返回的结果数。
	MaxResults int
	// UserAgent 外部请求使用的 User-Agent。
	UserAgent string

	WebSearchURL  string
	ScholarURL    string
	ScholarAPIKey string
	ArxivURL      string

	// DocumentDir read_document 允许访问的目录，为空时不注册该工具。
	DocumentDir string
	// DocumentMaxChars read_document 返回文本的最大字符数。
	DocumentMaxChars int
}

// NewDefaultRegistry 注册全部内置工具。
func NewDefaultRegistry(cfg Config) (*Registry, error) {
	r := NewRegistry()

	builtins := []Tool{
		NewWebSearch(cfg),
		NewScholarSearch(cfg),
		NewArxivSearch(cfg),
	}
	if cfg.DocumentDir != "" {
		builtins = append(builtins, NewDocumentReader(cfg.DocumentDir, docutil.Extractor{}, cfg.DocumentMaxChars))
	}

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
