// Package scholar provides engine configuration options: chunking, retrieval,
// the agent loop, the built-in tools and task template overrides.
package scholar

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-scholar/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains engine configuration.
type Options struct {
	// ChunkSize 文档切分的块大小（字符数）。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`
	// ChunkOverlap 相邻块的重叠字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	// IndexBatchSize 每次向量化请求的块数。
	IndexBatchSize int `json:"index-batch-size" mapstructure:"index-batch-size"`
	// TopK 检索返回的块数。
	TopK int `json:"top-k" mapstructure:"top-k"`
	// MaxContextChars 检索上下文的字符预算。
	MaxContextChars int `json:"max-context-chars" mapstructure:"max-context-chars"`

	// MaxRounds 智能体最多调用模型的次数。
	MaxRounds int `json:"max-rounds" mapstructure:"max-rounds"`
	// MaxParseErrors 智能体可容忍的格式错误次数。
	MaxParseErrors int `json:"max-parse-errors" mapstructure:"max-parse-errors"`

	// TaskTimeout 单个任务的最长执行时间。
	TaskTimeout time.Duration `json:"task-timeout" mapstructure:"task-timeout"`
	// Concurrency 同时执行的任务数，超出时立即拒绝。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	Tools *ToolOptions `json:"tools" mapstructure:"tools"`

	// Templates 按任务类型覆盖内置模板。
	Templates map[string]TemplateOptions `json:"templates" mapstructure:"templates"`
}

// ToolOptions 内置工具配置。
type ToolOptions struct {
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxResults int           `json:"max-results" mapstructure:"max-results"`
	UserAgent  string        `json:"user-agent" mapstructure:"user-agent"`

	WebSearchURL  string `json:"web-search-url" mapstructure:"web-search-url"`
	ScholarURL    string `json:"scholar-url" mapstructure:"scholar-url"`
	ScholarAPIKey string `json:"-" mapstructure:"scholar-api-key"`
	ArxivURL      string `json:"arxiv-url" mapstructure:"arxiv-url"`

	// DocumentDir 为空时不注册 read_document。
	DocumentDir      string `json:"document-dir" mapstructure:"document-dir"`
	DocumentMaxChars int    `json:"document-max-chars" mapstructure:"document-max-chars"`
}

// TemplateOptions 单个任务模板的覆盖项，空值表示沿用内置值。
type TemplateOptions struct {
	Instruction   string   `json:"instruction" mapstructure:"instruction"`
	Query         string   `json:"query" mapstructure:"query"`
	Model         string   `json:"model" mapstructure:"model"`
	Tools         []string `json:"tools" mapstructure:"tools"`
	RequiresTools *bool    `json:"requires-tools" mapstructure:"requires-tools"`
	Grounded      *bool    `json:"grounded" mapstructure:"grounded"`
}

// NewToolOptions creates default tool options.
func NewToolOptions() *ToolOptions {
	return &ToolOptions{
		Timeout:          15 * time.Second,
		MaxResults:       3,
		UserAgent:        "sentinel-scholar/1.0",
		DocumentMaxChars: 20000,
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:       5000,
		ChunkOverlap:    500,
		IndexBatchSize:  16,
		TopK:            4,
		MaxContextChars: 12000,
		MaxRounds:       15,
		MaxParseErrors:  3,
		TaskTimeout:     5 * time.Minute,
		Concurrency:     8,
		Tools:           NewToolOptions(),
	}
}

// AddFlags adds flags for engine options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(append(prefixes, "scholar")...)
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Size of document chunks in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Overlap between adjacent chunks.")
	fs.IntVar(&o.IndexBatchSize, p+"index-batch-size", o.IndexBatchSize, "Chunks per embedding request.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Number of chunks retrieved per task.")
	fs.IntVar(&o.MaxContextChars, p+"max-context-chars", o.MaxContextChars, "Character budget of the retrieved context.")
	fs.IntVar(&o.MaxRounds, p+"max-rounds", o.MaxRounds, "Maximum model calls of one agent run.")
	fs.IntVar(&o.MaxParseErrors, p+"max-parse-errors", o.MaxParseErrors, "Malformed agent outputs tolerated before aborting.")
	fs.DurationVar(&o.TaskTimeout, p+"task-timeout", o.TaskTimeout, "Maximum duration of one task.")
	fs.IntVar(&o.Concurrency, p+"concurrency", o.Concurrency, "Tasks executed concurrently; extra requests are rejected.")

	if o.Tools == nil {
		o.Tools = NewToolOptions()
	}
	t := p + "tools."
	fs.DurationVar(&o.Tools.Timeout, t+"timeout", o.Tools.Timeout, "Timeout of one external tool request.")
	fs.IntVar(&o.Tools.MaxResults, t+"max-results", o.Tools.MaxResults, "Results returned per search.")
	fs.StringVar(&o.Tools.UserAgent, t+"user-agent", o.Tools.UserAgent, "User-Agent of external tool requests.")
	fs.StringVar(&o.Tools.WebSearchURL, t+"web-search-url", o.Tools.WebSearchURL, "Web search endpoint, empty for the default.")
	fs.StringVar(&o.Tools.ScholarURL, t+"scholar-url", o.Tools.ScholarURL, "Semantic Scholar API base URL, empty for the default.")
	fs.StringVar(&o.Tools.ScholarAPIKey, t+"scholar-api-key", o.Tools.ScholarAPIKey, "Semantic Scholar API key (optional).")
	fs.StringVar(&o.Tools.ArxivURL, t+"arxiv-url", o.Tools.ArxivURL, "arXiv API base URL, empty for the default.")
	fs.StringVar(&o.Tools.DocumentDir, t+"document-dir", o.Tools.DocumentDir, "Directory read_document may access; empty disables the tool.")
	fs.IntVar(&o.Tools.DocumentMaxChars, t+"document-max-chars", o.Tools.DocumentMaxChars, "Maximum characters returned by read_document.")
}

// Validate validates the engine options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("scholar.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("scholar.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.IndexBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("scholar.index-batch-size must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("scholar.top-k must be positive"))
	}
	if o.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("scholar.max-context-chars must be positive"))
	}
	if o.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("scholar.max-rounds must be positive"))
	}
	if o.MaxParseErrors <= 0 {
		errs = append(errs, fmt.Errorf("scholar.max-parse-errors must be positive"))
	}
	if o.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scholar.task-timeout must be positive"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("scholar.concurrency must be positive"))
	}
	if o.Tools != nil {
		if o.Tools.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("scholar.tools.timeout must be positive"))
		}
		if o.Tools.MaxResults <= 0 {
			errs = append(errs, fmt.Errorf("scholar.tools.max-results must be positive"))
		}
		if o.Tools.DocumentDir != "" {
			if fi, err := os.Stat(o.Tools.DocumentDir); err != nil || !fi.IsDir() {
				errs = append(errs, fmt.Errorf("scholar.tools.document-dir %q is not a directory", o.Tools.DocumentDir))
			}
		}
	}
	return errs
}

// Complete completes the engine options with defaults.
func (o *Options) Complete() error {
	if o.Tools == nil {
		o.Tools = NewToolOptions()
	}
	if o.Tools.ScholarAPIKey == "" {
		o.Tools.ScholarAPIKey = os.Getenv("SEMANTIC_SCHOLAR_API_KEY")
	}
	return nil
}
