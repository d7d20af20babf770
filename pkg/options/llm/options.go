// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-scholar/pkg/options"
)

var (
	_ options.IOptions = (*ProviderOptions)(nil)
	_ options.IOptions = (*Options)(nil)
)

// apiKeyEnv 未显式配置 api-key 时按供应商读取的环境变量。
var apiKeyEnv = map[string]string{
	"groq":        "GROQ_API_KEY",
	"openai":      "OPENAI_API_KEY",
	"gemini":      "GOOGLE_API_KEY",
	"huggingface": "HF_TOKEN",
}

// keyless 不需要 api-key 的供应商。
var keyless = map[string]bool{
	"ollama": true,
}

// ProviderOptions 定义 LLM 供应商配置。Provider 为空表示不启用。
type ProviderOptions struct {
	// Provider 供应商名称（groq, openai, gemini, huggingface, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称，为空时使用供应商默认值。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。模型调用默认不重试。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions(provider, model string) *ProviderOptions {
	return &ProviderOptions{
		Provider: provider,
		Model:    model,
		Timeout:  120 * time.Second,
	}
}

// Enabled 是否配置了供应商。
func (o *ProviderOptions) Enabled() bool {
	return o != nil && o.Provider != ""
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (groq, openai, gemini, huggingface, ollama). Empty disables it.")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL, empty for the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key. Falls back to the provider's conventional environment variable.")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name, empty for the provider default.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "LLM organization ID (optional).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	var errs []error
	if _, known := apiKeyEnv[o.Provider]; !known && !keyless[o.Provider] {
		errs = append(errs, fmt.Errorf("unsupported provider %q", o.Provider))
	}
	if !keyless[o.Provider] && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for %s provider (or set %s)", o.Provider, apiKeyEnv[o.Provider]))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative"))
	}
	return errs
}

// Complete 未配置 api-key 时从供应商约定的环境变量读取。
func (o *ProviderOptions) Complete() error {
	if !o.Enabled() || o.APIKey != "" {
		return nil
	}
	if env, ok := apiKeyEnv[o.Provider]; ok {
		o.APIKey = os.Getenv(env)
	}
	return nil
}

// Options 引擎使用的三个模型：主模型、次模型与向量化模型。
type Options struct {
	// Primary 智能体任务与 AI 检测使用的模型，必填。
	Primary *ProviderOptions `json:"primary" mapstructure:"primary"`

	// Secondary 语法、改写与摘要使用的模型，为空时回退到 Primary。
	Secondary *ProviderOptions `json:"secondary" mapstructure:"secondary"`

	// Embedding 文档检索使用的向量化模型，为空时检索类任务不可用。
	Embedding *ProviderOptions `json:"embedding" mapstructure:"embedding"`
}

// NewOptions 默认 groq 主模型、gemini 次模型与 gemini 向量化模型。
func NewOptions() *Options {
	return &Options{
		Primary:   NewProviderOptions("groq", "llama-3.3-70b-versatile"),
		Secondary: NewProviderOptions("gemini", "gemini-1.5-pro"),
		Embedding: NewProviderOptions("gemini", "text-embedding-004"),
	}
}

// AddFlags adds flags for the three providers.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	o.Primary.AddFlags(fs, append(prefixes, "llm", "primary")...)
	o.Secondary.AddFlags(fs, append(prefixes, "llm", "secondary")...)
	o.Embedding.AddFlags(fs, append(prefixes, "llm", "embedding")...)
}

// Validate validates the three providers.
func (o *Options) Validate() []error {
	var errs []error
	if !o.Primary.Enabled() {
		errs = append(errs, fmt.Errorf("llm.primary.provider is required"))
	}
	groups := []struct {
		name string
		opts *ProviderOptions
	}{{"primary", o.Primary}, {"secondary", o.Secondary}, {"embedding", o.Embedding}}
	for _, g := range groups {
		for _, err := range g.opts.Validate() {
			errs = append(errs, fmt.Errorf("llm.%s: %w", g.name, err))
		}
	}
	return errs
}

// Complete completes the three providers.
func (o *Options) Complete() error {
	if o.Secondary == nil {
		o.Secondary = &ProviderOptions{}
	}
	if o.Embedding == nil {
		o.Embedding = &ProviderOptions{}
	}
	for _, p := range []*ProviderOptions{o.Primary, o.Secondary, o.Embedding} {
		if err := p.Complete(); err != nil {
			return err
		}
	}
	return nil
}
