// Package huggingface 提供 HuggingFace Inference API 供应商实现。
// 默认 Embedding 模型为 sentence-transformers/all-MiniLM-L6-v2。
package huggingface

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/sentinel-scholar/pkg/llm"
	"github.com/kart-io/sentinel-scholar/pkg/utils/httpclient"
	"github.com/kart-io/sentinel-scholar/pkg/utils/json"
)

// ProviderName 是 HuggingFace 供应商的名称标识符
const ProviderName = "huggingface"

func init() {
	llm.RegisterProvider(ProviderName, func(m map[string]any) (llm.Provider, error) {
		return NewProvider(m)
	})
}

// Config HuggingFace 供应商配置。
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	APIKey     string        `json:"api_key" mapstructure:"api_key"`
	EmbedModel string        `json:"embed_model" mapstructure:"embed_model"`
	ChatModel  string        `json:"chat_model" mapstructure:"chat_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	// WaitForModel 模型冷启动时等待加载而不是返回 503。
	WaitForModel bool `json:"wait_for_model" mapstructure:"wait_for_model"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api-inference.huggingface.co",
		EmbedModel:   "sentence-transformers/all-MiniLM-L6-v2",
		ChatModel:    "mistralai/Mistral-7B-Instruct-v0.2",
		Timeout:      120 * time.Second,
		WaitForModel: true,
	}
}

// Provider HuggingFace 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 HuggingFace 供应商。
func NewProvider(configMap map[string]any) (*Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["wait_for_model"].(bool); ok {
		cfg.WaitForModel = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商与 Embedding 模型标识。
func (p *Provider) Name() string {
	return ProviderName + ":" + p.config.EmbedModel
}

// Model 返回对话模型名称。
func (p *Provider) Model() string {
	return p.config.ChatModel
}

type options struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

type embeddingRequest struct {
	Inputs  []string `json:"inputs"`
	Options *options `json:"options,omitempty"`
}

// Embed 调用 feature-extraction 管道。
// 对返回 token 级向量的模型做平均池化。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{Inputs: texts}
	if p.config.WaitForModel {
		reqBody.Options = &options{WaitForModel: true}
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", p.config.BaseURL, p.config.EmbedModel)
	raw, err := p.postRaw(ctx, url, reqBody)
	if err != nil {
		return nil, err
	}

	var embeddings [][]float32
	if err := json.Unmarshal(raw, &embeddings); err == nil {
		return embeddings, nil
	}

	var tokenEmbeddings [][][]float32
	if err := json.Unmarshal(raw, &tokenEmbeddings); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return meanPool(tokenEmbeddings), nil
}

func meanPool(tokenEmbeddings [][][]float32) [][]float32 {
	out := make([][]float32, len(tokenEmbeddings))
	for i, tokens := range tokenEmbeddings {
		if len(tokens) == 0 {
			continue
		}
		vec := make([]float32, len(tokens[0]))
		for _, token := range tokens {
			for j, v := range token {
				if j < len(vec) {
					vec[j] += v
				}
			}
		}
		for j := range vec {
			vec[j] /= float32(len(tokens))
		}
		out[i] = vec
	}
	return out
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("huggingface: 未返回向量嵌入")
	}
	return embeddings[0], nil
}

type generationParams struct {
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
	ReturnFullText bool `json:"return_full_text"`
}

type generationRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters *generationParams `json:"parameters,omitempty"`
	Options    *options          `json:"options,omitempty"`
}

// Chat 把消息拼成 [INST] 格式后调用 text-generation。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Role == llm.RoleAssistant {
			b.WriteString(msg.Content)
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "[INST] %s [/INST]\n", msg.Content)
	}

	reqBody := generationRequest{
		Inputs:     b.String(),
		Parameters: &generationParams{MaxNewTokens: 1024},
	}
	if p.config.WaitForModel {
		reqBody.Options = &options{WaitForModel: true}
	}

	raw, err := p.postRaw(ctx, fmt.Sprintf("%s/models/%s", p.config.BaseURL, p.config.ChatModel), reqBody)
	if err != nil {
		return "", err
	}

	var responses []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &responses); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if len(responses) == 0 {
		return "", fmt.Errorf("huggingface: 未返回响应内容")
	}
	return responses[0].GeneratedText, nil
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	messages := make([]llm.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return p.Chat(ctx, messages)
}

func (p *Provider) postRaw(ctx context.Context, url string, in interface{}) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.DoRequest(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

var _ llm.Provider = (*Provider)(nil)
