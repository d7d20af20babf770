package llm

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    *ProviderOptions
		wantErr string
	}{
		{"未启用", &ProviderOptions{}, ""},
		{"ollama 无需密钥", &ProviderOptions{Provider: "ollama", Timeout: time.Second}, ""},
		{"缺少密钥", &ProviderOptions{Provider: "groq", Timeout: time.Second}, "api-key is required for groq provider (or set GROQ_API_KEY)"},
		{"未知供应商", &ProviderOptions{Provider: "deepseek", APIKey: "k", Timeout: time.Second}, `unsupported provider "deepseek"`},
		{"超时非法", &ProviderOptions{Provider: "openai", APIKey: "k"}, "timeout must be positive"},
		{"重试次数非法", &ProviderOptions{Provider: "openai", APIKey: "k", Timeout: time.Second, MaxRetries: -1}, "max-retries must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.EqualError(t, errs[0], tt.wantErr)
		})
	}
}

func TestProviderOptions_CompleteFromEnv(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf-test")

	o := NewProviderOptions("huggingface", "")
	require.NoError(t, o.Complete())
	assert.Equal(t, "hf-test", o.APIKey)

	explicit := &ProviderOptions{Provider: "huggingface", APIKey: "mine"}
	require.NoError(t, explicit.Complete())
	assert.Equal(t, "mine", explicit.APIKey)
}

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--llm.primary.provider=ollama",
		"--llm.secondary.provider=",
		"--llm.embedding.model=nomic-embed-text",
	}))
	assert.Equal(t, "ollama", o.Primary.Provider)
	assert.False(t, o.Secondary.Enabled())
	assert.Equal(t, "nomic-embed-text", o.Embedding.Model)
}

func TestOptions_Validate(t *testing.T) {
	o := &Options{Primary: &ProviderOptions{}}
	require.NoError(t, o.Complete())

	errs := o.Validate()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "llm.primary.provider is required")

	o.Primary = &ProviderOptions{Provider: "groq", Timeout: time.Second}
	o.Embedding = &ProviderOptions{Provider: "gemini", Timeout: time.Second}
	errs = o.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "llm.primary:")
	assert.Contains(t, errs[1].Error(), "llm.embedding:")
}

func TestProviderOptions_ToConfigMap(t *testing.T) {
	o := &ProviderOptions{Provider: "openai", BaseURL: "http://x", APIKey: "k", Model: "m", Timeout: time.Second}
	m := o.ToConfigMap()
	assert.Equal(t, "http://x", m["base_url"])
	assert.Equal(t, "m", m["chat_model"])
	assert.Equal(t, "m", m["embed_model"])
	assert.Equal(t, time.Second, m["timeout"])
	assert.Equal(t, 0, m["max_retries"])
}
