package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

func echoTool(name string) tools.Tool {
	return tools.NewFunc(name, "echo "+name, func(_ context.Context, q string) string {
		return name + ":" + q
	})
}

func TestRegistry(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoTool("b")))
	require.NoError(t, r.Register(echoTool("a")))
	require.NoError(t, r.Register(echoTool("c")))

	t.Run("保持注册顺序", func(t *testing.T) {
		assert.Equal(t, []string{"b", "a", "c"}, r.Names())
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, "a", r.List()[1].Name())
	})

	t.Run("精确匹配", func(t *testing.T) {
		tool, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, "a:x", tool.Invoke(context.Background(), "x"))

		_, ok = r.Get("A")
		assert.False(t, ok)
	})

	t.Run("重复注册", func(t *testing.T) {
		err := r.Register(echoTool("a"))
		assert.ErrorIs(t, err, errors.ErrConfiguration)
	})

	t.Run("空名称", func(t *testing.T) {
		err := r.Register(echoTool(" "))
		assert.ErrorIs(t, err, errors.ErrConfiguration)
	})
}

func TestRegistry_Subset(t *testing.T) {
	r := tools.NewRegistry()
	for _, n := range []string{"web_search", "scholar_search", "arxiv_search"} {
		require.NoError(t, r.Register(echoTool(n)))
	}

	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr bool
	}{
		{name: "按给定顺序", input: []string{"arxiv_search", "web_search"}, want: []string{"arxiv_search", "web_search"}},
		{name: "空参数返回全部", input: nil, want: []string{"web_search", "scholar_search", "arxiv_search"}},
		{name: "重复名称去重", input: []string{"web_search", "web_search"}, want: []string{"web_search"}},
		{name: "未知工具", input: []string{"web_search", "translate"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := r.Subset(tt.input...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrConfiguration)
				assert.Contains(t, err.Error(), "translate")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub.Names())
		})
	}
}

func TestSafeInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("正常返回", func(t *testing.T) {
		assert.Equal(t, "ok:q", tools.SafeInvoke(ctx, echoTool("ok"), "q"))
	})

	t.Run("panic 转为文本", func(t *testing.T) {
		boom := tools.NewFunc("boom", "panics", func(context.Context, string) string {
			panic("connection reset")
		})
		out := tools.SafeInvoke(ctx, boom, "q")
		assert.Equal(t, "Error invoking boom: connection reset", out)
	})
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := tools.NewDefaultRegistry(tools.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{tools.NameWebSearch, tools.NameScholarSearch, tools.NameArxivSearch}, r.Names())

	r, err = tools.NewDefaultRegistry(tools.Config{DocumentDir: t.TempDir()})
	require.NoError(t, err)
	assert.Contains(t, r.Names(), tools.NameReadDocument)

	for _, tool := range r.List() {
		assert.NotEmpty(t, tool.Description(), tool.Name())
	}
}
