package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.5]]}`))
		case "/api/generate":
			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Stream)
			assert.Equal(t, "sys", req.System)
			_, _ = w.Write([]byte(`{"response":"generated","done":true}`))
		case "/api/chat":
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"chatted"}}`))
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestProvider(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	p := NewProvider(map[string]any{"base_url": server.URL})
	ctx := context.Background()

	emb, err := p.EmbedSingle(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, emb)

	out, err := p.Generate(ctx, "prompt", "sys")
	require.NoError(t, err)
	assert.Equal(t, "generated", out)

	out, err = p.Chat(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "chatted", out)

	models, err := p.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b"}, models)
	assert.Equal(t, "ollama:nomic-embed-text", p.Name())
}
