package scholar

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/infra/middleware"
	scholaropts "github.com/kart-io/sentinel-scholar/pkg/options/scholar"
	tracingopts "github.com/kart-io/sentinel-scholar/pkg/options/tracing"
	"github.com/kart-io/sentinel-scholar/pkg/utils/json"
)

// fakeOllama 模拟 Ollama 的模型列表、生成与向量化接口。
func fakeOllama(t *testing.T, generated *atomic.Int32) *httptest.Server {
	return fakeOllamaWithTrace(t, generated, nil)
}

// fakeOllamaWithTrace 额外记录生成请求携带的 traceparent。
func fakeOllamaWithTrace(t *testing.T, generated *atomic.Int32, traceparent *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		generated.Add(1)
		if traceparent != nil {
			traceparent.Store(r.Header.Get("traceparent"))
		}
		_, _ = w.Write([]byte(`{"response":"Looks fine."}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			out[i] = []float32{float32(strings.Count(text, "summar")) + 0.01, 1}
		}
		data, _ := json.Marshal(map[string]any{"embeddings": out})
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(t *testing.T, baseURL string) *Options {
	t.Helper()
	opts := NewOptions()
	opts.HTTP.Mode = "test"
	opts.HTTP.Addr = "127.0.0.1:0"
	opts.LLM.Primary.Provider = "ollama"
	opts.LLM.Primary.BaseURL = baseURL
	opts.LLM.Primary.Model = "llama3"
	opts.LLM.Secondary.Provider = ""
	opts.LLM.Embedding.Provider = "ollama"
	opts.LLM.Embedding.BaseURL = baseURL
	opts.LLM.Embedding.Model = "nomic-embed-text"
	opts.Scholar.ChunkSize = 60
	opts.Scholar.ChunkOverlap = 0
	require.NoError(t, opts.Complete())
	require.NoError(t, opts.Validate())
	return opts
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func TestOptions_Validate(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	t.Run("默认配置缺少 api-key", func(t *testing.T) {
		opts := NewOptions()
		require.NoError(t, opts.Complete())
		err := opts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.primary: api-key is required for groq provider")
		assert.Contains(t, err.Error(), "llm.embedding: api-key is required for gemini provider")
	})

	t.Run("从环境变量读取 api-key", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "gsk-test")
		t.Setenv("GOOGLE_API_KEY", "g-test")
		opts := NewOptions()
		require.NoError(t, opts.Complete())
		assert.NoError(t, opts.Validate())
		assert.Equal(t, "gsk-test", opts.LLM.Primary.APIKey)
	})

	t.Run("聚合多个错误", func(t *testing.T) {
		opts := testOptions(t, "http://localhost")
		opts.Scholar.ChunkOverlap = opts.Scholar.ChunkSize
		opts.HTTP.Addr = ""
		err := opts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http.addr cannot be empty")
		assert.Contains(t, err.Error(), "scholar.chunk-overlap")
	})
}

func TestNewServer(t *testing.T) {
	var generated atomic.Int32
	ollama := fakeOllama(t, &generated)
	mr := miniredis.RunT(t)

	opts := testOptions(t, ollama.URL)
	opts.Cache.Enabled = true
	opts.Cache.Redis.Host = mr.Host()
	opts.Cache.Redis.Port, _ = strconv.Atoi(mr.Port())

	s, err := NewServer(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(s.close)
	h := s.Handler()

	t.Run("健康检查", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.JSONEq(t, `{"status":"ok","primary_model":"llama3","secondary_model":"llama3","embeddings":true}`, string(env.Data))
	})

	t.Run("文本任务", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/grammar_check", strings.NewReader(`{"text":"teh cat"}`))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		var res struct {
			Text     string `json:"text"`
			Mode     string `json:"mode"`
			Grounded bool   `json:"grounded"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, "Looks fine.", res.Text)
		assert.Equal(t, "direct", res.Mode)
		assert.False(t, res.Grounded)
	})

	t.Run("文档任务写入向量缓存", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("The summary of the paper.\n\nUnrelated methods section.\n\nMore unrelated text."))
		require.NoError(t, mw.Close())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/summarize/file", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		var res struct {
			Grounded bool `json:"grounded"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.True(t, res.Grounded)

		keys := mr.Keys()
		require.NotEmpty(t, keys)
		for _, k := range keys {
			assert.True(t, strings.HasPrefix(k, opts.Cache.KeyPrefix), k)
		}
	})

	t.Run("未知路由", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, errors.ErrRouteNotFound.Code, env.Code)
	})

	t.Run("指标", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `scholar_tasks_total{kind="grammar_check",mode="direct",outcome="ok"} 1`)
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})

	assert.Equal(t, int32(2), generated.Load())
}

func TestNewServer_RedisUnavailable(t *testing.T) {
	var generated atomic.Int32
	ollama := fakeOllama(t, &generated)

	opts := testOptions(t, ollama.URL)
	opts.Cache.Enabled = true
	opts.Cache.Redis.Host = "127.0.0.1"
	opts.Cache.Redis.Port = 1

	s, err := NewServer(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(s.close)
	// 只剩链路追踪的 closer，Redis 客户端已关闭
	assert.Len(t, s.closers, 1)
}

func TestNewServer_InvalidTemplate(t *testing.T) {
	var generated atomic.Int32
	ollama := fakeOllama(t, &generated)

	opts := testOptions(t, ollama.URL)
	opts.Scholar.Templates = map[string]scholaropts.TemplateOptions{
		"translate": {Query: "Translate."},
	}

	_, err := NewServer(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestNewServer_FailureReleasesRedis(t *testing.T) {
	var generated atomic.Int32
	ollama := fakeOllama(t, &generated)
	mr := miniredis.RunT(t)

	opts := testOptions(t, ollama.URL)
	opts.Cache.Enabled = true
	opts.Cache.Redis.Host = mr.Host()
	opts.Cache.Redis.Port, _ = strconv.Atoi(mr.Port())
	opts.Scholar.Templates = map[string]scholaropts.TemplateOptions{
		"translate": {Query: "Translate."},
	}

	_, err := NewServer(context.Background(), opts)
	require.Error(t, err)

	// Ping 建立过连接，失败返回前必须关闭
	assert.Positive(t, mr.TotalConnectionCount())
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

const (
	upstreamTraceID     = "4bf92f3577b34da6a3ce929d0e0e4736"
	upstreamTraceparent = "00-" + upstreamTraceID + "-00f067aa0ba902b7-01"
)

// restoreOtel 测试结束后恢复全局 TracerProvider 与传播器。
func restoreOtel(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		if otel.GetTracerProvider() != tp {
			otel.SetTracerProvider(tp)
		}
		otel.SetTextMapPropagator(prop)
	})
}

func runGrammarCheck(t *testing.T, h http.Handler) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/grammar_check", strings.NewReader(`{"text":"teh cat"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("traceparent", upstreamTraceparent)
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNewServer_TracePropagation(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
	}{
		{"关闭时透传上游 Trace Context", false},
		{"开启时模型调用挂在任务 Span 下", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreOtel(t)

			var generated atomic.Int32
			var seen atomic.Value
			ollama := fakeOllamaWithTrace(t, &generated, &seen)

			opts := testOptions(t, ollama.URL)
			opts.Tracing.Enabled = tt.enabled
			opts.Tracing.ExporterType = tracingopts.ExporterNoop
			opts.Tracing.SamplerType = tracingopts.SamplerAlwaysOn
			require.NoError(t, opts.Validate())

			s, err := NewServer(context.Background(), opts)
			require.NoError(t, err)
			t.Cleanup(s.close)

			runGrammarCheck(t, s.Handler())

			got, _ := seen.Load().(string)
			require.NotEmpty(t, got)
			if !tt.enabled {
				assert.Equal(t, upstreamTraceparent, got)
				return
			}
			parts := strings.Split(got, "-")
			require.Len(t, parts, 4)
			assert.Equal(t, upstreamTraceID, parts[1])
			assert.NotEqual(t, "00f067aa0ba902b7", parts[2])
			assert.Equal(t, "01", parts[3])
		})
	}
}

func TestServer_Run(t *testing.T) {
	var generated atomic.Int32
	ollama := fakeOllama(t, &generated)

	s, err := NewServer(context.Background(), testOptions(t, ollama.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
