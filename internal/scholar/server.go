// Package scholar provides the sentinel-scholar service: task dispatching over
// HTTP with a bounded worker pool, metrics and graceful shutdown.
package scholar

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/retriever"
	"github.com/kart-io/sentinel-scholar/internal/scholar/biz"
	"github.com/kart-io/sentinel-scholar/internal/scholar/handler"
	"github.com/kart-io/sentinel-scholar/internal/scholar/metrics"
	"github.com/kart-io/sentinel-scholar/internal/scholar/router"
	"github.com/kart-io/sentinel-scholar/pkg/infra/app"
	"github.com/kart-io/sentinel-scholar/pkg/infra/middleware"
	"github.com/kart-io/sentinel-scholar/pkg/infra/pool"
	"github.com/kart-io/sentinel-scholar/pkg/infra/tracing"
	"github.com/kart-io/sentinel-scholar/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/sentinel-scholar/pkg/llm/gemini"
	_ "github.com/kart-io/sentinel-scholar/pkg/llm/huggingface"
	_ "github.com/kart-io/sentinel-scholar/pkg/llm/ollama"
	_ "github.com/kart-io/sentinel-scholar/pkg/llm/openai"
	llmopts "github.com/kart-io/sentinel-scholar/pkg/options/llm"
	scholaropts "github.com/kart-io/sentinel-scholar/pkg/options/scholar"
)

// modelCheckTimeout 启动时列出模型的超时。
const modelCheckTimeout = 10 * time.Second

// Server represents the scholar server.
type Server struct {
	http            *http.Server
	pool            *pool.Pool
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes and returns a new Server instance.
// 初始化失败时释放已经创建的资源。
func NewServer(ctx context.Context, opts *Options) (_ *Server, err error) {
	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err = opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting scholar service...")

	s := &Server{shutdownTimeout: opts.HTTP.ShutdownTimeout}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(ctx, opts.Tracing, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("failed to flush traces", "error", err)
		}
	})

	// 3. 初始化 LLM 供应商
	primary, err := newChatProvider(ctx, "primary", opts.LLM.Primary)
	if err != nil {
		return nil, err
	}
	var secondary llm.ChatProvider
	if opts.LLM.Secondary.Enabled() {
		if secondary, err = newChatProvider(ctx, "secondary", opts.LLM.Secondary); err != nil {
			return nil, err
		}
	}

	var embedder llm.EmbeddingProvider
	if opts.LLM.Embedding.Enabled() {
		embedder, err = llm.NewEmbeddingProvider(opts.LLM.Embedding.Provider, opts.LLM.Embedding.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
		}
		logger.Infow("Embedding provider initialized",
			"provider", opts.LLM.Embedding.Provider,
			"model", opts.LLM.Embedding.Model,
		)
		embedder = s.withCache(ctx, embedder, opts)
	} else {
		logger.Warn("Embedding provider is disabled, document-grounded tasks are unavailable")
	}

	// 4. 初始化工具与任务模板
	registry, err := tools.NewDefaultRegistry(toolConfig(opts.Scholar.Tools))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}
	logger.Infow("Tools registered", "tools", registry.Names())

	catalog, err := biz.DefaultCatalog().WithOverrides(templateOverrides(opts.Scholar.Templates))
	if err != nil {
		return nil, fmt.Errorf("failed to load task templates: %w", err)
	}

	// 5. 初始化指标与 Biz 层
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	dispatcher, err := biz.NewDispatcher(biz.Deps{
		Catalog:   catalog,
		Primary:   primary,
		Secondary: secondary,
		Embedder:  embedder,
		Tools:     registry,
		Metrics:   m,
	}, engineConfig(opts.Scholar))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	logger.Infow("Dispatcher initialized",
		"tasks", catalog.Kinds(),
		"embeddings", dispatcher.EmbeddingsAvailable(),
	)

	// 6. 初始化协程池与 Handler 层
	s.pool, err = pool.New("tasks", &pool.Config{
		Capacity:       opts.Scholar.Concurrency,
		ExpiryDuration: 10 * time.Second,
		Nonblocking:    true,
	})
	if err != nil {
		return nil, err
	}

	taskHandler := handler.NewTaskHandler(dispatcher, s.pool, m, handler.Options{
		TaskTimeout:    opts.Scholar.TaskTimeout,
		MaxUploadBytes: opts.HTTP.MaxUploadBytes,
	})

	// 7. 初始化 HTTP 服务并注册路由
	gin.SetMode(opts.HTTP.Mode)
	engine := gin.New()
	engine.MaxMultipartMemory = opts.HTTP.MaxUploadBytes
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logger(),
		middleware.Recovery(),
	)
	router.Register(engine, taskHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	s.http = &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	logger.Info("Scholar service is ready")
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts the server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down scholar service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) close() {
	if s.pool != nil {
		if err := s.pool.ReleaseTimeout(s.shutdownTimeout); err != nil {
			logger.Warnw("worker pool did not drain in time", "error", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// withCache 启用缓存且 Redis 可达时包装向量化供应商，否则原样返回。
func (s *Server) withCache(ctx context.Context, embedder llm.EmbeddingProvider, opts *Options) llm.EmbeddingProvider {
	if !opts.Cache.Enabled {
		logger.Info("Embedding cache is disabled")
		return embedder
	}

	client := opts.Cache.Redis.NewClient()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnw("failed to connect to redis, embedding cache will be disabled",
			"addr", opts.Cache.Redis.Addr(),
			"error", err.Error(),
		)
		_ = client.Close()
		return embedder
	}

	s.closers = append(s.closers, func() { _ = client.Close() })
	logger.Infow("Embedding cache initialized",
		"addr", opts.Cache.Redis.Addr(),
		"ttl", opts.Cache.TTL,
	)
	return llm.NewCachedEmbeddingProvider(embedder, client, &llm.EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       opts.Cache.TTL,
		KeyPrefix: opts.Cache.KeyPrefix,
	})
}

func newChatProvider(ctx context.Context, role string, o *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	provider, err := llm.NewChatProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s chat provider: %w", role, err)
	}
	logger.Infow("Chat provider initialized",
		"role", role,
		"provider", o.Provider,
		"model", provider.Model(),
	)
	checkModel(ctx, role, provider)
	return provider, nil
}

// checkModel 供应商支持列出模型时确认配置的模型存在，结果只记录日志。
func checkModel(ctx context.Context, role string, provider llm.ChatProvider) {
	lister, ok := provider.(llm.ModelLister)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	models, err := lister.ListModels(ctx)
	if err != nil {
		logger.Warnw("failed to list models", "role", role, "provider", provider.Name(), "error", err.Error())
		return
	}
	if !slices.Contains(models, provider.Model()) {
		logger.Warnw("configured model is not listed by the provider",
			"role", role,
			"provider", provider.Name(),
			"model", provider.Model(),
			"available", len(models),
		)
	}
}

func toolConfig(o *scholaropts.ToolOptions) tools.Config {
	return tools.Config{
		Timeout:          o.Timeout,
		MaxResults:       o.MaxResults,
		UserAgent:        o.UserAgent,
		WebSearchURL:     o.WebSearchURL,
		ScholarURL:       o.ScholarURL,
		ScholarAPIKey:    o.ScholarAPIKey,
		ArxivURL:         o.ArxivURL,
		DocumentDir:      o.DocumentDir,
		DocumentMaxChars: o.DocumentMaxChars,
	}
}

func engineConfig(o *scholaropts.Options) biz.Config {
	return biz.Config{
		ChunkSize:      o.ChunkSize,
		ChunkOverlap:   o.ChunkOverlap,
		IndexBatchSize: o.IndexBatchSize,
		Retrieval: retriever.Options{
			TopK:     o.TopK,
			MaxChars: o.MaxContextChars,
		},
		MaxRounds:      o.MaxRounds,
		MaxParseErrors: o.MaxParseErrors,
	}
}

func templateOverrides(in map[string]scholaropts.TemplateOptions) map[string]biz.TemplateOverride {
	out := make(map[string]biz.TemplateOverride, len(in))
	for kind, t := range in {
		out[kind] = biz.TemplateOverride{
			Instruction:   t.Instruction,
			Query:         t.Query,
			Model:         t.Model,
			Tools:         t.Tools,
			RequiresTools: t.RequiresTools,
			Grounded:      t.Grounded,
		}
	}
	return out
}
