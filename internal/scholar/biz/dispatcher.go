package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/react"
	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/docutil"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/index"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/prompt"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/retriever"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-scholar/internal/scholar/metrics"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/infra/tracing"
	"github.com/kart-io/sentinel-scholar/pkg/llm"
)

const tracerName = "github.com/kart-io/sentinel-scholar/internal/scholar/biz"

// Mode 任务实际执行的方式。
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeGrounded Mode = "grounded"
	ModeAgent    Mode = "agent"
)

// Extractor 文档文本提取能力。
type Extractor interface {
	Extract(path string) (string, error)
}

// Input 任务输入。DocumentPath 非空时忽略 Text。
type Input struct {
	Text         string
	DocumentPath string
	Language     string
}

// RetrievalStats 检索过程的统计。
type RetrievalStats struct {
	Chunks    int  `json:"chunks"`
	Hits      int  `json:"hits"`
	Dropped   int  `json:"dropped"`
	Truncated bool `json:"truncated"`
}

// Result 任务结果。
type Result struct {
	Text     string   `json:"text"`
	Kind     TaskKind `json:"kind"`
	Mode     Mode     `json:"mode"`
	Grounded bool     `json:"grounded"`
	Model    string   `json:"model"`
	// Rounds 智能体调用模型的次数，仅 agent 模式。
	Rounds     int              `json:"rounds,omitempty"`
	Transcript react.Transcript `json:"transcript,omitempty"`
	Retrieval  *RetrievalStats  `json:"retrieval,omitempty"`
}

// Config 引擎参数。
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	IndexBatchSize int
	Retrieval      retriever.Options
	MaxRounds      int
	MaxParseErrors int
}

// Deps 引擎依赖的外部能力。
type Deps struct {
	Catalog   *Catalog
	Primary   llm.ChatProvider
	Secondary llm.ChatProvider
	// Embedder 为空时检索类任务显式失败。
	Embedder  llm.EmbeddingProvider
	Tools     *tools.Registry
	Extractor Extractor
	Metrics   *metrics.ScholarMetrics
}

// Dispatcher 把任务类型映射到模板、模型与工具，并驱动检索与推理流程。
// 构造后只读，可被多个请求并发使用；每个请求独占自己的文档、索引与 Transcript。
type Dispatcher struct {
	catalog   *Catalog
	models    map[ModelRole]llm.ChatProvider
	embedder  llm.EmbeddingProvider
	toolsets  map[TaskKind]*tools.Registry
	extractor Extractor
	splitter  *textutil.RecursiveSplitter
	assembler *prompt.Assembler
	metrics   *metrics.ScholarMetrics
	cfg       Config
}

// NewDispatcher 校验依赖并创建调度器。
func NewDispatcher(deps Deps, cfg Config) (*Dispatcher, error) {
	if deps.Primary == nil {
		return nil, errors.ErrConfiguration.WithMessage("primary chat model is required")
	}
	secondary := deps.Secondary
	if secondary == nil {
		logger.Warnw("secondary chat model not configured, falling back to primary",
			"primary", deps.Primary.Model())
		secondary = deps.Primary
	}

	catalog := deps.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = docutil.Extractor{}
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = textutil.DefaultChunkSize
		cfg.ChunkOverlap = textutil.DefaultChunkOverlap
	}
	splitter, err := textutil.NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	toolsets := make(map[TaskKind]*tools.Registry)
	for _, t := range catalog.List() {
		if !t.RequiresTools {
			continue
		}
		if deps.Tools == nil {
			return nil, errors.ErrConfiguration.WithMessagef("task %q requires tools but no tool registry is configured", t.Kind)
		}
		sub, err := deps.Tools.Subset(t.Tools...)
		if err != nil {
			return nil, errors.ErrConfiguration.WithMessagef("task %q: %s", t.Kind, err.Error())
		}
		toolsets[t.Kind] = sub
	}

	if deps.Embedder == nil {
		logger.Warnw("no embedding provider configured, document-grounded tasks will fail with retrieval unavailable")
	}

	return &Dispatcher{
		catalog: catalog,
		models: map[ModelRole]llm.ChatProvider{
			RolePrimary:   deps.Primary,
			RoleSecondary: secondary,
		},
		embedder:  deps.Embedder,
		toolsets:  toolsets,
		extractor: extractor,
		splitter:  splitter,
		assembler: prompt.NewAssembler(),
		metrics:   deps.Metrics,
		cfg:       cfg,
	}, nil
}

// Catalog 返回任务模板集合。
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// EmbeddingsAvailable 是否可以执行检索。
func (d *Dispatcher) EmbeddingsAvailable() bool {
	return d.embedder != nil
}

// ModelFor 返回任务使用的模型名称。
func (d *Dispatcher) ModelFor(role ModelRole) string {
	if m, ok := d.models[role]; ok {
		return m.Model()
	}
	return ""
}

// RunTask 执行一个任务。
//
// 错误：未知任务返回 ErrUnknownTask；缺少参数返回 ErrConfiguration；
// 文档无法读取返回 ErrExtraction；需要检索但没有向量化能力返回 ErrEmbeddingUnavailable；
// 智能体未得出答案返回 *react.AbortError；模型调用失败返回 *ProviderError。
func (d *Dispatcher) RunTask(ctx context.Context, kind TaskKind, in Input) (*Result, error) {
	tmpl, err := d.catalog.Lookup(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	done := d.metrics.TaskStarted()
	defer done()

	mode := d.modeFor(tmpl, in)
	ctx, span := tracing.StartSpan(ctx, tracerName, "scholar.RunTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("scholar.task.kind", string(kind)),
		attribute.String("scholar.task.mode", string(mode)),
	)

	res, err := d.run(ctx, tmpl, mode, in)

	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		tracing.RecordError(ctx, err)
		logger.Warnw("task failed",
			"kind", kind,
			"mode", mode,
			"outcome", outcome,
			"duration", time.Since(start),
			"error", err,
		)
	} else {
		span.SetAttributes(attribute.Bool("scholar.task.grounded", res.Grounded))
		logger.Infow("task completed",
			"kind", kind,
			"mode", res.Mode,
			"grounded", res.Grounded,
			"model", res.Model,
			"duration", time.Since(start),
		)
	}
	d.metrics.RecordTask(string(kind), string(mode), outcome, time.Since(start))
	return res, err
}

func (d *Dispatcher) modeFor(tmpl Template, in Input) Mode {
	switch {
	case tmpl.RequiresTools:
		return ModeAgent
	case in.DocumentPath != "" && tmpl.Grounded:
		return ModeGrounded
	default:
		return ModeDirect
	}
}

func (d *Dispatcher) run(ctx context.Context, tmpl Template, mode Mode, in Input) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.DocumentPath == "" {
		return nil, errors.ErrEmptyContent
	}

	useRetrieval := in.DocumentPath != "" && tmpl.Grounded
	// 先检查能力再检查参数：缺少向量化能力时不做任何降级
	if useRetrieval && d.embedder == nil {
		return nil, errors.ErrEmbeddingUnavailable
	}

	params := make(map[string]string, 3)
	if tmpl.RequiresLanguage {
		lang := strings.TrimSpace(in.Language)
		if lang == "" {
			return nil, errors.ErrConfiguration.WithMessagef("task %q requires a language", tmpl.Kind)
		}
		params["language"] = lang
	}

	res := &Result{Kind: tmpl.Kind, Mode: mode}

	content := text
	if in.DocumentPath != "" {
		extracted, err := d.extract(in.DocumentPath)
		if err != nil {
			return nil, err
		}
		content = extracted

		if useRetrieval {
			retrieved, stats, err := d.retrieve(ctx, extracted, tmpl.Query)
			if err != nil {
				return nil, err
			}
			content = retrieved
			res.Grounded = true
			res.Retrieval = stats
		}
	}
	params[prompt.ContentKey] = content

	model := d.models[tmpl.Model]
	res.Model = model.Model()

	if tmpl.RequiresTools {
		return d.runAgent(ctx, tmpl, model, params, res)
	}

	p, err := d.assembler.Direct(tmpl.Instruction, tmpl.Query, params)
	if err != nil {
		return nil, err
	}
	answer, err := model.Generate(ctx, p, "")
	if err != nil {
		return nil, d.providerFailure(ctx, err)
	}
	res.Text = strings.TrimSpace(answer)
	return res, nil
}

func (d *Dispatcher) runAgent(ctx context.Context, tmpl Template, model llm.ChatProvider, params map[string]string, res *Result) (*Result, error) {
	toolset := d.toolsets[tmpl.Kind]
	infos := make([]prompt.ToolInfo, 0, toolset.Len())
	for _, t := range toolset.List() {
		infos = append(infos, prompt.ToolInfo{Name: t.Name(), Description: t.Description()})
	}

	params[prompt.InputKey] = tmpl.Query
	p, err := d.assembler.Agent(tmpl.Instruction, params, infos)
	if err != nil {
		return nil, err
	}

	agent := &react.Agent{
		Model:          model,
		Tools:          toolset,
		MaxRounds:      d.cfg.MaxRounds,
		MaxParseErrors: d.cfg.MaxParseErrors,
	}
	out, err := agent.Run(ctx, p)
	if err != nil {
		var abort *react.AbortError
		if stderrors.As(err, &abort) {
			d.metrics.RecordAgent(string(tmpl.Kind), "aborted", abort.Rounds, abort.Transcript.ToolUsage())
			return nil, err
		}
		if stderrors.Is(err, errors.ErrConfiguration) {
			return nil, err
		}
		return nil, d.providerFailure(ctx, err)
	}

	d.metrics.RecordAgent(string(tmpl.Kind), "finished", out.Rounds, out.Transcript.ToolUsage())
	res.Text = out.Answer
	res.Rounds = out.Rounds
	res.Transcript = out.Transcript
	return res, nil
}

func (d *Dispatcher) extract(path string) (string, error) {
	text, err := d.extractor.Extract(path)
	if err != nil {
		if stderrors.Is(err, errors.ErrExtraction) {
			return "", err
		}
		return "", errors.ErrExtraction.WithCause(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.ErrExtraction.WithMessage("document contains no extractable text")
	}
	return text, nil
}

// retrieve 分块、建索引并按查询取回上下文。索引只在本次调用内存在。
func (d *Dispatcher) retrieve(ctx context.Context, text, query string) (string, *RetrievalStats, error) {
	chunks := d.splitter.Split(text)
	if len(chunks) == 0 {
		return "", nil, errors.ErrExtraction.WithMessage("document contains no extractable text")
	}

	idx, err := index.Build(ctx, d.embedder, chunks, index.Options{BatchSize: d.cfg.IndexBatchSize})
	if err != nil {
		return "", nil, err
	}
	d.metrics.RecordIndexed(idx.Len())

	rc, err := retriever.Retrieve(ctx, idx, query, d.cfg.Retrieval)
	if err != nil {
		return "", nil, err
	}
	return rc.Text, &RetrievalStats{
		Chunks:    len(chunks),
		Hits:      len(rc.Hits),
		Dropped:   rc.Dropped,
		Truncated: rc.Truncated,
	}, nil
}

// providerFailure 分类模型调用失败；调用方取消时返回上下文错误。
func (d *Dispatcher) providerFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			return errors.ErrTimeout.WithCause(err)
		}
		return errors.ErrContextCanceled.WithCause(err)
	}
	pe := Classify(err)
	d.metrics.RecordProviderError(string(pe.Kind))
	return pe
}

// outcomeOf 把错误归为指标标签。
func outcomeOf(err error) string {
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return "provider_" + string(pe.Kind)
	}
	var abort *react.AbortError
	if stderrors.As(err, &abort) {
		return "agent_aborted"
	}

	switch {
	case stderrors.Is(err, errors.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case stderrors.Is(err, errors.ErrExtraction):
		return "extraction_error"
	case stderrors.Is(err, errors.ErrConfiguration):
		return "configuration_error"
	case stderrors.Is(err, errors.ErrEmptyContent):
		return "empty_content"
	case stderrors.Is(err, errors.ErrTimeout), stderrors.Is(err, errors.ErrContextCanceled):
		return "canceled"
	default:
		return "error"
	}
}
