// Package handler provides HTTP handlers for the scholar service.
package handler

import (
	"context"
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/docutil"
	"github.com/kart-io/sentinel-scholar/internal/scholar/biz"
	"github.com/kart-io/sentinel-scholar/internal/scholar/metrics"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/response"
)

// DefaultLanguage 请求未指定语言时使用。
const DefaultLanguage = "English"

// Engine 处理器依赖的引擎能力，*biz.Dispatcher 满足该接口。
type Engine interface {
	RunTask(ctx context.Context, kind biz.TaskKind, in biz.Input) (*biz.Result, error)
	Catalog() *biz.Catalog
	ModelFor(role biz.ModelRole) string
	EmbeddingsAvailable() bool
}

// Executor 限制并发的执行器，*pool.Pool 满足该接口。
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Options 处理器参数。
type Options struct {
	// TaskTimeout 单个任务的最长执行时间。
	TaskTimeout time.Duration
	// MaxUploadBytes 上传文档的最大字节数。
	MaxUploadBytes int64
	// TempDir 上传文档的临时目录，为空时使用系统默认目录。
	TempDir string
}

// TaskHandler handles task HTTP requests.
type TaskHandler struct {
	engine   Engine
	executor Executor
	metrics  *metrics.ScholarMetrics
	opts     Options
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(engine Engine, executor Executor, m *metrics.ScholarMetrics, opts Options) *TaskHandler {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = docutil.DefaultMaxBytes
	}
	return &TaskHandler{
		engine:   engine,
		executor: executor,
		metrics:  m,
		opts:     opts,
	}
}

// TaskRequest 文本任务请求。
type TaskRequest struct {
	Text     string `json:"text" binding:"required"`
	Language string `json:"language" binding:"omitempty,max=64"`
}

// TaskInfo 任务类型说明。
type TaskInfo struct {
	Kind             biz.TaskKind `json:"kind"`
	Model            string       `json:"model"`
	RequiresLanguage bool         `json:"requires_language"`
	RequiresTools    bool         `json:"requires_tools"`
	Grounded         bool         `json:"grounded"`
	Tools            []string     `json:"tools,omitempty"`
}

// HealthStatus 健康检查结果。
type HealthStatus struct {
	Status         string `json:"status"`
	PrimaryModel   string `json:"primary_model"`
	SecondaryModel string `json:"secondary_model"`
	Embeddings     bool   `json:"embeddings"`
}

// Run 执行文本任务。
func (h *TaskHandler) Run(c *gin.Context) {
	kind := biz.TaskKind(c.Param("kind"))
	if _, err := h.engine.Catalog().Lookup(kind); err != nil {
		response.FailWithError(c, err)
		return
	}

	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}

	h.execute(c, kind, biz.Input{
		Text:     req.Text,
		Language: languageOrDefault(req.Language),
	}, nil)
}

// RunFile 执行文档任务。上传的文件写入临时文件，任务结束后删除。
func (h *TaskHandler) RunFile(c *gin.Context) {
	kind := biz.TaskKind(c.Param("kind"))
	if _, err := h.engine.Catalog().Lookup(kind); err != nil {
		response.FailWithError(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}
		response.Fail(c, errors.ErrInvalidParam.WithMessage("multipart field \"file\" is required"))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !docutil.IsSupported(ext) {
		response.Fail(c, errors.ErrExtraction.WithMessagef("unsupported file type %q", ext))
		return
	}

	path, err := h.saveTemp(file, ext)
	if err != nil {
		logger.Errorw("failed to store upload", "filename", file.Filename, "error", err)
		response.Fail(c, errors.ErrInternal.WithMessage("failed to store upload"))
		return
	}

	h.execute(c, kind, biz.Input{
		DocumentPath: path,
		Language:     languageOrDefault(c.PostForm("language")),
	}, &upload{path: path})
}

// List 列出支持的任务类型。
func (h *TaskHandler) List(c *gin.Context) {
	templates := h.engine.Catalog().List()
	infos := make([]TaskInfo, 0, len(templates))
	for _, t := range templates {
		infos = append(infos, TaskInfo{
			Kind:             t.Kind,
			Model:            h.engine.ModelFor(t.Model),
			RequiresLanguage: t.RequiresLanguage,
			RequiresTools:    t.RequiresTools,
			Grounded:         t.Grounded,
			Tools:            t.Tools,
		})
	}
	response.OK(c, infos)
}

// Health 健康检查。
func (h *TaskHandler) Health(c *gin.Context) {
	response.OK(c, HealthStatus{
		Status:         "ok",
		PrimaryModel:   h.engine.ModelFor(biz.RolePrimary),
		SecondaryModel: h.engine.ModelFor(biz.RoleSecondary),
		Embeddings:     h.engine.EmbeddingsAvailable(),
	})
}

// execute 在执行器中运行任务。up 非空时由运行任务的 worker 在任务结束后删除文件；
// 超时返回后 worker 可能仍在读取文件，请求侧只删除从未被 worker 领取的文件。
func (h *TaskHandler) execute(c *gin.Context, kind biz.TaskKind, in biz.Input, up *upload) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.TaskTimeout)
	defer cancel()

	var res *biz.Result
	err := h.executor.Do(ctx, func(ctx context.Context) error {
		if up != nil {
			if !up.claim() {
				return ctx.Err()
			}
			defer up.remove()
		}
		r, err := h.engine.RunTask(ctx, kind, in)
		res = r
		return err
	})
	if err != nil && up != nil && up.claim() {
		up.remove()
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrEngineBusy) {
			h.metrics.RecordRejected()
		}
		response.FailWithError(c, err)
		return
	}
	response.OK(c, res)
}

// upload 上传的临时文件，worker 与请求中先 claim 成功的一方负责删除。
type upload struct {
	path    string
	claimed atomic.Bool
}

func (u *upload) claim() bool {
	return u.claimed.CompareAndSwap(false, true)
}

func (u *upload) remove() {
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		logger.Warnw("failed to remove upload", "path", u.path, "error", err)
	}
}

func (h *TaskHandler) saveTemp(file *multipart.FileHeader, ext string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.opts.TempDir, "scholar-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func languageOrDefault(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return DefaultLanguage
}
