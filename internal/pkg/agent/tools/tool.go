// Package tools 定义智能体可调用的外部工具及其注册表。
//
// 工具从不向调用方返回 Go error：网络失败、空结果、格式错误都编码在返回的文本中，
// 智能体循环把所有 Observation 当作普通文本处理。
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// 工具名称。
const (
	NameWebSearch     = "web_search"
	NameScholarSearch = "scholar_search"
	NameArxivSearch   = "arxiv_search"
	NameReadDocument  = "read_document"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 5
	defaultUserAgent  = "Mozilla/5.0 (compatible; sentinel-scholar/1.0)"
	// maxBodyBytes 单次响应最多读取的字节数。
	maxBodyBytes = 1 << 20
)

// Tool 智能体工具。
type Tool interface {
	Name() string
	Description() string
	// Invoke 执行查询，失败时返回描述性文本而不是 error。
	Invoke(ctx context.Context, query string) string
}

// funcTool 以函数实现的工具，主要用于测试和简单场景。
type funcTool struct {
	name string
	desc string
	fn   func(ctx context.Context, query string) string
}

// NewFunc 用函数构造工具。
func NewFunc(name, description string, fn func(ctx context.Context, query string) string) Tool {
	return &funcTool{name: name, desc: description, fn: fn}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.desc }

func (t *funcTool) Invoke(ctx context.Context, query string) string {
	return t.fn(ctx, query)
}

// SafeInvoke 调用工具并把 panic 转换为错误文本。
func SafeInvoke(ctx context.Context, t Tool, query string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("tool panicked", "tool", t.Name(), "panic", r)
			out = fmt.Sprintf("Error invoking %s: %v", t.Name(), r)
		}
	}()
	return t.Invoke(ctx, query)
}

// Registry 按名称管理工具，保留注册顺序。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry 创建注册表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 注册工具，名称为空或重复时返回 ErrConfiguration。
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.ErrConfiguration.WithMessage("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return errors.ErrConfiguration.WithMessagef("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get 按名称精确查找工具。
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names 返回按注册顺序排列的工具名称。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// List 返回按注册顺序排列的工具。
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Len 返回工具数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Subset 按给定名称构造子注册表，未注册的名称返回 ErrConfiguration。
// 不传名称时返回全部工具。
func (r *Registry) Subset(names ...string) (*Registry, error) {
	if len(names) == 0 {
		names = r.Names()
	}

	sub := NewRegistry()
	var unknown []string
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if _, dup := sub.Get(name); dup {
			continue
		}
		if err := sub.Register(t); err != nil {
			return nil, err
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.ErrConfiguration.WithMessagef("unknown tools: %s", strings.Join(unknown, ", "))
	}
	return sub, nil
}

// newRestClient 创建工具共用的 resty 客户端，不做自动重试。
func newRestClient(timeout time.Duration, userAgent string) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
