// Package middleware 提供 gin 中间件：请求 ID、访问日志与 panic 恢复。
package middleware

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// HeaderXRequestID 请求 ID 头。
const HeaderXRequestID = "X-Request-ID"

// requestIDKey 请求 ID 在 context.Context 中的键。
type requestIDKey struct{}

// ULIDGenerator 生成时间有序的 ULID。
type ULIDGenerator struct {
	entropy io.Reader
	mu      sync.Mutex
}

// NewULIDGenerator 创建生成器，同一毫秒内的 ID 也保持单调递增。
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Generate 生成一个新 ID。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// RequestIDConfig RequestID 中间件配置。
type RequestIDConfig struct {
	// Header 默认 X-Request-ID
	Header string
	// Generator 默认 ULID
	Generator func() string
}

// RequestID 使用默认配置。
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig 沿用客户端传入的请求 ID，没有时生成一个。
// 请求 ID 写入响应头，并存入请求的 context.Context。
func RequestIDWithConfig(config RequestIDConfig) gin.HandlerFunc {
	if config.Header == "" {
		config.Header = HeaderXRequestID
	}
	if config.Generator == nil {
		config.Generator = NewULIDGenerator().Generate
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(config.Header)
		if requestID == "" {
			requestID = config.Generator()
		}

		c.Header(config.Header, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// WithRequestID 把请求 ID 存入 ctx。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID 从 ctx 读取请求 ID，没有时返回空串。
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
