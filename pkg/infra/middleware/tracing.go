package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/sentinel-scholar/pkg/infra/tracing"
)

// TracerName is the name of the tracer for HTTP middleware.
const TracerName = "github.com/kart-io/sentinel-scholar/pkg/infra/middleware"

// TracingConfig Tracing 中间件配置。
type TracingConfig struct {
	// SkipPaths 不创建 Span 的路径
	SkipPaths []string
}

// DefaultTracingConfig 默认跳过探活与指标路径。
var DefaultTracingConfig = TracingConfig{
	SkipPaths: []string{"/health", "/metrics"},
}

// Tracing 使用默认配置。
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig)
}

// TracingWithConfig 从请求头提取上游 Trace Context，为每个请求创建服务端 Span，
// 并把带 Span 的 context 写回 c.Request，下游的模型与工具调用据此注入 traceparent。
func TracingWithConfig(config TracingConfig) gin.HandlerFunc {
	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		req := c.Request
		if skipPaths[req.URL.Path] {
			c.Next()
			return
		}

		// 每次取全局传播器，服务启动时才安装
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		ctx, span := tracing.StartSpan(ctx, TracerName, fmt.Sprintf("%s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(req.Method),
			semconv.HTTPRoute(route),
			semconv.HTTPTarget(req.URL.Path),
			semconv.ServerAddress(req.Host),
		}
		if ua := req.UserAgent(); ua != "" {
			attrs = append(attrs, semconv.UserAgentOriginal(ua))
		}
		if requestID := GetRequestID(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("http.request_id", requestID))
		}
		span.SetAttributes(attrs...)

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		switch {
		case status >= 500:
			span.RecordError(fmt.Errorf("HTTP %d: %s", status, http.StatusText(status)))
			span.SetStatus(codes.Error, http.StatusText(status))
		case status >= 400:
			span.SetStatus(codes.Error, http.StatusText(status))
		default:
			span.SetStatus(codes.Ok, "")
		}
	}
}
