package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/response"
)

// RecoveryConfig Recovery 中间件配置。
type RecoveryConfig struct {
	// EnableStackTrace 在响应中附带堆栈，仅用于开发环境
	EnableStackTrace bool

	// OnPanic panic 发生时回调，可用于告警
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// Recovery 使用默认配置。
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(RecoveryConfig{})
}

// RecoveryWithConfig 把 panic 转为 ErrPanic 响应。
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			logger.Errorw("panic recovered",
				"path", c.Request.URL.Path,
				"request_id", GetRequestID(c.Request.Context()),
				"panic", r,
				"stack", string(stack),
			)
			if config.OnPanic != nil {
				config.OnPanic(c, r, stack)
			}

			msg := fmt.Sprintf("panic: %v", r)
			if config.EnableStackTrace {
				msg += "\n" + string(stack)
			}
			response.Fail(c, errors.ErrPanic.WithMessage(msg))
			c.Abort()
		}()
		c.Next()
	}
}
