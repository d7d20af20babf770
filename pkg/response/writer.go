package response

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// headerRequestID 与请求 ID 中间件写入的响应头一致。
const headerRequestID = "X-Request-ID"

// Writer 向 gin.Context 写入统一格式的响应。
type Writer struct {
	ctx      *gin.Context
	withTime bool
	lang     string
}

// NewWriter 创建响应写入器。
func NewWriter(c *gin.Context) *Writer {
	return &Writer{ctx: c}
}

// WithTimestamp 在响应中附带时间戳。
func (w *Writer) WithTimestamp() *Writer {
	w.withTime = true
	return w
}

// WithLang 设置错误消息语言。
func (w *Writer) WithLang(lang string) *Writer {
	w.lang = lang
	return w
}

func (w *Writer) prepare(r *Response) *Response {
	if w.withTime {
		r.Timestamp = time.Now().UnixMilli()
	}
	if id := w.ctx.Writer.Header().Get(headerRequestID); id != "" {
		r.RequestID = id
	}
	return r
}

// OK 成功响应。
func (w *Writer) OK(data interface{}) {
	w.Send(Success(data))
}

// Fail 按错误码写入失败响应。
func (w *Writer) Fail(e *errors.Errno) {
	if w.lang != "" {
		w.Send(ErrWithLang(e, w.lang))
		return
	}
	w.Send(Err(e))
}

// FailWithError 从错误链中取出 Errno 写入，没有时按 ErrInternal 处理。
func (w *Writer) FailWithError(err error) {
	w.Fail(errors.FromError(err))
}

// FailWithBind 处理请求体绑定或校验失败。
func (w *Writer) FailWithBind(err error) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		resp := Err(errors.ErrInvalidParam.WithMessagef("invalid field %s: %s", verrs[0].Field(), verrs[0].Tag()))
		resp.Data = fields
		w.Send(resp)
		return
	}
	w.Fail(errors.ErrInvalidParam.WithMessage("invalid request body: " + err.Error()))
}

// Send 写入任意响应。
func (w *Writer) Send(r *Response) {
	resp := w.prepare(r)
	status := resp.HTTPStatus()
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}
	w.ctx.JSON(status, resp)
}

// OK 成功响应。
func OK(c *gin.Context, data interface{}) {
	NewWriter(c).OK(data)
}

// Fail 按错误码写入失败响应。
func Fail(c *gin.Context, e *errors.Errno) {
	NewWriter(c).Fail(e)
}

// FailWithError 从错误写入失败响应。
func FailWithError(c *gin.Context, err error) {
	NewWriter(c).FailWithError(err)
}

// FailWithBind 写入绑定失败响应。
func FailWithBind(c *gin.Context, err error) {
	NewWriter(c).FailWithBind(err)
}
