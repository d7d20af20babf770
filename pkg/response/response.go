// Package response 定义统一的 API 响应结构。
package response

import (
	"net/http"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// Response 统一响应结构，Code 为 0 表示成功。
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`

	httpCode int
}

// Success 成功响应。
func Success(data interface{}) *Response {
	return &Response{
		Message:  "success",
		Data:     data,
		httpCode: http.StatusOK,
	}
}

// Err 由错误码构造响应。
func Err(e *errors.Errno) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:     e.Code,
		Message:  e.MessageEN,
		httpCode: e.HTTPStatus(),
	}
}

// ErrWithLang 由错误码构造指定语言的响应。
func ErrWithLang(e *errors.Errno, lang string) *Response {
	r := Err(e)
	if e != nil {
		r.Message = e.Message(lang)
	}
	return r
}

// IsSuccess 是否成功。
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// HTTPStatus 返回响应对应的 HTTP 状态码。
// 未显式设置时按注册的错误码查找，查不到再按类别推断。
func (r *Response) HTTPStatus() int {
	if r.httpCode != 0 {
		return r.httpCode
	}
	if r.Code == 0 {
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}

	switch errors.GetCategory(r.Code) {
	case errors.CategoryRequest:
		return http.StatusBadRequest
	case errors.CategoryResource:
		return http.StatusNotFound
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
