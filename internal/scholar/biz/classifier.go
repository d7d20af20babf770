package biz

import (
	stderrors "errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/utils/httpclient"
)

// ProviderErrorKind 模型调用失败的分类。
type ProviderErrorKind string

const (
	ProviderAuth           ProviderErrorKind = "auth"
	ProviderQuota          ProviderErrorKind = "quota"
	ProviderDecommissioned ProviderErrorKind = "decommissioned"
	ProviderUnknown        ProviderErrorKind = "unknown"
)

// 按消息短语分类的规则，依次匹配。短语优先于状态码数字，
// 上游改动措辞时分类落入 unknown，而不是误判为其他类别。
var classifierRules = []struct {
	kind    ProviderErrorKind
	needles []string
}{
	{ProviderDecommissioned, []string{"decommissioned"}},
	{ProviderQuota, []string{"quota", "rate limit", "resource_exhausted", "too many requests"}},
	{ProviderAuth, []string{"invalid api key", "unauthorized", "authentication"}},
}

// 消息中独立出现的状态码，不匹配 5401、req_4011、4290ms 这类数字片段。
var statusCodeRules = []struct {
	kind    ProviderErrorKind
	pattern *regexp.Regexp
}{
	{ProviderAuth, regexp.MustCompile(`(^|[^\w.])(401|403)($|[^\w.])`)},
	{ProviderQuota, regexp.MustCompile(`(^|[^\w.])429($|[^\w.])`)},
}

// ProviderError 分类后的模型调用失败。
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
	cause   error
}

func (e *ProviderError) Error() string {
	return "provider error (" + string(e.Kind) + "): " + e.Message
}

// Unwrap 返回对应的错误码，errors.Is(err, errors.ErrProviderQuota) 等成立。
// 原始错误通过 Cause 获取。
func (e *ProviderError) Unwrap() error {
	return e.Errno()
}

// Cause 返回原始错误。
func (e *ProviderError) Cause() error {
	return e.cause
}

// Guidance 返回面向用户的处理建议。
func (e *ProviderError) Guidance() string {
	return e.Errno().MessageEN
}

// Errno 返回分类对应的错误码。
func (e *ProviderError) Errno() *errors.Errno {
	switch e.Kind {
	case ProviderAuth:
		return errors.ErrProviderAuth
	case ProviderQuota:
		return errors.ErrProviderQuota
	case ProviderDecommissioned:
		return errors.ErrProviderDecommissioned
	default:
		return errors.ErrProviderUnknown.WithMessage("Language model provider error: " + e.Message)
	}
}

// Classify 把模型调用失败归类。*httpclient.StatusError 的状态码优先，
// 其次按消息短语（不区分大小写），最后才看消息中独立出现的状态码。
// err 为 nil 时返回 nil；已经分类过的错误原样返回。
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe
	}

	msg := err.Error()
	out := &ProviderError{Kind: ProviderUnknown, Message: msg, cause: err}

	var se *httpclient.StatusError
	if stderrors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			out.Kind = ProviderAuth
			return out
		case http.StatusTooManyRequests:
			out.Kind = ProviderQuota
			return out
		}
	}

	lower := strings.ToLower(msg)
	for _, rule := range classifierRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				out.Kind = rule.kind
				return out
			}
		}
	}
	for _, rule := range statusCodeRules {
		if rule.pattern.MatchString(lower) {
			out.Kind = rule.kind
			return out
		}
	}
	return out
}
