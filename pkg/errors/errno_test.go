package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service, category, sequence int
		expected                    int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{21, 4, 1, 2104001},
		{21, 12, 2, 2112002},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			code := MakeCode(tt.service, tt.category, tt.sequence)
			assert.Equal(t, tt.expected, code)

			s, c, q := ParseCode(code)
			assert.Equal(t, []int{tt.service, tt.category, tt.sequence}, []int{s, c, q})
		})
	}
}

func TestErrno_WithCauseKeepsIdentity(t *testing.T) {
	cause := stderrors.New("boom")
	err := ErrExtraction.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrExtraction))
	assert.True(t, stderrors.Is(err, cause))
	assert.False(t, stderrors.Is(err, ErrUnknownTask))
	assert.Nil(t, ErrExtraction.Unwrap(), "registered errno must not be mutated")
	assert.Contains(t, err.Error(), "boom")
}

func TestErrno_WithMessage(t *testing.T) {
	err := ErrUnknownTask.WithMessagef("unknown task kind %q", "translate")

	assert.Equal(t, `unknown task kind "translate"`, err.MessageEN)
	assert.Equal(t, ErrUnknownTask.Code, err.Code)
	assert.Equal(t, "Unknown task kind", ErrUnknownTask.MessageEN)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("run task: %w", ErrEmbeddingUnavailable)
	assert.Equal(t, ErrEmbeddingUnavailable.Code, FromError(wrapped).Code)
	assert.Equal(t, ErrEmbeddingUnavailable.Code, GetCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrEmbeddingUnavailable.Code))

	plain := FromError(stderrors.New("plain"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Equal(t, -1, GetCode(stderrors.New("plain")))
}

func TestErrno_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		errno    *Errno
		wantHTTP int
		wantGRPC codes.Code
	}{
		{"未知任务", ErrUnknownTask, http.StatusNotFound, codes.NotFound},
		{"检索不可用", ErrEmbeddingUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{"配额耗尽", ErrProviderQuota, http.StatusTooManyRequests, codes.ResourceExhausted},
		{"未设置状态码", New(9999999, 0, codes.OK, "x", ""), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantHTTP, tt.errno.HTTPStatus())
			assert.Equal(t, tt.wantGRPC, tt.errno.GRPCStatus())
		})
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	e, ok := Lookup(ErrAgentAborted.Code)
	require.True(t, ok)
	assert.Same(t, ErrAgentAborted, e)

	assert.Panics(t, func() {
		Register(New(ErrAgentAborted.Code, http.StatusInternalServerError, codes.Internal, "dup", ""))
	})
}

func TestErrno_Format(t *testing.T) {
	err := ErrProviderUnknown.WithCause(stderrors.New("connection reset"))
	out := fmt.Sprintf("%+v", err)
	assert.Contains(t, out, "HTTP 502")
	assert.Contains(t, out, "caused by: connection reset")
	assert.Equal(t, err.Error(), fmt.Sprintf("%s", err))
}

func TestMessage_Lang(t *testing.T) {
	assert.Equal(t, "未知的任务类型", ErrUnknownTask.Message("zh"))
	assert.Equal(t, "Unknown task kind", ErrUnknownTask.Message("en"))
}
