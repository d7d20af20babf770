package response

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
	"github.com/kart-io/sentinel-scholar/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(fn func(c *gin.Context)) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Header(headerRequestID, "req-1")
	fn(c)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestOK(t *testing.T) {
	w, body := record(func(c *gin.Context) { OK(c, gin.H{"text": "done"}) })

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["code"])
	assert.Equal(t, "success", body["message"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, map[string]interface{}{"text": "done"}, body["data"])
}

func TestFailWithError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"未知任务", errors.ErrUnknownTask.WithMessage("unknown task kind \"translate\""), http.StatusNotFound, errors.ErrUnknownTask.Code},
		{"包装的错误码", fmt.Errorf("run: %w", errors.ErrEmbeddingUnavailable), http.StatusServiceUnavailable, errors.ErrEmbeddingUnavailable.Code},
		{"普通错误", stderrors.New("boom"), http.StatusInternalServerError, errors.ErrInternal.Code},
		{"配额", errors.ErrProviderQuota, http.StatusTooManyRequests, errors.ErrProviderQuota.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := record(func(c *gin.Context) { FailWithError(c, tt.err) })
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, float64(tt.code), body["code"])
			assert.NotEmpty(t, body["message"])
			assert.Nil(t, body["data"])
		})
	}
}

func TestFail_Lang(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	NewWriter(c).WithLang("zh").Fail(errors.ErrUnknownTask)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "未知的任务类型", body.Message)
}

func TestFailWithBind(t *testing.T) {
	type req struct {
		Text string `json:"text" binding:"required"`
	}

	w, body := record(func(c *gin.Context) {
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		c.Request.Header.Set("Content-Type", "application/json")
		var r req
		FailWithBind(c, c.ShouldBindJSON(&r))
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(errors.ErrInvalidParam.Code), body["code"])
}

func TestResponse_HTTPStatusFallback(t *testing.T) {
	r := &Response{Code: errors.MakeCode(99, errors.CategoryRateLimit, 999)}
	assert.Equal(t, http.StatusTooManyRequests, r.HTTPStatus())
	assert.Equal(t, http.StatusOK, (&Response{}).HTTPStatus())
}
