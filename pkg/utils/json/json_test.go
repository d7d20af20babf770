package json

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUsingSonic(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, IsUsingSonic())
}

func TestDecoder_ProviderPayload(t *testing.T) {
	payload := `{"choices":[{"message":{"role":"assistant","content":"Final Answer: ok"}}]}`

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, NewDecoder(bytes.NewBufferString(payload)).Decode(&resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Final Answer: ok", resp.Choices[0].Message.Content)
}

func TestMarshal_EscapesHTML(t *testing.T) {
	// 与 encoding/json 行为保持一致
	data, err := Marshal(map[string]string{"q": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"\u003cb\u003e"}`, string(data))
}
