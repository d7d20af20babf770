package react_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/react"
	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// scriptedModel 依次返回预设输出，并记录每次收到的提示词。
type scriptedModel struct {
	outputs []string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt, _ string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	i := len(m.prompts) - 1
	if i >= len(m.outputs) {
		i = len(m.outputs) - 1
	}
	return m.outputs[i], nil
}

func newRegistry(t *testing.T, calls *[]string) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, name := range []string{"web_search", "arxiv_search"} {
		name := name
		require.NoError(t, r.Register(tools.NewFunc(name, "search "+name, func(_ context.Context, q string) string {
			*calls = append(*calls, name+"("+q+")")
			return "results for " + q
		})))
	}
	require.NoError(t, r.Register(tools.NewFunc("broken", "always panics", func(context.Context, string) string {
		panic("socket closed")
	})))
	return r
}

const seed = "Question: check this\nThought:"

func TestAgent_ToolThenAnswer(t *testing.T) {
	var calls []string
	model := &scriptedModel{outputs: []string{
		" I should search arXiv.\nAction: arxiv_search\nAction Input: attention",
		" I now know the final answer\nFinal Answer: Original work.",
	}}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls)}

	out, err := agent.Run(context.Background(), seed)
	require.NoError(t, err)

	assert.Equal(t, "Original work.", out.Answer)
	assert.Equal(t, 2, out.Rounds)
	assert.Equal(t, 0, out.ParseErrors)
	assert.Equal(t, []string{"arxiv_search(attention)"}, calls)
	assert.Equal(t, 1, out.Transcript.ToolCalls())
	assert.Equal(t, map[string]int{"arxiv_search": 1}, out.Transcript.ToolUsage())

	require.Len(t, model.prompts, 2)
	assert.Equal(t, seed, model.prompts[0])
	assert.Equal(t, seed+" I should search arXiv.\nAction: arxiv_search\nAction Input: attention"+
		"\nObservation: results for attention\nThought: ", model.prompts[1])
}

func TestAgent_UnknownToolAborts(t *testing.T) {
	var calls []string
	model := &scriptedModel{outputs: []string{
		"Action: unknown_tool\nAction Input: x",
	}}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls), MaxParseErrors: 3}

	out, err := agent.Run(context.Background(), seed)
	require.Error(t, err)
	assert.Nil(t, out)

	var abort *react.AbortError
	require.ErrorAs(t, err, &abort)
	assert.ErrorIs(t, err, errors.ErrAgentAborted)
	assert.Equal(t, 3, abort.ParseErrors)
	assert.Equal(t, 3, abort.Rounds)
	require.Len(t, abort.Transcript, 3)
	assert.Empty(t, calls)

	note := "unknown_tool is not a valid tool, try one of [web_search, arxiv_search, broken]."
	for _, step := range abort.Transcript {
		assert.True(t, step.ParseError)
		assert.Equal(t, note, step.Observation)
	}
	// 纠正提示回灌给模型
	assert.Contains(t, model.prompts[1], "Observation: "+note)
}

func TestAgent_RecoversFromParseError(t *testing.T) {
	var calls []string
	model := &scriptedModel{outputs: []string{
		"Action: nonexistent\nAction Input: x",
		"I forgot the format",
		" Final Answer: recovered",
	}}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls)}

	out, err := agent.Run(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Answer)
	assert.Equal(t, 2, out.ParseErrors)
	assert.Equal(t, 3, out.Rounds)
	assert.Contains(t, model.prompts[2], react.NoteMissingAction)
}

func TestAgent_RoundBudget(t *testing.T) {
	var calls []string
	model := &scriptedModel{outputs: []string{"Action: web_search\nAction Input: loop"}}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls), MaxRounds: 4}

	_, err := agent.Run(context.Background(), seed)

	var abort *react.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Contains(t, abort.Reason, "could not reach a final answer")
	assert.Equal(t, 4, abort.Rounds)
	assert.Len(t, calls, 4)
	assert.Len(t, model.prompts, 4)
}

func TestAgent_Termination(t *testing.T) {
	outputs := []string{
		"garbage",
		"Action: web_search",
		"Action: web_search\nAction Input: q",
		"Action: nope\nAction Input: q",
	}

	for rounds := 1; rounds <= 5; rounds++ {
		for parseErrors := 1; parseErrors <= 4; parseErrors++ {
			var calls []string
			model := &scriptedModel{outputs: outputs}
			agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls), MaxRounds: rounds, MaxParseErrors: parseErrors}

			_, err := agent.Run(context.Background(), seed)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrAgentAborted)
			assert.LessOrEqual(t, len(model.prompts), rounds)
		}
	}
}

func TestAgent_ToolPanicBecomesObservation(t *testing.T) {
	var calls []string
	model := &scriptedModel{outputs: []string{
		"Action: broken\nAction Input: x",
		"Final Answer: done",
	}}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls)}

	out, err := agent.Run(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Answer)
	assert.Equal(t, "Error invoking broken: socket closed", out.Transcript[0].Observation)
}

func TestAgent_ProviderErrorStopsImmediately(t *testing.T) {
	var calls []string
	model := &scriptedModel{err: stderrors.New("429 Too Many Requests: quota exceeded")}
	agent := &react.Agent{Model: model, Tools: newRegistry(t, &calls)}

	_, err := agent.Run(context.Background(), seed)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota"))
	assert.NotErrorIs(t, err, errors.ErrAgentAborted)
	assert.Len(t, model.prompts, 1)
}

func TestAgent_CanceledContext(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{outputs: []string{"Final Answer: x"}}
	_, err := (&react.Agent{Model: model, Tools: newRegistry(t, &calls)}).Run(ctx, seed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.prompts)
}

func TestAgent_RequiresTools(t *testing.T) {
	_, err := (&react.Agent{Model: &scriptedModel{}, Tools: tools.NewRegistry()}).Run(context.Background(), seed)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestTranscript_String(t *testing.T) {
	tr := react.Transcript{
		{Thought: "search", Action: "web_search", ActionInput: "q", Observation: "r"},
		{Thought: "done", Final: "answer"},
	}
	assert.Equal(t, "Thought: search\nAction: web_search\nAction Input: q\nObservation: r\n"+
		"\nThought: done\nFinal Answer: answer\n", tr.String())
}
