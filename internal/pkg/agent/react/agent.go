// Package react 实现 ReAct 推理循环：思考，选择工具或给出答案，观察结果，再思考。
//
// 状态流转：THINKING → {ACTING, FINISHED, ABORTED}，ACTING → THINKING。
// 每次模型调用计一轮；格式错误与未知工具属于可恢复错误，提示会作为 Observation 回灌，
// 错误次数达到上限或轮数耗尽时终止。
package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

const (
	// DefaultMaxRounds 默认最多调用模型的次数。
	DefaultMaxRounds = 15
	// DefaultMaxParseErrors 默认可容忍的格式错误次数。
	DefaultMaxParseErrors = 3
)

// Model 循环所需的模型能力，llm.ChatProvider 满足该接口。
type Model interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Agent ReAct 智能体。每次 Run 独占自己的 Transcript，Agent 本身可并发复用。
type Agent struct {
	Model          Model
	Tools          *tools.Registry
	MaxRounds      int
	MaxParseErrors int
}

// Outcome 成功结束时的结果。
type Outcome struct {
	Answer      string
	Transcript  Transcript
	Rounds      int
	ParseErrors int
}

// AbortError 循环未能得出最终答案。
// errors.Is(err, errors.ErrAgentAborted) 成立。
type AbortError struct {
	Reason      string
	Transcript  Transcript
	Rounds      int
	ParseErrors int
}

func (e *AbortError) Error() string {
	return "agent aborted: " + e.Reason
}

// Unwrap 暴露统一错误码。
func (e *AbortError) Unwrap() error {
	return errors.ErrAgentAborted.WithMessage("Agent could not reach a final answer: " + e.Reason)
}

// Run 以 prompt 为种子运行循环。prompt 应以 "Thought:" 结尾。
// 模型调用失败立即返回该错误，不做重试。
func (a *Agent) Run(ctx context.Context, prompt string) (*Outcome, error) {
	if a.Model == nil || a.Tools == nil || a.Tools.Len() == 0 {
		return nil, errors.ErrConfiguration.WithMessage("agent requires a model and at least one tool")
	}

	maxRounds := a.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	maxParseErrors := a.MaxParseErrors
	if maxParseErrors <= 0 {
		maxParseErrors = DefaultMaxParseErrors
	}

	var (
		transcript  Transcript
		scratchpad  strings.Builder
		rounds      int
		parseErrors int
	)

	abort := func(reason string) error {
		logger.Warnw("agent aborted",
			"reason", reason,
			"rounds", rounds,
			"parse_errors", parseErrors,
		)
		return &AbortError{Reason: reason, Transcript: transcript, Rounds: rounds, ParseErrors: parseErrors}
	}

	for rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// THINKING
		start := time.Now()
		raw, err := a.Model.Generate(ctx, prompt+scratchpad.String(), "")
		rounds++
		if err != nil {
			logger.Errorw("agent model call failed", "round", rounds, "error", err)
			return nil, err
		}
		output := TrimObservation(raw)

		decision, perr := Parse(output)
		if perr == nil && decision.IsFinal {
			transcript = append(transcript, Step{Thought: decision.Thought, Final: decision.Final})
			logger.Infow("agent finished",
				"rounds", rounds,
				"parse_errors", parseErrors,
				"tool_calls", transcript.ToolCalls(),
			)
			return &Outcome{Answer: decision.Final, Transcript: transcript, Rounds: rounds, ParseErrors: parseErrors}, nil
		}

		var tool tools.Tool
		if perr == nil {
			var ok bool
			if tool, ok = a.Tools.Get(decision.Action); !ok {
				perr = &ParseError{Note: fmt.Sprintf("%s is not a valid tool, try one of [%s].",
					decision.Action, strings.Join(a.Tools.Names(), ", "))}
			}
		}

		if perr != nil {
			parseErrors++
			note := perr.Error()
			step := Step{Thought: extractThought(output), Observation: note, ParseError: true}
			if decision != nil {
				step.Action, step.ActionInput = decision.Action, decision.ActionInput
			}
			transcript = append(transcript, step)
			logger.Debugw("agent parse error", "round", rounds, "note", note)

			if parseErrors >= maxParseErrors {
				return nil, abort(fmt.Sprintf("reached the limit of %d output parsing errors", maxParseErrors))
			}
			appendScratch(&scratchpad, output, note)
			continue
		}

		// ACTING
		observation := tools.SafeInvoke(ctx, tool, decision.ActionInput)
		transcript = append(transcript, Step{
			Thought:     decision.Thought,
			Action:      decision.Action,
			ActionInput: decision.ActionInput,
			Observation: observation,
		})
		logger.Debugw("agent tool invoked",
			"round", rounds,
			"tool", decision.Action,
			"duration", time.Since(start),
		)
		appendScratch(&scratchpad, output, observation)
	}

	return nil, abort(fmt.Sprintf("could not reach a final answer within %d rounds", maxRounds))
}

// appendScratch 按 "<输出>\nObservation: <结果>\nThought: " 追加到草稿区。
func appendScratch(b *strings.Builder, output, observation string) {
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(output))
	b.WriteString("\n" + MarkerObservation + " ")
	b.WriteString(observation)
	b.WriteString("\n" + MarkerThought + " ")
}
