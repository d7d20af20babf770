package react

import "strings"

// Step 一轮思考及其结果。
type Step struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
	Final       string `json:"final_answer,omitempty"`
	// ParseError 该轮输出格式错误或工具不存在，Observation 为纠正提示。
	ParseError bool `json:"parse_error,omitempty"`
}

// Transcript 一次运行的步骤记录。
type Transcript []Step

// ToolCalls 实际执行的工具调用次数。
func (t Transcript) ToolCalls() int {
	n := 0
	for _, s := range t {
		if s.Action != "" && !s.ParseError {
			n++
		}
	}
	return n
}

// ToolUsage 按工具名统计调用次数。
func (t Transcript) ToolUsage() map[string]int {
	usage := make(map[string]int)
	for _, s := range t {
		if s.Action != "" && !s.ParseError {
			usage[s.Action]++
		}
	}
	return usage
}

// String 以 ReAct 文本格式输出，便于排查。
func (t Transcript) String() string {
	var b strings.Builder
	for i, s := range t {
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Thought != "" {
			b.WriteString(MarkerThought + " " + s.Thought + "\n")
		}
		if s.Final != "" {
			b.WriteString(MarkerFinalAnswer + " " + s.Final + "\n")
			continue
		}
		if s.Action != "" {
			b.WriteString(MarkerAction + " " + s.Action + "\n")
			b.WriteString(MarkerActionInput + " " + s.ActionInput + "\n")
		}
		b.WriteString(MarkerObservation + " " + s.Observation + "\n")
	}
	return b.String()
}
