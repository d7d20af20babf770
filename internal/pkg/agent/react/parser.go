package react

import (
	"regexp"
	"strings"
)

// 输出中的标记。
const (
	MarkerThought     = "Thought:"
	MarkerAction      = "Action:"
	MarkerActionInput = "Action Input:"
	MarkerObservation = "Observation:"
	MarkerFinalAnswer = "Final Answer:"
)

// 可恢复的格式错误提示，作为 Observation 回灌给模型。
const (
	NoteMissingAction      = "Invalid Format: Missing 'Action:' after 'Thought:'"
	NoteMissingActionInput = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	NoteAnswerAndAction    = "Invalid Format: Parsing LLM output produced both a final answer and a parse-able action. Respond with either an Action or a Final Answer, not both."
)

var (
	actionRE      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyRE  = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputRE = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	thoughtRE     = regexp.MustCompile(`(?s)^\s*(?:Thought:)?\s*(.*?)\s*(?:Action\s*\d*\s*:|Final Answer:|$)`)
)

// Decision 一次模型输出的解析结果，Final 与 Action 二选一。
type Decision struct {
	Thought     string
	Action      string
	ActionInput string
	Final       string
	IsFinal     bool
}

// ParseError 可恢复的格式错误，Note 作为下一轮的 Observation。
type ParseError struct {
	Note string
}

func (e *ParseError) Error() string { return e.Note }

// Parse 严格解析模型输出。
//
//   - 只有 "Final Answer:" 时结束；
//   - 同时出现 "Final Answer:" 与可解析的 Action 时报错；
//   - "Action:" 与 "Action Input:" 都存在时执行工具，输入截断到 "\nObservation" 之前并去掉引号；
//   - 其余情况按缺失的字段给出提示。
func Parse(text string) (*Decision, error) {
	text = TrimObservation(text)
	hasAnswer := strings.Contains(text, MarkerFinalAnswer)
	thought := extractThought(text)

	if m := actionRE.FindStringSubmatch(text); m != nil {
		if hasAnswer {
			return nil, &ParseError{Note: NoteAnswerAndAction}
		}
		input := strings.Trim(strings.TrimSpace(m[2]), `"`)
		return &Decision{
			Thought:     thought,
			Action:      strings.TrimSpace(m[1]),
			ActionInput: input,
		}, nil
	}

	if hasAnswer {
		idx := strings.LastIndex(text, MarkerFinalAnswer)
		return &Decision{
			Thought: thought,
			Final:   strings.TrimSpace(text[idx+len(MarkerFinalAnswer):]),
			IsFinal: true,
		}, nil
	}

	if !actionOnlyRE.MatchString(text) {
		return nil, &ParseError{Note: NoteMissingAction}
	}
	if !actionInputRE.MatchString(text) {
		return nil, &ParseError{Note: NoteMissingActionInput}
	}
	return nil, &ParseError{Note: NoteMissingAction}
}

// TrimObservation 截掉模型自行编造的 Observation 及之后的内容。
func TrimObservation(text string) string {
	if idx := strings.Index(text, "\n"+MarkerObservation); idx >= 0 {
		return text[:idx]
	}
	if idx := strings.Index(text, "\nObservation"); idx >= 0 {
		return text[:idx]
	}
	return text
}

func extractThought(text string) string {
	if m := thoughtRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
