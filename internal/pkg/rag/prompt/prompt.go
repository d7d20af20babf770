// Package prompt 负责把任务指令、检索上下文和工具描述拼装为最终提示词。
//
// 模板占位符形如 {name}，name 仅由小写字母和下划线组成。
// 替换只做一遍，参数值中出现的花括号不会被再次解析。
package prompt

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// ContentKey 每条任务指令都必须包含的占位符。
const ContentKey = "content"

// 智能体模板使用的保留参数。
const (
	ToolsKey     = "tools"
	ToolNamesKey = "tool_names"
	InputKey     = "input"
)

// AgentFormat ReAct 步骤语法，模型必须严格遵守。
const AgentFormat = `Available tools:
{tools}

Use the following format:
Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Begin!

Question: {input}
Thought:`

var placeholderRE = regexp.MustCompile(`\{([a-z_]+)\}`)

// ToolInfo 提示词中展示的工具信息。
type ToolInfo struct {
	Name        string
	Description string
}

// Placeholders 返回模板中的占位符名称，按首次出现顺序去重。
func Placeholders(tmpl string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Render 用 params 替换模板中的全部占位符。
// 任一占位符缺失或取值为空白时返回 ErrConfiguration，并列出缺失的键。
func Render(tmpl string, params map[string]string) (string, error) {
	var missing []string
	for _, name := range Placeholders(tmpl) {
		if strings.TrimSpace(params[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", errors.ErrConfiguration.WithMessagef("missing template parameters: %s", strings.Join(missing, ", "))
	}

	return placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		return params[m[1:len(m)-1]]
	}), nil
}

// ValidateInstruction 检查任务指令是否引用了 {content}。
func ValidateInstruction(instruction string) error {
	for _, name := range Placeholders(instruction) {
		if name == ContentKey {
			return nil
		}
	}
	return errors.ErrConfiguration.WithMessage("instruction must reference {content}")
}

// Assembler 提示词拼装器，无状态，可并发使用。
type Assembler struct {
	// Format 智能体步骤语法，为空时使用 AgentFormat。
	Format string
}

// NewAssembler 创建默认拼装器。
func NewAssembler() *Assembler {
	return &Assembler{Format: AgentFormat}
}

// Direct 生成直接调用模型的提示词：渲染后的指令，空行，任务查询。
func (a *Assembler) Direct(instruction, query string, params map[string]string) (string, error) {
	if err := ValidateInstruction(instruction); err != nil {
		return "", err
	}
	rendered, err := Render(instruction, params)
	if err != nil {
		return "", err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return rendered, nil
	}
	return rendered + "\n\n" + query, nil
}

// Agent 生成 ReAct 提示词：渲染后的指令，工具列表与步骤语法，
// 以 params["input"] 作为 Question，末尾留出 "Thought:" 由模型续写。
func (a *Assembler) Agent(instruction string, params map[string]string, tools []ToolInfo) (string, error) {
	if len(tools) == 0 {
		return "", errors.ErrConfiguration.WithMessage("agent prompt requires at least one tool")
	}
	if err := ValidateInstruction(instruction); err != nil {
		return "", err
	}

	rendered, err := Render(instruction, params)
	if err != nil {
		return "", err
	}

	format := a.Format
	if format == "" {
		format = AgentFormat
	}
	grammar, err := Render(format, map[string]string{
		ToolsKey:     FormatTools(tools),
		ToolNamesKey: strings.Join(ToolNames(tools), ", "),
		InputKey:     params[InputKey],
	})
	if err != nil {
		return "", err
	}

	return rendered + "\n\n" + grammar, nil
}

// FormatTools 每行一个工具："- name: description"。
func FormatTools(tools []ToolInfo) string {
	lines := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = "- " + t.Name + ": " + t.Description
	}
	return strings.Join(lines, "\n")
}

// ToolNames 返回工具名称列表，保持传入顺序。
func ToolNames(tools []ToolInfo) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
