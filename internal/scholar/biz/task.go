package biz

import (
	"sort"
	"strings"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/prompt"
	"github.com/kart-io/sentinel-scholar/pkg/errors"
)

// TaskKind 任务类型。
type TaskKind string

const (
	KindDetectAI     TaskKind = "detect_ai"
	KindGrammarCheck TaskKind = "grammar_check"
	KindParaphrase   TaskKind = "paraphrase"
	KindPlagiarism   TaskKind = "detect_plagiarism"
	KindSummarize    TaskKind = "summarize"
	KindReview       TaskKind = "review"
)

// ModelRole 任务使用的模型。
type ModelRole string

const (
	RolePrimary   ModelRole = "primary"
	RoleSecondary ModelRole = "secondary"
)

// Template 任务模板，进程启动时加载，之后只读。
type Template struct {
	Kind TaskKind `json:"kind"`
	// Instruction 必须包含 {content}；RequiresLanguage 时还必须包含 {language}。
	Instruction string `json:"instruction"`
	// Query 检索查询，同时作为直接调用时附加的任务要求和智能体的 Question。
	Query            string    `json:"query"`
	RequiresLanguage bool      `json:"requires_language"`
	RequiresTools    bool      `json:"requires_tools"`
	Grounded         bool      `json:"grounded"`
	Model            ModelRole `json:"model"`
	Tools            []string  `json:"tools,omitempty"`
}

// TemplateOverride 配置中对默认模板的覆盖，零值字段保持默认。
type TemplateOverride struct {
	Instruction   string
	Query         string
	Model         string
	Tools         []string
	RequiresTools *bool
	Grounded      *bool
}

var researchTools = []string{tools.NameWebSearch, tools.NameScholarSearch, tools.NameArxivSearch}

// DefaultTemplates 内置的六类任务。
func DefaultTemplates() []Template {
	return []Template{
		{
			Kind: KindDetectAI,
			Instruction: "You are an AI Content Detection Specialist. Analyze the following content to determine whether it is AI-generated.\n\n" +
				"Content to analyze:\n{content}\n\n" +
				"Use linguistic patterns, coherence analysis, perplexity, burstiness and repetitive phrasing to improve accuracy. " +
				"Provide a percentage score estimating the proportion of AI-generated content, " +
				"and clearly explain the reasoning behind the score with supporting examples from the text.",
			Query:    "Detect if the content is AI-generated.",
			Grounded: true,
			Model:    RolePrimary,
		},
		{
			Kind: KindGrammarCheck,
			Instruction: "You are a Grammar and Style Expert. Perform an advanced grammar and style analysis of the following text.\n\n" +
				"Text to analyze:\n{content}\n\n" +
				"Identify and correct errors related to spelling, punctuation, sentence structure, verb agreement and word choice. " +
				"Enhance clarity, coherence and overall readability while preserving the original meaning. " +
				"Your response should include the corrected version of the text, explanations of the major changes, " +
				"a readability score out of 100 and specific recommendations for further improvement.",
			Query: "Check the grammar and style of the text.",
			Model: RoleSecondary,
		},
		{
			Kind: KindParaphrase,
			Instruction: "You are a Language Expert specializing in paraphrasing. Rephrase the following content in {language} " +
				"to improve readability, clarity and style while maintaining its original meaning.\n\n" +
				"Content to paraphrase:\n{content}\n\n" +
				"Use different vocabulary and sentence structures, keep the same tone and level of formality, " +
				"and make sure the output is in {language}. Give the output in two parts: the original text and the paraphrased text.",
			Query:            "Paraphrase the text.",
			RequiresLanguage: true,
			Grounded:         true,
			Model:            RoleSecondary,
		},
		{
			Kind: KindPlagiarism,
			Instruction: "You are a Plagiarism Detection Expert. Perform a thorough plagiarism analysis of the following content.\n\n" +
				"Content to analyze:\n{content}\n\n" +
				"Identify potentially unoriginal passages or ideas, search for similar academic papers or publications with the " +
				"provided tools, and check for proper citation and attribution. " +
				"Your response should include an estimated plagiarism percentage, the specific sections that may be plagiarized, " +
				"potential source matches with URLs where possible, and suggestions for improving originality.",
			Query:         "Detect plagiarism and create a detailed report.",
			RequiresTools: true,
			Grounded:      true,
			Model:         RolePrimary,
			Tools:         researchTools,
		},
		{
			Kind: KindSummarize,
			Instruction: "You are a Research and Summarization Expert. Create a clear and concise summary of the following content in {language}.\n\n" +
				"Content to summarize:\n{content}\n\n" +
				"Capture all key points and main ideas, maintain the logical flow, remove redundant information " +
				"and preserve accuracy and context. Provide the summary in {language}.",
			Query:            "Summarize the text.",
			RequiresLanguage: true,
			Grounded:         true,
			Model:            RoleSecondary,
		},
		{
			Kind: KindReview,
			Instruction: "You are a Research Paper Review Expert. Conduct an in-depth review of the following academic paper.\n\n" +
				"Paper content:\n{content}\n\n" +
				"Assess the abstract, introduction and objectives, literature review, methodology, results, discussion, " +
				"citations and formatting. Use the provided tools to look for related work and potential plagiarism. " +
				"Your response should include a summary of the paper, strengths and weaknesses, a plagiarism assessment, " +
				"an overall score out of 100 and specific recommendations for improvement.",
			Query:         "Review the provided research paper and create a detailed report that evaluates its quality, originality, and adherence to academic standards.",
			RequiresTools: true,
			Grounded:      true,
			Model:         RolePrimary,
			Tools:         researchTools,
		},
	}
}

// Catalog 任务模板集合，构造后只读。
type Catalog struct {
	templates map[TaskKind]Template
}

// NewCatalog 校验并构造模板集合。
func NewCatalog(templates []Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[TaskKind]Template, len(templates))}
	for _, t := range templates {
		if err := validateTemplate(t); err != nil {
			return nil, err
		}
		if _, dup := c.templates[t.Kind]; dup {
			return nil, errors.ErrConfiguration.WithMessagef("duplicate task template %q", t.Kind)
		}
		t.Tools = append([]string(nil), t.Tools...)
		c.templates[t.Kind] = t
	}
	return c, nil
}

// DefaultCatalog 使用内置模板构造集合。
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultTemplates())
	if err != nil {
		panic(err)
	}
	return c
}

// WithOverrides 返回应用覆盖后的新集合，覆盖未知任务类型时报错。
func (c *Catalog) WithOverrides(overrides map[string]TemplateOverride) (*Catalog, error) {
	templates := c.List()
	index := make(map[TaskKind]int, len(templates))
	for i, t := range templates {
		index[t.Kind] = i
	}

	for kind, o := range overrides {
		i, ok := index[TaskKind(kind)]
		if !ok {
			return nil, errors.ErrConfiguration.WithMessagef("template override for unknown task %q", kind)
		}
		t := &templates[i]
		if s := strings.TrimSpace(o.Instruction); s != "" {
			t.Instruction = s
		}
		if s := strings.TrimSpace(o.Query); s != "" {
			t.Query = s
		}
		if o.Model != "" {
			t.Model = ModelRole(o.Model)
		}
		if len(o.Tools) > 0 {
			t.Tools = o.Tools
		}
		if o.RequiresTools != nil {
			t.RequiresTools = *o.RequiresTools
		}
		if o.Grounded != nil {
			t.Grounded = *o.Grounded
		}
		t.RequiresLanguage = containsPlaceholder(t.Instruction, "language")
	}
	return NewCatalog(templates)
}

// Lookup 查找任务模板，未知类型返回 ErrUnknownTask。
func (c *Catalog) Lookup(kind TaskKind) (Template, error) {
	t, ok := c.templates[kind]
	if !ok {
		return Template{}, errors.ErrUnknownTask.WithMessagef("unknown task kind %q", kind)
	}
	return t, nil
}

// Kinds 返回排序后的任务类型。
func (c *Catalog) Kinds() []TaskKind {
	kinds := make([]TaskKind, 0, len(c.templates))
	for k := range c.templates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// List 返回按类型排序的模板副本。
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, k := range c.Kinds() {
		t := c.templates[k]
		t.Tools = append([]string(nil), t.Tools...)
		out = append(out, t)
	}
	return out
}

func validateTemplate(t Template) error {
	if strings.TrimSpace(string(t.Kind)) == "" {
		return errors.ErrConfiguration.WithMessage("task template kind is required")
	}
	if err := prompt.ValidateInstruction(t.Instruction); err != nil {
		return errors.ErrConfiguration.WithMessagef("template %q: instruction must reference {content}", t.Kind)
	}
	for _, p := range prompt.Placeholders(t.Instruction) {
		if p != prompt.ContentKey && p != "language" {
			return errors.ErrConfiguration.WithMessagef("template %q: unsupported placeholder {%s}", t.Kind, p)
		}
	}
	if t.RequiresLanguage != containsPlaceholder(t.Instruction, "language") {
		return errors.ErrConfiguration.WithMessagef("template %q: requires_language does not match the {language} placeholder", t.Kind)
	}
	switch t.Model {
	case RolePrimary, RoleSecondary:
	default:
		return errors.ErrConfiguration.WithMessagef("template %q: unknown model role %q", t.Kind, t.Model)
	}
	if t.RequiresTools && len(t.Tools) == 0 {
		return errors.ErrConfiguration.WithMessagef("template %q: requires tools but lists none", t.Kind)
	}
	return nil
}

func containsPlaceholder(tmpl, name string) bool {
	for _, p := range prompt.Placeholders(tmpl) {
		if p == name {
			return true
		}
	}
	return false
}
