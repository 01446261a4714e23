// Package evaluation 根据学习材料与问答记录给学习者评分
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

// 等级
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"
)

const evaluationSystemPrompt = `You are a subject matter expert and educator.
Your task is to evaluate a student's understanding based on:
1. The original source material they studied
2. The questions they were asked
3. Their answers to those questions
Provide a comprehensive evaluation that includes:
- An overall grade (A, B, C, D, or F)
- Concepts they understood correctly
- Any misconceptions or errors
- Specific tips for improvement
Be constructive and encouraging while being honest about gaps in understanding.`

var evaluationShape = llm.Shape{
	Name: "EvaluationResult",
	Schema: `{
  "type": "object",
  "properties": {
    "grade": {"type": "string", "enum": ["A", "B", "C", "D", "F"]},
    "correct_concepts": {"type": "array", "items": {"type": "string"}},
    "misconceptions": {"type": "array", "items": {"type": "string"}},
    "improvement_tips": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["grade", "correct_concepts", "misconceptions", "improvement_tips"]
}`,
}

// QAPair 一问一答
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// evaluationOutput 模型输出
type evaluationOutput struct {
	Grade           string   `json:"grade"`
	CorrectConcepts []string `json:"correct_concepts"`
	Misconceptions  []string `json:"misconceptions"`
	ImprovementTips []string `json:"improvement_tips"`
}

func (o *evaluationOutput) Validate() error {
	g, ok := NormalizeGrade(o.Grade)
	if !ok {
		return fmt.Errorf("unknown grade %q", o.Grade)
	}
	o.Grade = g
	o.CorrectConcepts = compact(o.CorrectConcepts)
	o.Misconceptions = compact(o.Misconceptions)
	o.ImprovementTips = compact(o.ImprovementTips)
	return nil
}

// Evaluator 会话评估器
type Evaluator struct {
	gen llm.Generator
	log *logger.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(gen llm.Generator, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Evaluator{gen: gen, log: log}
}

// Evaluate 评估整场会话，失败时返回保守的默认结果
func (e *Evaluator) Evaluate(ctx context.Context, source []model.FrozenChunk, pairs []QAPair) *model.EvaluationResult {
	var out evaluationOutput
	if err := e.gen.Generate(ctx, BuildEvaluationPrompt(source, pairs), evaluationShape, &out); err != nil {
		e.log.Warn("session evaluation degraded", "error", err)
		return DefaultResult()
	}
	return &model.EvaluationResult{
		Grade:           out.Grade,
		CorrectConcepts: out.CorrectConcepts,
		Misconceptions:  out.Misconceptions,
		ImprovementTips: out.ImprovementTips,
	}
}

// DefaultResult 评估失败时的默认结果
func DefaultResult() *model.EvaluationResult {
	return &model.EvaluationResult{
		Grade:           GradeC,
		CorrectConcepts: []string{"Attempted to engage with the material"},
		Misconceptions:  []string{"Unable to fully evaluate due to technical error"},
		ImprovementTips: []string{"Please try again or contact support"},
		Degraded:        true,
	}
}

// NormalizeGrade 规范化等级：忽略大小写、空白以及 +/- 修饰
func NormalizeGrade(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimRight(s, "+-")
	switch s {
	case GradeA, GradeB, GradeC, GradeD, GradeF:
		return s, true
	case "E":
		return GradeF, true
	default:
		return "", false
	}
}

// BuildEvaluationPrompt 构造评估提示词
func BuildEvaluationPrompt(source []model.FrozenChunk, pairs []QAPair) string {
	var b strings.Builder
	b.WriteString(evaluationSystemPrompt)
	b.WriteString("\n\nOriginal Source Material:\n")
	for i, c := range source {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source %d:\n%s", i+1, c.Content)
	}
	b.WriteString("\n\nStudent's Q&A Session:\n")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s", i+1, p.Question, i+1, p.Answer)
	}
	b.WriteString("\n\nProvide your evaluation.")
	return b.String()
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
