package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

var quickCheckShape = llm.Shape{
	Name: "AnswerCheck",
	Schema: `{
  "type": "object",
  "properties": {
    "is_correct": {"type": "boolean"},
    "feedback": {"type": "string", "description": "2-3 sentences"}
  },
  "required": ["is_correct", "feedback"]
}`,
}

var errEmptyFeedback = errors.New("feedback is empty")

// QuickFeedback 单题即时反馈
type QuickFeedback struct {
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

func (f *QuickFeedback) Validate() error {
	f.Feedback = strings.TrimSpace(f.Feedback)
	if f.Feedback == "" {
		return errEmptyFeedback
	}
	return nil
}

// QuickCheck 判断单个回答是否正确
func (e *Evaluator) QuickCheck(ctx context.Context, source []model.FrozenChunk, question, answer string) (*QuickFeedback, error) {
	var b strings.Builder
	b.WriteString("Based on this context:\n")
	for i, c := range source {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Content)
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s\nAnswer: %s\nIs this answer correct? Provide brief feedback (2-3 sentences).", question, answer)

	var out QuickFeedback
	if err := e.gen.Generate(ctx, b.String(), quickCheckShape, &out); err != nil {
		return nil, fmt.Errorf("quick check failed: %w", err)
	}
	return &out, nil
}
