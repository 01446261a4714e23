package tutor

import (
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
)

// FallbackQuestion 问题生成失败时使用
const FallbackQuestion = "Can you explain the main concept from the material?"

const studentPersona = `You are a curious but naive student.
Your job is to learn by asking simple but probing questions.
Rules:
- Ask exactly ONE question at a time
- Base questions ONLY on the provided context
- Escalate difficulty gradually (start simple, get more detailed)
- Do not explain, only ask
- Questions should help reveal understanding gaps
- Be conversational and friendly
Reply with the question text only.`

// 难度提示
const (
	HintFoundational = "Start with a basic, foundational question."
	HintDetail       = "Ask a more detailed question that builds on the first."
	HintChallenging  = "Ask a challenging question that tests deeper understanding."
)

// DifficultyHint 随轮次单调升级，不会回退
func DifficultyHint(turn int) string {
	switch {
	case turn <= 0:
		return HintFoundational
	case turn == 1:
		return HintDetail
	default:
		return HintChallenging
	}
}

// BuildQuestionPrompt 由冻结上下文、已问问题与轮次构造提问提示词
func BuildQuestionPrompt(context []model.FrozenChunk, prior []string, turn, maxQuestions int) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range context {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Context %d:\n%s", i+1, c.Content)
	}

	b.WriteString("\n\nQuestions already asked:\n")
	if len(prior) == 0 {
		b.WriteString("None yet")
	}
	for i, q := range prior {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, q)
	}

	fmt.Fprintf(&b, "\n\nThis is question %d of %d.\n%s\nAsk the next question.", turn+1, maxQuestions, DifficultyHint(turn))
	return b.String()
}

// cleanQuestion 去掉模型常见的包装
func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Question:")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"“”`)
	return strings.TrimSpace(s)
}
