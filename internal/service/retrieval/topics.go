package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

// 提示词中资料摘录的上限（字符）
const topicContextRunes = 4000

var suggestionShape = llm.Shape{
	Name: "TopicSuggestions",
	Schema: `{
  "type": "object",
  "properties": {
    "topics": {"type": "array", "items": {"type": "string"}, "description": "short learnable topic titles"}
  },
  "required": ["topics"]
}`,
}

type topicSuggestions struct {
	Topics []string `json:"topics"`
}

func (t *topicSuggestions) Validate() error {
	for _, topic := range t.Topics {
		if strings.TrimSpace(topic) != "" {
			return nil
		}
	}
	return errors.New("topics are empty")
}

// Suggestions 推荐的学习主题
// Degraded 表示模型不可用，主题取自知识块已有的元数据
type Suggestions struct {
	Topics   []string `json:"topics"`
	Degraded bool     `json:"degraded"`
}

// SuggestTopics 从学习者资料中抽样，推荐 n 个可以教给学生的主题
// sample 为抽样的知识块数量
func (r *Retriever) SuggestTopics(ctx context.Context, ownerID string, n, sample int) (*Suggestions, error) {
	n = max(n, 1)
	sample = max(sample, n)
	chunks, err := r.store.GetByOwnerAndTopic(ctx, ownerID, "", sample)
	if err != nil {
		return nil, fmt.Errorf("failed to sample chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoMaterial
	}

	var out topicSuggestions
	if err := r.gen.Generate(ctx, buildSuggestionPrompt(chunks, n), suggestionShape, &out); err != nil {
		r.log.Warn("topic suggestion degraded", "owner_id", ownerID, "error", err)
		return &Suggestions{Topics: taggedTopics(chunks, n), Degraded: true}, nil
	}
	return &Suggestions{Topics: dedupe(out.Topics, n)}, nil
}

// taggedTopics 入库时生成的主题，跳过未能生成元数据的知识块
func taggedTopics(chunks []*model.KnowledgeChunk, n int) []string {
	topics := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Topic != "Unknown" {
			topics = append(topics, c.Topic)
		}
	}
	return dedupe(topics, n)
}

// dedupe 大小写不敏感去重并截断
func dedupe(topics []string, n int) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, min(len(topics), n))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if len(out) >= n {
			break
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func buildSuggestionPrompt(chunks []*model.KnowledgeChunk, n int) string {
	var excerpt strings.Builder
	budget := topicContextRunes
	for _, c := range chunks {
		r := []rune(c.Content)
		if len(r) > budget {
			r = r[:budget]
		}
		excerpt.WriteString(string(r))
		excerpt.WriteString("\n")
		if budget -= len(r); budget <= 0 {
			break
		}
	}

	tagged := taggedTopics(chunks, len(chunks))
	return fmt.Sprintf(`Analyze the following study material and extract %d key learnable topics suitable for a student.
Each topic should be a short title that could be taught in a few questions.
Topics already tagged in the material: %s

Material:
%s`, n, strings.Join(tagged, ", "), excerpt.String())
}
