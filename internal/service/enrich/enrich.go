// Package enrich 为知识块生成学习元数据
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
	"golang.org/x/sync/errgroup"
)

const summaryFallbackRunes = 200

var metadataShape = llm.Shape{
	Name: "TopicMetadata",
	Schema: `{
  "type": "object",
  "properties": {
    "topic": {"type": "string", "description": "main topic or concept"},
    "keywords": {"type": "array", "items": {"type": "string"}},
    "difficulty": {"type": "string", "enum": ["beginner", "intermediate", "advanced"]},
    "summary": {"type": "string", "description": "1-2 sentence summary"}
  },
  "required": ["topic", "keywords", "difficulty", "summary"]
}`,
}

// topicMetadata 模型输出
type topicMetadata struct {
	Topic      string   `json:"topic"`
	Keywords   []string `json:"keywords"`
	Difficulty string   `json:"difficulty"`
	Summary    string   `json:"summary"`
}

// Validate 校验并规范化
func (m *topicMetadata) Validate() error {
	m.Topic = strings.TrimSpace(m.Topic)
	if m.Topic == "" {
		return errors.New("topic is empty")
	}
	d, ok := model.ParseDifficulty(m.Difficulty)
	if !ok {
		return fmt.Errorf("unknown difficulty %q", m.Difficulty)
	}
	m.Difficulty = string(d)

	kws := make([]string, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	m.Keywords = kws
	m.Summary = strings.TrimSpace(m.Summary)
	return nil
}

// Enricher 元数据提取器
type Enricher struct {
	gen         llm.Generator
	concurrency int
	log         *logger.Logger
}

// New 创建 Enricher，concurrency 小于 1 时按 1 处理
func New(gen llm.Generator, concurrency int, log *logger.Logger) *Enricher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Enricher{gen: gen, concurrency: max(concurrency, 1), log: log}
}

// Enrich 提取单个文本的元数据，失败时返回降级结果，从不报错
func (e *Enricher) Enrich(ctx context.Context, text string) model.ChunkMetadata {
	var out topicMetadata
	if err := e.gen.Generate(ctx, buildPrompt(text), metadataShape, &out); err != nil {
		e.log.Warn("metadata extraction degraded", "error", err)
		return Degraded(text)
	}
	return model.ChunkMetadata{
		Topic:      out.Topic,
		Keywords:   out.Keywords,
		Difficulty: model.Difficulty(out.Difficulty),
		Summary:    out.Summary,
	}
}

// EnrichAll 并发提取，结果顺序与输入一致
func (e *Enricher) EnrichAll(ctx context.Context, texts []string) []model.ChunkMetadata {
	out := make([]model.ChunkMetadata, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = e.Enrich(gctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Degraded 降级元数据
func Degraded(text string) model.ChunkMetadata {
	summary := text
	if r := []rune(text); len(r) > summaryFallbackRunes {
		summary = string(r[:summaryFallbackRunes])
	}
	return model.ChunkMetadata{
		Topic:      "Unknown",
		Keywords:   []string{},
		Difficulty: model.DifficultyIntermediate,
		Summary:    summary,
	}
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`Extract learning metadata from the following text.
Text:
%s

Identify:
- The main topic or concept
- Key terms and keywords (as a list)
- Difficulty level (beginner, intermediate, or advanced)
- A brief summary (1-2 sentences)`, text)
}
