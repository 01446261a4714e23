// Package llm 结构化文本生成能力
// Enricher、Retriever、Session Engine、Evaluator 只依赖 Generator 接口
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrInvalidShape  = errors.New("response does not match the requested shape")
)

// Shape 目标结构：名称与 JSON Schema 文本
type Shape struct {
	Name   string
	Schema string
}

// Validator 由输出类型实现，用于校验解析后的值
type Validator interface {
	Validate() error
}

// Generator 文本生成能力
type Generator interface {
	// Generate 生成符合 shape 的 JSON 并解析到 out
	Generate(ctx context.Context, prompt string, shape Shape, out any) error
	// GenerateText 生成纯文本
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

// ChatGenerator 基于 eino ChatModel 的 Generator
type ChatGenerator struct {
	model       model.BaseChatModel
	name        string
	temperature *float32
	timeout     time.Duration
	maxRetries  int
	backoff     time.Duration
	log         *logger.Logger
}

var _ Generator = (*ChatGenerator)(nil)

// Option 配置项
type Option func(*ChatGenerator)

func WithTemperature(t float32) Option {
	return func(g *ChatGenerator) { g.temperature = &t }
}

// WithName 回调中显示的组件名
func WithName(name string) Option {
	return func(g *ChatGenerator) { g.name = name }
}

// WithTimeout 单次调用超时，0 表示不限制
func WithTimeout(d time.Duration) Option {
	return func(g *ChatGenerator) { g.timeout = d }
}

func WithMaxRetries(n int) Option {
	return func(g *ChatGenerator) { g.maxRetries = n }
}

func WithBackoff(d time.Duration) Option {
	return func(g *ChatGenerator) { g.backoff = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(g *ChatGenerator) { g.log = l }
}

// NewChatGenerator 创建生成器
func NewChatGenerator(m model.BaseChatModel, opts ...Option) *ChatGenerator {
	g := &ChatGenerator{
		model:   m,
		name:    "generator",
		backoff: 500 * time.Millisecond,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 实现 Generator
func (g *ChatGenerator) Generate(ctx context.Context, prompt string, shape Shape, out any) error {
	msgs := []*schema.Message{
		schema.SystemMessage(structuredSystemPrompt(shape)),
		schema.UserMessage(prompt),
	}
	return g.withRetry(ctx, shape.Name, func(ctx context.Context) error {
		content, err := g.call(ctx, msgs)
		if err != nil {
			return err
		}
		raw := RepairJSON(content)
		if raw == "" {
			return fmt.Errorf("%w: no JSON object in response", ErrInvalidShape)
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidShape, err)
		}
		if v, ok := out.(Validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidShape, err)
			}
		}
		return nil
	})
}

// GenerateText 实现 Generator
func (g *ChatGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	}
	var text string
	err := g.withRetry(ctx, "text", func(ctx context.Context) error {
		content, err := g.call(ctx, msgs)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(content)
		return nil
	})
	return text, err
}

func (g *ChatGenerator) call(ctx context.Context, msgs []*schema.Message) (string, error) {
	if g.model == nil {
		return "", errors.New("chat model not configured")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      g.name,
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if g.temperature != nil {
		opts = append(opts, model.WithTemperature(*g.temperature))
	}
	resp, err := g.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("model generate failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

func (g *ChatGenerator) withRetry(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff * time.Duration(attempt)):
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		g.log.Debug("generation attempt failed", "shape", name, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func structuredSystemPrompt(shape Shape) string {
	var b strings.Builder
	b.WriteString("You are a precise assistant that only answers with JSON.\n")
	fmt.Fprintf(&b, "Respond with a single JSON object named %q that matches this JSON schema:\n", shape.Name)
	b.WriteString(shape.Schema)
	b.WriteString("\nDo not wrap the JSON in markdown and do not add commentary.")
	return b.String()
}
