package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel 可编程的 ChatModel
// Routes 的键出现在任一输入消息中时返回对应回复，否则使用 GenerateFunc 或 Default
type FakeChatModel struct {
	Routes       map[string]func(prompt string) (string, error)
	GenerateFunc func(ctx context.Context, input []*schema.Message) (*schema.Message, error)
	Default      string

	mu    sync.Mutex
	calls [][]*schema.Message
}

var _ model.BaseChatModel = (*FakeChatModel)(nil)

func (m *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, input)
	}

	var all strings.Builder
	for _, msg := range input {
		all.WriteString(msg.Content)
		all.WriteString("\n")
	}
	prompt := all.String()
	for key, route := range m.Routes {
		if strings.Contains(prompt, key) {
			out, err := route(prompt)
			if err != nil {
				return nil, err
			}
			return schema.AssistantMessage(out, nil), nil
		}
	}
	return schema.AssistantMessage(m.Default, nil), nil
}

func (m *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls 返回所有调用的输入
func (m *FakeChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// LastPrompt 返回最后一次调用中用户消息的内容
func (m *FakeChatModel) LastPrompt() string {
	calls := m.Calls()
	if len(calls) == 0 {
		return ""
	}
	last := calls[len(calls)-1]
	return last[len(last)-1].Content
}

// FakeEmbedder 词袋哈希向量，相同词汇的文本余弦距离更近
type FakeEmbedder struct {
	Dims int
	Err  error

	mu    sync.Mutex
	calls int
}

var _ embedding.Embedder = (*FakeEmbedder)(nil)

func (e *FakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = HashVector(t, e.Dims)
	}
	return out, nil
}

// Calls 调用次数
func (e *FakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// HashVector 将文本按词哈希到 dims 维
func HashVector(text string, dims int) []float64 {
	v := make([]float64, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32())%dims]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}
