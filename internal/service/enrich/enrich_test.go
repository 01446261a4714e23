package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

// mockGenerator 用函数字段模拟 Generator
type mockGenerator struct {
	generateFunc func(ctx context.Context, prompt string, shape llm.Shape, out any) error
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, shape llm.Shape, out any) error {
	return m.generateFunc(ctx, prompt, shape, out)
}

func (m *mockGenerator) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

// jsonReply 模拟 ChatGenerator 的解析与校验
func jsonReply(raw string) func(context.Context, string, llm.Shape, any) error {
	return func(_ context.Context, _ string, _ llm.Shape, out any) error {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return err
		}
		if v, ok := out.(llm.Validator); ok {
			if err := v.Validate(); err != nil {
				return llm.ErrInvalidShape
			}
		}
		return nil
	}
}

func TestEnrich(t *testing.T) {
	longText := strings.Repeat("光", 250)

	tests := []struct {
		name string
		gen  func(context.Context, string, llm.Shape, any) error
		text string
		want model.ChunkMetadata
	}{
		{
			name: "success normalizes difficulty",
			gen:  jsonReply(`{"topic":" Photosynthesis ","keywords":["chlorophyll"," ","light"],"difficulty":"Beginner","summary":"Plants make sugar."}`),
			text: "Plants use light.",
			want: model.ChunkMetadata{Topic: "Photosynthesis", Keywords: []string{"chlorophyll", "light"}, Difficulty: model.DifficultyBeginner, Summary: "Plants make sugar."},
		},
		{
			name: "generator error degrades",
			gen:  func(context.Context, string, llm.Shape, any) error { return errors.New("timeout") },
			text: "short text",
			want: model.ChunkMetadata{Topic: "Unknown", Keywords: []string{}, Difficulty: model.DifficultyIntermediate, Summary: "short text"},
		},
		{
			name: "invalid difficulty degrades",
			gen:  jsonReply(`{"topic":"Cells","keywords":[],"difficulty":"expert","summary":"x"}`),
			text: longText,
			want: model.ChunkMetadata{Topic: "Unknown", Keywords: []string{}, Difficulty: model.DifficultyIntermediate, Summary: strings.Repeat("光", 200)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&mockGenerator{generateFunc: tt.gen}, 1, nil)
			got := e.Enrich(context.Background(), tt.text)
			if got.Topic != tt.want.Topic || got.Difficulty != tt.want.Difficulty || got.Summary != tt.want.Summary {
				t.Errorf("Enrich() = %+v, want %+v", got, tt.want)
			}
			if got.Keywords == nil || strings.Join(got.Keywords, ",") != strings.Join(tt.want.Keywords, ",") {
				t.Errorf("Enrich() keywords = %#v, want %#v", got.Keywords, tt.want.Keywords)
			}
		})
	}
}

func TestEnrich_PromptCarriesText(t *testing.T) {
	var prompt string
	var shapeName string
	gen := &mockGenerator{generateFunc: func(_ context.Context, p string, s llm.Shape, _ any) error {
		prompt, shapeName = p, s.Name
		return errors.New("stop")
	}}
	New(gen, 1, nil).Enrich(context.Background(), "Mitochondria are the powerhouse")
	if !strings.Contains(prompt, "Mitochondria are the powerhouse") {
		t.Errorf("prompt missing chunk text: %q", prompt)
	}
	if shapeName != "TopicMetadata" {
		t.Errorf("shape = %q", shapeName)
	}
}

func TestEnrichAll_KeepsOrderAndBoundsParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := &mockGenerator{generateFunc: func(_ context.Context, prompt string, _ llm.Shape, out any) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if strings.Contains(prompt, "fail") {
			return errors.New("boom")
		}
		idx := strings.LastIndex(prompt, "item-")
		topic := prompt[idx : idx+len("item-0")]
		return jsonReply(`{"topic":"`+topic+`","keywords":[],"difficulty":"advanced","summary":"s"}`)(context.Background(), "", llm.Shape{}, out)
	}}

	texts := []string{"item-0", "item-1", "fail item-2", "item-3", "item-4", "item-5"}
	got := New(gen, 2, nil).EnrichAll(context.Background(), texts)
	if len(got) != len(texts) {
		t.Fatalf("EnrichAll() = %d results", len(got))
	}
	for i, md := range got {
		if i == 2 {
			if md.Topic != "Unknown" {
				t.Errorf("result 2 should be degraded, got %+v", md)
			}
			continue
		}
		if md.Topic != texts[i] {
			t.Errorf("result %d topic = %q, want %q", i, md.Topic, texts[i])
		}
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}
