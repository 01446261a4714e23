package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

func suggest(topics ...string) *mockGenerator {
	return &mockGenerator{generateFunc: func(_ context.Context, _ string, shape llm.Shape, out any) error {
		if shape.Name != "TopicSuggestions" {
			return llm.ErrInvalidShape
		}
		data, _ := json.Marshal(map[string]any{"topics": topics})
		if err := json.Unmarshal(data, out); err != nil {
			return err
		}
		return out.(llm.Validator).Validate()
	}}
}

func TestSuggestTopics(t *testing.T) {
	var prompt string
	gen := suggest("Photosynthesis", "Light reactions", "photosynthesis", " ", "Calvin cycle", "Stomata")
	inner := gen.generateFunc
	gen.generateFunc = func(ctx context.Context, p string, shape llm.Shape, out any) error {
		prompt = p
		return inner(ctx, p, shape, out)
	}
	r := New(gen, newEmbedder(nil), seedStore(t))

	got, err := r.SuggestTopics(context.Background(), "u1", 3, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Photosynthesis", "Light reactions", "Calvin cycle"}
	if strings.Join(got.Topics, "|") != strings.Join(want, "|") || got.Degraded {
		t.Errorf("SuggestTopics() = %v degraded=%v, want %v", got.Topics, got.Degraded, want)
	}
	if !strings.Contains(prompt, "plants convert light into sugar") {
		t.Error("prompt should include the learner's material")
	}
	if strings.Contains(prompt, "another owner") {
		t.Error("prompt leaked another owner's material")
	}
}

func TestSuggestTopics_DegradedUsesTaggedTopics(t *testing.T) {
	store := seedStore(t)
	r := New(failingGenerator(), newEmbedder(nil), store)

	got, err := r.SuggestTopics(context.Background(), "u1", 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Degraded {
		t.Error("Degraded should be true")
	}
	want := []string{"Foo", "Bar", "Photosynthesis"}
	if strings.Join(got.Topics, "|") != strings.Join(want, "|") {
		t.Errorf("SuggestTopics() = %v, want %v", got.Topics, want)
	}
}

func TestSuggestTopics_NoMaterial(t *testing.T) {
	gen := suggest("anything")
	r := New(gen, newEmbedder(nil), repository.NewMemoryKnowledgeStore())
	if _, err := r.SuggestTopics(context.Background(), "u1", 5, 10); !errors.Is(err, ErrNoMaterial) {
		t.Errorf("error = %v, want ErrNoMaterial", err)
	}
	if gen.calls != 0 {
		t.Error("generator should not be called without material")
	}
}

func TestBuildSuggestionPrompt_TruncatesMaterial(t *testing.T) {
	long := strings.Repeat("a", topicContextRunes*2)
	chunks, err := seedStore(t).GetByOwnerAndTopic(context.Background(), "u1", "", 10)
	if err != nil || len(chunks) != 3 {
		t.Fatalf("sample = %d chunks, err = %v", len(chunks), err)
	}
	chunks[0].Content = long
	prompt := buildSuggestionPrompt(chunks, 5)
	if strings.Count(prompt, "a") > topicContextRunes+200 {
		t.Errorf("prompt keeps %d runes of material, want at most %d", strings.Count(prompt, "a"), topicContextRunes)
	}
	if strings.Contains(prompt, "bar content") {
		t.Error("chunks past the budget should be dropped")
	}
}
