package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

type mockGenerator struct {
	prompt       string
	generateFunc func(ctx context.Context, prompt string, shape llm.Shape, out any) error
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, shape llm.Shape, out any) error {
	m.prompt = prompt
	return m.generateFunc(ctx, prompt, shape, out)
}

func (m *mockGenerator) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func reply(raw string) *mockGenerator {
	return &mockGenerator{generateFunc: func(_ context.Context, _ string, _ llm.Shape, out any) error {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return err
		}
		if v, ok := out.(llm.Validator); ok {
			if err := v.Validate(); err != nil {
				return llm.ErrInvalidShape
			}
		}
		return nil
	}}
}

var source = []model.FrozenChunk{
	{Content: "Photosynthesis converts light energy into chemical energy."},
	{Content: "Chlorophyll absorbs mostly red and blue light."},
}

var pairs = []QAPair{
	{Question: "What does photosynthesis produce?", Answer: "Glucose and oxygen."},
	{Question: "Why are leaves green?", Answer: "Chlorophyll reflects green light."},
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		gen          *mockGenerator
		wantGrade    string
		wantDegraded bool
	}{
		{
			name:      "normalizes grade",
			gen:       reply(`{"grade":" b+ ","correct_concepts":["light to chemical energy",""],"misconceptions":[],"improvement_tips":["review the Calvin cycle"]}`),
			wantGrade: GradeB,
		},
		{
			name:         "unknown grade degrades",
			gen:          reply(`{"grade":"excellent","correct_concepts":[],"misconceptions":[],"improvement_tips":[]}`),
			wantGrade:    GradeC,
			wantDegraded: true,
		},
		{
			name: "generator failure degrades",
			gen: &mockGenerator{generateFunc: func(context.Context, string, llm.Shape, any) error {
				return context.DeadlineExceeded
			}},
			wantGrade:    GradeC,
			wantDegraded: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEvaluator(tt.gen, nil).Evaluate(context.Background(), source, pairs)
			if got.Grade != tt.wantGrade || got.Degraded != tt.wantDegraded {
				t.Errorf("Evaluate() = %+v", got)
			}
		})
	}
}

func TestEvaluate_DefaultResult(t *testing.T) {
	got := NewEvaluator(reply(`not json`), nil).Evaluate(context.Background(), source, pairs)
	want := DefaultResult()
	if got.Grade != "C" ||
		got.CorrectConcepts[0] != "Attempted to engage with the material" ||
		got.Misconceptions[0] != "Unable to fully evaluate due to technical error" ||
		got.ImprovementTips[0] != "Please try again or contact support" {
		t.Errorf("Evaluate() = %+v, want %+v", got, want)
	}
}

func TestEvaluate_CompactsLists(t *testing.T) {
	got := NewEvaluator(reply(`{"grade":"A","correct_concepts":["a"," "],"misconceptions":[""],"improvement_tips":[]}`), nil).
		Evaluate(context.Background(), source, pairs)
	if len(got.CorrectConcepts) != 1 || len(got.Misconceptions) != 0 || got.ImprovementTips == nil {
		t.Errorf("Evaluate() = %+v", got)
	}
}

func TestBuildEvaluationPrompt(t *testing.T) {
	p := BuildEvaluationPrompt(source, pairs)
	for _, want := range []string{
		"Source 1:\nPhotosynthesis converts light energy",
		"Source 2:\nChlorophyll absorbs",
		"Q1: What does photosynthesis produce?\nA1: Glucose and oxygen.",
		"Q2: Why are leaves green?\nA2: Chlorophyll reflects green light.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Index(p, "Q1:") > strings.Index(p, "Q2:") {
		t.Error("transcript out of order")
	}
}

func TestNormalizeGrade(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"A", "A", true},
		{"a-", "A", true},
		{" f ", "F", true},
		{"E", "F", true},
		{"", "", false},
		{"Pass", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeGrade(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeGrade(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestQuickCheck(t *testing.T) {
	gen := reply(`{"is_correct":true,"feedback":" Correct, glucose and oxygen. "}`)
	fb, err := NewEvaluator(gen, nil).QuickCheck(context.Background(), source, pairs[0].Question, pairs[0].Answer)
	if err != nil {
		t.Fatal(err)
	}
	if !fb.IsCorrect || fb.Feedback != "Correct, glucose and oxygen." {
		t.Errorf("QuickCheck() = %+v", fb)
	}
	if !strings.Contains(gen.prompt, "Answer: Glucose and oxygen.") {
		t.Errorf("prompt = %q", gen.prompt)
	}

	if _, err := NewEvaluator(reply(`{"is_correct":false,"feedback":""}`), nil).
		QuickCheck(context.Background(), source, "q", "a"); err == nil {
		t.Error("empty feedback should fail")
	}
}
