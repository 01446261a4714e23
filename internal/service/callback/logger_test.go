package callback

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RecordsRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLogger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}, true)
	info := &callbacks.RunInfo{Name: "generator", Component: components.ComponentOfChatModel}

	ctx := h.OnStart(context.Background(), info, &model.CallbackInput{Messages: []*schema.Message{schema.UserMessage("hi")}})
	h.OnEnd(ctx, info, &model.CallbackOutput{
		Message:    schema.AssistantMessage("hello", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 3, CompletionTokens: 1},
	})
	h.OnError(ctx, info, errors.New("rate limited"))

	if n := logs.FilterMessage("run started").Len(); n != 1 {
		t.Errorf("run started logged %d times", n)
	}
	finished := logs.FilterMessage("run finished").All()
	if len(finished) != 1 {
		t.Fatalf("run finished logged %d times", len(finished))
	}
	fields := finished[0].ContextMap()
	if fields["prompt_tokens"] != int64(3) || fields["name"] != "generator" {
		t.Errorf("fields = %v", fields)
	}
	if logs.FilterMessage("run failed").FilterField(zap.String("component", "eino")).Len() != 1 {
		t.Error("expected one warn entry for the failure")
	}
}

func TestLogger_QuietWithoutDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLogger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}, false)
	h.OnStart(context.Background(), &callbacks.RunInfo{}, nil)
	if logs.FilterMessage("run started").Len() != 0 {
		t.Error("start should not be logged without debug")
	}
}
