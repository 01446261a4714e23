// Package callback Eino 回调日志
package callback

import (
	"context"
	"time"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type startKey struct{}

// Logger 日志回调处理器，记录模型与 embedding 调用的耗时和 token 用量
type Logger struct {
	log         *logger.Logger
	EnableDebug bool
}

var _ callbacks.Handler = (*Logger)(nil)

// NewLogger 创建日志回调处理器
func NewLogger(log *logger.Logger, enableDebug bool) *Logger {
	return &Logger{log: log.With("component", "eino"), EnableDebug: enableDebug}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.EnableDebug {
		l.log.Debug("run started", runFields(info, "input", summarizeInput(input))...)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	kv := runFields(info, "duration", elapsed(ctx))
	switch out := output.(type) {
	case *model.CallbackOutput:
		if out.TokenUsage != nil {
			kv = append(kv, "prompt_tokens", out.TokenUsage.PromptTokens, "completion_tokens", out.TokenUsage.CompletionTokens)
		}
	case *embedding.CallbackOutput:
		kv = append(kv, "vectors", len(out.Embeddings))
		if out.TokenUsage != nil {
			kv = append(kv, "prompt_tokens", out.TokenUsage.PromptTokens)
		}
	}
	l.log.Debug("run finished", kv...)
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.log.Warn("run failed", runFields(info, "duration", elapsed(ctx), "error", err)...)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEndWithStreamOutput 流式输出结束时调用
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	l.log.Debug("stream finished", runFields(info, "duration", elapsed(ctx))...)
	return ctx
}

// SetupGlobalCallbacks 注册全局回调
func SetupGlobalCallbacks(log *logger.Logger, enableDebug bool) {
	callbacks.AppendGlobalHandlers(NewLogger(log, enableDebug))
	log.Info("eino callbacks registered", "debug", enableDebug)
}

func runFields(info *callbacks.RunInfo, kv ...interface{}) []interface{} {
	if info == nil {
		return kv
	}
	return append([]interface{}{"name", info.Name, "kind", string(info.Component)}, kv...)
}

func elapsed(ctx context.Context) string {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(start).String()
	}
	return ""
}

// summarizeInput 避免把整段提示词写进日志
func summarizeInput(input callbacks.CallbackInput) interface{} {
	switch in := input.(type) {
	case *model.CallbackInput:
		return map[string]int{"messages": len(in.Messages)}
	case *embedding.CallbackInput:
		return map[string]int{"texts": len(in.Texts)}
	default:
		return nil
	}
}
