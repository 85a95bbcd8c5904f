package ai

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"go.uber.org/zap"
)

// newTraceHandler logs every model and tool step of an agent run.
func newTraceHandler(log *zap.Logger) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			fields := runFields(info)
			if info != nil && info.Component == components.ComponentOfTool {
				if in := tool.ConvCallbackInput(input); in != nil {
					fields = append(fields, zap.String("arguments", in.ArgumentsInJSON))
				}
			}
			log.Info("agent step started", fields...)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			fields := runFields(info)
			if info != nil && info.Component == components.ComponentOfTool {
				if out := tool.ConvCallbackOutput(output); out != nil {
					fields = append(fields, zap.Int("result_length", len(out.Response)))
				}
			}
			log.Info("agent step finished", fields...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			log.Warn("agent step failed", append(runFields(info), zap.Error(err))...)
			return ctx
		}).
		Build()
}

func runFields(info *callbacks.RunInfo) []zap.Field {
	if info == nil {
		return nil
	}
	return []zap.Field{
		zap.String("name", info.Name),
		zap.String("type", info.Type),
		zap.String("component", string(info.Component)),
	}
}
