// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/logger"
)

// Handler 日志回调处理器
// 实现 callbacks.Handler 接口，记录 Eino 组件的执行事件
type Handler struct {
	logger      *logger.Logger
	enableDebug bool
}

// NewHandler 创建日志回调处理器
func NewHandler(log *logger.Logger, enableDebug bool) *Handler {
	return &Handler{logger: log.With("component", "eino"), enableDebug: enableDebug}
}

// OnStart 组件执行开始时调用
func (h *Handler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if h.enableDebug {
		h.logger.Debug("component start", runInfoFields(info)...)
	}
	return ctx
}

// OnEnd 组件执行成功结束时调用
func (h *Handler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if h.enableDebug {
		h.logger.Debug("component end", runInfoFields(info)...)
	}
	return ctx
}

// OnError 组件执行出错时调用
func (h *Handler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	h.logger.Warn("component error", append(runInfoFields(info), "error", err)...)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (h *Handler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

// OnEndWithStreamOutput 流式输出结束时调用
func (h *Handler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func runInfoFields(info *callbacks.RunInfo) []interface{} {
	if info == nil {
		return nil
	}
	return []interface{}{"name", info.Name, "type", info.Type, "component", string(info.Component)}
}

// SetupGlobalCallbacks 设置全局回调
func SetupGlobalCallbacks(log *logger.Logger, enableDebug bool) {
	callbacks.AppendGlobalHandlers(NewHandler(log, enableDebug))
	log.Info("eino global callbacks registered", "debug", enableDebug)
}
