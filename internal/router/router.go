// Package router 按所选模型把一轮对话分发给对应的提供方
package router

import (
	"context"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
	"biotutor-cli/internal/provider"
	"biotutor-cli/internal/tutor"
)

// Router 响应路由器
type Router struct {
	tutor    *tutor.Orchestrator
	settings *api.ModelSettings
	openAI   *provider.OpenAI
}

// New 创建路由器
// settings 是传给辅导后端的模型配置快照；openAI 处理第三方生成式 API 的模型
func New(orchestrator *tutor.Orchestrator, settings *api.ModelSettings, openAI *provider.OpenAI) *Router {
	return &Router{
		tutor:    orchestrator,
		settings: settings,
		openAI:   openAI,
	}
}

// Route 把完整历史和所选模型分发给提供方，回复片段按序交给 emit
func (r *Router) Route(ctx context.Context, history []*chat.Message, modelID string, emit func(string)) error {
	model := chat.FindModel(modelID)
	if model == nil {
		emit("错误：未找到所选模型的配置。")
		return nil
	}

	switch model.Provider {
	case chat.ProviderBiologyTutor:
		return r.tutor.Stream(ctx, history, r.settings, emit)
	case chat.ProviderOpenAI:
		return r.openAI.Stream(ctx, history, model.ID, emit)
	default:
		// 其余提供方走模拟流，演示扩展能力
		return provider.MockStream(ctx, model.Name, emit)
	}
}
