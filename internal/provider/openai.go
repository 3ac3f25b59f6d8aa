// Package provider 实现辅导后端之外的回复提供方
package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"biotutor-cli/internal/chat"
)

// 高中生物辅导老师人设，随每次请求作为 system 消息下发
const personaInstruction = "你是一位专业的高中生物辅导老师。你的目标是帮助学生理解生物学概念，解答习题，并提供考试技巧。\n\n" +
	"1. **专业性**：解释必须符合高中生物课程标准（人教版/新课标），术语准确。\n" +
	"2. **清晰易懂**：对于复杂的概念（如光合作用、有丝分裂、遗传规律），请使用类比或分步骤解释。\n" +
	"3. **解题辅助**：如果用户上传题目图片，请先分析题目考点，再逐步引导得出答案，而不是直接给出结果。\n" +
	"4. **鼓励性**：保持耐心，鼓励学生思考。\n" +
	"5. **格式**：使用Markdown格式优化阅读体验，关键术语加粗。"

// OpenAI 对接 OpenAI 兼容的生成式 API，按 token 透传回复流
type OpenAI struct {
	apiKey string
	client openai.Client
}

// NewOpenAI 创建提供方，baseURL 为空时使用官方地址
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		apiKey: apiKey,
		client: openai.NewClient(opts...),
	}
}

// Stream 把完整对话历史（含内联图片）发给模型，逐 token 透传回复
func (p *OpenAI) Stream(ctx context.Context, history []*chat.Message, modelID string, emit func(string)) error {
	if p.apiKey == "" {
		emit("错误：未配置 API Key，请先执行 biotutor config 完成设置。")
		return nil
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(personaInstruction))

	for _, msg := range history {
		if msg.Role == chat.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
			continue
		}

		if !msg.HasAttachments() {
			messages = append(messages, openai.UserMessage(msg.Content))
			continue
		}

		// 图片作为 data URL 内联
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Attachments)+1)
		for _, att := range msg.Attachments {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: fmt.Sprintf("data:%s;base64,%s", att.MimeType, att.Data),
			}))
		}
		if msg.Content != "" {
			parts = append(parts, openai.TextContentPart(msg.Content))
		}
		messages = append(messages, openai.UserMessage(parts))
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			emit(delta)
		}
	}

	if err := stream.Err(); err != nil {
		emit(fmt.Sprintf("\n[系统错误]: %v", err))
	}
	return nil
}
