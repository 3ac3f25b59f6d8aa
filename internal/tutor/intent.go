// Package tutor 实现生物辅导后端的会话编排
package tutor

import (
	"strings"

	"biotutor-cli/internal/chat"
)

// Intent 用户消息的意图分类
type Intent string

const (
	IntentImageAnalysis  Intent = "image_analysis"  // 图片分析（错题辅导）
	IntentGeneralChat    Intent = "general_chat"    // 普通聊天
	IntentConceptExplain Intent = "concept_explain" // 概念解释
)

// 概念类问题的关键词
var conceptKeywords = []string{"什么是", "解释", "概念", "定义", "原理"}

// ClassifyIntent 对一条用户消息做意图分类
// 纯同步规则：带图片即图片分析，命中概念关键词即概念解释，否则普通聊天
func ClassifyIntent(msg *chat.Message) Intent {
	if msg.HasAttachments() {
		return IntentImageAnalysis
	}

	content := strings.ToLower(msg.Content)
	for _, kw := range conceptKeywords {
		if strings.Contains(content, kw) {
			return IntentConceptExplain
		}
	}
	return IntentGeneralChat
}
