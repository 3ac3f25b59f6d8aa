package provider

import (
	"context"
	"fmt"
	"time"
)

// mockTokenDelay 每个 token 的模拟网络延迟
const mockTokenDelay = 30 * time.Millisecond

// MockStream 固定文案的模拟回复流，按空白边界切分逐 token 输出
// 用于演示提供方扩展能力，不依赖真实后端
func MockStream(ctx context.Context, modelName string, emit func(string)) error {
	text := fmt.Sprintf("这是 **%s** 的模拟回复。\n\n当前环境没有为该提供方配置真实接口，此回复仅用于演示提供方扩展能力。\n\n"+
		"接入真实服务的步骤：\n1. 在 internal/provider 中实现对应的 API 调用\n2. 在 internal/router 中注册新的提供方\n3. 返回流式结果即可", modelName)

	for _, token := range splitTokens(text) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(mockTokenDelay):
		}
		emit(token)
	}
	return nil
}

// splitTokens 在空格和换行前切分，保留分隔符本身
func splitTokens(text string) []string {
	var tokens []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' || text[i] == '\n' {
			tokens = append(tokens, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
