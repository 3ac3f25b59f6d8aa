// Package terminal 提供聊天内容的终端渲染
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Renderer 把对话回合渲染到终端
// 回复以片段形式到达，按序直接写出，形成流式打字效果
type Renderer struct {
	out io.Writer
}

// NewRenderer 创建渲染器
func NewRenderer() *Renderer {
	return &Renderer{out: os.Stdout}
}

// NewRendererTo 创建写入指定目标的渲染器（测试用）
func NewRendererTo(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Divider 输出一条与终端同宽的分隔线
func (r *Renderer) Divider() {
	width := 50
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
		width = w
	}
	fmt.Fprintln(r.out, strings.Repeat("─", width))
}

// UserTurn 渲染用户输入回合
func (r *Renderer) UserTurn(content string, attachments []string) {
	for _, name := range attachments {
		fmt.Fprintf(r.out, "🖼  已附加图片: %s\n", name)
	}
	if content != "" {
		fmt.Fprintf(r.out, "你: %s\n", content)
	}
}

// AssistantStart 开始渲染助手回复
func (r *Renderer) AssistantStart(modelName string) {
	fmt.Fprintf(r.out, "\n%s:\n", modelName)
}

// Chunk 写出一个回复片段
func (r *Renderer) Chunk(s string) {
	fmt.Fprint(r.out, s)
}

// AssistantEnd 结束当前回复
func (r *Renderer) AssistantEnd() {
	fmt.Fprint(r.out, "\n\n")
}

// Notice 输出一条系统提示
func (r *Renderer) Notice(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}
