// Package chat 定义对话数据模型和可用模型注册表
package chat

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment 图片附件（base64 编码）
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
	Name     string `json:"name,omitempty"`
}

// Message 一条对话消息
// 回复流入期间 Content 会被增量追加，其余字段创建后不变
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   int64        `json:"timestamp"`
	IsError     bool         `json:"is_error,omitempty"`
}

// NewMessage 创建一条消息
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// HasAttachments 是否携带附件
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// 支持的图片扩展名 → MIME 类型
var imageMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// LoadAttachment 从本地文件读取图片附件
func LoadAttachment(path string) (*Attachment, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := imageMimeTypes[ext]
	if !ok {
		return nil, fmt.Errorf("不支持的图片格式: %s（支持 png/jpg/jpeg/gif/webp）", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取图片失败: %w", err)
	}

	return &Attachment{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Name:     filepath.Base(path),
	}, nil
}
