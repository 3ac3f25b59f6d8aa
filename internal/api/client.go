// Package api 封装与生物辅导后端的 HTTP API 交互
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"
)

// Client 辅导后端 API 客户端
// baseURL: 例如 http://localhost:8000
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 API 客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ModelSettings 建会话时下发的各能力模型配置
type ModelSettings struct {
	VisionModel  string `json:"vision_model"`
	VisionAPIKey string `json:"vision_api_key"`
	DeepModel    string `json:"deep_model"`
	DeepAPIKey   string `json:"deep_api_key"`
	QuickModel   string `json:"quick_model"`
	QuickAPIKey  string `json:"quick_api_key"`
}

// Session 后端分配的辅导会话
type Session struct {
	ID       string `json:"session_id"`
	Greeting string `json:"greeting"`
}

// MessageReply 发送消息的应答
type MessageReply struct {
	Content string `json:"content"`
	IsFinal bool   `json:"is_final"`
}

// TaskStatus 会话任务进度快照
type TaskStatus struct {
	SessionID         string            `json:"session_id"`
	ConversationState string            `json:"conversation_state"`
	Tasks             map[string]string `json:"tasks"`
	TaskErrors        map[string]string `json:"task_errors,omitempty"`
	HasQuestion       bool              `json:"has_question"`
	HasSolution       bool              `json:"has_solution"`
	QuestionText      string            `json:"question_text,omitempty"`
	ExamPoints        []string          `json:"exam_points,omitempty"`
	KnowledgePoints   []string          `json:"knowledge_points,omitempty"`
	LogicChainSteps   []string          `json:"logic_chain_steps,omitempty"`
	ThinkingPattern   string            `json:"thinking_pattern,omitempty"`
}

// 任务状态取值
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// 五个固定的辅导任务阶段
const (
	TaskVisionExtraction = "vision_extraction"
	TaskExamPoints       = "exam_points"
	TaskDeepSolution     = "deep_solution"
	TaskKnowledgePoints  = "knowledge_points"
	TaskLogicChain       = "logic_chain"
)

// AllTasks 全量任务列表（完成判定用）
var AllTasks = []string{
	TaskVisionExtraction,
	TaskExamPoints,
	TaskDeepSolution,
	TaskKnowledgePoints,
	TaskLogicChain,
}

// FailedTasks 返回快照中所有失败任务名，已知任务保持固定顺序
func (s *TaskStatus) FailedTasks() []string {
	var failed []string
	for _, name := range AllTasks {
		if s.Tasks[name] == TaskFailed {
			failed = append(failed, name)
		}
	}
	for name, status := range s.Tasks {
		if status != TaskFailed {
			continue
		}
		known := false
		for _, n := range AllTasks {
			if n == name {
				known = true
				break
			}
		}
		if !known {
			failed = append(failed, name)
		}
	}
	return failed
}

// TaskError 取指定任务的错误信息，没有则返回兜底文案
func (s *TaskStatus) TaskError(name, fallback string) string {
	if msg, ok := s.TaskErrors[name]; ok && msg != "" {
		return msg
	}
	return fallback
}

// AllCompleted 五个任务是否在同一快照内全部完成
func (s *TaskStatus) AllCompleted() bool {
	for _, name := range AllTasks {
		if s.Tasks[name] != TaskCompleted {
			return false
		}
	}
	return true
}

// CreateSession 创建辅导会话，settings 为 nil 时发送空配置
func (c *Client) CreateSession(ctx context.Context, settings *ModelSettings) (*Session, error) {
	body := []byte(`{}`)
	if settings != nil {
		var err error
		body, err = sjson.SetBytes(body, "models", settings)
		if err != nil {
			return nil, newAPIError(KindSessionCreate, err)
		}
	}

	status, respBody, err := c.postJSON(ctx, "/session", body)
	if err != nil {
		return nil, newAPIError(KindSessionCreate, err)
	}
	if status != http.StatusOK {
		return nil, httpError(KindSessionCreate, status, respBody)
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, newAPIError(KindSessionCreate, fmt.Errorf("解析响应失败: %w", err))
	}
	return &session, nil
}

// UploadImage 上传待分析的题目图片，返回后端的确认文案
// imageData 为 base64 编码，解码后以 multipart 形式提交
func (c *Client) UploadImage(ctx context.Context, sessionID, imageData, mimeType string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return "", newAPIError(KindUpload, fmt.Errorf("解码图片数据失败: %w", err))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return "", newAPIError(KindUpload, err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", newAPIError(KindUpload, err)
	}
	if err := writer.Close(); err != nil {
		return "", newAPIError(KindUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/session/"+sessionID+"/image", &buf)
	if err != nil {
		return "", newAPIError(KindUpload, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, respBody, err := c.do(req)
	if err != nil {
		return "", newAPIError(KindUpload, err)
	}
	if status != http.StatusOK {
		return "", httpError(KindUpload, status, respBody)
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", newAPIError(KindUpload, fmt.Errorf("解析响应失败: %w", err))
	}
	return result.Message, nil
}

// SendMessage 在辅导会话中发送一条文本消息
func (c *Client) SendMessage(ctx context.Context, sessionID, content string) (*MessageReply, error) {
	body, _ := json.Marshal(map[string]string{"content": content})

	status, respBody, err := c.postJSON(ctx, "/session/"+sessionID+"/message", body)
	if err != nil {
		return nil, newAPIError(KindSend, err)
	}
	if status != http.StatusOK {
		return nil, httpError(KindSend, status, respBody)
	}

	var reply MessageReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, newAPIError(KindSend, fmt.Errorf("解析响应失败: %w", err))
	}
	return &reply, nil
}

// Chat 普通聊天接口（非任务流程）
func (c *Client) Chat(ctx context.Context, sessionID, content string) (string, error) {
	body, _ := json.Marshal(map[string]string{"content": content})

	status, respBody, err := c.postJSON(ctx, "/session/"+sessionID+"/chat", body)
	if err != nil {
		return "", newAPIError(KindSend, err)
	}
	if status != http.StatusOK {
		return "", httpError(KindSend, status, respBody)
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", newAPIError(KindSend, fmt.Errorf("解析响应失败: %w", err))
	}
	return result.Content, nil
}

// GetStatus 获取会话任务进度快照
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/session/"+sessionID+"/status", nil)
	if err != nil {
		return nil, newAPIError(KindStatus, err)
	}

	status, respBody, err := c.do(req)
	if err != nil {
		return nil, newAPIError(KindStatus, err)
	}
	if status != http.StatusOK {
		return nil, httpError(KindStatus, status, respBody)
	}

	var taskStatus TaskStatus
	if err := json.Unmarshal(respBody, &taskStatus); err != nil {
		return nil, newAPIError(KindStatus, fmt.Errorf("解析响应失败: %w", err))
	}
	return &taskStatus, nil
}

// BaseURL 返回含 /api 前缀的基础地址（事件订阅用）
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- 通用请求封装 ---

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
