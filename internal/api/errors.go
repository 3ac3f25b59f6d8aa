package api

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorKind 错误类别，对应一次传输调用的失败环节
type ErrorKind string

const (
	KindSessionCreate ErrorKind = "session_create"
	KindUpload        ErrorKind = "upload"
	KindSend          ErrorKind = "send"
	KindStatus        ErrorKind = "status"
)

// APIError 规范化的后端错误（类别 + 可读信息）
type APIError struct {
	Kind       ErrorKind
	StatusCode int // 0 表示网络层错误
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// 各类别的错误前缀
var kindPrefixes = map[ErrorKind]string{
	KindSessionCreate: "创建会话失败",
	KindUpload:        "图片上传失败",
	KindSend:          "发送消息失败",
	KindStatus:        "获取状态失败",
}

// newAPIError 包装网络层错误，保留底层信息
func newAPIError(kind ErrorKind, err error) *APIError {
	return &APIError{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %v", kindPrefixes[kind], err),
	}
}

// parseErrorBody 从异构的错误响应体中提取可读信息
// 字段按 detail → message → error 的优先级检查，都没有则退回 HTTP 状态文本；
// 401/403 额外加上鉴权失败前缀
func parseErrorBody(statusCode int, body []byte) string {
	msg := http.StatusText(statusCode)
	for _, field := range []string{"detail", "message", "error"} {
		if v := gjson.GetBytes(body, field); v.Exists() && v.String() != "" {
			msg = v.String()
			break
		}
	}

	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return fmt.Sprintf("API 鉴权失败：%s", msg)
	}
	return msg
}

// httpError 把非 2xx 响应转成 APIError
func httpError(kind ErrorKind, statusCode int, body []byte) *APIError {
	return &APIError{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("%s: %s", kindPrefixes[kind], parseErrorBody(statusCode, body)),
	}
}
