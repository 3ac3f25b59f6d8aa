// Package sse 处理与后端的 SSE 事件流连接
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
)

// 事件类型常量
const (
	TypeTaskCompleted   = "task_completed"
	TypeTaskFailed      = "task_failed"
	TypeSessionComplete = "session_complete"
)

// Event SSE 事件结构
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// TaskName 从事件数据中取任务名，缺失时返回 unknown
func (e *Event) TaskName() string {
	if name, ok := e.Data["task"].(string); ok && name != "" {
		return name
	}
	return "unknown"
}

// ErrorMessage 从事件数据中取错误信息
func (e *Event) ErrorMessage() string {
	if msg, ok := e.Data["error"].(string); ok && msg != "" {
		return msg
	}
	return "任务失败"
}

// Listener 单个会话的事件流订阅
// Close 返回后保证不再有任何回调被调用；回调内不可调用 Close
type Listener struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	onEvent func(*Event)
	onError func(error)
	done    chan struct{}
}

// Subscribe 为指定会话打开事件流
// baseURL 为含 /api 前缀的基础地址；onError 在连接层错误时调用一次，不自动重连
func Subscribe(ctx context.Context, baseURL, sessionID string, onEvent func(*Event), onError func(error)) (*Listener, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/session/"+sessionID+"/events", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("连接事件流失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("连接事件流失败: HTTP %d", resp.StatusCode)
	}

	l := &Listener{
		cancel:  cancel,
		onEvent: onEvent,
		onError: onError,
		done:    make(chan struct{}),
	}

	go l.readPump(resp)
	return l, nil
}

// Close 关闭事件流订阅
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	<-l.done
}

// readPump 逐帧读取事件流
func (l *Listener) readPump(resp *http.Response) {
	defer close(l.done)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// 坏帧跳过，不中断订阅
			log.Printf("[SSE] 解析事件失败: %v", err)
			continue
		}

		if !l.dispatch(&event) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		l.dispatchError(fmt.Errorf("事件流读取错误: %w", err))
	}
}

// dispatch 在持锁状态下投递事件，返回 false 表示订阅已关闭
func (l *Listener) dispatch(event *Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	if l.onEvent != nil {
		l.onEvent(event)
	}
	return true
}

func (l *Listener) dispatchError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.onError != nil {
		l.onError(err)
	}
}
