package tutor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
)

// fakeBackend 按脚本应答的辅导后端
type fakeBackend struct {
	mu            sync.Mutex
	createCalls   int
	chatCalls     int
	msgCalls      int
	uploadCalls   int
	statusCalls   int
	greeting      string
	chatReply     string
	msgReply      string
	uploadReply   string
	uploadedBytes []byte
	statusFn      func(call int) map[string]any
	events        []string // 订阅时立即推送的事件帧
}

func (b *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/session" && r.Method == "POST":
			b.mu.Lock()
			b.createCalls++
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"session_id": "s1", "greeting": b.greeting})

		case strings.HasSuffix(r.URL.Path, "/chat"):
			b.mu.Lock()
			b.chatCalls++
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"content": b.chatReply})

		case strings.HasSuffix(r.URL.Path, "/message"):
			b.mu.Lock()
			b.msgCalls++
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"content": b.msgReply, "is_final": false})

		case strings.HasSuffix(r.URL.Path, "/image"):
			file, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			file.Close()
			b.mu.Lock()
			b.uploadCalls++
			b.uploadedBytes = data
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"message": b.uploadReply})

		case strings.HasSuffix(r.URL.Path, "/status"):
			b.mu.Lock()
			b.statusCalls++
			call := b.statusCalls
			fn := b.statusFn
			b.mu.Unlock()
			json.NewEncoder(w).Encode(fn(call))

		case strings.HasSuffix(r.URL.Path, "/events"):
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			flusher.Flush()
			for _, frame := range b.events {
				fmt.Fprintf(w, "data: %s\n\n", frame)
			}
			flusher.Flush()
			<-r.Context().Done()

		default:
			http.NotFound(w, r)
		}
	})
}

func (b *fakeBackend) statusCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls
}

// statusDoc 组装一个状态快照
func statusDoc(state string, tasks map[string]string, extra map[string]any) map[string]any {
	doc := map[string]any{
		"session_id":         "s1",
		"conversation_state": state,
		"tasks":              tasks,
		"has_question":       false,
		"has_solution":       false,
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func allPending() map[string]string {
	tasks := map[string]string{}
	for _, name := range api.AllTasks {
		tasks[name] = api.TaskPending
	}
	return tasks
}

func allDone() map[string]string {
	tasks := map[string]string{}
	for _, name := range api.AllTasks {
		tasks[name] = api.TaskCompleted
	}
	return tasks
}

// stage1Done 题目与考察点已完成，其余待定
func stage1Done() map[string]string {
	tasks := allPending()
	tasks[api.TaskVisionExtraction] = api.TaskCompleted
	tasks[api.TaskExamPoints] = api.TaskCompleted
	return tasks
}

func stage1Extra() map[string]any {
	return map[string]any{
		"question_text": "下列哪项属于光合作用的暗反应？",
		"exam_points":   []string{"光反应与暗反应的区别", "ATP 的生成场所"},
	}
}

func newTestOrchestrator(t *testing.T, b *fakeBackend) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	o := New(api.NewClient(srv.URL))
	o.pollInterval = 2 * time.Millisecond
	o.settleDelay = 2 * time.Millisecond
	return o
}

func collect(t *testing.T, o *Orchestrator, history ...*chat.Message) []string {
	t.Helper()
	var frags []string
	err := o.Stream(context.Background(), history, nil, func(s string) { frags = append(frags, s) })
	require.NoError(t, err)
	return frags
}

func userMessage(content string) *chat.Message {
	return chat.NewMessage(chat.RoleUser, content)
}

func imageMessage(content string, raw []byte) *chat.Message {
	msg := chat.NewMessage(chat.RoleUser, content)
	msg.Attachments = []chat.Attachment{{
		MimeType: "image/png",
		Data:     base64.StdEncoding.EncodeToString(raw),
	}}
	return msg
}

func TestEmptyHistoryNoop(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	frags := collect(t, o)
	assert.Empty(t, frags)
}

func TestConceptExplainFirstMessage(t *testing.T) {
	b := &fakeBackend{chatReply: "光合作用是绿色植物利用光能……"}
	o := newTestOrchestrator(t, b)

	frags := collect(t, o, userMessage("什么是光合作用"))

	require.Equal(t, []string{"光合作用是绿色植物利用光能……"}, frags)
	assert.Equal(t, 1, b.createCalls)
	assert.Equal(t, 1, b.chatCalls)
	assert.Equal(t, 0, b.msgCalls)
	require.NotNil(t, o.Session())
	assert.Equal(t, "s1", o.Session().ID)
}

func TestGeneralChatNotReenteredAfterSession(t *testing.T) {
	b := &fakeBackend{
		chatReply: "你好~",
		msgReply:  "我们继续看这道题",
		statusFn: func(call int) map[string]any {
			return statusDoc("chatting", allPending(), nil)
		},
	}
	o := newTestOrchestrator(t, b)

	// 第一轮：无会话 + 聊天意图 → 普通聊天
	collect(t, o, userMessage("你好"))
	assert.Equal(t, 1, b.chatCalls)

	// 第二轮：已有会话，即使命中概念关键词也走任务路径
	frags := collect(t, o, userMessage("什么是光合作用"))
	assert.Equal(t, 1, b.chatCalls, "普通聊天路径不应再被进入")
	assert.Equal(t, 1, b.msgCalls)
	assert.Equal(t, 1, b.createCalls, "不应重复建会话")
	assert.Contains(t, frags, "我们继续看这道题")
}

func TestImageUploadFlow(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47, 0x01, 0x02}
	b := &fakeBackend{
		greeting:    "你好呀~ 我是生物辅导姐姐",
		uploadReply: "图片收到啦~",
		msgReply:    "我看看这道题",
		statusFn: func(call int) map[string]any {
			return statusDoc("tutoring", allPending(), nil)
		},
	}
	o := newTestOrchestrator(t, b)

	frags := collect(t, o, imageMessage("", raw))

	require.Equal(t, []string{
		"你好呀~ 我是生物辅导姐姐\n\n",
		"图片收到啦~\n\n",
		"我看看这道题",
	}, frags)
	assert.Equal(t, 1, b.createCalls)
	assert.Equal(t, 1, b.uploadCalls)
	assert.Equal(t, 1, b.msgCalls)
	assert.Equal(t, 1, b.statusCallCount(), "图片回合只查一次状态")
	assert.Equal(t, raw, b.uploadedBytes, "上传的图片字节应与原始数据一致")
}

func TestImageUploadTaskFailure(t *testing.T) {
	b := &fakeBackend{
		greeting:    "你好呀~",
		uploadReply: "图片收到啦~",
		msgReply:    "处理中",
		statusFn: func(call int) map[string]any {
			tasks := allPending()
			tasks[api.TaskVisionExtraction] = api.TaskFailed
			return statusDoc("tutoring", tasks, map[string]any{
				"task_errors": map[string]string{api.TaskVisionExtraction: "图片识别超时"},
			})
		},
	}
	o := newTestOrchestrator(t, b)

	frags := collect(t, o, imageMessage("", []byte{1, 2, 3}))

	assert.Contains(t, frags, "\n\n❌ **vision_extraction 失败**\n\n图片识别超时\n\n请检查设置中的 API Key 配置。")
}

func TestTutoringFullCompletion(t *testing.T) {
	b := &fakeBackend{
		msgReply: "好的，我来帮你分析~",
		statusFn: func(call int) map[string]any {
			if call == 1 {
				return statusDoc("tutoring", stage1Done(), stage1Extra())
			}
			return statusDoc("tutoring", allDone(), stage1Extra())
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}

	frags := collect(t, o, userMessage("帮我讲讲这道题"))

	require.Equal(t, []string{
		"好的，我来帮你分析~",
		"\n\n📝 **题目内容：**\n下列哪项属于光合作用的暗反应？\n\n",
		"📊 **这道题的考察点：**\n• 光反应与暗反应的区别\n• ATP 的生成场所\n\n",
		"请稍等，我正在整理完整的分析结果...\n\n",
		"✅ 第一阶段数据收集完成！\n\n",
		"现在可以开始正式辅导了~ 😊",
	}, frags)
}

func TestStage1PollingEmitsWhenReady(t *testing.T) {
	b := &fakeBackend{
		msgReply: "收到~",
		statusFn: func(call int) map[string]any {
			switch {
			case call == 1:
				return statusDoc("tutoring", allPending(), nil)
			case call == 2:
				tasks := allPending()
				tasks[api.TaskVisionExtraction] = api.TaskCompleted
				return statusDoc("tutoring", tasks, map[string]any{"question_text": "题目 A"})
			case call == 3:
				return statusDoc("tutoring", stage1Done(), map[string]any{
					"question_text": "题目 A",
					"exam_points":   []string{"考点一"},
				})
			default:
				return statusDoc("tutoring", allDone(), stage1Extra())
			}
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}

	frags := collect(t, o, userMessage("继续"))
	joined := strings.Join(frags, "")

	assert.Contains(t, joined, "正在识别题目...")
	assert.Contains(t, joined, "📝 **题目内容：**\n题目 A")
	assert.Contains(t, joined, "📊 **这道题的考察点：**\n• 考点一")
	assert.Contains(t, joined, "✅ 第一阶段数据收集完成！")

	// 题目片段必须先于考察点，考察点先于完成提示
	qIdx := strings.Index(joined, "📝")
	eIdx := strings.Index(joined, "📊")
	dIdx := strings.Index(joined, "✅")
	assert.True(t, qIdx < eIdx && eIdx < dIdx)
}

func TestFullLoopTaskFailureShortCircuits(t *testing.T) {
	const failAt = 5
	b := &fakeBackend{
		msgReply: "收到~",
		statusFn: func(call int) map[string]any {
			if call < failAt {
				return statusDoc("tutoring", stage1Done(), stage1Extra())
			}
			tasks := stage1Done()
			tasks[api.TaskDeepSolution] = api.TaskFailed
			return statusDoc("tutoring", tasks, map[string]any{
				"task_errors": map[string]string{api.TaskDeepSolution: "余额不足"},
			})
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}

	frags := collect(t, o, userMessage("继续"))
	joined := strings.Join(frags, "")

	assert.Contains(t, joined, "❌ **deep_solution 失败**\n\n余额不足")
	assert.Contains(t, joined, "请检查设置中的 API Key 配置后重试~")
	assert.NotContains(t, joined, "✅", "失败后不应再有成功片段")

	// 失败后立即停止轮询
	calls := b.statusCallCount()
	assert.Equal(t, failAt, calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, b.statusCallCount(), "终止后不应继续轮询")
}

func TestFullLoopTimeout(t *testing.T) {
	b := &fakeBackend{
		msgReply: "收到~",
		statusFn: func(call int) map[string]any {
			return statusDoc("tutoring", stage1Done(), stage1Extra())
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}
	o.fullAttempts = 3

	frags := collect(t, o, userMessage("继续"))
	joined := strings.Join(frags, "")

	assert.Contains(t, joined, "\n⏰ 分析超时，请重试~")
	assert.NotContains(t, joined, "✅")
}

func TestStage1Timeout(t *testing.T) {
	b := &fakeBackend{
		msgReply: "收到~",
		statusFn: func(call int) map[string]any {
			return statusDoc("tutoring", allPending(), nil)
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}
	o.stage1Attempts = 2
	o.fullAttempts = 2

	frags := collect(t, o, userMessage("继续"))
	joined := strings.Join(frags, "")

	assert.Contains(t, joined, "⏰ 题目识别超时")
	assert.Contains(t, joined, "⏰ 考察点分析超时")
	// 超时不终止流程，仍进入完整结果等待
	assert.Contains(t, joined, "请稍等，我正在整理完整的分析结果...")
	assert.Contains(t, joined, "\n⏰ 分析超时，请重试~")
}

func TestEventFailurePreemptsPolling(t *testing.T) {
	b := &fakeBackend{
		msgReply: "收到~",
		statusFn: func(call int) map[string]any {
			return statusDoc("tutoring", stage1Done(), stage1Extra())
		},
		events: []string{
			`{"type":"task_failed","data":{"task":"deep_solution","error":"余额不足"},"timestamp":1}`,
		},
	}
	o := newTestOrchestrator(t, b)
	o.session = &api.Session{ID: "s1"}

	frags := collect(t, o, userMessage("继续"))
	joined := strings.Join(frags, "")

	assert.Contains(t, joined, "❌ **deep_solution 失败**\n\n余额不足\n\n请检查设置中的 API Key 配置。")
	assert.NotContains(t, joined, "✅")
}

func TestSessionCreateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"boom"}`))
	}))
	t.Cleanup(srv.Close)

	o := New(api.NewClient(srv.URL))
	frags := collect(t, o, userMessage("你好"))

	require.Len(t, frags, 1)
	assert.Contains(t, frags[0], "❌ **连接失败**")
	assert.Contains(t, frags[0], "boom")
	assert.Nil(t, o.Session())
}

func TestReset(t *testing.T) {
	o := New(api.NewClient("http://127.0.0.1:0"))
	o.session = &api.Session{ID: "s1"}
	o.Reset()
	assert.Nil(t, o.Session())
}

func TestPollUntilRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := pollUntil(ctx, 50*time.Millisecond, 10, func(attempt int) (bool, error) {
		t.Fatal("取消后不应执行轮询步骤")
		return false, nil
	})
	assert.False(t, done)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollUntilExhaustsAttempts(t *testing.T) {
	var attempts []int
	done, err := pollUntil(context.Background(), time.Millisecond, 3, func(attempt int) (bool, error) {
		attempts = append(attempts, attempt)
		return false, nil
	})
	assert.False(t, done)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}
