package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
	"biotutor-cli/internal/sse"
)

// Orchestrator 驱动一次辅导会话的完整生命周期
// 会话句柄由 Orchestrator 显式持有；整个流程串行执行，一轮结束前不会开始下一轮
type Orchestrator struct {
	client  *api.Client
	session *api.Session

	pollInterval   time.Duration
	settleDelay    time.Duration
	stage1Attempts int
	fullAttempts   int
}

// New 创建编排器
func New(client *api.Client) *Orchestrator {
	return &Orchestrator{
		client:         client,
		pollInterval:   time.Second,
		settleDelay:    2 * time.Second,
		stage1Attempts: 60,
		fullAttempts:   120,
	}
}

// Session 返回当前会话，没有则为 nil
func (o *Orchestrator) Session() *api.Session {
	return o.session
}

// Reset 清除当前会话，下一条消息会新建会话
func (o *Orchestrator) Reset() {
	o.session = nil
}

// taskFailure 记录事件流上报的任务失败（轮询循环中优先检查）
type taskFailure struct {
	mu  sync.Mutex
	msg string
}

func (f *taskFailure) report(task, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msg != "" {
		return
	}
	f.msg = fmt.Sprintf("❌ **%s 失败**\n\n%s\n\n请检查设置中的 API Key 配置。", task, errMsg)
}

func (f *taskFailure) take() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msg == "" {
		return "", false
	}
	return f.msg, true
}

// Stream 处理一条用户消息，把部分/最终结果按顺序交给 emit
// 所有后端错误都会转成用户可读的文本片段，只有 ctx 取消会作为 error 返回
func (o *Orchestrator) Stream(ctx context.Context, history []*chat.Message, settings *api.ModelSettings, emit func(string)) error {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]

	intent := ClassifyIntent(last)
	hadSession := o.session != nil

	// 没有会话则先创建；图片分析场景下把问候语作为首个片段
	if o.session == nil {
		session, err := o.client.CreateSession(ctx, settings)
		if err != nil {
			emit(fmt.Sprintf("❌ **连接失败**\n\n%v\n\n请检查后端服务是否启动，或在设置中检查配置。", err))
			return ctxErr(ctx)
		}
		o.session = session
		if intent == IntentImageAnalysis {
			emit(session.Greeting + "\n\n")
		}
	}

	// 只有「会话刚创建」且「是聊天类意图」时走普通聊天；
	// 已有会话说明进入了题目流程，后续文字输入一律走任务路径
	if !hadSession && (intent == IntentGeneralChat || intent == IntentConceptExplain) {
		content, err := o.client.Chat(ctx, o.session.ID, last.Content)
		if err != nil {
			emit(fmt.Sprintf("❌ **聊天失败**\n\n%v\n\n请检查网络连接或 API 配置。", err))
			return ctxErr(ctx)
		}
		emit(content)
		return nil
	}

	return o.runTutoring(ctx, last, emit)
}

// runTutoring 图片分析 / 题目解答流程
func (o *Orchestrator) runTutoring(ctx context.Context, last *chat.Message, emit func(string)) error {
	sessionID := o.session.ID
	failure := &taskFailure{}

	listener, err := sse.Subscribe(ctx, o.client.BaseURL(), sessionID,
		func(ev *sse.Event) {
			switch ev.Type {
			case sse.TypeTaskFailed:
				failure.report(ev.TaskName(), ev.ErrorMessage())
			case sse.TypeSessionComplete:
				// 仅作通知，结果以状态轮询为准
			}
		},
		func(err error) {
			failure.report("事件流", err.Error())
		})
	if err != nil {
		// 事件流打不开时退化为纯轮询
		log.Printf("[SSE] 订阅失败，退化为轮询: %v", err)
	} else {
		defer listener.Close()
	}

	if last.HasAttachments() {
		return o.handleImageTurn(ctx, sessionID, last, failure, emit)
	}
	if strings.TrimSpace(last.Content) != "" {
		return o.handleTextTurn(ctx, sessionID, last, failure, emit)
	}
	return nil
}

// handleImageTurn 上传图片并触发第一阶段处理
func (o *Orchestrator) handleImageTurn(ctx context.Context, sessionID string, last *chat.Message, failure *taskFailure, emit func(string)) error {
	att := last.Attachments[0]

	ack, err := o.client.UploadImage(ctx, sessionID, att.Data, att.MimeType)
	if err != nil {
		emit(fmt.Sprintf("❌ **上传失败**\n\n%v\n\n请检查网络连接或重试。", err))
		return ctxErr(ctx)
	}
	emit(ack + "\n\n")

	if msg, ok := failure.take(); ok {
		emit(msg)
		return nil
	}

	// 空消息触发后台任务
	reply, err := o.client.SendMessage(ctx, sessionID, "")
	if err != nil {
		emit(fmt.Sprintf("❌ **上传失败**\n\n%v\n\n请检查网络连接或重试。", err))
		return ctxErr(ctx)
	}
	emit(reply.Content)

	// 给后台任务一点启动时间，再查一次状态
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.settleDelay):
	}

	status, err := o.client.GetStatus(ctx, sessionID)
	if err != nil {
		emit(fmt.Sprintf("❌ **上传失败**\n\n%v\n\n请检查网络连接或重试。", err))
		return ctxErr(ctx)
	}

	if failed := status.FailedTasks(); len(failed) > 0 {
		for _, name := range failed {
			emit(fmt.Sprintf("\n\n❌ **%s 失败**\n\n%s\n\n请检查设置中的 API Key 配置。", name, status.TaskError(name, "任务失败")))
		}
		return nil
	}

	if msg, ok := failure.take(); ok {
		emit(msg)
	}
	// 本轮到此为止，后续进度由用户下一条输入触发
	return nil
}

// handleTextTurn 发送文字消息，进入辅导状态则等待任务结果
func (o *Orchestrator) handleTextTurn(ctx context.Context, sessionID string, last *chat.Message, failure *taskFailure, emit func(string)) error {
	reply, err := o.client.SendMessage(ctx, sessionID, last.Content)
	if err != nil {
		emit(fmt.Sprintf("❌ **发送失败**\n\n%v\n\n请检查网络连接或重试。", err))
		return ctxErr(ctx)
	}
	emit(reply.Content)

	if msg, ok := failure.take(); ok {
		emit("\n\n" + msg)
		return nil
	}

	status, err := o.client.GetStatus(ctx, sessionID)
	if err != nil {
		emit(fmt.Sprintf("\n\n❌ **获取状态失败**\n\n%v", err))
		return ctxErr(ctx)
	}

	if status.ConversationState == "tutoring" {
		return o.waitForResults(ctx, sessionID, status, failure, emit)
	}
	return nil
}

// waitForResults 等待辅导任务结果：先等题目与考察点，再等全部任务完成
func (o *Orchestrator) waitForResults(ctx context.Context, sessionID string, initial *api.TaskStatus, failure *taskFailure, emit func(string)) error {
	shownQuestion := false
	shownExamPoints := false

	// 已有结果直接展示
	if initial.Tasks[api.TaskVisionExtraction] == api.TaskCompleted && initial.QuestionText != "" {
		emit("\n\n📝 **题目内容：**\n" + initial.QuestionText + "\n\n")
		shownQuestion = true
	}
	if initial.Tasks[api.TaskExamPoints] == api.TaskCompleted && len(initial.ExamPoints) > 0 {
		emit(formatExamPoints(initial.ExamPoints))
		shownExamPoints = true
	}

	if !shownQuestion || !shownExamPoints {
		if !shownQuestion {
			emit("\n\n正在识别题目...\n\n")
		}

		finished, err := pollUntil(ctx, o.pollInterval, o.stage1Attempts, func(attempt int) (bool, error) {
			if msg, ok := failure.take(); ok {
				emit(msg)
				return false, errAborted
			}

			status, err := o.client.GetStatus(ctx, sessionID)
			if err != nil {
				log.Printf("[Tutor] 状态查询失败: %v", err)
				return false, nil
			}

			if status.Tasks[api.TaskVisionExtraction] == api.TaskFailed {
				emit(fmt.Sprintf("❌ **题目识别失败**\n\n%s\n\n请检查设置中的 API Key 配置。\n\n",
					status.TaskError(api.TaskVisionExtraction, "图片识别失败")))
				return false, errAborted
			}

			if !shownQuestion && status.Tasks[api.TaskVisionExtraction] == api.TaskCompleted && status.QuestionText != "" {
				emit("📝 **题目内容：**\n" + status.QuestionText + "\n\n")
				shownQuestion = true
			}

			if status.Tasks[api.TaskExamPoints] == api.TaskFailed {
				emit(fmt.Sprintf("❌ **考察点分析失败**\n\n%s\n\n",
					status.TaskError(api.TaskExamPoints, "考察点分析失败")))
				// 失败也算有结论，不再等它
				shownExamPoints = true
			} else if !shownExamPoints && status.Tasks[api.TaskExamPoints] == api.TaskCompleted && len(status.ExamPoints) > 0 {
				emit(formatExamPoints(status.ExamPoints))
				shownExamPoints = true
			}

			return shownQuestion && shownExamPoints, nil
		})
		if err == errAborted {
			return nil
		}
		if err != nil {
			return err
		}

		if !finished {
			if !shownQuestion {
				emit("⏰ 题目识别超时\n\n")
			}
			if !shownExamPoints {
				emit("⏰ 考察点分析超时\n\n")
			}
		}
	}

	// 等待全部任务完成
	emit("请稍等，我正在整理完整的分析结果...\n\n")

	finished, err := pollUntil(ctx, o.pollInterval, o.fullAttempts, func(attempt int) (bool, error) {
		if msg, ok := failure.take(); ok {
			emit(msg)
			return false, errAborted
		}

		status, err := o.client.GetStatus(ctx, sessionID)
		if err != nil {
			log.Printf("[Tutor] 状态查询失败: %v", err)
			return false, nil
		}

		if failed := status.FailedTasks(); len(failed) > 0 {
			for _, name := range failed {
				emit(fmt.Sprintf("\n\n❌ **%s 失败**\n\n%s\n\n", name, status.TaskError(name, "任务失败")))
			}
			emit("请检查设置中的 API Key 配置后重试~")
			return false, errAborted
		}

		if status.AllCompleted() {
			emit("✅ 第一阶段数据收集完成！\n\n")
			emit("现在可以开始正式辅导了~ 😊")
			return true, nil
		}

		if attempt%10 == 0 {
			emit(".")
		}
		return false, nil
	})
	if err == errAborted {
		return nil
	}
	if err != nil {
		return err
	}

	if !finished {
		emit("\n⏰ 分析超时，请重试~")
	}
	return nil
}

func formatExamPoints(points []string) string {
	var b strings.Builder
	b.WriteString("📊 **这道题的考察点：**\n")
	for i, p := range points {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + p)
	}
	b.WriteString("\n\n")
	return b.String()
}

// ctxErr 只把取消/超时作为错误向上传递，普通失败已经转成文本片段
func ctxErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
