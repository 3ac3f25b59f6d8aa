package tutor

import (
	"context"
	"errors"
	"time"
)

// errAborted 由轮询步骤返回，表示本轮辅导流程需要立即终止
var errAborted = errors.New("tutoring aborted")

// pollUntil 按固定间隔轮询，直到 step 返回 done、出错或次数用尽
// 先等待再执行；返回值表示是否在次数内完成
func pollUntil(ctx context.Context, interval time.Duration, maxAttempts int, step func(attempt int) (bool, error)) (bool, error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}

		done, err := step(attempt)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		timer.Reset(interval)
	}
	return false, nil
}
