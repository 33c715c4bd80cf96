package lifecycle

import (
	"context"
	"time"
)

// Handle 交给单个后台服务，用来感知停机并在退出时回报
type Handle struct {
	name  string
	ctx   context.Context
	close func()
}

// Name 返回注册时使用的服务名
func (h *Handle) Name() string {
	return h.name
}

// Ctx 在停机开始时被取消
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Close 告诉管理器本服务已退出。重复调用无副作用，一般用 defer。
func (h *Handle) Close() {
	h.close()
}

// Sleep 等待 d，停机时提前返回上下文错误。后台循环都应该用它代替 time.Sleep。
func (h *Handle) Sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	case <-timer.C:
		return nil
	}
}
