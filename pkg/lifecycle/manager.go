package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager 向后台服务（快照刷写、Redis健康检查）分发 Handle，
// 停机时统一取消并等待它们退出。
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]struct{}
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建管理器。parent 被取消时等同于调用 Shutdown。
func NewManager(parent context.Context, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		services: make(map[string]struct{}),
		log:      log.Named("lifecycle"),
	}
	m.ctx, m.cancel = context.WithCancel(parent)
	return m
}

// NewServiceHandle 注册一个服务。同名服务未退出前不能重复注册。
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[name]; exists {
		return nil, fmt.Errorf("服务 %q 已注册", name)
	}
	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("注册服务 %q: %w", name, m.ctx.Err())
	}
	m.services[name] = struct{}{}
	m.wg.Add(1)
	m.log.Debug("服务已注册", zap.String("service", name))

	var once sync.Once
	return &Handle{
		name: name,
		ctx:  m.ctx,
		close: func() {
			once.Do(func() {
				m.mu.Lock()
				delete(m.services, name)
				m.mu.Unlock()
				m.wg.Done()
				m.log.Debug("服务已退出", zap.String("service", name))
			})
		},
	}, nil
}

// Go 注册服务并在新的goroutine中运行 run，返回时自动 Close。
// run 返回的非取消错误会被记录。
func (m *Manager) Go(name string, run func(h *Handle) error) error {
	h, err := m.NewServiceHandle(name)
	if err != nil {
		return err
	}
	go func() {
		defer h.Close()
		if err := run(h); err != nil && h.Err() == nil {
			m.log.Error("后台服务异常退出", zap.String("service", name), zap.Error(err))
		}
	}()
	return nil
}

// Shutdown 广播停机信号
func (m *Manager) Shutdown() {
	m.log.Info("广播停机信号")
	m.cancel()
}

// WaitWithTimeout 等待所有服务退出，超时则返回仍未退出的服务名（已排序）
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		remaining := make([]string, 0, len(m.services))
		for name := range m.services {
			remaining = append(remaining, name)
		}
		sort.Strings(remaining)
		return remaining
	}
}
