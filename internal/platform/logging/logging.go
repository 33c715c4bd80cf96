package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init 根据运行模式创建全局logger。debug模式使用开发配置，其余使用生产配置。
func Init(mode string) error {
	var (
		l   *zap.Logger
		err error
	)
	if mode == "debug" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set 替换全局logger，测试中可以注入 zaptest 或 Nop
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L 返回当前的全局logger
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync 刷新缓冲区，停机时调用
func Sync() {
	_ = L().Sync()
}
