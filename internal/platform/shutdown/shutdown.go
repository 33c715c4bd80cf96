// Package shutdown 编排停机顺序：先停HTTP，再停后台服务，最后落盘快照。
package shutdown

import (
	"context"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/pkg/lifecycle"
	"go.uber.org/zap"
)

// Server 是可以优雅关闭的HTTP服务器，*http.Server 满足该接口
type Server interface {
	Shutdown(ctx context.Context) error
}

// FinalFunc 在所有后台服务退出后执行一次
type FinalFunc func(ctx context.Context) error

// Coordinator 持有后台服务的生命周期管理器和停机时的收尾工作
type Coordinator struct {
	background *lifecycle.Manager
	final      FinalFunc

	HTTPTimeout       time.Duration
	BackgroundTimeout time.Duration
	FinalTimeout      time.Duration
}

func NewCoordinator(background *lifecycle.Manager, final FinalFunc) *Coordinator {
	return &Coordinator{
		background:        background,
		final:             final,
		HTTPTimeout:       15 * time.Second,
		BackgroundTimeout: 10 * time.Second,
		FinalTimeout:      10 * time.Second,
	}
}

// Shutdown 依次关闭HTTP服务器、后台服务并执行收尾，返回HTTP关闭的错误
func (c *Coordinator) Shutdown(server Server) error {
	log := logging.L()
	log.Info("开始优雅停机...")

	httpCtx, cancel := context.WithTimeout(context.Background(), c.HTTPTimeout)
	defer cancel()
	httpErr := server.Shutdown(httpCtx)
	if httpErr != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(httpErr))
	} else {
		log.Info("HTTP服务器已关闭")
	}

	c.background.Shutdown()
	if remaining := c.background.WaitWithTimeout(c.BackgroundTimeout); len(remaining) > 0 {
		log.Warn("部分后台服务未能按时退出", zap.Strings("services", remaining))
	}

	if c.final != nil {
		finalCtx, cancelFinal := context.WithTimeout(context.Background(), c.FinalTimeout)
		defer cancelFinal()
		if err := c.final(finalCtx); err != nil {
			log.Error("最终快照失败", zap.Error(err))
		} else {
			log.Info("最终快照成功")
		}
	}

	log.Info("优雅停机完成")
	logging.Sync()
	return httpErr
}
