package health

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RebuildFunc 在Redis恢复或重启后把内存中的数据重新写回Redis
type RebuildFunc func(ctx context.Context) error

// Checker 定期检查Redis，并在需要时触发重建
type Checker struct {
	rdb      *redis.Client
	status   *Status
	rebuild  RebuildFunc
	interval time.Duration
}

func NewChecker(rdb *redis.Client, status *Status, rebuild RebuildFunc) *Checker {
	return &Checker{rdb: rdb, status: status, rebuild: rebuild, interval: checkInterval}
}

func (c *Checker) Status() *Status { return c.status }

// runID 从Redis服务器信息中提取run_id
func (c *Checker) runID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err == nil {
		if matches := runIDPattern.FindStringSubmatch(info); len(matches) == 2 {
			return matches[1], nil
		}
	}
	// 部分兼容实现不支持INFO或不提供run_id，退回到Ping
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return "", err
	}
	return "", nil
}

// Initialize 在应用启动时执行一次，记录初始的run_id
func (c *Checker) Initialize(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	runID, err := c.runID(ctx)
	if err != nil {
		return fmt.Errorf("无法在启动时获取Redis Run ID: %w", err)
	}
	c.status.SetInitialRunID(runID)
	logging.L().Info("获取初始Redis Run ID成功", zap.String("runID", runID))
	return nil
}

// PerformCheck 执行一次完整的健康检查和可能的重建
func (c *Checker) PerformCheck(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	currentRunID, err := c.runID(ctx)
	if !c.status.Assess(err == nil, currentRunID) {
		return
	}

	logging.L().Info("健康检查: 正在把会话快照重新写入Redis...")
	if err := c.rebuild(ctx); err != nil {
		logging.L().Error("健康检查: 快照重建失败", zap.Error(err))
		c.status.MarkRebuildComplete(false, "")
		return
	}
	idAfter, err := c.runID(ctx)
	if err != nil {
		c.status.MarkRebuildComplete(false, "")
		return
	}
	c.status.MarkRebuildComplete(true, idAfter)
}

// Run 阻塞式地定期执行健康检查，直到生命周期句柄被取消
func (c *Checker) Run(handle *lifecycle.Handle) {
	defer handle.Close()
	if c.rdb == nil {
		return
	}
	logging.L().Info("Redis健康检查器已启动")
	for {
		if err := handle.Sleep(c.interval); err != nil {
			logging.L().Info("Redis健康检查器已停止")
			return
		}
		c.PerformCheck(handle.Ctx())
	}
}
