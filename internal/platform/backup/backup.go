// Package backup 定期把写入失败的会话快照补写到存储，并在停机时做最后一次全量落盘。
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/pkg/lifecycle"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultInterval = time.Minute

// Flusher 负责会话快照的补写
type Flusher struct {
	sessions *session.Manager
	db       *gorm.DB
	durable  session.SnapshotStore
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex // 定时补写与停机落盘互斥
}

// NewFlusher 创建补写器。durable 是停机时全量落盘的目标，一般是 SQLStore。
func NewFlusher(sessions *session.Manager, db *gorm.DB, durable session.SnapshotStore, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Flusher{
		sessions: sessions,
		db:       db,
		durable:  durable,
		interval: interval,
		now:      time.Now,
	}
}

// Run 按间隔补写，直到句柄被取消
func (f *Flusher) Run(handle *lifecycle.Handle) error {
	defer handle.Close()
	logging.L().Info("快照补写器已启动", zap.Duration("interval", f.interval))

	for {
		if err := handle.Sleep(f.interval); err != nil {
			logging.L().Info("快照补写器已停止")
			return nil
		}
		n, err := f.FlushOnce(handle.Ctx())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			logging.L().Warn("快照补写未全部成功", zap.Int("flushed", n), zap.Error(err))
			continue
		}
		if n > 0 {
			logging.L().Info("快照补写完成", zap.Int("flushed", n))
		}
	}
}

// FlushOnce 补写一次脏快照并记录时间，返回补写的数量
func (f *Flusher) FlushOnce(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.sessions.FlushDirty(ctx)
	if err != nil {
		return n, err
	}
	if err := metadata.SetLastSnapshotFlush(ctx, f.db, f.now()); err != nil {
		return n, fmt.Errorf("记录快照补写时间失败: %w", err)
	}
	return n, nil
}

// Final 把所有活跃会话写入持久存储，停机流程的最后一步
func (f *Flusher) Final(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.sessions.ExportTo(ctx, f.durable); err != nil {
		return err
	}
	return metadata.SetLastSnapshotFlush(ctx, f.db, f.now())
}
