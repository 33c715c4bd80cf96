// Package startup 集中处理启动时的建表和Redis恢复后的快照重建
package startup

import (
	"context"
	"fmt"

	"github.com/angelo-gelato/loyalty-backend/internal/order"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate 按依赖顺序迁移所有模块的表
func Migrate(db *gorm.DB, users *user.Repository, orders *order.Repository) error {
	logging.L().Info("开始数据库迁移...")
	if err := metadata.Migrate(db); err != nil {
		return fmt.Errorf("迁移元数据表失败: %w", err)
	}
	if err := users.Migrate(); err != nil {
		return fmt.Errorf("迁移用户表失败: %w", err)
	}
	if err := orders.Migrate(); err != nil {
		return fmt.Errorf("迁移订单表失败: %w", err)
	}
	logging.L().Info("数据库迁移完成")
	return nil
}

// RebuildRedisSnapshots 返回Redis恢复后执行的重建逻辑：
// 先清掉中断期间可能过期的快照，再把内存中的会话全部写回。
func RebuildRedisSnapshots(rdb *session.RedisStore, sessions *session.Manager) health.RebuildFunc {
	return func(ctx context.Context) error {
		if err := rdb.Purge(ctx); err != nil {
			return fmt.Errorf("清理旧快照失败: %w", err)
		}
		if err := sessions.ExportTo(ctx, rdb); err != nil {
			return err
		}
		logging.L().Info("Redis快照重建完成", zap.Int("sessions", sessions.Len()))
		return nil
	}
}
