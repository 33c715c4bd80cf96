package database

import (
	"errors"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/config"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 根据配置选择驱动并建立数据库连接
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	// GORM日志配置，生产环境保持Silent
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent,
			Colorful:      true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	logging.L().Info("数据库连接成功", zap.String("driver", cfg.Driver))
	return db, nil
}

// IsDuplicateKeyError 判断错误是否由唯一约束冲突引起
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 未开启错误翻译的连接上退回字符串匹配
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// IsRetryableError 判断错误是否是短暂的锁冲突，可以立即重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

const (
	maxRetry   = 3
	retryDelay = 50 * time.Millisecond
)

// Transaction 在事务中执行 fn，遇到短暂的锁冲突时整体重试
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for i := 0; i < maxRetry; i++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryableError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return err
}
