package database

import (
	"context"
	"fmt"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/config"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 2 * time.Second

// OpenRedis 初始化与Redis的连接。配置中关闭Redis时返回 nil, nil。
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		logging.L().Info("Redis已在配置中关闭，会话快照将只写入数据库")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 使用Ping命令来测试连接是否成功
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	logging.L().Info("Redis 连接成功", zap.String("address", cfg.Address))
	return rdb, nil
}
