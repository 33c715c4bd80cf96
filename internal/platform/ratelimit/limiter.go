// Package ratelimit 按客户端IP限制敏感接口（登录、扫码）在滑动窗口内的请求次数。
// Redis健康时计数保存在有序集合里，多实例共享；否则退回进程内计数。
package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix 是Redis中计数键的前缀
const KeyPrefix = "angelo-rl"

// Limiter 是一个作用域（例如 "login"）的滑动窗口限流器
type Limiter struct {
	rdb    *redis.Client
	status *health.Status
	scope  string
	limit  int64
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	local map[string][]time.Time
}

// New 创建限流器。rdb 为 nil 时只使用进程内计数。
func New(rdb *redis.Client, status *health.Status, scope string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		status: status,
		scope:  scope,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
		local:  make(map[string][]time.Time),
	}
}

func (l *Limiter) key(client string) string {
	return KeyPrefix + ":" + l.scope + ":" + client
}

// uniqueMember 生成 [8字节纳秒时间戳 | 8字节随机数] 的base64成员，避免同一时刻的请求互相覆盖
func uniqueMember(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Allow 记录一次请求并返回是否仍在限额内。被拒绝的请求不计入窗口。
func (l *Limiter) Allow(ctx context.Context, client string) (bool, error) {
	now := l.now()
	if l.rdb != nil && l.status.RedisUsable() {
		ok, err := l.allowRedis(ctx, client, now)
		if err == nil {
			return ok, nil
		}
		logging.L().Warn("限流计数写入Redis失败，改用本地计数",
			zap.String("scope", l.scope), zap.Error(err))
	}
	return l.allowLocal(client, now), nil
}

func (l *Limiter) allowRedis(ctx context.Context, client string, now time.Time) (bool, error) {
	key := l.key(client)
	member, err := uniqueMember(now)
	if err != nil {
		return false, fmt.Errorf("生成计数成员失败: %w", err)
	}
	minScore := float64(now.Add(-l.window).UnixMicro())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", minScore))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, key, l.window+time.Minute)
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("执行限流计数事务失败: %w", err)
	}

	if countCmd.Val() <= l.limit {
		return true, nil
	}
	// 超限的请求撤销计数，否则持续重试会把窗口一直顶住
	if err := l.rdb.ZRem(ctx, key, member).Err(); err != nil {
		logging.L().Warn("撤销超限计数失败", zap.String("key", key), zap.Error(err))
	}
	return false, nil
}

func (l *Limiter) allowLocal(client string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	hits := l.local[client]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if int64(len(kept)) >= l.limit {
		l.local[client] = kept
		return false
	}
	l.local[client] = append(kept, now)
	return true
}

// Middleware 以客户端IP为键限流，超限返回429
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logging.L().Error("限流检查失败", zap.String("scope", l.scope), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "Trop de tentatives, veuillez réessayer plus tard"})
			return
		}
		c.Next()
	}
}
