package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// KeyPrefix 是本地快照槽的命名空间
const KeyPrefix = "angelo-store"

// ErrNoSnapshot 表示该用户没有保存过快照
var ErrNoSnapshot = errors.New("没有会话快照")

// SnapshotKey 返回某个用户的快照键
func SnapshotKey(userID string) string {
	return KeyPrefix + ":" + userID
}

// SnapshotStore 是会话快照的持久化槽，内容对它是不透明的字节
type SnapshotStore interface {
	Save(ctx context.Context, userID string, data []byte) error
	Load(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

// RedisStore 把快照保存在Redis的字符串键中
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, userID string, data []byte) error {
	return s.rdb.Set(ctx, SnapshotKey(userID), data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, SnapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	return data, err
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, SnapshotKey(userID)).Err()
}

// Purge 删除所有快照键，Redis重启或恢复后重建前调用
func (s *RedisStore) Purge(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, KeyPrefix+":*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 200 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return s.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// SQLStore 把快照保存在metadata键值表中
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Save(ctx context.Context, userID string, data []byte) error {
	return metadata.SetValue(ctx, s.db, SnapshotKey(userID), string(data))
}

func (s *SQLStore) Load(ctx context.Context, userID string) ([]byte, error) {
	v, ok, err := metadata.GetValue(ctx, s.db, SnapshotKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSnapshot
	}
	return []byte(v), nil
}

func (s *SQLStore) Delete(ctx context.Context, userID string) error {
	return metadata.DeleteValue(ctx, s.db, SnapshotKey(userID))
}

// FallbackStore 总是写数据库，Redis健康时同时写Redis。
// 读取时优先Redis，Redis没有或不可用时读数据库。
// Redis恢复后由健康检查器先 Purge 再重写内存中的会话，所以Redis里不会留下旧快照。
type FallbackStore struct {
	primary   SnapshotStore
	secondary SnapshotStore
	status    *health.Status
}

// NewFallbackStore 创建组合存储。primary 可为 nil，表示只用数据库。
func NewFallbackStore(primary, secondary SnapshotStore, status *health.Status) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, status: status}
}

func (s *FallbackStore) primaryUsable() bool {
	return s.primary != nil && s.status != nil && s.status.RedisUsable()
}

func (s *FallbackStore) Save(ctx context.Context, userID string, data []byte) error {
	if err := s.secondary.Save(ctx, userID, data); err != nil {
		return fmt.Errorf("写入数据库快照失败: %w", err)
	}
	if s.primaryUsable() {
		if err := s.primary.Save(ctx, userID, data); err != nil {
			return fmt.Errorf("写入Redis快照失败: %w", err)
		}
	}
	return nil
}

func (s *FallbackStore) Load(ctx context.Context, userID string) ([]byte, error) {
	if s.primaryUsable() {
		if data, err := s.primary.Load(ctx, userID); err == nil {
			return data, nil
		}
	}
	return s.secondary.Load(ctx, userID)
}

func (s *FallbackStore) Delete(ctx context.Context, userID string) error {
	var errs []error
	if s.primaryUsable() {
		errs = append(errs, s.primary.Delete(ctx, userID))
	}
	errs = append(errs, s.secondary.Delete(ctx, userID))
	return errors.Join(errs...)
}
