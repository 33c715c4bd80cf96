package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/metadata"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newSQL(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, metadata.Migrate(db))
	return db
}

func TestRedisStoreUsesNamespacedKey(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb)

	_, err := s.Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.Save(ctx, "u1", []byte(`{"theme":"dark"}`)))
	got, err := mr.Get("angelo-store:u1")
	require.NoError(t, err)
	assert.Equal(t, `{"theme":"dark"}`, got)

	require.NoError(t, s.Save(ctx, "u2", []byte(`{}`)))
	require.NoError(t, mr.Set("unrelated", "x"))
	require.NoError(t, s.Purge(ctx))
	assert.False(t, mr.Exists("angelo-store:u1"))
	assert.False(t, mr.Exists("angelo-store:u2"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(newSQL(t))

	_, err := s.Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.Save(ctx, "u1", []byte("one")))
	require.NoError(t, s.Save(ctx, "u1", []byte("two")))
	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, s.Delete(ctx, "u1"))
	_, err = s.Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	primary := NewRedisStore(rdb)
	secondary := NewSQLStore(newSQL(t))
	status := health.NewStatus(true)
	s := NewFallbackStore(primary, secondary, status)

	require.NoError(t, s.Save(ctx, "u1", []byte("healthy")))
	assert.True(t, mr.Exists("angelo-store:u1"))
	fromSQL, err := secondary.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "healthy", string(fromSQL))

	// Redis失联：只写数据库
	status.Assess(false, "")
	require.NoError(t, s.Save(ctx, "u1", []byte("degraded")))
	redisCopy, err := mr.Get("angelo-store:u1")
	require.NoError(t, err)
	assert.Equal(t, "healthy", redisCopy)

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "degraded", string(got))

	// 恢复后先清空再重建，读取不会拿到旧值
	require.True(t, status.Assess(true, ""))
	require.NoError(t, primary.Purge(ctx))
	status.MarkRebuildComplete(true, "")
	got, err = s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "degraded", string(got))

	require.NoError(t, s.Delete(ctx, "u1"))
	_, err = s.Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFallbackStoreWithoutRedis(t *testing.T) {
	ctx := context.Background()
	s := NewFallbackStore(nil, NewSQLStore(newSQL(t)), health.NewStatus(false))

	require.NoError(t, s.Save(ctx, "u1", []byte("only-sql")))
	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "only-sql", string(got))
}

func TestExportToRebuildsRedis(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	m := NewManager(newMemStore())
	m.Open(ctx, profile("u1"))
	m.Open(ctx, profile("u2"))

	require.NoError(t, m.ExportTo(ctx, NewRedisStore(rdb)))
	assert.True(t, mr.Exists(SnapshotKey("u1")))
	assert.True(t, mr.Exists(SnapshotKey("u2")))
}
