package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ok, err := GetValue(ctx, db, "angelo-store:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetValue(ctx, db, "angelo-store:u1", `{"theme":"light"}`))
	require.NoError(t, SetValue(ctx, db, "angelo-store:u1", `{"theme":"dark"}`))

	v, ok, err := GetValue(ctx, db, "angelo-store:u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"theme":"dark"}`, v)

	require.NoError(t, DeleteValue(ctx, db, "angelo-store:u1"))
	_, ok, err = GetValue(ctx, db, "angelo-store:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetValue(ctx, db, "angelo-store:u1", `{"theme":"light"}`))
	v, _, err = GetValue(ctx, db, "angelo-store:u1")
	require.NoError(t, err)
	assert.Equal(t, `{"theme":"light"}`, v)
}

func TestLastSnapshotFlush(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := GetLastSnapshotFlush(ctx, db)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, SetLastSnapshotFlush(ctx, db, now))
	got, err = GetLastSnapshotFlush(ctx, db)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))
}
