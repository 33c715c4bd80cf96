package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LastSnapshotFlushKey 记录最近一次成功批量刷新会话快照的时间
const LastSnapshotFlushKey = "last_snapshot_flush"

// Migrate 负责初始化metadata表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Metadata{}); err != nil {
		return fmt.Errorf("无法迁移metadata表: %w", err)
	}
	return nil
}

// GetValue 读取一个键，键不存在时返回空字符串和 false
func GetValue(ctx context.Context, db *gorm.DB, key string) (string, bool, error) {
	var meta Metadata
	err := db.WithContext(ctx).Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return meta.Value, true, nil
}

// SetValue 使用 OnConflict 做原子的 upsert
func SetValue(ctx context.Context, db *gorm.DB, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "deleted_at"}),
	}).Create(&meta).Error
}

// DeleteValue 物理删除一个键，键不存在不算错误
func DeleteValue(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Unscoped().Where("key = ?", key).Delete(&Metadata{}).Error
}

// GetLastSnapshotFlush 读取最近一次批量刷新的时间，从未刷新过时返回零值
func GetLastSnapshotFlush(ctx context.Context, db *gorm.DB) (time.Time, error) {
	valueStr, ok, err := GetValue(ctx, db, LastSnapshotFlushKey)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("无法解析元数据 '%s' 的值: %w", LastSnapshotFlushKey, err)
	}
	return t, nil
}

// SetLastSnapshotFlush 写入最近一次批量刷新的时间
func SetLastSnapshotFlush(ctx context.Context, db *gorm.DB, t time.Time) error {
	return SetValue(ctx, db, LastSnapshotFlushKey, t.UTC().Format(time.RFC3339Nano))
}
