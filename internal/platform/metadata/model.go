package metadata

import "gorm.io/gorm"

// Metadata 定义了通用键值对表结构。
// 会话快照在Redis不可用时也落在这张表里，所以 Value 使用 text。
type Metadata struct {
	// gorm.Model 包含 ID, CreatedAt, UpdatedAt, DeletedAt
	gorm.Model

	// Key 是元数据的唯一键，例如 "angelo-store:<userID>"
	Key string `gorm:"uniqueIndex;not null;type:varchar(255)"`

	// Value 存储元数据的值
	Value string `gorm:"type:text"`
}
