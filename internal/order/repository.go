package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCodeAttempts = 5

var ErrCodeExhausted = errors.New("无法生成唯一的订单码")

// Repository 负责订单的持久化
type Repository struct {
	db      *gorm.DB
	newCode func() (string, error)
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, newCode: NewCode}
}

// Migrate 负责自动迁移数据库表结构
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&Order{}, &Line{}); err != nil {
		return fmt.Errorf("无法迁移order表: %w", err)
	}
	return nil
}

// Create 分配ID和订单码后写入订单及其明细。订单码冲突时换一个重试。
func (r *Repository) Create(ctx context.Context, o *Order) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("无法生成UUID v7: %w", err)
	}
	o.ID = id.String()
	for i := range o.Lines {
		o.Lines[i].OrderID = o.ID
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return fmt.Errorf("生成订单码失败: %w", err)
		}
		o.Code = code
		err = r.db.WithContext(ctx).Create(o).Error
		if err == nil {
			return nil
		}
		if !database.IsDuplicateKeyError(err) {
			return fmt.Errorf("写入订单失败: %w", err)
		}
		for i := range o.Lines {
			o.Lines[i].ID = 0
		}
	}
	return ErrCodeExhausted
}

// ListByUser 返回用户的订单，新到旧
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	return orders, nil
}

// FindByCode 按订单码查找
func (r *Repository) FindByCode(ctx context.Context, code string) (*Order, error) {
	var o Order
	err := r.db.WithContext(ctx).Preload("Lines").Where("code = ?", code).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询订单 %s 失败: %w", code, err)
	}
	return &o, nil
}
