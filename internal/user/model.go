package user

import (
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"gorm.io/gorm"
)

// User 定义了用户在数据库中的持久化模型
type User struct {
	// ID 是用户的主键，注册时生成的UUID v7
	ID string `gorm:"primarykey;type:varchar(36)"`

	FirstName string `gorm:"size:100"`
	LastName  string `gorm:"size:100"`
	// Email 统一保存为小写
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"not null"`
	// Birthday 格式为 YYYY-MM-DD，可为空
	Birthday string `gorm:"size:10"`

	Points   int
	Tier     string `gorm:"size:32"`
	Progress float64

	ProfilePicture string

	Visits []Visit `gorm:"foreignKey:UserID"`

	// 部分gorm.Model，由GORM自动管理
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Visit 是一次获得积分的到店记录，只插入不修改
type Visit struct {
	ID     uint   `gorm:"primarykey"`
	UserID string `gorm:"index;type:varchar(36);not null"`
	Date   string `gorm:"size:10"`
	Points int

	CreatedAt time.Time
}

// ScanRecord 记录每一次被接受的小票扫描，包括小票上的原始内容。
// 同一个小票码目前允许重复计分，这张表保留了以后做去重所需的数据。
type ScanRecord struct {
	ID          uint   `gorm:"primarykey"`
	UserID      string `gorm:"index;type:varchar(36);not null"`
	// 列宽与 loyalty.ParsePayload 接受的长度上限一致
	Code        string `gorm:"index;size:64;not null"`
	Amount      float64
	ReceiptDate string `gorm:"size:32"`
	Points      int

	CreatedAt time.Time
}

// Profile 是会话中持有、接口返回的用户视图
type Profile struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Birthday       string `json:"birthday,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	loyalty.Account
}

// toProfile 把数据库模型转换成会话视图，Visits 需按新到旧预加载
func (u *User) toProfile() Profile {
	visits := make([]loyalty.Visit, len(u.Visits))
	for i, v := range u.Visits {
		visits[i] = loyalty.Visit{Date: v.Date, Points: v.Points}
	}
	return Profile{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		Birthday:       u.Birthday,
		ProfilePicture: u.ProfilePicture,
		Account: loyalty.Account{
			Points:   u.Points,
			Tier:     u.Tier,
			Progress: u.Progress,
			Visits:   visits,
		},
	}
}

// Clone 返回一个不共享 Visits 底层数组的副本
func (p Profile) Clone() Profile {
	p.Visits = append([]loyalty.Visit(nil), p.Visits...)
	return p
}
