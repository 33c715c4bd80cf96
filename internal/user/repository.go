package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/database"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("用户不存在")
	ErrEmailTaken         = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidEmail       = errors.New("邮箱格式无效")
	ErrWeakPassword       = errors.New("密码至少需要6个字符")
	ErrInvalidBirthday    = errors.New("生日格式无效")
)

const minPasswordLength = 6

// Registration 是注册时提交的资料
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Birthday  string
}

// ProfileUpdate 是资料修改，nil 字段保持不变
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Email          *string
	ProfilePicture *string
}

// Repository 是账户和资料的持久化存储，基于GORM
type Repository struct {
	db    *gorm.DB
	tiers *loyalty.Table
}

func NewRepository(db *gorm.DB, tiers *loyalty.Table) *Repository {
	return &Repository{db: db, tiers: tiers}
}

// Migrate 负责自动迁移数据库表结构
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&User{}, &Visit{}, &ScanRecord{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateAccount 注册新用户。新用户从最低等级、0积分、没有到店记录开始。
func (r *Repository) CreateAccount(ctx context.Context, reg Registration) (Profile, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return Profile{}, err
	}
	if len(reg.Password) < minPasswordLength {
		return Profile{}, ErrWeakPassword
	}
	if reg.Birthday != "" {
		if _, err := time.Parse(loyalty.VisitDateLayout, reg.Birthday); err != nil {
			return Profile{}, ErrInvalidBirthday
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, fmt.Errorf("无法计算密码哈希: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Profile{}, fmt.Errorf("无法生成UUID v7: %w", err)
	}

	u := User{
		ID:           id.String(),
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        email,
		PasswordHash: string(hash),
		Birthday:     reg.Birthday,
		Points:       0,
		Tier:         r.tiers.TierFor(0).Label,
		Progress:     r.tiers.Progress(0),
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, fmt.Errorf("无法创建新用户: %w", err)
	}
	return u.toProfile(), nil
}

// Authenticate 校验邮箱和密码。两种失败都返回同一个错误。
func (r *Repository) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return Profile{}, fmt.Errorf("查询用户失败: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return r.FetchProfile(ctx, u.ID)
}

// FetchProfile 读取用户资料和到店记录（新到旧）
func (r *Repository) FetchProfile(ctx context.Context, id string) (Profile, error) {
	var u User
	err := r.db.WithContext(ctx).
		Preload("Visits", func(db *gorm.DB) *gorm.DB { return db.Order("id DESC") }).
		First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("查询用户 %s 失败: %w", id, err)
	}
	return u.toProfile(), nil
}

// UpdateProfile 修改姓名、邮箱或头像，返回修改后的资料
func (r *Repository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
	fields := map[string]interface{}{}
	if upd.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*upd.LastName)
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return Profile{}, err
		}
		fields["email"] = email
	}
	if upd.ProfilePicture != nil {
		fields["profile_picture"] = *upd.ProfilePicture
	}

	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			if database.IsDuplicateKeyError(res.Error) {
				return Profile{}, ErrEmailTaken
			}
			return Profile{}, fmt.Errorf("更新用户 %s 失败: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return Profile{}, ErrNotFound
		}
	}
	return r.FetchProfile(ctx, id)
}

// Scan 是一次被接受的扫描，连同计算后的新账户状态一起写入
type Scan struct {
	Payload loyalty.Payload
	Visit   loyalty.Visit
	Account loyalty.Account
}

// RecordScan 在一个事务中写入到店记录、扫描记录，并更新积分和等级
func (r *Repository) RecordScan(ctx context.Context, userID string, scan Scan) error {
	return database.Transaction(ctx, r.db, func(tx *gorm.DB) error {
		res := tx.Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"points":   scan.Account.Points,
			"tier":     scan.Account.Tier,
			"progress": scan.Account.Progress,
		})
		if res.Error != nil {
			return fmt.Errorf("更新用户积分失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Create(&Visit{UserID: userID, Date: scan.Visit.Date, Points: scan.Visit.Points}).Error; err != nil {
			return fmt.Errorf("写入到店记录失败: %w", err)
		}
		record := ScanRecord{
			UserID:      userID,
			Code:        scan.Payload.Code,
			Amount:      scan.Payload.Amount,
			ReceiptDate: scan.Payload.Date,
			Points:      scan.Visit.Points,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("写入扫描记录失败: %w", err)
		}
		return nil
	})
}

// CountScans 返回某个小票码被扫描的次数
func (r *Repository) CountScans(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ScanRecord{}).Where("code = ?", code).Count(&n).Error
	return n, err
}
