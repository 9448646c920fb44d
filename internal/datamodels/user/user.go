package user

import (
	"context"
	"time"
)

// 用户类型
const (
	TypeCustomer = "customer"
	TypeAdmin    = "admin"
)

// User 用户模型，注册后需通过 WhatsApp 验证码激活
type User struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex;size:128;not null" json:"email"`
	Phone      string    `gorm:"size:32;not null" json:"phone"`
	Password   string    `gorm:"size:255;not null" json:"-"` // 已加密密码
	Salt       string    `gorm:"size:64" json:"-"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	UserType   string    `gorm:"size:16;not null;default:customer" json:"user_type"`
	IsVerified bool      `gorm:"index" json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	SetVerified(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}
