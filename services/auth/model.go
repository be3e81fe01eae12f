package auth

import "time"

type AdminUser struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Email        string     `gorm:"column:email;uniqueIndex" json:"email"`
	Name         string     `gorm:"column:name" json:"name"`
	PasswordHash string     `gorm:"column:password_hash" json:"-"`
	Active       bool       `gorm:"column:active;default:true" json:"active"`
	MustChange   bool       `gorm:"column:must_change_password" json:"must_change_password"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
}

func (AdminUser) TableName() string { return "admin_users" }
