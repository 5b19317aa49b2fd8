package domain

import "time"

type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Email              string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash       string     `gorm:"size:1024;not null" json:"-"`
	FullName           string     `gorm:"size:255;not null" json:"full_name"`
	IsActive           bool       `gorm:"not null;default:true" json:"is_active"`
	IsAdmin            bool       `gorm:"not null;default:false" json:"is_admin"`
	MustChangePassword bool       `gorm:"not null;default:true" json:"must_change_password"`
	SessionVersion     uint       `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedByID        *uint      `gorm:"index" json:"created_by_id,omitempty"`
	CreatedBy          *User      `gorm:"foreignKey:CreatedByID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
}
