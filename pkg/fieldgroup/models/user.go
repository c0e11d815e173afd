package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin   SystemRole = "admin"
	SystemRoleBuilder SystemRole = "builder"
	SystemRoleUser    SystemRole = "user"
)

// Valid reports whether r is a known role.
func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleAdmin, SystemRoleBuilder, SystemRoleUser:
		return true
	}
	return false
}

// CanEditConfig reports whether the role may change field groups.
func (r SystemRole) CanEditConfig() bool {
	return r == SystemRoleAdmin || r == SystemRoleBuilder
}

// User is a site-builder account
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	SystemRole   SystemRole     `gorm:"type:varchar(20);default:'user'" json:"system_role"`
}
