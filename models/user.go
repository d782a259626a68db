package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole staff role inside an organization
type UserRole string

const (
	RoleAdmin        UserRole = "admin"
	RoleProfessional UserRole = "professional"
	RoleStaff        UserRole = "staff"
)

// User staff account; professionals own group activities
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string    `json:"organization_id" gorm:"not null;size:64;index"`
	Username       string    `json:"username" gorm:"unique;not null;size:64"`
	Password       string    `json:"-" gorm:"not null"` // never returned
	Email          string    `json:"email" gorm:"unique;not null;size:191"`
	FullName       string    `json:"full_name" gorm:"size:255"`
	Role           UserRole  `json:"role" gorm:"not null;size:16;default:staff"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate assigns the id.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// DisplayName full name falling back to the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// UserResponse user without sensitive fields
type UserResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	Role           UserRole `json:"role"`
	Online         bool     `json:"online"`
}

// Response strips sensitive fields.
func (u User) Response(online bool) UserResponse {
	return UserResponse{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Username:       u.Username,
		Email:          u.Email,
		FullName:       u.FullName,
		Role:           u.Role,
		Online:         online,
	}
}

// RegisterRequest staff sign-up. Without an organization id a new
// organization is created and the user becomes its admin.
type RegisterRequest struct {
	Username       string   `json:"username" binding:"required,min=3,max=32"`
	Password       string   `json:"password" binding:"required,min=6"`
	Email          string   `json:"email" binding:"required,email"`
	FullName       string   `json:"full_name"`
	OrganizationID string   `json:"organization_id"`
	Role           UserRole `json:"role"`
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleProfessional, RoleStaff:
		return true
	}
	return false
}
