package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"size:150;uniqueIndex"`
	Email        string     `json:"email" gorm:"uniqueIndex"`
	Password     string     `json:"-"` // bcrypt hash
	FirstName    string     `json:"first_name" gorm:"size:150"`
	LastName     string     `json:"last_name" gorm:"size:150"`
	Bio          string     `json:"bio" gorm:"size:500"`
	Website      string     `json:"website"`
	Location     string     `json:"location" gorm:"size:100"`
	ProfilePhoto string     `json:"profile_photo"`
	FirebaseUID  *string    `json:"firebase_uid,omitempty" gorm:"uniqueIndex"` // Link to Firebase User UID
	IsOnline     bool       `json:"is_online" gorm:"default:false"`
	LastSeen     *time.Time `json:"last_seen"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserCompact is the author/actor shape embedded in feed items and notifications.
type UserCompact struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ProfilePhoto string `json:"profile_photo"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:           u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfilePhoto: u.ProfilePhoto,
	}
}

// UsernameFromEmail returns the local part of an email address.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.TrimSpace(local)
}

// PendingSignup holds an unconfirmed registration until its token is redeemed.
type PendingSignup struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	Password  string    `json:"-"`
	Token     string    `json:"-" gorm:"size:64;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

type SignupRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,min=8"`
}

type SignInRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type UpdateUserRequest struct {
	FirstName    *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName     *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	Bio          *string `json:"bio,omitempty" validate:"omitempty,max=500"`
	Website      *string `json:"website,omitempty" validate:"omitempty,url"`
	Location     *string `json:"location,omitempty" validate:"omitempty,max=100"`
	ProfilePhoto *string `json:"profile_photo,omitempty" validate:"omitempty,url"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
