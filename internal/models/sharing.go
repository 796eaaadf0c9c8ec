package models

import "time"

// FacebookConfig stores the Graph API credentials a user shares posts with.
// The same page token publishes to the linked Instagram business account.
type FacebookConfig struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UserID          uint      `json:"user_id" gorm:"uniqueIndex"`
	AccessToken     string    `json:"-" gorm:"type:text"`
	PageID          string    `json:"page_id" gorm:"size:100"`
	InstagramUserID string    `json:"instagram_user_id" gorm:"size:100"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LinkedInConfig stores a user's LinkedIn app credentials and the member
// token obtained through the OAuth callback.
type LinkedInConfig struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       uint       `json:"user_id" gorm:"uniqueIndex"`
	ClientID     string     `json:"client_id" gorm:"size:255"`
	ClientSecret string     `json:"-" gorm:"size:255"`
	AccessToken  string     `json:"-" gorm:"type:text"`
	UserURN      string     `json:"user_urn" gorm:"size:255"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Connected reports whether a usable member token is stored.
func (c *LinkedInConfig) Connected(now time.Time) bool {
	if c.AccessToken == "" || c.UserURN == "" {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}

type FacebookConfigRequest struct {
	AccessToken     string `json:"access_token" validate:"required"`
	PageID          string `json:"page_id" validate:"required"`
	InstagramUserID string `json:"instagram_user_id"`
}

type LinkedInConfigRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}
