package models

import "time"

// DeviceToken is a Firebase Cloud Messaging registration for a user's device.
type DeviceToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index"`
	Token     string    `json:"token" gorm:"size:512;uniqueIndex"`
	Platform  string    `json:"platform" gorm:"size:20"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"omitempty,oneof=android ios web"`
}
