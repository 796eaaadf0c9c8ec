package models

import "time"

const (
	NotificationMessage        = "message"
	NotificationFriendRequest  = "friend_request"
	NotificationFriendAccepted = "friend_accepted"
	NotificationNewPost        = "new_post"
	NotificationLike           = "like"
	NotificationComment        = "comment"
)

// Notification represents a user notification (PostgreSQL). Rows are written
// once; only IsRead changes afterwards.
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"`
	ActorID     uint      `json:"actor_id" gorm:"index"`
	RecipientID uint      `json:"recipient_id" gorm:"index"`
	TargetID    string    `json:"target_id"`                  // post ID, message ID, request ID
	TargetType  string    `json:"target_type" gorm:"size:20"` // post, message, friend_request
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
