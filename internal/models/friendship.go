package models

import "time"

// FriendRequest is a directed request edge. An accepted edge in either
// direction makes the two users friends.
type FriendRequest struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FromUserID uint      `json:"from_user_id" gorm:"index;uniqueIndex:idx_friend_edge"`
	ToUserID   uint      `json:"to_user_id" gorm:"index;uniqueIndex:idx_friend_edge"`
	IsAccepted bool      `json:"is_accepted" gorm:"default:false;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateFriendRequest defines the request body for sending a friend request
type CreateFriendRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// FriendsPage is everything the friends screen shows at once.
type FriendsPage struct {
	Friends  []User `json:"friends"`
	Sent     []User `json:"sent_requests"`
	Received []User `json:"received_requests"`
	Discover []User `json:"discover"`
}
