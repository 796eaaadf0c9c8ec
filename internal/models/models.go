package models

// Tables lists every GORM model, in migration order.
func Tables() []interface{} {
	return []interface{}{
		&User{},
		&PendingSignup{},
		&FriendRequest{},
		&Like{},
		&Comment{},
		&Bookmark{},
		&Message{},
		&Notification{},
		&FacebookConfig{},
		&LinkedInConfig{},
		&DeviceToken{},
	}
}
