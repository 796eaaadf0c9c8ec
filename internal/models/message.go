package models

import (
	"time"

	"gorm.io/gorm"
)

// MessageStatus is the delivery state of a direct message. It only moves
// forward: sent, delivered, read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Advance returns the later of s and next.
func (s MessageStatus) Advance(next MessageStatus) MessageStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageVideo    = "video"
	MessageDocument = "document"
	MessageAudio    = "audio"
	MessageVoice    = "voice"
)

const (
	// DeletedPlaceholder replaces the content of a message deleted for everyone.
	DeletedPlaceholder = "This message was deleted"
	// DeleteForEveryoneWindow is how long after sending the sender may still
	// delete a message for both parties.
	DeleteForEveryoneWindow = time.Hour
	// MaxAttachmentSize bounds chat file and voice uploads.
	MaxAttachmentSize = 50 << 20
)

// Role is the relation of a viewer to a message.
type Role int

const (
	RoleNone Role = iota
	RoleSender
	RoleReceiver
)

// Message is a direct message between two users. A single row is shared by
// both parties; each side hides it independently.
type Message struct {
	ID                   uint          `json:"id" gorm:"primaryKey"`
	SenderID             uint          `json:"sender_id" gorm:"index:idx_messages_pair,priority:1"`
	ReceiverID           uint          `json:"receiver_id" gorm:"index:idx_messages_pair,priority:2;index"`
	MessageType          string        `json:"message_type" gorm:"size:20;default:text"`
	Content              string        `json:"content" gorm:"type:text"`
	FileKey              string        `json:"-"`
	FileName             string        `json:"file_name,omitempty"`
	FileSize             int64         `json:"file_size,omitempty"`
	Status               MessageStatus `json:"status" gorm:"size:10;default:sent"`
	IsRead               bool          `json:"is_read" gorm:"default:false"`
	DeletedForSender     bool          `json:"-" gorm:"default:false"`
	DeletedForReceiver   bool          `json:"-" gorm:"default:false"`
	DeletedForEveryone   bool          `json:"deleted_for_everyone" gorm:"default:false"`
	DeletedForEveryoneAt *time.Time    `json:"deleted_for_everyone_at,omitempty"`
	CreatedAt            time.Time     `json:"timestamp" gorm:"index"`
}

// BeforeSave keeps Status consistent with IsRead.
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if m.Status == "" {
		m.Status = StatusSent
	}
	if m.IsRead {
		m.Status = m.Status.Advance(StatusRead)
	}
	return nil
}

// RoleOf reports how userID relates to the message.
func (m *Message) RoleOf(userID uint) Role {
	switch userID {
	case m.SenderID:
		return RoleSender
	case m.ReceiverID:
		return RoleReceiver
	default:
		return RoleNone
	}
}

// HiddenFor reports whether the message is hidden from a viewer in role r.
func (m *Message) HiddenFor(r Role) bool {
	if m.DeletedForEveryone {
		return true
	}
	switch r {
	case RoleSender:
		return m.DeletedForSender
	case RoleReceiver:
		return m.DeletedForReceiver
	default:
		return true
	}
}

// VisibleTo is the single visibility rule for messages.
func (m *Message) VisibleTo(userID uint) bool {
	return !m.HiddenFor(m.RoleOf(userID))
}

// PeerOf returns the other participant.
func (m *Message) PeerOf(userID uint) uint {
	if userID == m.SenderID {
		return m.ReceiverID
	}
	return m.SenderID
}

// CanDeleteForEveryone reports whether userID may retract the message at now.
func (m *Message) CanDeleteForEveryone(userID uint, now time.Time) bool {
	return m.RoleOf(userID) == RoleSender && now.Sub(m.CreatedAt) <= DeleteForEveryoneWindow
}

// HideFor sets the deletion flag matching r. It returns false for RoleNone.
func (m *Message) HideFor(r Role) bool {
	switch r {
	case RoleSender:
		m.DeletedForSender = true
	case RoleReceiver:
		m.DeletedForReceiver = true
	default:
		return false
	}
	return true
}

// RetractForEveryone hides the message from both parties and scrubs its content.
func (m *Message) RetractForEveryone(now time.Time) {
	m.DeletedForEveryone = true
	m.DeletedForEveryoneAt = &now
	m.Content = DeletedPlaceholder
}

type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" form:"receiver_id" validate:"required"`
	Content    string `json:"content" form:"content" validate:"required,max=10000"`
}

type SendVoiceRequest struct {
	ReceiverID uint   `json:"receiver_id" validate:"required"`
	AudioData  string `json:"audio_data" validate:"required"`
}

type DeleteMessageRequest struct {
	DeleteType string `json:"delete_type" form:"delete_type" validate:"required,oneof=for_me for_everyone"`
}

// Conversation is one row of the chat home screen.
type Conversation struct {
	Friend        UserCompact `json:"friend"`
	IsOnline      bool        `json:"is_online"`
	LastSeen      *time.Time  `json:"last_seen"`
	UnreadCount   int64       `json:"unread_count"`
	LastMessageAt time.Time   `json:"last_message_at"`
}

// FriendStatus is the polled presence/unread summary for one friend.
type FriendStatus struct {
	ID          uint       `json:"id"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen"`
	UnreadCount int64      `json:"unread_count"`
}
