package realtime

import (
	"time"

	"github.com/anonto42/socio/backend/internal/models"
)

const (
	TypeChatMessage    = "chat_message"
	TypeMessageDeleted = "message_deleted"
	TypeNotification   = "notification"
	TypeError          = "error"
)

// Inbound is a frame sent by a client.
type Inbound struct {
	Type       string `json:"type"`
	ReceiverID uint   `json:"receiver_id"`
	Message    string `json:"message"`
}

// ChatMessage is pushed to both parties of a new message. IsSelf is true on
// the copy delivered to the sender.
type ChatMessage struct {
	Type        string    `json:"type"`
	ID          uint      `json:"id"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	SenderID    uint      `json:"sender_id"`
	ReceiverID  uint      `json:"receiver_id"`
	FileName    string    `json:"file_name,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	IsSelf      bool      `json:"is_self"`
}

// NewChatMessage renders m for the connection of userID.
func NewChatMessage(m *models.Message, fileURL string, userID uint) ChatMessage {
	return ChatMessage{
		Type:        TypeChatMessage,
		ID:          m.ID,
		Message:     m.Content,
		MessageType: m.MessageType,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		FileName:    m.FileName,
		FileURL:     fileURL,
		Status:      string(m.Status),
		Timestamp:   m.CreatedAt,
		IsSelf:      m.SenderID == userID,
	}
}

// MessageDeleted tells both parties a message was retracted.
type MessageDeleted struct {
	Type      string `json:"type"`
	ID        uint   `json:"id"`
	SenderID  uint   `json:"sender_id"`
	Content   string `json:"content"`
	DeletedBy uint   `json:"deleted_by"`
}

func NewMessageDeleted(m *models.Message, by uint) MessageDeleted {
	return MessageDeleted{Type: TypeMessageDeleted, ID: m.ID, SenderID: m.SenderID, Content: m.Content, DeletedBy: by}
}

// NotificationEvent carries a freshly written notification.
type NotificationEvent struct {
	Type         string              `json:"type"`
	Notification models.Notification `json:"notification"`
}

func NewNotificationEvent(n models.Notification) NotificationEvent {
	return NotificationEvent{Type: TypeNotification, Notification: n}
}

// ErrorEvent reports a rejected inbound frame to its sender only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: msg}
}
