package repositories

import (
	"fmt"
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for direct message storage
type MessageRepository interface {
	CreateMessage(m *models.Message) error
	GetMessageByID(id uint) (*models.Message, error)
	HideMessage(id uint, role models.Role) error
	RetractMessage(id uint, at time.Time) error
	GetConversation(userA, userB uint) ([]models.Message, error)
	MarkRead(senderID, receiverID uint) (int64, error)
	MarkDelivered(senderID, receiverID uint) (int64, error)
	CountUnread(senderID, receiverID uint) (int64, error)
	LatestVisibleAt(viewerID, peerID uint) (*time.Time, error)
}

// PostgresMessageRepository implements MessageRepository for PostgreSQL
type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// Between limits a query to messages exchanged by the two users, either direction.
func Between(userA, userB uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			userA, userB, userB, userA)
	}
}

// VisibleTo is the SQL form of models.Message.VisibleTo.
func VisibleTo(viewerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("deleted_for_everyone = ? AND ((sender_id = ? AND deleted_for_sender = ?) OR (receiver_id = ? AND deleted_for_receiver = ?))",
			false, viewerID, false, viewerID, false)
	}
}

func (r *PostgresMessageRepository) CreateMessage(m *models.Message) error {
	return r.db.Create(m).Error
}

func (r *PostgresMessageRepository) GetMessageByID(id uint) (*models.Message, error) {
	var m models.Message
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// HideMessage sets the deletion flag of one party. Status columns are never
// written here, so a concurrent MarkRead is kept.
func (r *PostgresMessageRepository) HideMessage(id uint, role models.Role) error {
	var column string
	switch role {
	case models.RoleSender:
		column = "deleted_for_sender"
	case models.RoleReceiver:
		column = "deleted_for_receiver"
	default:
		return fmt.Errorf("hide message %d: no party role", id)
	}
	return r.db.Model(&models.Message{}).Where("id = ?", id).UpdateColumn(column, true).Error
}

// RetractMessage deletes a message for everyone and scrubs its content.
func (r *PostgresMessageRepository) RetractMessage(id uint, at time.Time) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"deleted_for_everyone":    true,
			"deleted_for_everyone_at": at,
			"content":                 models.DeletedPlaceholder,
		}).Error
}

// GetConversation returns every row between the two users in insertion order,
// hidden ones included. Callers filter with Message.VisibleTo.
func (r *PostgresMessageRepository) GetConversation(userA, userB uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Scopes(Between(userA, userB)).Order("created_at ASC, id ASC").Find(&messages).Error
	return messages, err
}

// MarkRead moves every unread message from sender to receiver to read.
func (r *PostgresMessageRepository) MarkRead(senderID, receiverID uint) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		UpdateColumns(map[string]interface{}{"is_read": true, "status": models.StatusRead})
	return res.RowsAffected, res.Error
}

// MarkDelivered moves sender's messages to receiver from sent to delivered.
// Rows already delivered or read are left alone.
func (r *PostgresMessageRepository) MarkDelivered(senderID, receiverID uint) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, models.StatusSent).
		UpdateColumn("status", models.StatusDelivered)
	return res.RowsAffected, res.Error
}

// CountUnread counts unread messages from sender that receiver can still see.
func (r *PostgresMessageRepository) CountUnread(senderID, receiverID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Scopes(VisibleTo(receiverID)).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Count(&count).Error
	return count, err
}

// LatestVisibleAt returns the newest message time between viewer and peer
// that viewer can see, or nil when there is none.
func (r *PostgresMessageRepository) LatestVisibleAt(viewerID, peerID uint) (*time.Time, error) {
	var latest []models.Message
	err := r.db.Scopes(Between(viewerID, peerID), VisibleTo(viewerID)).
		Order("created_at DESC, id DESC").Limit(1).Find(&latest).Error
	if err != nil || len(latest) == 0 {
		return nil, err
	}
	return &latest[0].CreatedAt, nil
}
