package repositories

import (
	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceTokenRepository keeps FCM registration tokens per user.
type DeviceTokenRepository interface {
	Register(token *models.DeviceToken) error
	GetTokens(userID uint) ([]string, error)
	DeleteTokens(tokens []string) error
}

type PostgresDeviceTokenRepository struct {
	db *gorm.DB
}

func NewPostgresDeviceTokenRepository(db *gorm.DB) *PostgresDeviceTokenRepository {
	return &PostgresDeviceTokenRepository{db: db}
}

// Register binds a token to its latest owner.
func (r *PostgresDeviceTokenRepository) Register(token *models.DeviceToken) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform"}),
	}).Create(token).Error
}

func (r *PostgresDeviceTokenRepository) GetTokens(userID uint) ([]string, error) {
	var tokens []string
	err := r.db.Model(&models.DeviceToken{}).Where("user_id = ?", userID).Pluck("token", &tokens).Error
	return tokens, err
}

func (r *PostgresDeviceTokenRepository) DeleteTokens(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.Where("token IN ?", tokens).Delete(&models.DeviceToken{}).Error
}
