package repositories

import (
	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SharingRepository stores per-user provider credentials.
type SharingRepository interface {
	GetFacebookConfig(userID uint) (*models.FacebookConfig, error)
	UpsertFacebookConfig(cfg *models.FacebookConfig) error
	GetLinkedInConfig(userID uint) (*models.LinkedInConfig, error)
	UpsertLinkedInConfig(cfg *models.LinkedInConfig) error
	SaveLinkedInConfig(cfg *models.LinkedInConfig) error
}

type PostgresSharingRepository struct {
	db *gorm.DB
}

func NewPostgresSharingRepository(db *gorm.DB) *PostgresSharingRepository {
	return &PostgresSharingRepository{db: db}
}

func (r *PostgresSharingRepository) GetFacebookConfig(userID uint) (*models.FacebookConfig, error) {
	var cfg models.FacebookConfig
	if err := r.db.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *PostgresSharingRepository) UpsertFacebookConfig(cfg *models.FacebookConfig) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "page_id", "instagram_user_id", "updated_at"}),
	}).Create(cfg).Error
}

func (r *PostgresSharingRepository) GetLinkedInConfig(userID uint) (*models.LinkedInConfig, error) {
	var cfg models.LinkedInConfig
	if err := r.db.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertLinkedInConfig stores new app credentials. A stored member token is
// kept only if the client id did not change.
func (r *PostgresSharingRepository) UpsertLinkedInConfig(cfg *models.LinkedInConfig) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.LinkedInConfig
		err := tx.Where("user_id = ?", cfg.UserID).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(cfg).Error
		}
		if err != nil {
			return err
		}
		if existing.ClientID != cfg.ClientID {
			existing.AccessToken = ""
			existing.UserURN = ""
			existing.ExpiresAt = nil
		}
		existing.ClientID = cfg.ClientID
		existing.ClientSecret = cfg.ClientSecret
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*cfg = existing
		return nil
	})
}

func (r *PostgresSharingRepository) SaveLinkedInConfig(cfg *models.LinkedInConfig) error {
	return r.db.Save(cfg).Error
}
