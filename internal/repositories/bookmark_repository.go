package repositories

import (
	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
)

// BookmarkRepository defines the interface for saved post operations
type BookmarkRepository interface {
	CreateBookmark(b *models.Bookmark) error
	DeleteBookmark(userID uint, postID string) (int64, error)
	IsBookmarked(userID uint, postID string) (bool, error)
	GetBookmarkedPostIDs(userID uint, skip, limit int) ([]string, int64, error)
	GetBookmarkedSet(userID uint, postIDs []string) (map[string]bool, error)
	DeleteByPostID(postID string) error
}

// PostgresBookmarkRepository implements BookmarkRepository
type PostgresBookmarkRepository struct {
	db *gorm.DB
}

func NewPostgresBookmarkRepository(db *gorm.DB) *PostgresBookmarkRepository {
	return &PostgresBookmarkRepository{db: db}
}

func (r *PostgresBookmarkRepository) CreateBookmark(b *models.Bookmark) error {
	return r.db.Create(b).Error
}

func (r *PostgresBookmarkRepository) DeleteBookmark(userID uint, postID string) (int64, error) {
	res := r.db.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Bookmark{})
	return res.RowsAffected, res.Error
}

func (r *PostgresBookmarkRepository) IsBookmarked(userID uint, postID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Bookmark{}).Where("user_id = ? AND post_id = ?", userID, postID).Count(&count).Error
	return count > 0, err
}

// GetBookmarkedPostIDs pages through a user's bookmarks, newest first.
func (r *PostgresBookmarkRepository) GetBookmarkedPostIDs(userID uint, skip, limit int) ([]string, int64, error) {
	var total int64
	if err := r.db.Model(&models.Bookmark{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ids []string
	err := r.db.Model(&models.Bookmark{}).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").Offset(skip).Limit(limit).Pluck("post_id", &ids).Error
	return ids, total, err
}

func (r *PostgresBookmarkRepository) GetBookmarkedSet(userID uint, postIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(postIDs) == 0 {
		return result, nil
	}
	var ids []string
	err := r.db.Model(&models.Bookmark{}).Where("user_id = ? AND post_id IN ?", userID, postIDs).Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

func (r *PostgresBookmarkRepository) DeleteByPostID(postID string) error {
	return r.db.Where("post_id = ?", postID).Delete(&models.Bookmark{}).Error
}
