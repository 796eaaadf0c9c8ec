package repositories

import (
	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
)

// FriendshipRepository defines the interface for friend-edge operations.
// Friendship itself is never stored; it is read off accepted edges.
type FriendshipRepository interface {
	CreateRequest(req *models.FriendRequest) error
	GetRequest(fromUserID, toUserID uint) (*models.FriendRequest, error)
	AcceptRequest(id uint) error
	DeleteRequest(id uint) error
	DeleteFriendship(userA, userB uint) (int64, error)
	AreFriends(userA, userB uint) (bool, error)
	GetFriendIDs(userID uint) ([]uint, error)
	GetUserFriends(userID uint) ([]models.User, error)
	GetPendingSentIDs(userID uint) ([]uint, error)
	GetPendingReceivedIDs(userID uint) ([]uint, error)
	CountFriends(userID uint) (int64, error)
}

// PostgresFriendshipRepository implements FriendshipRepository for PostgreSQL
type PostgresFriendshipRepository struct {
	db *gorm.DB
}

// NewPostgresFriendshipRepository creates a new PostgresFriendshipRepository
func NewPostgresFriendshipRepository(db *gorm.DB) *PostgresFriendshipRepository {
	return &PostgresFriendshipRepository{db: db}
}

func (r *PostgresFriendshipRepository) CreateRequest(req *models.FriendRequest) error {
	return r.db.Create(req).Error
}

// GetRequest retrieves the directed edge from -> to.
func (r *PostgresFriendshipRepository) GetRequest(fromUserID, toUserID uint) (*models.FriendRequest, error) {
	var req models.FriendRequest
	if err := r.db.Where("from_user_id = ? AND to_user_id = ?", fromUserID, toUserID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PostgresFriendshipRepository) AcceptRequest(id uint) error {
	return r.db.Model(&models.FriendRequest{}).Where("id = ?", id).Update("is_accepted", true).Error
}

func (r *PostgresFriendshipRepository) DeleteRequest(id uint) error {
	return r.db.Delete(&models.FriendRequest{}, id).Error
}

// DeleteFriendship removes accepted edges between the two users in both directions.
func (r *PostgresFriendshipRepository) DeleteFriendship(userA, userB uint) (int64, error) {
	res := r.db.Where("is_accepted = ? AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))",
		true, userA, userB, userB, userA).Delete(&models.FriendRequest{})
	return res.RowsAffected, res.Error
}

func (r *PostgresFriendshipRepository) AreFriends(userA, userB uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.FriendRequest{}).
		Where("is_accepted = ? AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))",
			true, userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresFriendshipRepository) acceptedFriendsQuery(userID uint) *gorm.DB {
	sent := r.db.Table("friend_requests").Select("to_user_id").Where("from_user_id = ? AND is_accepted = ?", userID, true)
	received := r.db.Table("friend_requests").Select("from_user_id").Where("to_user_id = ? AND is_accepted = ?", userID, true)
	return r.db.Model(&models.User{}).Where("(id IN (?) OR id IN (?))", sent, received)
}

// GetFriendIDs returns each friend once, whichever direction the edge points.
func (r *PostgresFriendshipRepository) GetFriendIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.acceptedFriendsQuery(userID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r *PostgresFriendshipRepository) GetUserFriends(userID uint) ([]models.User, error) {
	var friends []models.User
	err := r.acceptedFriendsQuery(userID).Order("username").Find(&friends).Error
	return friends, err
}

// GetPendingSentIDs returns targets of userID's unanswered requests.
func (r *PostgresFriendshipRepository) GetPendingSentIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.FriendRequest{}).
		Where("from_user_id = ? AND is_accepted = ?", userID, false).
		Pluck("to_user_id", &ids).Error
	return ids, err
}

// GetPendingReceivedIDs returns senders of unanswered requests to userID.
func (r *PostgresFriendshipRepository) GetPendingReceivedIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.FriendRequest{}).
		Where("to_user_id = ? AND is_accepted = ?", userID, false).
		Pluck("from_user_id", &ids).Error
	return ids, err
}

func (r *PostgresFriendshipRepository) CountFriends(userID uint) (int64, error) {
	var count int64
	err := r.acceptedFriendsQuery(userID).Count(&count).Error
	return count, err
}
