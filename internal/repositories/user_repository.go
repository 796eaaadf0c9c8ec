package repositories

import (
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByFirebaseUID(firebaseUID string) (*models.User, error)
	GetUsersByIDs(ids []uint) ([]models.User, error)
	UsernameExists(username string) (bool, error)
	ListUsersExcept(excluded []uint) ([]models.User, error)
	UpdateUser(user *models.User) error
	SetPresence(id uint, online bool, lastSeen time.Time) error
	SetLastSeen(id uint, at time.Time) error
	SetFirebaseUID(id uint, uid string) error
	SearchUsers(query string, limit int) ([]models.User, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *PostgresUserRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetUserByFirebaseUID(firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs returns the users in ids ordered by username.
func (r *PostgresUserRepository) GetUsersByIDs(ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Order("username").Find(&users).Error
	return users, err
}

func (r *PostgresUserRepository) UsernameExists(username string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ListUsersExcept returns every user whose id is not in excluded.
func (r *PostgresUserRepository) ListUsersExcept(excluded []uint) ([]models.User, error) {
	var users []models.User
	q := r.db.Order("username")
	if len(excluded) > 0 {
		q = q.Where("id NOT IN ?", excluded)
	}
	err := q.Find(&users).Error
	return users, err
}

func (r *PostgresUserRepository) UpdateUser(user *models.User) error {
	return r.db.Save(user).Error
}

// SetPresence records the online flag and last-seen time without touching
// other columns.
func (r *PostgresUserRepository) SetPresence(id uint, online bool, lastSeen time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"is_online": online, "last_seen": lastSeen}).Error
}

func (r *PostgresUserRepository) SetLastSeen(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_seen", at).Error
}

// SetFirebaseUID links a Firebase account without rewriting the rest of the row.
func (r *PostgresUserRepository) SetFirebaseUID(id uint, uid string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("firebase_uid", uid).Error
}

// SearchUsers matches username, first or last name, case-insensitively.
func (r *PostgresUserRepository) SearchUsers(query string, limit int) ([]models.User, error) {
	var users []models.User
	like := "%" + query + "%"
	err := r.db.Where("LOWER(username) LIKE LOWER(?) OR LOWER(first_name) LIKE LOWER(?) OR LOWER(last_name) LIKE LOWER(?)", like, like, like).
		Order("username").Limit(limit).Find(&users).Error
	return users, err
}

// PendingSignupRepository stores unconfirmed registrations.
type PendingSignupRepository interface {
	Create(p *models.PendingSignup) error
	GetByEmail(email string) (*models.PendingSignup, error)
	GetByToken(token string) (*models.PendingSignup, error)
	Delete(id uint) error
}

type PostgresPendingSignupRepository struct {
	db *gorm.DB
}

func NewPostgresPendingSignupRepository(db *gorm.DB) *PostgresPendingSignupRepository {
	return &PostgresPendingSignupRepository{db: db}
}

func (r *PostgresPendingSignupRepository) Create(p *models.PendingSignup) error {
	return r.db.Create(p).Error
}

func (r *PostgresPendingSignupRepository) GetByEmail(email string) (*models.PendingSignup, error) {
	var p models.PendingSignup
	if err := r.db.Where("email = ?", email).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPendingSignupRepository) GetByToken(token string) (*models.PendingSignup, error) {
	var p models.PendingSignup
	if err := r.db.Where("token = ?", token).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPendingSignupRepository) Delete(id uint) error {
	return r.db.Delete(&models.PendingSignup{}, id).Error
}
