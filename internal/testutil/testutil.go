// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every table migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.Tables()...))
	return db
}

// CreateUser inserts a user with the given username and a derived email.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: fmt.Sprintf("%s@example.com", username)}
	require.NoError(t, db.Create(u).Error)
	return u
}

// MakeFriends stores an accepted edge from a to b.
func MakeFriends(t *testing.T, db *gorm.DB, a, b *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.FriendRequest{FromUserID: a.ID, ToUserID: b.ID, IsAccepted: true}).Error)
}

// MemoryPosts is an in-memory PostRepository.
type MemoryPosts struct {
	mu    sync.Mutex
	posts map[string]models.Post
	clock time.Time
}

var _ repositories.PostRepository = (*MemoryPosts)(nil)

func NewMemoryPosts() *MemoryPosts {
	return &MemoryPosts{posts: make(map[string]models.Post), clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *MemoryPosts) CreatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Strictly increasing timestamps keep feed order deterministic.
	m.clock = m.clock.Add(time.Second)
	post.ID = primitive.NewObjectID()
	post.CreatedAt, post.UpdatedAt = m.clock, m.clock
	m.posts[post.ID.Hex()] = *post
	return nil
}

func (m *MemoryPosts) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, repositories.ErrPostNotFound
	}
	return &p, nil
}

func (m *MemoryPosts) GetPostsByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryPosts) active(userIDs []uint) []models.Post {
	authors := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		authors[id] = true
	}
	out := []models.Post{}
	for _, p := range m.posts {
		if p.IsActive && authors[p.UserID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryPosts) GetActivePostsByUserIDs(ctx context.Context, userIDs []uint, skip, limit int64) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.active(userIDs)
	if skip >= int64(len(all)) {
		return []models.Post{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[skip:end], nil
}

func (m *MemoryPosts) CountActivePostsByUserIDs(ctx context.Context, userIDs []uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.active(userIDs))), nil
}

func (m *MemoryPosts) UpdatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.ID.Hex()]; !ok {
		return repositories.ErrPostNotFound
	}
	m.posts[post.ID.Hex()] = *post
	return nil
}

func (m *MemoryPosts) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return repositories.ErrPostNotFound
	}
	delete(m.posts, id)
	return nil
}
