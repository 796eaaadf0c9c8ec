package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/anonto42/socio/backend/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeHub struct {
	mu     sync.Mutex
	events map[uint][]interface{}
}

func (h *fakeHub) SendToUser(ctx context.Context, userID uint, event interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[uint][]interface{})
	}
	h.events[userID] = append(h.events[userID], event)
}

func (h *fakeHub) chatMessages(userID uint) []realtime.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []realtime.ChatMessage
	for _, ev := range h.events[userID] {
		if m, ok := ev.(realtime.ChatMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

type sentMail struct {
	to, subject, html string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, html})
	return nil
}

type env struct {
	db     *gorm.DB
	posts  *testutil.MemoryPosts
	hub    *fakeHub
	mailer *fakeMailer
	store  *storage.LocalStore
	notes  repositories.NotificationRepository
	likes  *repositories.PostgresLikeRepository
	auth   *AuthService
	social *SocialService
	users  *UserService
	feed   *FeedService
	chat   *ChatService
	clock  time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	store, err := storage.NewLocalStore(t.TempDir(), "/media/")
	require.NoError(t, err)
	log := zap.NewNop()

	e := &env{
		db:     db,
		posts:  testutil.NewMemoryPosts(),
		hub:    &fakeHub{},
		mailer: &fakeMailer{},
		store:  store,
		notes:  repositories.NewPostgresNotificationRepository(db),
		likes:  repositories.NewPostgresLikeRepository(db),
		clock:  time.Now(),
	}
	userRepo := repositories.NewPostgresUserRepository(db)
	friendRepo := repositories.NewPostgresFriendshipRepository(db)
	notifier := NewNotifier(e.notes, e.hub, nil, nil, log)

	e.auth = NewAuthService(userRepo, repositories.NewPostgresPendingSignupRepository(db), e.mailer, nil, "test-secret", "http://localhost:8080/", log)
	e.social = NewSocialService(userRepo, friendRepo, notifier, log)
	e.users = NewUserService(userRepo, friendRepo, e.posts, repositories.NewPostgresDeviceTokenRepository(db))
	e.feed = NewFeedService(FeedDeps{
		Posts:       e.posts,
		Users:       userRepo,
		Friendships: friendRepo,
		Likes:       e.likes,
		Comments:    repositories.NewPostgresCommentRepository(db),
		Bookmarks:   repositories.NewPostgresBookmarkRepository(db),
		Store:       store,
		Notifier:    notifier,
		Log:         log,
	})
	e.chat = NewChatService(ChatDeps{
		Users:       userRepo,
		Friendships: friendRepo,
		Messages:    repositories.NewPostgresMessageRepository(db),
		Store:       store,
		Notifier:    notifier,
		Hub:         e.hub,
		Log:         log,
	})
	e.chat.now = func() time.Time { return e.clock }
	return e
}

func (e *env) user(t *testing.T, name string) *models.User {
	return testutil.CreateUser(t, e.db, name)
}

func (e *env) friends(t *testing.T, a, b *models.User) {
	testutil.MakeFriends(t, e.db, a, b)
}

func (e *env) notificationsFor(t *testing.T, userID uint) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, e.db.Where("recipient_id = ?", userID).Order("id").Find(&out).Error)
	return out
}

func (e *env) unreadNotifications(t *testing.T, userID uint) int64 {
	t.Helper()
	n, err := e.notes.GetUnreadCount(userID)
	require.NoError(t, err)
	return n
}
