package repositories_test

import (
	"testing"
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationReadFlags(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresNotificationRepository(db)

	batch := []models.Notification{
		{Type: models.NotificationLike, ActorID: 1, RecipientID: 2, Message: "a"},
		{Type: models.NotificationComment, ActorID: 1, RecipientID: 2, Message: "b"},
		{Type: models.NotificationLike, ActorID: 2, RecipientID: 1, Message: "c"},
	}
	require.NoError(t, repo.CreateNotifications(batch))
	assert.NotZero(t, batch[0].ID)

	unread, err := repo.GetUnreadCount(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := repo.MarkAsRead(batch[2].ID, 2)
	require.NoError(t, err)
	assert.Zero(t, n, "cannot mark someone else's notification")

	n, err = repo.MarkAsRead(batch[0].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, total, err := repo.GetByRecipientID(2, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Message)

	n, err = repo.MarkAllAsRead(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	unread, err = repo.GetUnreadCount(2)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestNotificationGrouping(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresNotificationRepository(db)
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{
		now.Add(-time.Hour),
		now.Add(-20 * time.Hour),
		now.AddDate(0, 0, -3),
		now.AddDate(0, 0, -30),
	} {
		require.NoError(t, repo.CreateNotification(&models.Notification{Type: models.NotificationLike, ActorID: 1, RecipientID: 2, CreatedAt: at}))
	}

	today, yesterday, week, older, err := repo.GetGrouped(2, now)
	require.NoError(t, err)
	assert.Len(t, today, 1)
	assert.Len(t, yesterday, 1)
	assert.Len(t, week, 1)
	assert.Len(t, older, 1)
}
