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

func TestVisibleToScopeMatchesModelPredicate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresMessageRepository(db)
	const a, b = 1, 2

	flags := []struct{ sender, receiver, everyone bool }{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, false},
		{false, false, true},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	}
	for _, f := range flags {
		m := &models.Message{SenderID: a, ReceiverID: b, Content: "x",
			DeletedForSender: f.sender, DeletedForReceiver: f.receiver, DeletedForEveryone: f.everyone}
		require.NoError(t, repo.CreateMessage(m))
	}

	all, err := repo.GetConversation(a, b)
	require.NoError(t, err)
	require.Len(t, all, len(flags))

	for _, viewer := range []uint{a, b, 3} {
		var visible []models.Message
		require.NoError(t, db.Scopes(repositories.VisibleTo(viewer)).Order("id").Find(&visible).Error)

		var want []uint
		for i := range all {
			if all[i].VisibleTo(viewer) {
				want = append(want, all[i].ID)
			}
		}
		var got []uint
		for _, m := range visible {
			got = append(got, m.ID)
		}
		assert.Equal(t, want, got, "viewer %d", viewer)
	}
}

func TestMarkReadAndDeliveredNeverRegress(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresMessageRepository(db)

	read := &models.Message{SenderID: 1, ReceiverID: 2, Content: "old", IsRead: true}
	fresh := &models.Message{SenderID: 1, ReceiverID: 2, Content: "new"}
	require.NoError(t, repo.CreateMessage(read))
	require.NoError(t, repo.CreateMessage(fresh))
	assert.Equal(t, models.StatusRead, read.Status)

	n, err := repo.MarkDelivered(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetMessageByID(read.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)

	n, err = repo.MarkRead(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = repo.GetMessageByID(fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.Equal(t, models.StatusRead, got.Status)

	n, err = repo.MarkDelivered(1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountUnreadIgnoresHiddenMessages(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresMessageRepository(db)

	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 1, ReceiverID: 2, Content: "a"}))
	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 1, ReceiverID: 2, Content: "b", DeletedForReceiver: true}))
	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 1, ReceiverID: 2, Content: "c", DeletedForEveryone: true}))
	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 2, ReceiverID: 1, Content: "reply"}))

	n, err := repo.CountUnread(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLatestVisibleAt(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresMessageRepository(db)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	latest, err := repo.LatestVisibleAt(1, 2)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 1, ReceiverID: 2, Content: "a", CreatedAt: base}))
	require.NoError(t, repo.CreateMessage(&models.Message{SenderID: 2, ReceiverID: 1, Content: "b", CreatedAt: base.Add(time.Minute), DeletedForReceiver: true}))

	latest, err = repo.LatestVisibleAt(1, 2)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base))

	latest, err = repo.LatestVisibleAt(2, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base.Add(time.Minute)))
}

func TestHideAndRetractLeaveReadStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewPostgresMessageRepository(db)
	const a, b = 1, 2

	m := &models.Message{SenderID: a, ReceiverID: b, Content: "hello"}
	require.NoError(t, repo.CreateMessage(m))
	stale, err := repo.GetMessageByID(m.ID)
	require.NoError(t, err)
	_, err = repo.MarkRead(a, b)
	require.NoError(t, err)

	require.NoError(t, repo.HideMessage(stale.ID, models.RoleReceiver))
	at := time.Now().UTC()
	require.NoError(t, repo.RetractMessage(stale.ID, at))
	assert.Error(t, repo.HideMessage(stale.ID, models.RoleNone))

	got, err := repo.GetMessageByID(m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)
	assert.True(t, got.IsRead)
	assert.True(t, got.DeletedForReceiver)
	assert.False(t, got.DeletedForSender)
	assert.True(t, got.DeletedForEveryone)
	require.NotNil(t, got.DeletedForEveryoneAt)
	assert.WithinDuration(t, at, *got.DeletedForEveryoneAt, time.Second)
	assert.Equal(t, models.DeletedPlaceholder, got.Content)
}
