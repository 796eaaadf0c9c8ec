package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anonto42/socio/backend/internal/cache"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatScenarioUnreadThenRead(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()

	sent, err := e.chat.SendText(ctx, a.ID, b.ID, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", sent.Content)
	assert.Equal(t, models.StatusSent, sent.Status)
	assert.True(t, sent.IsMine)

	unread, err := e.chat.UnreadCount(b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	history, err := e.chat.History(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusRead, history[0].Status)
	assert.False(t, history[0].IsMine)

	unread, err = e.chat.UnreadCount(b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	notes := e.notificationsFor(t, b.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationMessage, notes[0].Type)
	assert.Equal(t, `alice sent you a message: "hi"`, notes[0].Message)
}

func TestSendPushesToBothPartiesWithIsSelf(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, b, a)

	sent, err := e.chat.SendText(context.Background(), a.ID, b.ID, "hello")
	require.NoError(t, err)

	toA, toB := e.hub.chatMessages(a.ID), e.hub.chatMessages(b.ID)
	require.Len(t, toA, 1)
	require.Len(t, toB, 1)
	assert.True(t, toA[0].IsSelf)
	assert.False(t, toB[0].IsSelf)
	assert.Equal(t, sent.ID, toA[0].ID)
	assert.Equal(t, sent.ID, toB[0].ID)
	assert.Equal(t, "hello", toB[0].Message)
}

func TestSendPromotesEarlierMessagesToDelivered(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()

	first, err := e.chat.SendText(ctx, a.ID, b.ID, "one")
	require.NoError(t, err)
	_, err = e.chat.SendText(ctx, a.ID, b.ID, "two")
	require.NoError(t, err)

	var m models.Message
	require.NoError(t, e.db.First(&m, first.ID).Error)
	assert.Equal(t, models.StatusDelivered, m.Status)
	assert.False(t, m.IsRead)
}

func TestChatRequiresFriendship(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	ctx := context.Background()

	_, err := e.chat.SendText(ctx, a.ID, b.ID, "hi")
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = e.chat.History(ctx, a.ID, b.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = e.chat.SendText(ctx, a.ID, a.ID, "hi")
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = e.chat.SendText(ctx, a.ID, 9999, "hi")
	assert.True(t, errors.Is(err, ErrNotFound))

	e.friends(t, a, b)
	_, err = e.chat.SendText(ctx, a.ID, b.ID, "   ")
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = e.chat.SendText(ctx, a.ID, b.ID, strings.Repeat("x", maxMessageLength+1))
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestDeleteForMeHidesOnlyRequesterView(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()
	sent, err := e.chat.SendText(ctx, a.ID, b.ID, "oops")
	require.NoError(t, err)

	require.NoError(t, e.chat.Delete(ctx, b.ID, sent.ID, DeleteForMe))

	forB, err := e.chat.History(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, forB)
	forA, err := e.chat.History(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, forA, 1)
	assert.Equal(t, "oops", forA[0].Content)

	outsider := e.user(t, "eve")
	assert.True(t, errors.Is(e.chat.Delete(ctx, outsider.ID, sent.ID, DeleteForMe), ErrForbidden))
	assert.True(t, errors.Is(e.chat.Delete(ctx, a.ID, sent.ID, "sideways"), ErrInvalid))
	assert.True(t, errors.Is(e.chat.Delete(ctx, a.ID, 9999, DeleteForMe), ErrNotFound))
}

func TestDeleteForEveryoneWithinWindow(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()
	sent, err := e.chat.SendText(ctx, a.ID, b.ID, "secret")
	require.NoError(t, err)

	assert.True(t, errors.Is(e.chat.Delete(ctx, b.ID, sent.ID, DeleteForEveryone), ErrForbidden))

	e.clock = e.clock.Add(30 * time.Minute)
	require.NoError(t, e.chat.Delete(ctx, a.ID, sent.ID, DeleteForEveryone))
	require.NoError(t, e.chat.Delete(ctx, a.ID, sent.ID, DeleteForEveryone))

	h, err := e.chat.History(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Empty(t, h)
	h, err = e.chat.History(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, h)
	var m models.Message
	require.NoError(t, e.db.First(&m, sent.ID).Error)
	assert.Equal(t, models.DeletedPlaceholder, m.Content)

	unread, err := e.chat.UnreadCount(b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestDeleteForEveryoneAfterWindowIsForbidden(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()
	sent, err := e.chat.SendText(ctx, a.ID, b.ID, "too late")
	require.NoError(t, err)

	e.clock = e.clock.Add(2 * time.Hour)
	assert.True(t, errors.Is(e.chat.Delete(ctx, a.ID, sent.ID, DeleteForEveryone), ErrForbidden))
	assert.True(t, errors.Is(e.chat.Delete(ctx, b.ID, sent.ID, DeleteForEveryone), ErrForbidden))

	h, err := e.chat.History(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "too late", h[0].Content)
}

func TestSendVoiceFromDataURL(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()
	audio := []byte("OggS fake voice payload")
	dataURL := "data:audio/ogg;codecs=opus;base64," + base64.StdEncoding.EncodeToString(audio)

	v, err := e.chat.SendVoice(ctx, a.ID, b.ID, dataURL)
	require.NoError(t, err)
	assert.Equal(t, models.MessageVoice, v.MessageType)
	assert.True(t, strings.HasPrefix(v.FileName, "voice_"))
	assert.True(t, strings.HasSuffix(v.FileName, ".ogg"))
	assert.Equal(t, DownloadPath(v.ID), v.FileURL)

	rc, msg, err := e.chat.OpenAttachment(ctx, b.ID, v.ID)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, audio, got)
	assert.Equal(t, v.FileName, msg.FileName)

	_, _, err = e.chat.OpenAttachment(ctx, e.user(t, "eve").ID, v.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = e.chat.SendVoice(ctx, a.ID, b.ID, "not base64!")
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestDecodeVoiceDefaultsToWebm(t *testing.T) {
	audio, ext, err := decodeVoice(base64.StdEncoding.EncodeToString([]byte("raw")))
	require.NoError(t, err)
	assert.Equal(t, ".webm", ext)
	assert.Equal(t, []byte("raw"), audio)
}

func TestSendFileDetectsTypeAndEnforcesLimit(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()

	var png bytes.Buffer
	png.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	png.Write(make([]byte, 32))
	v, err := e.chat.SendFile(ctx, a.ID, b.ID, Upload{Filename: "shot.png", Size: int64(png.Len()), Body: &png}, "")
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, v.MessageType)
	assert.Equal(t, "shot.png", v.Content)

	doc, err := e.chat.SendFile(ctx, a.ID, b.ID, Upload{Filename: "notes.txt", Size: 5, Body: strings.NewReader("hello")}, "read this")
	require.NoError(t, err)
	assert.Equal(t, models.MessageDocument, doc.MessageType)
	assert.Equal(t, "read this", doc.Content)

	_, err = e.chat.SendFile(ctx, a.ID, b.ID, Upload{Filename: "big.bin", Size: models.MaxAttachmentSize + 1, Body: strings.NewReader("x")}, "")
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestDeleteForEveryoneRemovesAttachment(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)
	ctx := context.Background()
	v, err := e.chat.SendFile(ctx, a.ID, b.ID, Upload{Filename: "a.txt", Size: 3, Body: strings.NewReader("abc")}, "")
	require.NoError(t, err)

	require.NoError(t, e.chat.Delete(ctx, a.ID, v.ID, DeleteForEveryone))

	_, _, err = e.chat.OpenAttachment(ctx, a.ID, v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	for _, uid := range []uint{a.ID, b.ID} {
		evs := e.hub.events[uid]
		require.NotEmpty(t, evs)
		del, ok := evs[len(evs)-1].(realtime.MessageDeleted)
		require.True(t, ok, "last event for %d is %T", uid, evs[len(evs)-1])
		assert.Equal(t, v.ID, del.ID)
		assert.Equal(t, a.ID, del.DeletedBy)
	}
}

func TestConversationsOrderByLatestMessage(t *testing.T) {
	e := newEnv(t)
	me := e.user(t, "me")
	quiet, older, newer := e.user(t, "quiet"), e.user(t, "older"), e.user(t, "newer")
	for _, f := range []*models.User{quiet, older, newer} {
		e.friends(t, me, f)
	}
	ctx := context.Background()

	_, err := e.chat.SendText(ctx, older.ID, me.ID, "first")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = e.chat.SendText(ctx, me.ID, newer.ID, "second")
	require.NoError(t, err)

	convs, err := e.chat.Conversations(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "newer", convs[0].Friend.Username)
	assert.Equal(t, "older", convs[1].Friend.Username)
	assert.Equal(t, "quiet", convs[2].Friend.Username)
	assert.Equal(t, int64(1), convs[1].UnreadCount)
	assert.Zero(t, convs[0].UnreadCount)
}

func TestHeartbeatAndDisconnect(t *testing.T) {
	e := newEnv(t)
	me, f := e.user(t, "me"), e.user(t, "friend")
	e.friends(t, me, f)
	ctx := context.Background()

	require.NoError(t, e.chat.Heartbeat(ctx, f.ID))
	statuses, err := e.chat.FriendStatuses(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].IsOnline)

	e.clock = e.clock.Add(time.Minute)
	require.NoError(t, e.chat.Disconnected(ctx, f.ID))
	statuses, err = e.chat.FriendStatuses(ctx, me.ID)
	require.NoError(t, err)
	assert.False(t, statuses[0].IsOnline)
	require.NotNil(t, statuses[0].LastSeen)
	assert.WithinDuration(t, e.clock, *statuses[0].LastSeen, time.Second)
}

func TestLongMessagePreviewIsEllipsized(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.friends(t, a, b)

	long := strings.Repeat("x", 60)
	_, err := e.chat.SendText(context.Background(), a.ID, b.ID, long)
	require.NoError(t, err)

	notes := e.notificationsFor(t, b.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, `alice sent you a message: "`+strings.Repeat("x", 50)+`..."`, notes[0].Message)
}

// readOnLoad marks the thread read right after a message row is loaded, the
// way a receiver opening the chat can between a load and a write.
type readOnLoad struct {
	repositories.MessageRepository
	senderID, receiverID uint
}

func (r readOnLoad) GetMessageByID(id uint) (*models.Message, error) {
	m, err := r.MessageRepository.GetMessageByID(id)
	if err != nil {
		return nil, err
	}
	_, err = r.MessageRepository.MarkRead(r.senderID, r.receiverID)
	return m, err
}

func TestDeleteKeepsConcurrentReadStatus(t *testing.T) {
	for _, deleteType := range []string{DeleteForMe, DeleteForEveryone} {
		t.Run(deleteType, func(t *testing.T) {
			e := newEnv(t)
			a, b := e.user(t, "alice"), e.user(t, "bob")
			e.friends(t, a, b)
			ctx := context.Background()
			sent, err := e.chat.SendText(ctx, a.ID, b.ID, "hello")
			require.NoError(t, err)

			e.chat.messages = readOnLoad{MessageRepository: e.chat.messages, senderID: a.ID, receiverID: b.ID}
			require.NoError(t, e.chat.Delete(ctx, a.ID, sent.ID, deleteType))

			var got models.Message
			require.NoError(t, e.db.First(&got, sent.ID).Error)
			assert.Equal(t, models.StatusRead, got.Status)
			assert.True(t, got.IsRead)
			if deleteType == DeleteForMe {
				assert.True(t, got.DeletedForSender)
				assert.False(t, got.DeletedForReceiver)
				assert.Equal(t, "hello", got.Content)
			} else {
				assert.True(t, got.DeletedForEveryone)
				assert.NotNil(t, got.DeletedForEveryoneAt)
				assert.Equal(t, models.DeletedPlaceholder, got.Content)
			}
		})
	}
}

func TestDisconnectWithPresenceCacheLeavesOtherInstancesOnline(t *testing.T) {
	e := newEnv(t)
	me, f := e.user(t, "me"), e.user(t, "friend")
	e.friends(t, me, f)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	e.chat.presence = cache.NewPresence(rdb, time.Minute)

	require.NoError(t, e.chat.Heartbeat(ctx, f.ID))
	e.clock = e.clock.Add(time.Minute)
	// Last connection on one instance closes; another instance still holds one.
	require.NoError(t, e.chat.Disconnected(ctx, f.ID))

	statuses, err := e.chat.FriendStatuses(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].IsOnline)
	require.NotNil(t, statuses[0].LastSeen)
	assert.WithinDuration(t, e.clock, *statuses[0].LastSeen, time.Second)

	mr.FastForward(2 * time.Minute)
	statuses, err = e.chat.FriendStatuses(ctx, me.ID)
	require.NoError(t, err)
	assert.False(t, statuses[0].IsOnline)
}
