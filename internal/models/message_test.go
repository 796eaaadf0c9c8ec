package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatusNeverRegresses(t *testing.T) {
	statuses := []MessageStatus{StatusSent, StatusDelivered, StatusRead}
	for i, from := range statuses {
		for j, to := range statuses {
			got := from.Advance(to)
			if j > i {
				assert.Equal(t, to, got, "%s -> %s", from, to)
			} else {
				assert.Equal(t, from, got, "%s -> %s", from, to)
			}
		}
	}
}

func TestBeforeSaveForcesReadWhenIsRead(t *testing.T) {
	m := &Message{Status: StatusSent, IsRead: true}
	assert.NoError(t, m.BeforeSave(nil))
	assert.Equal(t, StatusRead, m.Status)

	blank := &Message{}
	assert.NoError(t, blank.BeforeSave(nil))
	assert.Equal(t, StatusSent, blank.Status)
}

func TestVisibleTo(t *testing.T) {
	const sender, receiver, stranger = 1, 2, 3

	tests := []struct {
		name         string
		msg          Message
		senderSees   bool
		receiverSees bool
	}{
		{"untouched", Message{}, true, true},
		{"deleted for sender", Message{DeletedForSender: true}, false, true},
		{"deleted for receiver", Message{DeletedForReceiver: true}, true, false},
		{"both deleted", Message{DeletedForSender: true, DeletedForReceiver: true}, false, false},
		{"deleted for everyone", Message{DeletedForEveryone: true}, false, false},
		{"everyone overrides flags", Message{DeletedForEveryone: true, DeletedForSender: false, DeletedForReceiver: false}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.msg
			m.SenderID, m.ReceiverID = sender, receiver
			assert.Equal(t, tt.senderSees, m.VisibleTo(sender))
			assert.Equal(t, tt.receiverSees, m.VisibleTo(receiver))
			assert.False(t, m.VisibleTo(stranger))
		})
	}
}

func TestCanDeleteForEveryone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &Message{SenderID: 1, ReceiverID: 2, CreatedAt: now.Add(-30 * time.Minute)}

	assert.True(t, m.CanDeleteForEveryone(1, now))
	assert.False(t, m.CanDeleteForEveryone(2, now), "receiver may never delete for everyone")
	assert.False(t, m.CanDeleteForEveryone(3, now))

	m.CreatedAt = now.Add(-DeleteForEveryoneWindow - time.Second)
	for _, uid := range []uint{1, 2, 3} {
		assert.False(t, m.CanDeleteForEveryone(uid, now))
	}
}

func TestHideForAndRetract(t *testing.T) {
	m := &Message{SenderID: 1, ReceiverID: 2, Content: "hello", Status: StatusRead}

	assert.True(t, m.HideFor(m.RoleOf(2)))
	assert.True(t, m.DeletedForReceiver)
	assert.False(t, m.DeletedForSender)
	assert.True(t, m.VisibleTo(1))
	assert.False(t, m.HideFor(RoleNone))

	now := time.Now()
	m.RetractForEveryone(now)
	assert.Equal(t, DeletedPlaceholder, m.Content)
	assert.Equal(t, StatusRead, m.Status)
	assert.NotNil(t, m.DeletedForEveryoneAt)
	assert.False(t, m.VisibleTo(1))
}
