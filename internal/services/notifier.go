package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/anonto42/socio/backend/internal/events"
	"github.com/anonto42/socio/backend/internal/metrics"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/anonto42/socio/backend/internal/repositories"
	"go.uber.org/zap"
)

const messagePreviewLength = 50

// Notifier writes notifications and fans them out to live connections,
// mobile devices and the event broker. A user is never notified about their
// own action.
type Notifier struct {
	repo   repositories.NotificationRepository
	hub    Broadcaster
	pusher Pusher
	events events.Publisher
	log    *zap.Logger
}

// NewNotifier wires a Notifier. hub and pusher may be nil.
func NewNotifier(repo repositories.NotificationRepository, hub Broadcaster, pusher Pusher, pub events.Publisher, log *zap.Logger) *Notifier {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Notifier{repo: repo, hub: hub, pusher: pusher, events: pub, log: log}
}

// NotifyMessage tells the receiver about a new direct message.
func (n *Notifier) NotifyMessage(ctx context.Context, sender *models.User, msg *models.Message) {
	preview := msg.Content
	if msg.MessageType != models.MessageText {
		preview = fmt.Sprintf("[%s] %s", msg.MessageType, msg.FileName)
	}
	short := truncateRunes(preview, messagePreviewLength)
	if short != preview {
		short += "..."
	}
	text := fmt.Sprintf("%s sent you a message: \"%s\"", sender.Username, short)
	n.fanOut(ctx, sender, []uint{msg.ReceiverID}, models.NotificationMessage,
		strconv.FormatUint(uint64(msg.ID), 10), "message", text)
}

func (n *Notifier) NotifyFriendRequest(ctx context.Context, from *models.User, toUserID, requestID uint) {
	n.fanOut(ctx, from, []uint{toUserID}, models.NotificationFriendRequest,
		strconv.FormatUint(uint64(requestID), 10), "friend_request",
		fmt.Sprintf("%s sent you a friend request", from.Username))
}

func (n *Notifier) NotifyFriendAccepted(ctx context.Context, by *models.User, toUserID, requestID uint) {
	n.fanOut(ctx, by, []uint{toUserID}, models.NotificationFriendAccepted,
		strconv.FormatUint(uint64(requestID), 10), "friend_request",
		fmt.Sprintf("%s accepted your friend request", by.Username))
}

// NotifyNewPost tells every friend of the author about a new post.
func (n *Notifier) NotifyNewPost(ctx context.Context, author *models.User, post *models.Post, friendIDs []uint) {
	n.fanOut(ctx, author, friendIDs, models.NotificationNewPost, post.ID.Hex(), "post",
		fmt.Sprintf("%s posted a new %s.", author.Username, post.PostType))
}

func (n *Notifier) NotifyLike(ctx context.Context, liker *models.User, post *models.Post) {
	n.fanOut(ctx, liker, []uint{post.UserID}, models.NotificationLike, post.ID.Hex(), "post",
		fmt.Sprintf("%s liked your post", liker.Username))
}

func (n *Notifier) NotifyComment(ctx context.Context, commenter *models.User, post *models.Post) {
	n.fanOut(ctx, commenter, []uint{post.UserID}, models.NotificationComment, post.ID.Hex(), "post",
		fmt.Sprintf("%s commented on your post", commenter.Username))
}

// fanOut writes one notification per recipient in a single batch, then
// delivers each one. Failures are logged; they never fail the triggering action.
func (n *Notifier) fanOut(ctx context.Context, actor *models.User, recipients []uint, kind, targetID, targetType, text string) {
	batch := make([]models.Notification, 0, len(recipients))
	seen := make(map[uint]bool, len(recipients))
	for _, id := range recipients {
		if id == actor.ID || seen[id] {
			continue
		}
		seen[id] = true
		batch = append(batch, models.Notification{
			Type:        kind,
			ActorID:     actor.ID,
			RecipientID: id,
			TargetID:    targetID,
			TargetType:  targetType,
			Message:     text,
		})
	}
	if len(batch) == 0 {
		return
	}

	if err := n.repo.CreateNotifications(batch); err != nil {
		n.log.Error("failed to store notifications", zap.String("type", kind), zap.Error(err))
		return
	}
	metrics.NotificationsCreated.WithLabelValues(kind).Add(float64(len(batch)))

	for _, note := range batch {
		if n.hub != nil {
			n.hub.SendToUser(ctx, note.RecipientID, realtime.NewNotificationEvent(note))
		}
		if n.pusher != nil {
			data := map[string]string{"type": note.Type, "target_id": note.TargetID, "target_type": note.TargetType}
			if err := n.pusher.Push(ctx, note.RecipientID, "Socio", note.Message, data); err != nil {
				n.log.Warn("push delivery failed", zap.Uint("recipient_id", note.RecipientID), zap.Error(err))
			}
		}
		key := strconv.FormatUint(uint64(note.RecipientID), 10)
		if err := n.events.Publish(ctx, events.SubjectNotificationCreated, key, note); err != nil {
			n.log.Warn("failed to publish notification event", zap.Error(err))
		}
	}
}
