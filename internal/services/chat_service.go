package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anonto42/socio/backend/internal/events"
	"github.com/anonto42/socio/backend/internal/metrics"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DeleteForMe       = "for_me"
	DeleteForEveryone = "for_everyone"

	maxMessageLength = 10000
	sniffLength      = 3072
)

// MessageView is a message as returned to one of its participants.
type MessageView struct {
	models.Message
	FileURL string `json:"file_url,omitempty"`
	IsMine  bool   `json:"is_mine"`
}

// ChatService implements direct messaging between friends.
type ChatService struct {
	users       repositories.UserRepository
	friendships repositories.FriendshipRepository
	messages    repositories.MessageRepository
	store       storage.Store
	notifier    *Notifier
	hub         Broadcaster
	presence    PresenceTracker
	events      events.Publisher
	log         *zap.Logger
	now         func() time.Time
}

type ChatDeps struct {
	Users       repositories.UserRepository
	Friendships repositories.FriendshipRepository
	Messages    repositories.MessageRepository
	Store       storage.Store
	Notifier    *Notifier
	Hub         Broadcaster
	Presence    PresenceTracker
	Events      events.Publisher
	Log         *zap.Logger
}

func NewChatService(d ChatDeps) *ChatService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &ChatService{
		users:       d.Users,
		friendships: d.Friendships,
		messages:    d.Messages,
		store:       d.Store,
		notifier:    d.Notifier,
		hub:         d.Hub,
		presence:    d.Presence,
		events:      d.Events,
		log:         d.Log,
		now:         time.Now,
	}
}

// DownloadPath is the API path serving a message attachment.
func DownloadPath(messageID uint) string {
	return "/api/v1/chat/messages/" + strconv.FormatUint(uint64(messageID), 10) + "/download"
}

func (s *ChatService) view(m *models.Message, viewerID uint) MessageView {
	v := MessageView{Message: *m, IsMine: m.SenderID == viewerID}
	if m.FileKey != "" && !m.DeletedForEveryone {
		v.FileURL = DownloadPath(m.ID)
	}
	return v
}

// requireFriend loads peerID and checks the friendship with userID.
func (s *ChatService) requireFriend(userID, peerID uint) (*models.User, error) {
	if userID == peerID {
		return nil, invalid("You cannot message yourself")
	}
	peer, err := s.users.GetUserByID(peerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.friendships.AreFriends(userID, peerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("You can only chat with your friends")
	}
	return peer, nil
}

// History returns the conversation as visible to viewerID. Opening it marks
// the peer's messages read and the viewer's own sent messages delivered.
func (s *ChatService) History(ctx context.Context, viewerID, peerID uint) ([]MessageView, error) {
	if _, err := s.requireFriend(viewerID, peerID); err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkRead(peerID, viewerID); err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkDelivered(viewerID, peerID); err != nil {
		return nil, err
	}
	all, err := s.messages.GetConversation(viewerID, peerID)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, 0, len(all))
	for i := range all {
		if all[i].VisibleTo(viewerID) {
			out = append(out, s.view(&all[i], viewerID))
		}
	}
	return out, nil
}

// SendText stores a text message and delivers it.
func (s *ChatService) SendText(ctx context.Context, senderID, receiverID uint, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("Message cannot be empty")
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, invalid("Message must be at most %d characters", maxMessageLength)
	}
	return s.send(ctx, senderID, receiverID, &models.Message{MessageType: models.MessageText, Content: content})
}

// SendFile stores an attachment and sends it. The message type follows the
// detected MIME type; caption becomes the content when given.
func (s *ChatService) SendFile(ctx context.Context, senderID, receiverID uint, up Upload, caption string) (*MessageView, error) {
	if up.Size > models.MaxAttachmentSize {
		return nil, newError(KindTooLarge, "File size cannot exceed 50MB")
	}
	if _, err := s.requireFriend(senderID, receiverID); err != nil {
		return nil, err
	}
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	head = head[:n]
	mtype := mimetype.Detect(head)

	name := filepath.Base(up.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mtype.Extension()
	}
	key := storage.NewKey("chat_files", "", ext)
	body := io.MultiReader(bytes.NewReader(head), up.Body)
	if err := s.store.Save(ctx, key, mtype.String(), body, up.Size); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	content := strings.TrimSpace(caption)
	if content == "" {
		content = name
	}
	msg := &models.Message{
		MessageType: messageTypeFor(mtype),
		Content:     content,
		FileKey:     key,
		FileName:    name,
		FileSize:    up.Size,
	}
	view, err := s.send(ctx, senderID, receiverID, msg)
	if err != nil {
		s.dropFile(ctx, key)
	}
	return view, err
}

func messageTypeFor(m *mimetype.MIME) string {
	for ; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return models.MessageImage
		case strings.HasPrefix(m.String(), "video/"):
			return models.MessageVideo
		case strings.HasPrefix(m.String(), "audio/"):
			return models.MessageAudio
		}
	}
	return models.MessageDocument
}

var voiceExtensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
	"audio/aac":   ".aac",
}

// decodeVoice accepts raw base64 or a data URL and returns the audio bytes
// with a file extension.
func decodeVoice(data string) ([]byte, string, error) {
	ext := ".webm"
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", invalid("Invalid audio data")
		}
		mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
		if e, ok := voiceExtensions[mime]; ok {
			ext = e
		}
		data = payload
	}
	data = strings.TrimSpace(data)
	if base64.StdEncoding.DecodedLen(len(data)) > models.MaxAttachmentSize+2 {
		return nil, "", newError(KindTooLarge, "Voice message cannot exceed 50MB")
	}
	audio, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", invalid("Invalid audio data")
	}
	if len(audio) == 0 {
		return nil, "", invalid("Audio data is empty")
	}
	if len(audio) > models.MaxAttachmentSize {
		return nil, "", newError(KindTooLarge, "Voice message cannot exceed 50MB")
	}
	return audio, ext, nil
}

// SendVoice decodes a base64 voice note, stores it under a generated name
// and sends it.
func (s *ChatService) SendVoice(ctx context.Context, senderID, receiverID uint, audioData string) (*MessageView, error) {
	audio, ext, err := decodeVoice(audioData)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireFriend(senderID, receiverID); err != nil {
		return nil, err
	}
	key := storage.NewKey("voice_notes", "voice_", ext)
	if err := s.store.Save(ctx, key, mimetype.Detect(audio).String(), bytes.NewReader(audio), int64(len(audio))); err != nil {
		return nil, fmt.Errorf("store voice note: %w", err)
	}
	msg := &models.Message{
		MessageType: models.MessageVoice,
		Content:     "Voice message",
		FileKey:     key,
		FileName:    filepath.Base(key),
		FileSize:    int64(len(audio)),
	}
	view, err := s.send(ctx, senderID, receiverID, msg)
	if err != nil {
		s.dropFile(ctx, key)
	}
	return view, err
}

func (s *ChatService) dropFile(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("failed to delete orphaned attachment", zap.String("key", key), zap.Error(err))
	}
}

// send persists msg from sender to receiver, promotes the sender's earlier
// sent messages to delivered, notifies the receiver and pushes the message
// to both parties.
func (s *ChatService) send(ctx context.Context, senderID, receiverID uint, msg *models.Message) (*MessageView, error) {
	if _, err := s.requireFriend(senderID, receiverID); err != nil {
		return nil, err
	}
	sender, err := s.users.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkDelivered(senderID, receiverID); err != nil {
		return nil, err
	}

	msg.SenderID, msg.ReceiverID = senderID, receiverID
	msg.Status = models.StatusSent
	if err := s.messages.CreateMessage(msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(msg.MessageType).Inc()

	s.notifier.NotifyMessage(ctx, sender, msg)

	fileURL := ""
	if msg.FileKey != "" {
		fileURL = DownloadPath(msg.ID)
	}
	if s.hub != nil {
		s.hub.SendToUser(ctx, receiverID, realtime.NewChatMessage(msg, fileURL, receiverID))
		s.hub.SendToUser(ctx, senderID, realtime.NewChatMessage(msg, fileURL, senderID))
	}
	key := strconv.FormatUint(uint64(receiverID), 10)
	if err := s.events.Publish(ctx, events.SubjectMessageCreated, key, msg); err != nil {
		s.log.Warn("failed to publish message event", zap.Error(err))
	}

	v := s.view(msg, senderID)
	return &v, nil
}

// Delete hides a message for the requester, or retracts it for both parties
// when deleteType is for_everyone.
func (s *ChatService) Delete(ctx context.Context, actorID, messageID uint, deleteType string) error {
	msg, err := s.messages.GetMessageByID(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Message not found")
	}
	if err != nil {
		return err
	}
	role := msg.RoleOf(actorID)
	if role == models.RoleNone {
		return forbidden("You are not part of this conversation")
	}

	switch deleteType {
	case DeleteForMe:
		msg.HideFor(role)
		return s.messages.HideMessage(msg.ID, role)
	case DeleteForEveryone:
		if role != models.RoleSender {
			return forbidden("Only the sender can delete a message for everyone")
		}
		if msg.DeletedForEveryone {
			return nil
		}
		now := s.now()
		if !msg.CanDeleteForEveryone(actorID, now) {
			return forbidden("Messages can only be deleted for everyone within 1 hour of sending")
		}
		fileKey := msg.FileKey
		if err := s.messages.RetractMessage(msg.ID, now); err != nil {
			return err
		}
		msg.RetractForEveryone(now)
		if fileKey != "" {
			s.dropFile(ctx, fileKey)
		}
		event := realtime.NewMessageDeleted(msg, actorID)
		if s.hub != nil {
			s.hub.SendToUser(ctx, msg.SenderID, event)
			s.hub.SendToUser(ctx, msg.ReceiverID, event)
		}
		key := strconv.FormatUint(uint64(msg.ReceiverID), 10)
		if err := s.events.Publish(ctx, events.SubjectMessageDeleted, key, event); err != nil {
			s.log.Warn("failed to publish delete event", zap.Error(err))
		}
		return nil
	default:
		return invalid("delete_type must be for_me or for_everyone")
	}
}

// OpenAttachment streams the file of a message visible to actorID.
func (s *ChatService) OpenAttachment(ctx context.Context, actorID, messageID uint) (io.ReadCloser, *models.Message, error) {
	msg, err := s.messages.GetMessageByID(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, notFound("Message not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if msg.RoleOf(actorID) == models.RoleNone {
		return nil, nil, forbidden("You are not part of this conversation")
	}
	if !msg.VisibleTo(actorID) || msg.FileKey == "" {
		return nil, nil, notFound("File not found")
	}
	rc, err := s.store.Open(ctx, msg.FileKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notFound("File not found")
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, msg, nil
}

var epoch = time.Unix(0, 0).UTC()

// Conversations lists every friend with unread count and presence, most
// recent conversation first. Friends never messaged sort last.
func (s *ChatService) Conversations(ctx context.Context, viewerID uint) ([]models.Conversation, error) {
	friends, err := s.friendships.GetUserFriends(viewerID)
	if err != nil {
		return nil, err
	}
	online := s.onlineSet(ctx, friends)

	out := make([]models.Conversation, 0, len(friends))
	for i := range friends {
		f := &friends[i]
		unread, err := s.messages.CountUnread(f.ID, viewerID)
		if err != nil {
			return nil, err
		}
		latest, err := s.messages.LatestVisibleAt(viewerID, f.ID)
		if err != nil {
			return nil, err
		}
		at := epoch
		if latest != nil {
			at = *latest
		}
		out = append(out, models.Conversation{
			Friend:        f.ToCompact(),
			IsOnline:      online[f.ID],
			LastSeen:      f.LastSeen,
			UnreadCount:   unread,
			LastMessageAt: at,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

// FriendStatuses reports presence and unread counts for every friend.
func (s *ChatService) FriendStatuses(ctx context.Context, viewerID uint) ([]models.FriendStatus, error) {
	friends, err := s.friendships.GetUserFriends(viewerID)
	if err != nil {
		return nil, err
	}
	online := s.onlineSet(ctx, friends)
	out := make([]models.FriendStatus, 0, len(friends))
	for i := range friends {
		unread, err := s.messages.CountUnread(friends[i].ID, viewerID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.FriendStatus{
			ID:          friends[i].ID,
			IsOnline:    online[friends[i].ID],
			LastSeen:    friends[i].LastSeen,
			UnreadCount: unread,
		})
	}
	return out, nil
}

// UnreadCount is the number of unread messages from peerID to viewerID.
func (s *ChatService) UnreadCount(viewerID, peerID uint) (int64, error) {
	return s.messages.CountUnread(peerID, viewerID)
}

// onlineSet prefers the presence cache and falls back to the stored flag.
func (s *ChatService) onlineSet(ctx context.Context, users []models.User) map[uint]bool {
	out := make(map[uint]bool, len(users))
	if s.presence != nil {
		ids := make([]uint, len(users))
		for i := range users {
			ids[i] = users[i].ID
		}
		set, err := s.presence.Online(ctx, ids)
		if err == nil {
			return set
		}
		s.log.Warn("presence lookup failed, using stored flags", zap.Error(err))
	}
	for i := range users {
		out[users[i].ID] = users[i].IsOnline
	}
	return out
}

// Heartbeat marks userID online now.
func (s *ChatService) Heartbeat(ctx context.Context, userID uint) error {
	now := s.now().UTC()
	if s.presence != nil {
		if err := s.presence.Touch(ctx, userID, now); err != nil {
			s.log.Warn("presence touch failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return s.users.SetPresence(userID, true, now)
}

// Disconnected runs when the last connection of userID on this instance
// closes. With a presence cache the user may still be connected elsewhere, so
// only last_seen is stamped and the cache key is left to expire.
func (s *ChatService) Disconnected(ctx context.Context, userID uint) error {
	now := s.now().UTC()
	if s.presence != nil {
		return s.users.SetLastSeen(userID, now)
	}
	return s.users.SetPresence(userID, false, now)
}
