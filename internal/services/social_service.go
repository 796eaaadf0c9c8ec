package services

import (
	"context"
	"errors"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SocialService manages friend requests. Friendship is never stored; it is
// derived from accepted request edges.
type SocialService struct {
	users       repositories.UserRepository
	friendships repositories.FriendshipRepository
	notifier    *Notifier
	log         *zap.Logger
}

func NewSocialService(users repositories.UserRepository, friendships repositories.FriendshipRepository, notifier *Notifier, log *zap.Logger) *SocialService {
	return &SocialService{users: users, friendships: friendships, notifier: notifier, log: log}
}

// SendRequest creates the edge from -> to. It returns created=false without
// writing anything when the edge already exists.
func (s *SocialService) SendRequest(ctx context.Context, fromID, toID uint) (req *models.FriendRequest, created bool, err error) {
	if fromID == toID {
		return nil, false, invalid("You cannot send a friend request to yourself")
	}
	from, err := s.users.GetUserByID(fromID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.users.GetUserByID(toID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, notFound("User not found")
		}
		return nil, false, err
	}

	existing, err := s.friendships.GetRequest(fromID, toID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	friends, err := s.friendships.AreFriends(fromID, toID)
	if err != nil {
		return nil, false, err
	}
	if friends {
		return nil, false, conflict("You are already friends")
	}

	req = &models.FriendRequest{FromUserID: fromID, ToUserID: toID}
	if err := s.friendships.CreateRequest(req); err != nil {
		// Lost a race against a concurrent identical request.
		if existing, gerr := s.friendships.GetRequest(fromID, toID); gerr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	s.notifier.NotifyFriendRequest(ctx, from, toID, req.ID)
	return req, true, nil
}

// Accept accepts the pending request fromID sent to actorID.
func (s *SocialService) Accept(ctx context.Context, actorID, fromID uint) (*models.FriendRequest, error) {
	req, err := s.friendships.GetRequest(fromID, actorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Friend request not found")
	}
	if err != nil {
		return nil, err
	}
	if req.IsAccepted {
		return req, nil
	}
	if err := s.friendships.AcceptRequest(req.ID); err != nil {
		return nil, err
	}
	req.IsAccepted = true

	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyFriendAccepted(ctx, actor, fromID, req.ID)
	return req, nil
}

// Reject deletes the pending request fromID sent to actorID.
func (s *SocialService) Reject(actorID, fromID uint) error {
	req, err := s.friendships.GetRequest(fromID, actorID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && req.IsAccepted) {
		return notFound("Friend request not found")
	}
	if err != nil {
		return err
	}
	return s.friendships.DeleteRequest(req.ID)
}

// Cancel withdraws a pending request actorID sent to toID.
func (s *SocialService) Cancel(actorID, toID uint) error {
	return s.Reject(toID, actorID)
}

// Unfriend removes the friendship in both directions.
func (s *SocialService) Unfriend(actorID, friendID uint) error {
	n, err := s.friendships.DeleteFriendship(actorID, friendID)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("You are not friends with this user")
	}
	return nil
}

func (s *SocialService) AreFriends(a, b uint) (bool, error) {
	return s.friendships.AreFriends(a, b)
}

func (s *SocialService) Friends(userID uint) ([]models.User, error) {
	return s.friendships.GetUserFriends(userID)
}

// FriendsPage returns friends, pending requests both ways and discover candidates.
func (s *SocialService) FriendsPage(userID uint) (*models.FriendsPage, error) {
	friends, err := s.friendships.GetUserFriends(userID)
	if err != nil {
		return nil, err
	}
	sentIDs, err := s.friendships.GetPendingSentIDs(userID)
	if err != nil {
		return nil, err
	}
	receivedIDs, err := s.friendships.GetPendingReceivedIDs(userID)
	if err != nil {
		return nil, err
	}
	sent, err := s.users.GetUsersByIDs(sentIDs)
	if err != nil {
		return nil, err
	}
	received, err := s.users.GetUsersByIDs(receivedIDs)
	if err != nil {
		return nil, err
	}
	discover, err := s.discover(userID, friends, sentIDs, receivedIDs)
	if err != nil {
		return nil, err
	}
	return &models.FriendsPage{
		Friends:  nonNilUsers(friends),
		Sent:     nonNilUsers(sent),
		Received: nonNilUsers(received),
		Discover: nonNilUsers(discover),
	}, nil
}

// Discover lists every user except self, friends and anyone with a pending
// request in either direction.
func (s *SocialService) Discover(userID uint) ([]models.User, error) {
	friends, err := s.friendships.GetUserFriends(userID)
	if err != nil {
		return nil, err
	}
	sentIDs, err := s.friendships.GetPendingSentIDs(userID)
	if err != nil {
		return nil, err
	}
	receivedIDs, err := s.friendships.GetPendingReceivedIDs(userID)
	if err != nil {
		return nil, err
	}
	users, err := s.discover(userID, friends, sentIDs, receivedIDs)
	return nonNilUsers(users), err
}

func (s *SocialService) discover(userID uint, friends []models.User, sentIDs, receivedIDs []uint) ([]models.User, error) {
	excluded := make([]uint, 0, 1+len(friends)+len(sentIDs)+len(receivedIDs))
	excluded = append(excluded, userID)
	for _, f := range friends {
		excluded = append(excluded, f.ID)
	}
	excluded = append(excluded, sentIDs...)
	excluded = append(excluded, receivedIDs...)
	return s.users.ListUsersExcept(excluded)
}

func nonNilUsers(users []models.User) []models.User {
	if users == nil {
		return []models.User{}
	}
	return users
}
