package services

import (
	"context"
	"errors"
	"strings"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"gorm.io/gorm"
)

const searchLimit = 20

// Profile is a user with their social counters.
type Profile struct {
	models.User
	FriendsCount int64 `json:"friends_count"`
	PostCount    int64 `json:"post_count"`
	IsFriend     bool  `json:"is_friend"`
}

// UserService serves profiles, search and device registration.
type UserService struct {
	users       repositories.UserRepository
	friendships repositories.FriendshipRepository
	posts       repositories.PostRepository
	devices     repositories.DeviceTokenRepository
}

func NewUserService(users repositories.UserRepository, friendships repositories.FriendshipRepository, posts repositories.PostRepository, devices repositories.DeviceTokenRepository) *UserService {
	return &UserService{users: users, friendships: friendships, posts: posts, devices: devices}
}

// Profile loads userID as seen by viewerID.
func (s *UserService) Profile(ctx context.Context, viewerID, userID uint) (*Profile, error) {
	user, err := s.users.GetUserByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	friends, err := s.friendships.CountFriends(userID)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.CountActivePostsByUserIDs(ctx, []uint{userID})
	if err != nil {
		return nil, err
	}
	p := &Profile{User: *user, FriendsCount: friends, PostCount: posts}
	if viewerID != userID {
		if p.IsFriend, err = s.friendships.AreFriends(viewerID, userID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(userID uint, req *models.UpdateUserRequest) (*models.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&user.FirstName, req.FirstName)
	set(&user.LastName, req.LastName)
	set(&user.Bio, req.Bio)
	set(&user.Website, req.Website)
	set(&user.Location, req.Location)
	set(&user.ProfilePhoto, req.ProfilePhoto)
	if err := s.users.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Search matches username and names. Queries shorter than two characters
// return nothing.
func (s *UserService) Search(query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []models.User{}, nil
	}
	users, err := s.users.SearchUsers(query, searchLimit)
	return nonNilUsers(users), err
}

func (s *UserService) RegisterDevice(userID uint, req *models.RegisterDeviceRequest) error {
	return s.devices.Register(&models.DeviceToken{UserID: userID, Token: req.Token, Platform: req.Platform})
}
