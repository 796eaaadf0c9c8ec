package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/anonto42/socio/backend/internal/metrics"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/sharing"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const oauthStateTTL = 10 * time.Minute

// ShareResult is returned after a successful cross-post.
type ShareResult struct {
	Provider string `json:"provider"`
	PostID   string `json:"post_id"`
	RemoteID string `json:"remote_id"`
}

// SharingConfigs is the sharing setup of one user.
type SharingConfigs struct {
	Facebook          *models.FacebookConfig `json:"facebook"`
	LinkedIn          *models.LinkedInConfig `json:"linkedin"`
	LinkedInConnected bool                   `json:"linkedin_connected"`
}

type linkedInState struct {
	UserID uint   `json:"uid"`
	PostID string `json:"pid"`
	jwt.RegisteredClaims
}

// SharingService cross-posts a user's posts to external networks with the
// credentials the user stored.
type SharingService struct {
	configs       repositories.SharingRepository
	posts         repositories.PostRepository
	store         storage.Store
	facebook      *sharing.Facebook
	instagram     *sharing.Instagram
	linkedin      *sharing.LinkedIn
	jwtSecret     string
	publicBaseURL string
	log           *zap.Logger
	now           func() time.Time
}

type SharingDeps struct {
	Configs       repositories.SharingRepository
	Posts         repositories.PostRepository
	Store         storage.Store
	Facebook      *sharing.Facebook
	Instagram     *sharing.Instagram
	LinkedIn      *sharing.LinkedIn
	JWTSecret     string
	PublicBaseURL string
	Log           *zap.Logger
}

func NewSharingService(d SharingDeps) *SharingService {
	return &SharingService{
		configs:       d.Configs,
		posts:         d.Posts,
		store:         d.Store,
		facebook:      d.Facebook,
		instagram:     d.Instagram,
		linkedin:      d.LinkedIn,
		jwtSecret:     d.JWTSecret,
		publicBaseURL: strings.TrimRight(d.PublicBaseURL, "/"),
		log:           d.Log,
		now:           time.Now,
	}
}

// Configs returns the stored provider settings of userID. Missing ones are nil.
func (s *SharingService) Configs(userID uint) (*SharingConfigs, error) {
	out := &SharingConfigs{}
	fb, err := s.configs.GetFacebookConfig(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	out.Facebook = fb
	li, err := s.configs.GetLinkedInConfig(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if li != nil {
		out.LinkedIn = li
		out.LinkedInConnected = li.Connected(s.now())
	}
	return out, nil
}

func (s *SharingService) SaveFacebookConfig(userID uint, req *models.FacebookConfigRequest) (*models.FacebookConfig, error) {
	cfg := &models.FacebookConfig{
		UserID:          userID,
		AccessToken:     strings.TrimSpace(req.AccessToken),
		PageID:          strings.TrimSpace(req.PageID),
		InstagramUserID: strings.TrimSpace(req.InstagramUserID),
	}
	if err := s.configs.UpsertFacebookConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SharingService) SaveLinkedInConfig(userID uint, req *models.LinkedInConfigRequest) (*models.LinkedInConfig, error) {
	cfg := &models.LinkedInConfig{
		UserID:       userID,
		ClientID:     strings.TrimSpace(req.ClientID),
		ClientSecret: strings.TrimSpace(req.ClientSecret),
	}
	if err := s.configs.UpsertLinkedInConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ownPost loads a post of userID for sharing.
func (s *SharingService) ownPost(ctx context.Context, userID uint, postID string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, postID)
	if errors.Is(err, repositories.ErrPostNotFound) {
		return nil, notFound("Post not found")
	}
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, forbidden("You can only share your own posts")
	}
	return post, nil
}

func postText(p *models.Post) string {
	if p.Caption != "" {
		return p.Caption
	}
	return p.TextContent
}

// upstream converts a provider failure into a user-facing error and records
// the outcome.
func (s *SharingService) upstream(provider string, err error) error {
	if err == nil {
		metrics.ShareRequests.WithLabelValues(provider, "success").Inc()
		return nil
	}
	metrics.ShareRequests.WithLabelValues(provider, "failure").Inc()
	var pe *sharing.ProviderError
	if errors.As(err, &pe) {
		s.log.Warn("share rejected by provider", zap.String("provider", provider), zap.Int("status", pe.Status), zap.String("error", pe.Message))
		return newError(KindUpstream, "%s", pe.Error())
	}
	if errors.Is(err, sharing.ErrUnsupported) {
		return invalid("This post type cannot be shared to %s", provider)
	}
	return err
}

func (s *SharingService) facebookConfig(userID uint) (*models.FacebookConfig, error) {
	cfg, err := s.configs.GetFacebookConfig(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid("Configure your Facebook page before sharing")
	}
	return cfg, err
}

// ShareFacebook publishes postID to the user's Facebook page.
func (s *SharingService) ShareFacebook(ctx context.Context, userID uint, postID string) (*ShareResult, error) {
	post, err := s.ownPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.facebookConfig(userID)
	if err != nil {
		return nil, err
	}

	var remoteID string
	switch post.PostType {
	case models.PostTypeImage, models.PostTypeVideo:
		key := post.ImageKey
		if post.PostType == models.PostTypeVideo {
			key = post.VideoKey
		}
		media, oerr := s.store.Open(ctx, key)
		if oerr != nil {
			return nil, fmt.Errorf("open media: %w", oerr)
		}
		defer media.Close()
		if post.PostType == models.PostTypeImage {
			remoteID, err = s.facebook.PublishPhoto(ctx, cfg.AccessToken, cfg.PageID, post.Caption, filepath.Base(key), media)
		} else {
			remoteID, err = s.facebook.PublishVideo(ctx, cfg.AccessToken, cfg.PageID, post.Caption, filepath.Base(key), media)
		}
	default:
		remoteID, err = s.facebook.PublishText(ctx, cfg.AccessToken, cfg.PageID, post.TextContent)
	}
	if err := s.upstream(sharing.ProviderFacebook, err); err != nil {
		return nil, err
	}
	return &ShareResult{Provider: sharing.ProviderFacebook, PostID: postID, RemoteID: remoteID}, nil
}

// publicURL makes a storage URL absolute so a provider can fetch it.
func (s *SharingService) publicURL(key string) string {
	u := s.store.URL(key)
	if strings.HasPrefix(u, "/") {
		return s.publicBaseURL + u
	}
	return u
}

// ShareInstagram publishes an image or video post to the linked Instagram account.
func (s *SharingService) ShareInstagram(ctx context.Context, userID uint, postID string) (*ShareResult, error) {
	post, err := s.ownPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.PostType != models.PostTypeImage && post.PostType != models.PostTypeVideo {
		return nil, invalid("Instagram requires an image or video")
	}
	cfg, err := s.facebookConfig(userID)
	if err != nil {
		return nil, err
	}
	if cfg.InstagramUserID == "" {
		return nil, invalid("Add your Instagram business account id before sharing")
	}

	media := sharing.Media{Caption: post.Caption}
	if post.PostType == models.PostTypeVideo {
		media.Video, media.URL = true, s.publicURL(post.VideoKey)
	} else {
		media.URL = s.publicURL(post.ImageKey)
	}
	remoteID, err := s.instagram.Publish(ctx, cfg.AccessToken, cfg.InstagramUserID, media)
	if err := s.upstream(sharing.ProviderInstagram, err); err != nil {
		return nil, err
	}
	return &ShareResult{Provider: sharing.ProviderInstagram, PostID: postID, RemoteID: remoteID}, nil
}

// ShareLinkedIn publishes directly when a member token is stored. Otherwise
// it returns the authorization URL the user must visit; the callback then
// completes the share.
func (s *SharingService) ShareLinkedIn(ctx context.Context, userID uint, postID string) (result *ShareResult, authURL string, err error) {
	post, err := s.ownPost(ctx, userID, postID)
	if err != nil {
		return nil, "", err
	}
	if post.PostType == models.PostTypeVideo {
		return nil, "", invalid("Video posts cannot be shared to LinkedIn")
	}
	cfg, err := s.configs.GetLinkedInConfig(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", invalid("Configure your LinkedIn app before sharing")
	}
	if err != nil {
		return nil, "", err
	}
	if !cfg.Connected(s.now()) {
		state, err := s.signState(userID, postID)
		if err != nil {
			return nil, "", err
		}
		return nil, s.linkedin.OAuthConfig(cfg.ClientID, cfg.ClientSecret).AuthCodeURL(state), nil
	}
	result, err = s.publishLinkedIn(ctx, cfg, post)
	return result, "", err
}

// CompleteLinkedIn handles the OAuth callback: it exchanges the code, stores
// the member token and publishes the post named in state.
func (s *SharingService) CompleteLinkedIn(ctx context.Context, code, state string) (*ShareResult, error) {
	claims, err := s.parseState(state)
	if err != nil {
		return nil, invalid("Invalid or expired authorization state")
	}
	if code == "" {
		return nil, invalid("Authorization code is missing")
	}
	cfg, err := s.configs.GetLinkedInConfig(claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid("Configure your LinkedIn app before sharing")
	}
	if err != nil {
		return nil, err
	}
	post, err := s.ownPost(ctx, claims.UserID, claims.PostID)
	if err != nil {
		return nil, err
	}

	tok, err := s.linkedin.Exchange(ctx, s.linkedin.OAuthConfig(cfg.ClientID, cfg.ClientSecret), code)
	if err := s.upstream(sharing.ProviderLinkedIn, err); err != nil {
		return nil, err
	}
	urn, err := s.linkedin.MemberURN(ctx, tok.AccessToken)
	if err := s.upstream(sharing.ProviderLinkedIn, err); err != nil {
		return nil, err
	}
	cfg.AccessToken, cfg.UserURN = tok.AccessToken, urn
	cfg.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		cfg.ExpiresAt = &exp
	}
	if err := s.configs.SaveLinkedInConfig(cfg); err != nil {
		return nil, err
	}
	return s.publishLinkedIn(ctx, cfg, post)
}

func (s *SharingService) publishLinkedIn(ctx context.Context, cfg *models.LinkedInConfig, post *models.Post) (*ShareResult, error) {
	var remoteID string
	var err error
	if post.PostType == models.PostTypeImage {
		media, oerr := s.store.Open(ctx, post.ImageKey)
		if oerr != nil {
			return nil, fmt.Errorf("open media: %w", oerr)
		}
		defer media.Close()
		remoteID, err = s.linkedin.PublishImage(ctx, cfg.AccessToken, cfg.UserURN, postText(post), imageContentType(post.ImageKey), media)
	} else {
		remoteID, err = s.linkedin.PublishText(ctx, cfg.AccessToken, cfg.UserURN, postText(post))
	}
	if err := s.upstream(sharing.ProviderLinkedIn, err); err != nil {
		return nil, err
	}
	return &ShareResult{Provider: sharing.ProviderLinkedIn, PostID: post.ID.Hex(), RemoteID: remoteID}, nil
}

func imageContentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func (s *SharingService) signState(userID uint, postID string) (string, error) {
	now := s.now()
	claims := &linkedInState{
		UserID: userID,
		PostID: postID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "linkedin-share",
			ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}

func (s *SharingService) parseState(state string) (*linkedInState, error) {
	claims := &linkedInState{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject != "linkedin-share" {
		return nil, errors.New("state is not a linkedin share token")
	}
	return claims, nil
}
