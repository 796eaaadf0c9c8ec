package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/anonto42/socio/backend/internal/events"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/anonto42/socio/backend/internal/storage"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	// FeedPageSize is the number of posts per feed page.
	FeedPageSize   = 10
	thumbnailWidth = 320
)

// FeedItem is a post as rendered in a feed.
type FeedItem struct {
	models.Post
	Author       models.UserCompact `json:"author"`
	LikeCount    int64              `json:"like_count"`
	CommentCount int64              `json:"comment_count"`
	IsLiked      bool               `json:"is_liked"`
	IsBookmarked bool               `json:"is_bookmarked"`
}

// CommentView is a comment with its author.
type CommentView struct {
	models.Comment
	Author models.UserCompact `json:"author"`
}

// FeedService owns posts and their likes, comments and bookmarks.
type FeedService struct {
	posts       repositories.PostRepository
	users       repositories.UserRepository
	friendships repositories.FriendshipRepository
	likes       repositories.LikeRepository
	comments    repositories.CommentRepository
	bookmarks   repositories.BookmarkRepository
	store       storage.Store
	notifier    *Notifier
	events      events.Publisher
	log         *zap.Logger
}

type FeedDeps struct {
	Posts       repositories.PostRepository
	Users       repositories.UserRepository
	Friendships repositories.FriendshipRepository
	Likes       repositories.LikeRepository
	Comments    repositories.CommentRepository
	Bookmarks   repositories.BookmarkRepository
	Store       storage.Store
	Notifier    *Notifier
	Events      events.Publisher
	Log         *zap.Logger
}

func NewFeedService(d FeedDeps) *FeedService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &FeedService{
		posts:       d.Posts,
		users:       d.Users,
		friendships: d.Friendships,
		likes:       d.Likes,
		comments:    d.Comments,
		bookmarks:   d.Bookmarks,
		store:       d.Store,
		notifier:    d.Notifier,
		events:      d.Events,
		log:         d.Log,
	}
}

func postValidationError(err error) error {
	return invalid("%s", strings.ToUpper(err.Error()[:1])+err.Error()[1:])
}

func checkUploads(image, video *Upload) error {
	if image != nil && !models.HasExtension(image.Filename, models.ImageExtensions) {
		return invalid("Unsupported image format. Allowed: jpg, jpeg, png, gif")
	}
	if video != nil && !models.HasExtension(video.Filename, models.VideoExtensions) {
		return invalid("Unsupported video format. Allowed: mp4, avi, mov, wmv, flv")
	}
	return nil
}

// CreatePost validates and stores a post, then notifies every friend of the author.
func (s *FeedService) CreatePost(ctx context.Context, authorID uint, in models.PostInput, image, video *Upload) (*FeedItem, error) {
	author, err := s.users.GetUserByID(authorID)
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		UserID:      authorID,
		PostType:    strings.TrimSpace(in.PostType),
		TextContent: strings.TrimSpace(in.TextContent),
		Caption:     strings.TrimSpace(in.Caption),
		IsActive:    true,
	}
	if err := post.ValidateContent(image != nil, video != nil); err != nil {
		return nil, postValidationError(err)
	}
	if err := checkUploads(image, video); err != nil {
		return nil, err
	}
	if err := s.attachMedia(ctx, post, image, video); err != nil {
		return nil, err
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.discardMedia(ctx, post)
		return nil, err
	}

	friendIDs, err := s.friendships.GetFriendIDs(authorID)
	if err != nil {
		s.log.Error("failed to load friends for post fan-out", zap.Uint("user_id", authorID), zap.Error(err))
	} else {
		s.notifier.NotifyNewPost(ctx, author, post, friendIDs)
	}
	if err := s.events.Publish(ctx, events.SubjectPostCreated, post.ID.Hex(), post); err != nil {
		s.log.Warn("failed to publish post event", zap.Error(err))
	}

	return &FeedItem{Post: *post, Author: author.ToCompact()}, nil
}

// attachMedia stores the uploads and records their keys and URLs on post.
func (s *FeedService) attachMedia(ctx context.Context, post *models.Post, image, video *Upload) error {
	if image != nil {
		data, err := io.ReadAll(image.Body)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		ext := strings.ToLower(filepath.Ext(image.Filename))
		key := storage.NewKey("posts/images", "", ext)
		if err := s.store.Save(ctx, key, image.ContentType, bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("store image: %w", err)
		}
		post.ImageKey, post.ImageURL = key, s.store.URL(key)
		if thumb := s.thumbnail(ctx, data); thumb != "" {
			post.ThumbnailKey, post.ThumbnailURL = thumb, s.store.URL(thumb)
		}
	}
	if video != nil {
		key := storage.NewKey("posts/videos", "", filepath.Ext(video.Filename))
		if err := s.store.Save(ctx, key, video.ContentType, video.Body, video.Size); err != nil {
			return fmt.Errorf("store video: %w", err)
		}
		post.VideoKey, post.VideoURL = key, s.store.URL(key)
	}
	return nil
}

// thumbnail stores a JPEG preview and returns its key, or "" when the image
// cannot be decoded.
func (s *FeedService) thumbnail(ctx context.Context, data []byte) string {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.log.Warn("skipping thumbnail, image not decodable", zap.Error(err))
		return ""
	}
	if img.Bounds().Dx() > thumbnailWidth {
		img = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		s.log.Warn("failed to encode thumbnail", zap.Error(err))
		return ""
	}
	key := storage.NewKey("posts/thumbnails", "thumb_", ".jpg")
	if err := s.store.Save(ctx, key, "image/jpeg", &buf, int64(buf.Len())); err != nil {
		s.log.Warn("failed to store thumbnail", zap.Error(err))
		return ""
	}
	return key
}

func (s *FeedService) discardMedia(ctx context.Context, post *models.Post) {
	for _, key := range []string{post.ImageKey, post.VideoKey, post.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("failed to delete media", zap.String("key", key), zap.Error(err))
		}
	}
}

// ownedPost loads postID and checks that actorID wrote it.
func (s *FeedService) ownedPost(ctx context.Context, actorID uint, postID string) (*models.Post, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != actorID {
		return nil, forbidden("You can only modify your own posts")
	}
	return post, nil
}

func (s *FeedService) getPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, postID)
	if errors.Is(err, repositories.ErrPostNotFound) {
		return nil, notFound("Post not found")
	}
	return post, err
}

// GetPost returns one post enriched for viewerID.
func (s *FeedService) GetPost(ctx context.Context, viewerID uint, postID string) (*FeedItem, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	items, err := s.enrich(viewerID, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// EditPost updates text and caption and optionally replaces media of the
// post's own type. The post type itself cannot change.
func (s *FeedService) EditPost(ctx context.Context, actorID uint, postID string, in models.PostInput, image, video *Upload) (*FeedItem, error) {
	post, err := s.ownedPost(ctx, actorID, postID)
	if err != nil {
		return nil, err
	}
	if in.PostType != "" && in.PostType != post.PostType {
		return nil, invalid("The post type cannot be changed")
	}
	if err := checkUploads(image, video); err != nil {
		return nil, err
	}

	edited := *post
	edited.TextContent = strings.TrimSpace(in.TextContent)
	edited.Caption = strings.TrimSpace(in.Caption)
	hasImage := image != nil || (post.ImageKey != "" && video == nil)
	hasVideo := video != nil || (post.VideoKey != "" && image == nil)
	if err := edited.ValidateContent(hasImage, hasVideo); err != nil {
		return nil, postValidationError(err)
	}

	replaced := models.Post{}
	if image != nil || video != nil {
		replaced = *post
		edited.ImageKey, edited.ImageURL = "", ""
		edited.ThumbnailKey, edited.ThumbnailURL = "", ""
		edited.VideoKey, edited.VideoURL = "", ""
		if err := s.attachMedia(ctx, &edited, image, video); err != nil {
			return nil, err
		}
	}
	if err := s.posts.UpdatePost(ctx, &edited); err != nil {
		if image != nil || video != nil {
			s.discardMedia(ctx, &edited)
		}
		return nil, err
	}
	s.discardMedia(ctx, &replaced)

	items, err := s.enrich(actorID, []models.Post{edited})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// DeletePost removes the post, its media and every like, comment and bookmark on it.
func (s *FeedService) DeletePost(ctx context.Context, actorID uint, postID string) error {
	post, err := s.ownedPost(ctx, actorID, postID)
	if err != nil {
		return err
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	if err := s.likes.DeleteByPostID(postID); err != nil {
		return err
	}
	if err := s.comments.DeleteByPostID(postID); err != nil {
		return err
	}
	if err := s.bookmarks.DeleteByPostID(postID); err != nil {
		return err
	}
	s.discardMedia(ctx, post)
	return nil
}

// Feed pages through active posts by viewerID and their friends.
func (s *FeedService) Feed(ctx context.Context, viewerID uint, page int) ([]FeedItem, Pagination, error) {
	friendIDs, err := s.friendships.GetFriendIDs(viewerID)
	if err != nil {
		return nil, Pagination{}, err
	}
	return s.pageByAuthors(ctx, viewerID, append([]uint{viewerID}, friendIDs...), page)
}

// YourFeed pages through viewerID's own posts.
func (s *FeedService) YourFeed(ctx context.Context, viewerID uint, page int) ([]FeedItem, Pagination, error) {
	return s.pageByAuthors(ctx, viewerID, []uint{viewerID}, page)
}

// UserPosts pages through the posts of userID.
func (s *FeedService) UserPosts(ctx context.Context, viewerID, userID uint, page int) ([]FeedItem, Pagination, error) {
	return s.pageByAuthors(ctx, viewerID, []uint{userID}, page)
}

func (s *FeedService) pageByAuthors(ctx context.Context, viewerID uint, authorIDs []uint, page int) ([]FeedItem, Pagination, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.posts.CountActivePostsByUserIDs(ctx, authorIDs)
	if err != nil {
		return nil, Pagination{}, err
	}
	posts, err := s.posts.GetActivePostsByUserIDs(ctx, authorIDs, int64((page-1)*FeedPageSize), FeedPageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	items, err := s.enrich(viewerID, posts)
	if err != nil {
		return nil, Pagination{}, err
	}
	return items, newPagination(page, FeedPageSize, total), nil
}

// SavedPosts pages through the posts viewerID bookmarked, newest bookmark first.
func (s *FeedService) SavedPosts(ctx context.Context, viewerID uint, page int) ([]FeedItem, Pagination, error) {
	if page < 1 {
		page = 1
	}
	ids, total, err := s.bookmarks.GetBookmarkedPostIDs(viewerID, (page-1)*FeedPageSize, FeedPageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	posts, err := s.posts.GetPostsByIDs(ctx, ids)
	if err != nil {
		return nil, Pagination{}, err
	}
	items, err := s.enrich(viewerID, posts)
	if err != nil {
		return nil, Pagination{}, err
	}
	return items, newPagination(page, FeedPageSize, total), nil
}

// enrich attaches authors, counters and the viewer's like/bookmark flags.
func (s *FeedService) enrich(viewerID uint, posts []models.Post) ([]FeedItem, error) {
	items := make([]FeedItem, 0, len(posts))
	if len(posts) == 0 {
		return items, nil
	}
	postIDs := make([]string, len(posts))
	authorSet := make(map[uint]bool)
	authorIDs := make([]uint, 0)
	for i, p := range posts {
		postIDs[i] = p.ID.Hex()
		if !authorSet[p.UserID] {
			authorSet[p.UserID] = true
			authorIDs = append(authorIDs, p.UserID)
		}
	}

	authors, err := s.users.GetUsersByIDs(authorIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(authors))
	for i := range authors {
		byID[authors[i].ID] = authors[i].ToCompact()
	}
	likeCounts, err := s.likes.GetLikeCounts(postIDs)
	if err != nil {
		return nil, err
	}
	commentCounts, err := s.comments.GetCommentCounts(postIDs)
	if err != nil {
		return nil, err
	}
	liked, err := s.likes.GetLikedPostIDs(viewerID, postIDs)
	if err != nil {
		return nil, err
	}
	saved, err := s.bookmarks.GetBookmarkedSet(viewerID, postIDs)
	if err != nil {
		return nil, err
	}

	for _, p := range posts {
		id := p.ID.Hex()
		s.resolveURLs(&p)
		items = append(items, FeedItem{
			Post:         p,
			Author:       byID[p.UserID],
			LikeCount:    likeCounts[id],
			CommentCount: commentCounts[id],
			IsLiked:      liked[id],
			IsBookmarked: saved[id],
		})
	}
	return items, nil
}

// resolveURLs refreshes media URLs from their keys; presigned URLs expire.
func (s *FeedService) resolveURLs(p *models.Post) {
	if p.ImageKey != "" {
		p.ImageURL = s.store.URL(p.ImageKey)
	}
	if p.VideoKey != "" {
		p.VideoURL = s.store.URL(p.VideoKey)
	}
	if p.ThumbnailKey != "" {
		p.ThumbnailURL = s.store.URL(p.ThumbnailKey)
	}
}

// ToggleLike likes the post, or unlikes it when already liked. It returns the
// new state and the like count.
func (s *FeedService) ToggleLike(ctx context.Context, actorID uint, postID string) (liked bool, count int64, err error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return false, 0, err
	}
	n, err := s.likes.DeleteLike(postID, actorID)
	if err != nil {
		return false, 0, err
	}
	if n == 0 {
		liked = true
		if err := s.likes.CreateLike(&models.Like{PostID: postID, UserID: actorID}); err != nil {
			// A concurrent request may have liked it first.
			if already, herr := s.likes.HasUserLikedPost(postID, actorID); herr != nil || !already {
				return false, 0, err
			}
		} else {
			s.afterLike(ctx, actorID, post)
		}
	}
	count, err = s.likes.GetLikesCountByPostID(postID)
	return liked, count, err
}

func (s *FeedService) afterLike(ctx context.Context, actorID uint, post *models.Post) {
	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		s.log.Error("failed to load liker", zap.Uint("user_id", actorID), zap.Error(err))
		return
	}
	s.notifier.NotifyLike(ctx, actor, post)
	payload := map[string]interface{}{"post_id": post.ID.Hex(), "user_id": actorID}
	if err := s.events.Publish(ctx, events.SubjectPostLiked, post.ID.Hex(), payload); err != nil {
		s.log.Warn("failed to publish like event", zap.Error(err))
	}
}

// Likers lists the users who liked a post.
func (s *FeedService) Likers(ctx context.Context, postID string) ([]models.UserCompact, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	ids, err := s.likes.GetLikerIDs(postID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserCompact, len(users))
	for i := range users {
		out[i] = users[i].ToCompact()
	}
	return out, nil
}

// AddComment stores a trimmed, non-empty comment and notifies the post owner.
func (s *FeedService) AddComment(ctx context.Context, actorID uint, postID, content string) (*CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("Comment cannot be empty")
	}
	if len([]rune(content)) > 1000 {
		return nil, invalid("Comment must be at most 1000 characters")
	}
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		return nil, err
	}
	comment := &models.Comment{PostID: postID, UserID: actorID, Content: content}
	if err := s.comments.CreateComment(comment); err != nil {
		return nil, err
	}
	s.notifier.NotifyComment(ctx, actor, post)
	return &CommentView{Comment: *comment, Author: actor.ToCompact()}, nil
}

// Comments lists a post's comments oldest first.
func (s *FeedService) Comments(ctx context.Context, postID string) ([]CommentView, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.GetCommentsByPostID(postID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
	}
	users, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].ToCompact()
	}
	out := make([]CommentView, len(comments))
	for i, c := range comments {
		out[i] = CommentView{Comment: c, Author: byID[c.UserID]}
	}
	return out, nil
}

// ToggleBookmark saves or unsaves a post for actorID.
func (s *FeedService) ToggleBookmark(ctx context.Context, actorID uint, postID string) (bool, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return false, err
	}
	n, err := s.bookmarks.DeleteBookmark(actorID, postID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := s.bookmarks.CreateBookmark(&models.Bookmark{UserID: actorID, PostID: postID}); err != nil {
		if saved, berr := s.bookmarks.IsBookmarked(actorID, postID); berr == nil && saved {
			return true, nil
		}
		return false, err
	}
	return true, nil
}
