package models

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PostTypeText  = "text"
	PostTypeImage = "image"
	PostTypeVideo = "video"
	PostTypePoll  = "poll"
)

var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}
	VideoExtensions = []string{".mp4", ".avi", ".mov", ".wmv", ".flv"}
)

// Post represents a feed post stored in MongoDB
type Post struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID       uint               `json:"user_id" bson:"user_id"`
	PostType     string             `json:"post_type" bson:"post_type"`
	TextContent  string             `json:"text_content,omitempty" bson:"text_content,omitempty"`
	Caption      string             `json:"caption,omitempty" bson:"caption,omitempty"`
	ImageKey     string             `json:"-" bson:"image_key,omitempty"`
	ImageURL     string             `json:"image_url,omitempty" bson:"image_url,omitempty"`
	VideoKey     string             `json:"-" bson:"video_key,omitempty"`
	VideoURL     string             `json:"video_url,omitempty" bson:"video_url,omitempty"`
	ThumbnailKey string             `json:"-" bson:"thumbnail_key,omitempty"`
	ThumbnailURL string             `json:"thumbnail_url,omitempty" bson:"thumbnail_url,omitempty"`
	IsActive     bool               `json:"is_active" bson:"is_active"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

var (
	ErrPostTypeRequired = errors.New("post type is required")
	ErrPostTypeInvalid  = errors.New("post type must be one of text, image, video, poll")
	ErrTextRequired     = errors.New("text content is required for text posts")
	ErrPollRequired     = errors.New("a question is required for poll posts")
	ErrImageRequired    = errors.New("an image is required for image posts")
	ErrVideoRequired    = errors.New("a video is required for video posts")
	ErrSingleMedia      = errors.New("only one media type is allowed per post")
	ErrUnexpectedMedia  = errors.New("text and poll posts cannot carry media")
)

// ValidateContent checks that exactly the content field matching PostType is
// populated. hasImage and hasVideo describe media already stored or being
// uploaded with the request.
func (p *Post) ValidateContent(hasImage, hasVideo bool) error {
	if hasImage && hasVideo {
		return ErrSingleMedia
	}
	text := strings.TrimSpace(p.TextContent)
	switch p.PostType {
	case "":
		return ErrPostTypeRequired
	case PostTypeText, PostTypePoll:
		if hasImage || hasVideo {
			return ErrUnexpectedMedia
		}
		if text == "" {
			if p.PostType == PostTypePoll {
				return ErrPollRequired
			}
			return ErrTextRequired
		}
	case PostTypeImage:
		if !hasImage {
			return ErrImageRequired
		}
	case PostTypeVideo:
		if !hasVideo {
			return ErrVideoRequired
		}
	default:
		return ErrPostTypeInvalid
	}
	return nil
}

// HasExtension reports whether name ends in one of exts, case-insensitively.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// PostInput carries the editable fields of a post. Media files travel
// separately as uploads.
type PostInput struct {
	PostType    string `json:"post_type" form:"post_type"`
	TextContent string `json:"text_content" form:"text_content" validate:"max=5000"`
	Caption     string `json:"caption" form:"caption" validate:"max=2200"`
}
