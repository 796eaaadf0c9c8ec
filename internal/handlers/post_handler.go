package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	feed *services.FeedService
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(feed *services.FeedService) *PostHandler {
	return &PostHandler{feed: feed}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.PUT("/posts/:id", h.UpdatePost)
	g.DELETE("/posts/:id", h.DeletePost)
}

// postForm reads the post fields and optional image/video files of a
// multipart or JSON request.
func postForm(c echo.Context) (in models.PostInput, image, video *services.Upload, files []multipart.File, err error) {
	if err = bindAndValidate(c, &in); err != nil {
		return in, nil, nil, nil, err
	}
	image, imageFile, err := formUpload(c, "image")
	if err != nil {
		return in, nil, nil, nil, err
	}
	video, videoFile, err := formUpload(c, "video")
	if err != nil {
		closeFiles(imageFile)
		return in, nil, nil, nil, err
	}
	return in, image, video, []multipart.File{imageFile, videoFile}, nil
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	in, image, video, files, err := postForm(c)
	if err != nil {
		return err
	}
	defer closeFiles(files...)

	item, err := h.feed.CreatePost(c.Request().Context(), getUserIDFromContext(c), in, image, video)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"post": item}})
}

// GetPost retrieves a post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	item, err := h.feed.GetPost(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"post": item}})
}

// UpdatePost edits text and caption and optionally replaces media.
func (h *PostHandler) UpdatePost(c echo.Context) error {
	in, image, video, files, err := postForm(c)
	if err != nil {
		return err
	}
	defer closeFiles(files...)

	item, err := h.feed.EditPost(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), in, image, video)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"post": item}})
}

// DeletePost deletes a post together with its likes, comments and bookmarks
func (h *PostHandler) DeletePost(c echo.Context) error {
	if err := h.feed.DeletePost(c.Request().Context(), getUserIDFromContext(c), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
