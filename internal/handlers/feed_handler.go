package handlers

import (
	"net/http"

	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	feed *services.FeedService
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(feed *services.FeedService) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
	g.GET("/feed/mine", h.GetYourFeed)
	g.GET("/feed/saved", h.GetSavedPosts)
	g.POST("/posts/:id/bookmark", h.ToggleBookmark)
}

func (h *FeedHandler) page(c echo.Context, load func(uint, int) ([]services.FeedItem, services.Pagination, error)) error {
	items, meta, err := load(getUserIDFromContext(c), pageParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"posts": items},
		"meta":    meta,
	})
}

// GetFeed returns posts by the user and their friends, newest first
func (h *FeedHandler) GetFeed(c echo.Context) error {
	return h.page(c, func(uid uint, page int) ([]services.FeedItem, services.Pagination, error) {
		return h.feed.Feed(c.Request().Context(), uid, page)
	})
}

func (h *FeedHandler) GetYourFeed(c echo.Context) error {
	return h.page(c, func(uid uint, page int) ([]services.FeedItem, services.Pagination, error) {
		return h.feed.YourFeed(c.Request().Context(), uid, page)
	})
}

func (h *FeedHandler) GetSavedPosts(c echo.Context) error {
	return h.page(c, func(uid uint, page int) ([]services.FeedItem, services.Pagination, error) {
		return h.feed.SavedPosts(c.Request().Context(), uid, page)
	})
}

// ToggleBookmark saves or unsaves a post
func (h *FeedHandler) ToggleBookmark(c echo.Context) error {
	saved, err := h.feed.ToggleBookmark(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"saved": saved}})
}
