package handlers

import (
	"net/http"

	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// LikeHandler handles HTTP requests related to likes
type LikeHandler struct {
	feed *services.FeedService
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(feed *services.FeedService) *LikeHandler {
	return &LikeHandler{feed: feed}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/posts/:id/like", h.ToggleLike)
	g.GET("/posts/:id/likes", h.GetLikers)
}

// ToggleLike likes a post, or removes the like when already present
func (h *LikeHandler) ToggleLike(c echo.Context) error {
	liked, count, err := h.feed.ToggleLike(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"liked": liked, "like_count": count}})
}

// GetLikers lists the users who liked a post
func (h *LikeHandler) GetLikers(c echo.Context) error {
	users, err := h.feed.Likers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"users": users, "count": len(users)}})
}
