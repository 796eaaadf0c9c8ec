package handlers

import (
	"net/http"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	users *services.UserService
	feed  *services.FeedService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users *services.UserService, feed *services.FeedService) *UserHandler {
	return &UserHandler{users: users, feed: feed}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.POST("/profile/devices", h.RegisterDevice)
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:id", h.GetUser)
	g.GET("/users/:id/posts", h.GetUserPosts)
}

// GetProfile returns the authenticated user's own profile.
func (h *UserHandler) GetProfile(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	profile, err := h.users.Profile(c.Request().Context(), currentUserID, currentUserID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": profile})
}

func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	profile, err := h.users.Profile(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": profile})
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.users.UpdateProfile(getUserIDFromContext(c), &req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": user})
}

// SearchUsers matches ?q= against usernames and names.
func (h *UserHandler) SearchUsers(c echo.Context) error {
	users, err := h.users.Search(c.QueryParam("q"))
	if err != nil {
		return toHTTPError(err)
	}
	compact := make([]models.UserCompact, len(users))
	for i := range users {
		compact[i] = users[i].ToCompact()
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"users": compact}})
}

// GetUserPosts pages through another user's posts.
func (h *UserHandler) GetUserPosts(c echo.Context) error {
	id, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	items, meta, err := h.feed.UserPosts(c.Request().Context(), getUserIDFromContext(c), id, pageParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"posts": items}, "meta": meta})
}

// RegisterDevice stores an FCM token for push notifications.
func (h *UserHandler) RegisterDevice(c echo.Context) error {
	var req models.RegisterDeviceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.users.RegisterDevice(getUserIDFromContext(c), &req); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"registered": true}})
}
