package handlers

import (
	"net/http"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// FriendshipHandler handles HTTP requests related to friendships
type FriendshipHandler struct {
	social *services.SocialService
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(social *services.SocialService) *FriendshipHandler {
	return &FriendshipHandler{social: social}
}

// RegisterFriendshipRoutes registers friendship-related routes. Request
// routes take the other user's id: the requester for accept and reject, the
// target for cancel.
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.GET("/friends", h.GetFriendsPage)
	g.GET("/friends/discover", h.Discover)
	g.POST("/friends/requests", h.SendFriendRequest)
	g.POST("/friends/requests/:id/accept", h.AcceptFriendRequest)
	g.POST("/friends/requests/:id/reject", h.RejectFriendRequest)
	g.DELETE("/friends/requests/:id", h.CancelFriendRequest)
	g.DELETE("/friends/:id", h.DeleteFriend)
}

// SendFriendRequest handles sending a friend request. Repeating a request
// returns the existing one with 200.
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	var req models.CreateFriendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	friendRequest, created, err := h.social.SendRequest(c.Request().Context(), getUserIDFromContext(c), req.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"success": true, "data": echo.Map{"request": friendRequest, "created": created}})
}

func (h *FriendshipHandler) AcceptFriendRequest(c echo.Context) error {
	fromID, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	friendRequest, err := h.social.Accept(c.Request().Context(), getUserIDFromContext(c), fromID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"request": friendRequest}})
}

func (h *FriendshipHandler) RejectFriendRequest(c echo.Context) error {
	fromID, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	if err := h.social.Reject(getUserIDFromContext(c), fromID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FriendshipHandler) CancelFriendRequest(c echo.Context) error {
	toID, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	if err := h.social.Cancel(getUserIDFromContext(c), toID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteFriend removes an accepted friendship in either direction.
func (h *FriendshipHandler) DeleteFriend(c echo.Context) error {
	friendID, err := idParam(c, "id", "user")
	if err != nil {
		return err
	}
	if err := h.social.Unfriend(getUserIDFromContext(c), friendID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetFriendsPage returns friends, sent and received requests, and suggestions.
func (h *FriendshipHandler) GetFriendsPage(c echo.Context) error {
	page, err := h.social.FriendsPage(getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": page})
}

func (h *FriendshipHandler) Discover(c echo.Context) error {
	users, err := h.social.Discover(getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"users": users}})
}
