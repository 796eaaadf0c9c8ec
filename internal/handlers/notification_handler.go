package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, userRepo repositories.UserRepository) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		userRepository:         userRepo,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// EnrichedNotification includes actor info
type EnrichedNotification struct {
	models.Notification
	Actor models.UserCompact `json:"actor"`
}

// enrichNotifications attaches actors with a single user lookup.
func (h *NotificationHandler) enrichNotifications(notifications []models.Notification) ([]EnrichedNotification, error) {
	enriched := make([]EnrichedNotification, len(notifications))
	ids := make([]uint, 0, len(notifications))
	seen := make(map[uint]bool)
	for _, n := range notifications {
		if !seen[n.ActorID] {
			seen[n.ActorID] = true
			ids = append(ids, n.ActorID)
		}
	}
	actors, err := h.userRepository.GetUsersByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(actors))
	for i := range actors {
		byID[actors[i].ID] = actors[i].ToCompact()
	}
	for i, n := range notifications {
		enriched[i] = EnrichedNotification{Notification: n, Actor: byID[n.ActorID]}
	}
	return enriched, nil
}

// GetNotifications returns paginated notifications. ?unread=true limits the
// list to unread ones.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)

	page := pageParam(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 50 {
		limit = 20
	}
	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread"))

	notifications, total, err := h.notificationRepository.GetByRecipientID(currentUserID, unreadOnly, page, limit)
	if err != nil {
		return toHTTPError(err)
	}
	enriched, err := h.enrichNotifications(notifications)
	if err != nil {
		return toHTTPError(err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": enriched,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)

	today, yesterday, thisWeek, older, err := h.notificationRepository.GetGrouped(currentUserID, time.Now())
	if err != nil {
		return toHTTPError(err)
	}

	groups := echo.Map{}
	for name, list := range map[string][]models.Notification{
		"today":     today,
		"yesterday": yesterday,
		"thisWeek":  thisWeek,
		"older":     older,
	} {
		enriched, err := h.enrichNotifications(list)
		if err != nil {
			return toHTTPError(err)
		}
		groups[name] = enriched
	}

	unreadCount, err := h.notificationRepository.GetUnreadCount(currentUserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": groups,
			"unreadCount":   unreadCount,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	count, err := h.notificationRepository.GetUnreadCount(getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks one of the user's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	notifID, err := idParam(c, "id", "notification")
	if err != nil {
		return err
	}

	n, err := h.notificationRepository.MarkAsRead(notifID, getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	if n == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	n, err := h.notificationRepository.MarkAllAsRead(getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true, "updated": n}})
}
