package services

import (
	"context"
	"io"
	"math"
	"time"
)

// Broadcaster pushes an event to every live connection of a user.
type Broadcaster interface {
	SendToUser(ctx context.Context, userID uint, event interface{})
}

// Pusher delivers a mobile push notification to a user's devices.
type Pusher interface {
	Push(ctx context.Context, userID uint, title, body string, data map[string]string) error
}

// PresenceTracker records which users are connected right now.
type PresenceTracker interface {
	Touch(ctx context.Context, userID uint, at time.Time) error
	Online(ctx context.Context, userIDs []uint) (map[uint]bool, error)
}

// Upload is a file received with a request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Pagination is the meta block returned with paged lists.
type Pagination struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	ItemsPerPage    int   `json:"itemsPerPage"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

func newPagination(page, limit int, total int64) Pagination {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{
		CurrentPage:     page,
		TotalPages:      totalPages,
		TotalItems:      total,
		ItemsPerPage:    limit,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
