package handlers

import (
	"github.com/anonto42/socio/backend/internal/realtime"
	"github.com/labstack/echo/v4"
)

// WSHandler upgrades authenticated requests onto the realtime hub.
type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve runs behind the JWT middleware, so unauthenticated requests are
// refused before the upgrade.
func (h *WSHandler) Serve(c echo.Context) error {
	if err := h.hub.ServeWS(c.Response(), c.Request(), getUserIDFromContext(c)); err != nil {
		c.Logger().Warnf("websocket upgrade failed: %v", err)
	}
	return nil
}
