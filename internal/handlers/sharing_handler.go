package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// SharingHandler cross-posts a user's posts to Facebook, Instagram and LinkedIn.
type SharingHandler struct {
	sharing *services.SharingService
}

func NewSharingHandler(sharing *services.SharingService) *SharingHandler {
	return &SharingHandler{sharing: sharing}
}

// RegisterSharingRoutes registers the authenticated sharing routes.
func (h *SharingHandler) RegisterSharingRoutes(g *echo.Group) {
	g.GET("/sharing/configs", h.GetConfigs)
	g.PUT("/sharing/facebook/config", h.SaveFacebookConfig)
	g.PUT("/sharing/linkedin/config", h.SaveLinkedInConfig)
	g.POST("/sharing/facebook/:id", h.ShareFacebook)
	g.POST("/sharing/instagram/:id", h.ShareInstagram)
	g.POST("/sharing/linkedin/:id", h.ShareLinkedIn)
}

// RegisterCallbackRoutes registers the OAuth callback. It is public: the
// signed state identifies the user.
func (h *SharingHandler) RegisterCallbackRoutes(g *echo.Group) {
	g.GET("/sharing/linkedin/callback", h.LinkedInCallback)
}

func (h *SharingHandler) GetConfigs(c echo.Context) error {
	cfgs, err := h.sharing.Configs(getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": cfgs})
}

func (h *SharingHandler) SaveFacebookConfig(c echo.Context) error {
	var req models.FacebookConfigRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cfg, err := h.sharing.SaveFacebookConfig(getUserIDFromContext(c), &req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": cfg})
}

func (h *SharingHandler) SaveLinkedInConfig(c echo.Context) error {
	var req models.LinkedInConfigRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cfg, err := h.sharing.SaveLinkedInConfig(getUserIDFromContext(c), &req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": cfg})
}

func (h *SharingHandler) share(c echo.Context, publish func(context.Context, uint, string) (*services.ShareResult, error)) error {
	result, err := publish(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

func (h *SharingHandler) ShareFacebook(c echo.Context) error {
	return h.share(c, h.sharing.ShareFacebook)
}

func (h *SharingHandler) ShareInstagram(c echo.Context) error {
	return h.share(c, h.sharing.ShareInstagram)
}

// ShareLinkedIn publishes right away when the member token is stored;
// otherwise it answers with the authorization URL to open.
func (h *SharingHandler) ShareLinkedIn(c echo.Context) error {
	result, authURL, err := h.sharing.ShareLinkedIn(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	if authURL != "" {
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"data":    echo.Map{"requires_auth": true, "auth_url": authURL},
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

func (h *SharingHandler) LinkedInCallback(c echo.Context) error {
	if msg := c.QueryParam("error_description"); msg != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "LinkedIn authorization failed: "+msg)
	}
	result, err := h.sharing.CompleteLinkedIn(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}
