package handlers

import (
	"net/http"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	auth *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/signup", h.Signup)
	g.GET("/confirm/:token", h.Confirm)
	g.POST("/signin", h.SignIn)
	g.POST("/firebase-login", h.FirebaseLogin)
}

// Signup stores a pending registration and mails the confirmation link.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req models.SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.auth.Signup(c.Request().Context(), req.Email, req.Password); err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data": echo.Map{
			"message": "Confirmation email sent. Follow the link to activate your account.",
		},
	})
}

// Confirm redeems an emailed token and activates the account.
func (h *AuthHandler) Confirm(c echo.Context) error {
	user, created, err := h.auth.Confirm(c.Request().Context(), c.Param("token"))
	if err != nil {
		return toHTTPError(err)
	}
	if !created {
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"data":    echo.Map{"message": "Account already activated. Please sign in."},
		})
	}

	token, err := h.auth.IssueToken(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data": echo.Map{
			"message": "Account activated",
			"token":   token,
			"user":    user,
		},
	})
}

// SignIn handles local user authentication with email and password
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := h.auth.SignIn(req.Email, req.Password)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"token": token, "user": user}})
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin verifies a Firebase ID token and issues a local JWT
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := h.auth.FirebaseLogin(c.Request().Context(), req.IDToken)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"token": token, "user": user}})
}
