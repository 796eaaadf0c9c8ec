package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// ChatHandler serves direct messaging between friends.
type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// RegisterChatRoutes registers chat routes. :user_id is always the peer.
func (h *ChatHandler) RegisterChatRoutes(g *echo.Group) {
	g.GET("/chat/conversations", h.GetConversations)
	g.GET("/chat/statuses", h.GetFriendStatuses)
	g.POST("/chat/heartbeat", h.Heartbeat)
	g.GET("/chat/:user_id/messages", h.GetHistory)
	g.GET("/chat/:user_id/unread", h.GetUnreadCount)
	g.POST("/chat/messages", h.SendMessage)
	g.POST("/chat/files", h.SendFile)
	g.POST("/chat/voice", h.SendVoice)
	g.DELETE("/chat/messages/:id", h.DeleteMessage)
	g.GET("/chat/messages/:id/download", h.Download)
}

// GetHistory returns the conversation with a friend and marks it read.
func (h *ChatHandler) GetHistory(c echo.Context) error {
	peerID, err := idParam(c, "user_id", "user")
	if err != nil {
		return err
	}
	messages, err := h.chat.History(c.Request().Context(), getUserIDFromContext(c), peerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"messages": messages}})
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.chat.SendText(c.Request().Context(), getUserIDFromContext(c), req.ReceiverID, req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"message": msg}})
}

// SendFile accepts a multipart upload with receiver_id, file and an optional caption.
func (h *ChatHandler) SendFile(c echo.Context) error {
	receiverID, err := strconv.ParseUint(c.FormValue("receiver_id"), 10, 32)
	if err != nil || receiverID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "receiver_id is required")
	}
	up, f, err := formUpload(c, "file")
	if err != nil {
		return err
	}
	if up == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	defer closeFiles(f)

	msg, err := h.chat.SendFile(c.Request().Context(), getUserIDFromContext(c), uint(receiverID), *up, c.FormValue("caption"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"message": msg}})
}

// SendVoice accepts base64 audio, optionally as a data URL.
func (h *ChatHandler) SendVoice(c echo.Context) error {
	var req models.SendVoiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.chat.SendVoice(c.Request().Context(), getUserIDFromContext(c), req.ReceiverID, req.AudioData)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"message": msg}})
}

func (h *ChatHandler) DeleteMessage(c echo.Context) error {
	id, err := idParam(c, "id", "message")
	if err != nil {
		return err
	}
	var req models.DeleteMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.chat.Delete(c.Request().Context(), getUserIDFromContext(c), id, req.DeleteType); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"id": id, "delete_type": req.DeleteType}})
}

// Download streams an attachment to a participant who can still see it.
func (h *ChatHandler) Download(c echo.Context) error {
	id, err := idParam(c, "id", "message")
	if err != nil {
		return err
	}
	rc, msg, err := h.chat.OpenAttachment(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return toHTTPError(err)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(msg.FileName))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", msg.FileName))
	if msg.FileSize > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(msg.FileSize, 10))
	}
	return c.Stream(http.StatusOK, contentType, io.Reader(rc))
}

func (h *ChatHandler) GetConversations(c echo.Context) error {
	conversations, err := h.chat.Conversations(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversations": conversations}})
}

func (h *ChatHandler) GetFriendStatuses(c echo.Context) error {
	statuses, err := h.chat.FriendStatuses(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"friends": statuses}})
}

func (h *ChatHandler) GetUnreadCount(c echo.Context) error {
	peerID, err := idParam(c, "user_id", "user")
	if err != nil {
		return err
	}
	count, err := h.chat.UnreadCount(getUserIDFromContext(c), peerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// Heartbeat keeps the caller marked online between websocket sessions.
func (h *ChatHandler) Heartbeat(c echo.Context) error {
	if err := h.chat.Heartbeat(c.Request().Context(), getUserIDFromContext(c)); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"online": true}})
}
