package messaging

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/internal/platform/uploads"
	"github.com/telemed/telemed/pkg/pagination"
)

// Handler exposes the REST side of messaging: threads, history and a
// store-and-forward send for clients without a live socket.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts messaging routes on the authenticated API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/messages/threads", h.Threads)
	g.GET("/messages/conversation/:userId", h.Conversation)
	g.POST("/messages/send", h.Send)
}

// Threads returns the caller's chat list.
func (h *Handler) Threads(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	threads, err := h.service.BuildThreads(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load threads")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"threads": threads})
}

// Conversation returns the message history with one contact, oldest first.
func (h *Handler) Conversation(c echo.Context) error {
	other, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	params := pagination.FromContext(c)
	caller := auth.UserIDFromContext(c.Request().Context())

	messages, total, err := h.service.Conversation(c.Request().Context(), caller, other, params.Limit, params.Offset)
	if err != nil {
		if errors.Is(err, ErrNotRelated) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load conversation")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(messages, total, params.Limit, params.Offset))
}

type sendMessageRequest struct {
	ReceiverID uuid.UUID           `json:"receiverId"`
	Text       string              `json:"text"`
	Attachment *uploads.Attachment `json:"attachment,omitempty"`
}

// Send persists a message over HTTP. Realtime delivery still happens through
// the socket relay when the receiver is connected; this endpoint only stores.
func (h *Handler) Send(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sender := auth.UserIDFromContext(c.Request().Context())
	m, err := h.service.SendMessage(c.Request().Context(), sender, req.ReceiverID, req.Text, req.Attachment)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrSelfMessage):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotRelated):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to send message")
		}
	}
	return c.JSON(http.StatusCreated, m)
}
