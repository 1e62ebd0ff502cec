package calls

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/pagination"
)

// Handler exposes call log endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts call log routes on the authenticated API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/calls", h.Start)
	g.PATCH("/calls/:id/complete", h.Complete)
	g.GET("/calls/my", h.History)
}

type startCallRequest struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

// Start opens a call log when the caller begins ringing.
func (h *Handler) Start(c echo.Context) error {
	var req startCallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	caller := auth.UserIDFromContext(c.Request().Context())
	cl, err := h.service.Start(c.Request().Context(), caller, req.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfCall):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotRelated):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to start call")
		}
	}
	return c.JSON(http.StatusCreated, cl)
}

type completeCallRequest struct {
	Status string `json:"status"`
}

// Complete closes a call with its final outcome.
func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid call id")
	}

	var req completeCallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		req.Status = StatusCompleted
	}

	caller := auth.UserIDFromContext(c.Request().Context())
	cl, err := h.service.Complete(c.Request().Context(), id, caller, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "call not found")
		case errors.Is(err, ErrNotParticipant):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrInvalidOutcome):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to complete call")
		}
	}
	return c.JSON(http.StatusOK, cl)
}

// History returns the caller's call logs, newest first.
func (h *Handler) History(c echo.Context) error {
	params := pagination.FromContext(c)
	userID := auth.UserIDFromContext(c.Request().Context())

	items, total, err := h.service.History(c.Request().Context(), userID, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list calls")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, params.Limit, params.Offset))
}
