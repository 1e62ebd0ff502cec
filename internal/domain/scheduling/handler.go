package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/pagination"
)

// Handler exposes appointment endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts appointment routes on the authenticated API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/appointments", h.Create, auth.RequireRole(auth.RolePatient))
	g.GET("/appointments", h.List)
	g.GET("/appointments/:id", h.Get)
	g.PATCH("/appointments/:id/status", h.UpdateStatus)
}

type createAppointmentRequest struct {
	DoctorUserID uuid.UUID `json:"doctor_user_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Fee          float64   `json:"fee"`
}

// Create books a new appointment for the authenticated patient.
func (h *Handler) Create(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a := &Appointment{
		DoctorUserID:  req.DoctorUserID,
		PatientUserID: auth.UserIDFromContext(c.Request().Context()),
		Date:          req.Date,
		Time:          req.Time,
		Fee:           req.Fee,
	}

	created, err := h.service.Create(c.Request().Context(), a)
	if err != nil {
		switch {
		case errors.Is(err, ErrSameParticipant), errors.Is(err, ErrMissingSchedule), errors.Is(err, ErrInvalidStatus):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to create appointment")
		}
	}
	return c.JSON(http.StatusCreated, created)
}

// Get returns one appointment; only its participants may read it.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	a, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}

	callerID := auth.UserIDFromContext(c.Request().Context())
	if callerID != a.DoctorUserID && callerID != a.PatientUserID {
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}
	return c.JSON(http.StatusOK, a)
}

// List returns the caller's appointments, newest first.
func (h *Handler) List(c echo.Context) error {
	params := pagination.FromContext(c)
	userID := auth.UserIDFromContext(c.Request().Context())

	items, total, err := h.service.ListByUser(c.Request().Context(), userID, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list appointments")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, params.Limit, params.Offset))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus changes an appointment's status. Callers must be a participant.
func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	callerID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.service.UpdateStatus(c.Request().Context(), id, callerID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		case errors.Is(err, ErrNotParticipant):
			return echo.NewHTTPError(http.StatusForbidden, "not a participant")
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidTransition):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update status")
		}
	}
	return c.JSON(http.StatusOK, a)
}
