package activity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	g.POST("/activities", h.AddActivity)
	g.GET("/activities", h.ListByDate)
	g.GET("/activities/stats", h.StatsByDate)
	g.GET("/activities/dates", h.ListDates)
}

type addRequest struct {
	Type        string    `json:"type"`
	EpisodeID   uuid.UUID `json:"episode_id"`
	PatientName string    `json:"patient_name"`
	Details     string    `json:"details"`
}

func (h *Handler) AddActivity(c echo.Context) error {
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Add(c.Request().Context(), Type(req.Type), req.EpisodeID,
		req.PatientName, req.Details, auth.ActorFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListByDate(c echo.Context) error {
	day := c.QueryParam("date")
	entries, err := h.svc.ByDate(c.Request().Context(), day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":       day,
		"activities": entries,
	})
}

func (h *Handler) StatsByDate(c echo.Context) error {
	day := c.QueryParam("date")
	stats, err := h.svc.StatsByDate(c.Request().Context(), day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListDates(c echo.Context) error {
	days, err := h.svc.Dates(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dates": days})
}
