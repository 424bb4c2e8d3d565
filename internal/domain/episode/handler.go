package episode

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

// ActivityLogger receives notable front-desk events for the daily activity
// journal. Implementations must be non-blocking on the request path; a nil
// logger disables recording.
type ActivityLogger interface {
	LogActivity(ctx context.Context, kind string, episodeID uuid.UUID, patientName, details string, actor auth.Actor)
}

type Handler struct {
	svc      *Service
	activity ActivityLogger
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SetActivityLogger attaches an optional activity journal to the handler.
func (h *Handler) SetActivityLogger(l ActivityLogger) {
	h.activity = l
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, registrar
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	readGroup.GET("/episodes", h.ListEpisodes)
	readGroup.GET("/episodes/:id", h.GetEpisode)
	readGroup.GET("/episodes/:id/history", h.GetHistory)
	readGroup.GET("/episodes/:id/lab-exams", h.GetLabExams)

	// Intake endpoints – admin, physician, nurse, registrar
	intakeGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	intakeGroup.POST("/episodes", h.CreateEpisode)
	intakeGroup.PATCH("/episodes/:id", h.UpdateEpisode)
	intakeGroup.POST("/episodes/:id/clone", h.CloneEpisode)
	intakeGroup.POST("/episodes/import", h.ImportEpisodes)

	// Care endpoints – admin, physician, nurse
	careGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	careGroup.POST("/episodes/:id/take-charge", h.TakeCharge)
	careGroup.POST("/episodes/:id/complete", h.Complete)
	careGroup.POST("/episodes/:id/lab-exams", h.RequestLabExams)
	careGroup.POST("/episodes/:id/lab-exams/perform", h.PerformLabExams)
	careGroup.POST("/episodes/:id/service-records", h.AddServiceRecord)
	careGroup.PATCH("/episodes/:id/service-records", h.UpdateServiceHistory)
}

// httpError maps the domain sentinels onto HTTP statuses. Anything not in
// the taxonomy is treated as a bad request.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) log(c echo.Context, kind string, ep *Episode, details string) {
	if h.activity == nil || ep == nil {
		return
	}
	h.activity.LogActivity(c.Request().Context(), kind, ep.ID, ep.Name, details, auth.ActorFromContext(c.Request().Context()))
}

func serviceKind(svc ServiceType) string {
	switch svc {
	case ServiceConsultation:
		return "consultation"
	case ServiceEmergency:
		return "emergency"
	default:
		return "visit"
	}
}

func (h *Handler) CreateEpisode(c echo.Context) error {
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.svc.Create(c.Request().Context(), draft, auth.ActorFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	h.log(c, "registration", ep, string(ep.Service))
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) GetEpisode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, episodeView(ep))
}

func (h *Handler) ListEpisodes(c echo.Context) error {
	pg := pagination.FromContext(c)
	eps, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(eps, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateEpisode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var fields UpdateFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Update(c.Request().Context(), id, fields, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, episodeView(ep))
}

func (h *Handler) TakeCharge(c echo.Context) error {
	return h.transition(c, "take charge", h.svc.TakeCharge)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, "complete", h.svc.Complete)
}

func (h *Handler) transition(c echo.Context, details string, fn func(context.Context, uuid.UUID, auth.Actor) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	h.log(c, "status_change", ep, details)
	return c.JSON(http.StatusOK, episodeView(ep))
}

type cloneRequest struct {
	Service string `json:"service"`
}

func (h *Handler) CloneEpisode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cloneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	svc, err := ParseServiceType(req.Service)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.svc.CloneForNewService(c.Request().Context(), id, svc, auth.ActorFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	h.log(c, "service_assignment", ep, string(ep.Service))
	return c.JSON(http.StatusCreated, ep)
}

type importRequest struct {
	Rows []ImportRow `json:"rows"`
}

func (h *Handler) ImportEpisodes(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.BulkImport(c.Request().Context(), req.Rows, auth.ActorFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	for _, ep := range res.Created {
		h.log(c, "registration", ep, string(ep.Service))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"modification_history": ep.ModificationHistory,
	})
}

type labExamsRequest struct {
	Exams []LabExamRequest `json:"exams"`
}

func (h *Handler) RequestLabExams(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req labExamsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RequestExams(c.Request().Context(), id, req.Exams, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	h.log(c, "lab_exam", ep, "requested")
	return c.JSON(http.StatusOK, labExamsView(ep))
}

type performRequest struct {
	// Results keys are indexes into the current pending list.
	Results map[int]string `json:"results"`
}

func (h *Handler) PerformLabExams(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req performRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.PerformExams(c.Request().Context(), id, req.Results, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	h.log(c, "lab_exam", ep, "performed")
	return c.JSON(http.StatusOK, labExamsView(ep))
}

func (h *Handler) GetLabExams(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, labExamsView(ep))
}

type serviceRecordRequest struct {
	ServiceType string                 `json:"service_type"`
	ServiceData map[string]interface{} `json:"service_data"`
}

func (h *Handler) AddServiceRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req serviceRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var svc ServiceType
	if req.ServiceType != "" {
		svc, err = ParseServiceType(req.ServiceType)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.svc.AddServiceRecord(c.Request().Context(), id, svc, req.ServiceData, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	h.log(c, serviceKind(ep.Service), ep, "service record added")
	return c.JSON(http.StatusOK, episodeView(ep))
}

type serviceHistoryPatch struct {
	Date  time.Time              `json:"date"`
	Patch map[string]interface{} `json:"patch"`
}

func (h *Handler) UpdateServiceHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req serviceHistoryPatch
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Date.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	if err := h.svc.UpdateServiceHistory(c.Request().Context(), id, req.Date, req.Patch, auth.ActorFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	ep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, episodeView(ep))
}

// episodeView enriches the stored episode with its derived priority for API
// consumers.
func episodeView(ep *Episode) map[string]interface{} {
	return map[string]interface{}{
		"episode":  ep,
		"priority": ep.Priority(),
	}
}

func labExamsView(ep *Episode) map[string]interface{} {
	return map[string]interface{}{
		"pending":   ep.PendingLabExams,
		"completed": ep.CompletedLabExams,
	}
}
