package treatment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/immunotrack/immunotrack/internal/platform/db"
	"github.com/immunotrack/immunotrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/treatment-events", h.SubmitEvent)
	api.GET("/treatment-queue/status", h.QueueStatus)
	api.GET("/patients/:id/treatment-view", h.GetTreatmentView)
	api.GET("/patients/:id/last-treatment", h.GetLastTreatment)
	api.GET("/patients/:id/treatment-log", h.GetTreatmentLog)
	api.PUT("/inventory-usages/:id/reaction", h.UpdateReaction)
}

// SubmitEvent accepts a treatment-applied event and queues it. Processing is
// asynchronous; the response only acknowledges receipt.
func (h *Handler) SubmitEvent(c echo.Context) error {
	var evt TreatmentAppliedEvent
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if evt.OrganizationID == "" {
		evt.OrganizationID = db.OrgFromContext(c.Request().Context())
	}
	id, err := h.svc.EnqueueTreatmentApplied(&evt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"event_id": id,
		"status":   "queued",
	})
}

func (h *Handler) QueueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.QueueStatus())
}

func (h *Handler) GetTreatmentView(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	view, err := h.svc.ConsolidatedView(c.Request().Context(), patientID, db.OrgFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if view == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no treatment record for patient")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetLastTreatment(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	prefill, err := h.svc.LastTreatment(c.Request().Context(), patientID, db.OrgFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if prefill == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no previous treatment for patient")
	}
	return c.JSON(http.StatusOK, prefill)
}

func (h *Handler) GetTreatmentLog(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.TreatmentLog(c.Request().Context(), patientID, db.OrgFromContext(c.Request().Context()), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

type reactionUpdateRequest struct {
	ReactionOccurred    bool    `json:"reaction_occurred"`
	ReactionDescription *string `json:"reaction_description"`
}

func (h *Handler) UpdateReaction(c echo.Context) error {
	usageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid usage id")
	}
	var req reactionUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateReactionOnUsage(c.Request().Context(), usageID, req.ReactionOccurred, req.ReactionDescription); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}
