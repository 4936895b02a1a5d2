package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carewire/hms/internal/platform/auth"
	"github.com/carewire/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.Require(auth.CapOrdersRead))
	read.GET("/orders/:id", h.Get)
	read.GET("/orders/:id/results", h.Results)
	read.GET("/orders/queue/:kind", h.Queue)
	read.GET("/patients/:patientId/orders", h.ListByPatient)

	write := api.Group("", auth.Require(auth.CapOrdersWrite))
	write.POST("/orders", h.Create)
	write.POST("/orders/:id/collect-sample", h.MarkSampleCollected)
	write.POST("/orders/:id/schedule", h.Schedule)
	write.POST("/orders/:id/start", h.Start)
	write.POST("/orders/:id/cancel", h.Cancel)

	results := api.Group("", auth.Require(auth.CapResultsWrite))
	results.POST("/orders/items/:itemId/result", h.RecordResult)
}

func (h *Handler) Create(c echo.Context) error {
	var req struct {
		Kind           string     `json:"kind"`
		PatientID      uuid.UUID  `json:"patient_id"`
		ConsultationID *uuid.UUID `json:"consultation_id"`
		Priority       string     `json:"priority"`
		Items          []struct {
			Code  string `json:"code"`
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	o := &Order{
		Kind:           req.Kind,
		PatientID:      req.PatientID,
		ConsultationID: req.ConsultationID,
		Priority:       req.Priority,
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, &OrderItem{Code: it.Code, Name: it.Name, Price: it.Price})
	}
	if err := h.svc.Create(c.Request().Context(), o); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) MarkSampleCollected(c echo.Context) error {
	return h.applyTransition(c, h.svc.MarkSampleCollected)
}

func (h *Handler) Schedule(c echo.Context) error {
	return h.applyTransition(c, h.svc.Schedule)
}

func (h *Handler) Start(c echo.Context) error {
	return h.applyTransition(c, h.svc.Start)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.applyTransition(c, h.svc.Cancel)
}

func (h *Handler) applyTransition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Order, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := op(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) RecordResult(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	var req struct {
		Value string  `json:"value"`
		Notes *string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.RecordResult(c.Request().Context(), itemID, req.Value, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Results(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	results, err := h.svc.Results(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) Queue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Queue(c.Request().Context(), c.Param("kind"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
