package billing

import (
	"net/http"
	"time"

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
	read := api.Group("", auth.Require(auth.CapBillingRead))
	read.GET("/bills/:id", h.Get)
	read.GET("/bills/:id/payments", h.Payments)
	read.GET("/bills/outstanding", h.Outstanding)
	read.GET("/patients/:patientId/bills", h.ListByPatient)

	write := api.Group("", auth.Require(auth.CapBillingWrite))
	write.POST("/bills", h.Create)
	write.POST("/bills/:id/payments", h.RecordPayment)
	write.POST("/bills/:id/cancel", h.Cancel)
	write.POST("/bills/:id/refund", h.Refund)

	reports := api.Group("", auth.Require(auth.CapReportsRead))
	reports.GET("/reports/revenue", h.Revenue)
	reports.GET("/reports/revenue/today", h.TodayRevenue)
}

func (h *Handler) Create(c echo.Context) error {
	var req struct {
		BillType  string    `json:"bill_type"`
		PatientID uuid.UUID `json:"patient_id"`
		Discount  int64     `json:"discount"`
		Tax       int64     `json:"tax"`
		Items     []struct {
			Description string     `json:"description"`
			Quantity    int64      `json:"quantity"`
			UnitPrice   int64      `json:"unit_price"`
			OrderKind   *string    `json:"order_kind"`
			OrderID     *uuid.UUID `json:"order_id"`
		} `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	b := &Bill{
		BillType:  req.BillType,
		PatientID: req.PatientID,
		Discount:  req.Discount,
		Tax:       req.Tax,
	}
	for _, it := range req.Items {
		b.Items = append(b.Items, &BillItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			OrderKind:   it.OrderKind,
			OrderID:     it.OrderID,
		})
	}
	if err := h.svc.Create(c.Request().Context(), b); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Amount    int64   `json:"amount"`
		Method    string  `json:"method"`
		Reference *string `json:"reference"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.RecordPayment(c.Request().Context(), id, req.Amount, req.Method, req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Reference *string `json:"reference"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Refund(c.Request().Context(), id, req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Payments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	payments, err := h.svc.Payments(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	bills, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg.Limit, pg.Offset))
}

func (h *Handler) Outstanding(c echo.Context) error {
	patientID := uuid.Nil
	if p := c.QueryParam("patient_id"); p != "" {
		var err error
		patientID, err = uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}
	pg := pagination.FromContext(c)
	bills, total, err := h.svc.Outstanding(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg.Limit, pg.Offset))
}

func (h *Handler) Revenue(c echo.Context) error {
	from, err := time.Parse("2006-01-02", c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
	}
	// The range is inclusive of the last day.
	summary, err := h.svc.Revenue(c.Request().Context(), from, to.Add(24*time.Hour))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) TodayRevenue(c echo.Context) error {
	summary, err := h.svc.TodayRevenue(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
