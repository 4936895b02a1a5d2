package pharmacy

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carewire/hms/internal/domain/inventory"
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
	read := api.Group("", auth.Require(auth.CapPharmacyRead))
	read.GET("/pharmacy/medicines", h.ListMedicines)
	read.GET("/pharmacy/medicines/:id", h.GetMedicine)
	read.GET("/pharmacy/prescriptions/:id", h.GetPrescription)
	read.GET("/pharmacy/queue", h.Queue)
	read.GET("/patients/:patientId/prescriptions", h.ListByPatient)

	write := api.Group("", auth.Require(auth.CapPharmacyWrite))
	write.POST("/pharmacy/medicines", h.CreateMedicine)
	write.PUT("/pharmacy/medicines/:id", h.UpdateMedicine)
	write.POST("/pharmacy/prescriptions", h.CreatePrescription)
	write.POST("/pharmacy/prescriptions/:id/dispense", h.Dispense)
	write.POST("/pharmacy/prescriptions/:id/dispense-all", h.DispenseAll)
	write.POST("/pharmacy/prescriptions/:id/cancel", h.CancelPrescription)
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var it inventory.Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateMedicine(c.Request().Context(), &it); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var it inventory.Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	it.ID = id
	if err := h.svc.UpdateMedicine(c.Request().Context(), &it); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	it, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	pg := pagination.FromContext(c)
	lowOnly := c.QueryParam("low_stock") == "true"
	items, total, err := h.svc.ListMedicines(c.Request().Context(), lowOnly, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req struct {
		PatientID      uuid.UUID  `json:"patient_id"`
		DoctorID       uuid.UUID  `json:"doctor_id"`
		ConsultationID *uuid.UUID `json:"consultation_id"`
		Notes          *string    `json:"notes"`
		Items          []struct {
			MedicineID uuid.UUID `json:"medicine_id"`
			Dosage     string    `json:"dosage"`
			Quantity   int64     `json:"quantity"`
		} `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p := &Prescription{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		ConsultationID: req.ConsultationID,
		Notes:          req.Notes,
	}
	for _, it := range req.Items {
		p.Items = append(p.Items, &PrescriptionItem{
			MedicineID: it.MedicineID,
			Dosage:     it.Dosage,
			Quantity:   it.Quantity,
		})
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		ItemID   uuid.UUID `json:"item_id"`
		Quantity int64     `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Dispense(c.Request().Context(), id, req.ItemID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DispenseAll(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.DispenseAll(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CancelPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.CancelPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
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

func (h *Handler) Queue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Queue(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
