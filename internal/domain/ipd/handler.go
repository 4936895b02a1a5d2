package ipd

import (
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
	read := api.Group("", auth.Require(auth.CapBedsRead))
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/occupancy", h.Occupancy)
	read.GET("/beds/:id", h.GetBed)
	read.GET("/admissions/:id", h.Get)
	read.GET("/admissions/:id/schedules", h.Schedules)
	read.GET("/patients/:patientId/admissions", h.ListByPatient)

	manage := api.Group("", auth.Require(auth.CapBedsManage))
	manage.POST("/beds", h.CreateBed)
	manage.POST("/beds/:id/maintenance", h.SetMaintenance)
	manage.POST("/admissions", h.Admit)
	manage.POST("/admissions/:id/discharge", h.Discharge)
	manage.POST("/admissions/:id/transfer", h.TransferBed)
	manage.POST("/admissions/:id/schedules", h.AddSchedule)
	manage.POST("/schedules/:id/status", h.SetScheduleStatus)
}

func (h *Handler) CreateBed(c echo.Context) error {
	var req struct {
		Ward   string `json:"ward"`
		Number string `json:"number"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := &Bed{Ward: req.Ward, Number: req.Number}
	if err := h.svc.CreateBed(c.Request().Context(), b); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	beds, total, err := h.svc.ListBeds(c.Request().Context(),
		c.QueryParam("ward"), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, pg.Limit, pg.Offset))
}

func (h *Handler) SetMaintenance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Down bool `json:"down"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SetBedMaintenance(c.Request().Context(), id, req.Down)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Occupancy(c echo.Context) error {
	report, err := h.svc.Occupancy(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Admit(c echo.Context) error {
	var req struct {
		PatientID uuid.UUID `json:"patient_id"`
		DoctorID  uuid.UUID `json:"doctor_id"`
		BedID     uuid.UUID `json:"bed_id"`
		Notes     *string   `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a := &Admission{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		BedID:     req.BedID,
		Notes:     req.Notes,
	}
	if err := h.svc.Admit(c.Request().Context(), a); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Type  string  `json:"type"`
		Notes *string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Discharge(c.Request().Context(), id, req.Type, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) TransferBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		BedID uuid.UUID `json:"bed_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.TransferBed(c.Request().Context(), id, req.BedID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	admissions, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(admissions, total, pg.Limit, pg.Offset))
}

func (h *Handler) AddSchedule(c echo.Context) error {
	admissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		MedicineID uuid.UUID `json:"medicine_id"`
		Dosage     string    `json:"dosage"`
		Frequency  string    `json:"frequency"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sch := &MedicationSchedule{
		AdmissionID: admissionID,
		MedicineID:  req.MedicineID,
		Dosage:      req.Dosage,
		Frequency:   req.Frequency,
	}
	if err := h.svc.AddSchedule(c.Request().Context(), sch); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sch)
}

func (h *Handler) SetScheduleStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sch, err := h.svc.SetScheduleStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sch)
}

func (h *Handler) Schedules(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	schedules, err := h.svc.Schedules(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, schedules)
}
