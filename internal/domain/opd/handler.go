package opd

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
	read := api.Group("", auth.Require(auth.CapQueueRead))
	read.GET("/opd/queue/:doctorId", h.Queue)
	read.GET("/opd/tokens/:id", h.GetToken)
	read.GET("/opd/tokens/:id/wait", h.EstimatedWait)

	manage := api.Group("", auth.Require(auth.CapQueueManage))
	manage.POST("/opd/tokens", h.CreateToken)
	manage.POST("/opd/queue/:doctorId/call-next", h.CallNext)
	manage.POST("/opd/tokens/:id/cancel", h.CancelToken)
	manage.POST("/opd/tokens/:id/no-show", h.MarkNoShow)

	consult := api.Group("", auth.Require(auth.CapConsultWrite))
	consult.POST("/opd/tokens/:id/start", h.StartConsultation)
	consult.POST("/opd/consultations/:id/complete", h.CompleteConsultation)

	consultRead := api.Group("", auth.Require(auth.CapQueueRead))
	consultRead.GET("/opd/consultations/:id", h.GetConsultation)
	consultRead.GET("/opd/patients/:patientId/consultations", h.ListConsultations)
}

func (h *Handler) CreateToken(c echo.Context) error {
	var req struct {
		DoctorID  uuid.UUID `json:"doctor_id"`
		PatientID uuid.UUID `json:"patient_id"`
		Priority  int       `json:"priority"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t := &Token{DoctorID: req.DoctorID, PatientID: req.PatientID, Priority: req.Priority}
	if err := h.svc.CreateToken(c.Request().Context(), t); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetToken(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CallNext(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	t, err := h.svc.CallNext(c.Request().Context(), doctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CancelToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.CancelToken(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) EstimatedWait(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	minutes, err := h.svc.EstimatedWaitMinutes(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"estimated_wait_minutes": minutes})
}

func (h *Handler) Queue(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	date := time.Now().UTC()
	if d := c.QueryParam("date"); d != "" {
		date, err = time.Parse("2006-01-02", d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		}
	}
	snap, err := h.svc.Queue(c.Request().Context(), doctorID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	consult, err := h.svc.StartConsultation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, consult)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Symptoms  *string `json:"symptoms"`
		Diagnosis *string `json:"diagnosis"`
		Notes     *string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	consult, err := h.svc.CompleteConsultation(c.Request().Context(), id, req.Symptoms, req.Diagnosis, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	consult, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultationsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
