package inventory

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
	read := api.Group("", auth.Require(auth.CapInventoryRead))
	read.GET("/inventory/items", h.ListItems)
	read.GET("/inventory/items/:id", h.GetItem)
	read.GET("/inventory/items/:id/movements", h.MovementHistory)
	read.GET("/inventory/low-stock", h.LowStock)
	read.GET("/inventory/purchase-orders", h.ListPurchaseOrders)
	read.GET("/inventory/purchase-orders/:id", h.GetPurchaseOrder)

	write := api.Group("", auth.Require(auth.CapInventoryWrite))
	write.POST("/inventory/items", h.CreateItem)
	write.PUT("/inventory/items/:id", h.UpdateItem)
	write.POST("/inventory/items/:id/movements", h.ApplyMovement)
	write.POST("/inventory/items/:id/recompute", h.Recompute)
	write.POST("/inventory/purchase-orders", h.CreatePurchaseOrder)
	write.POST("/inventory/purchase-orders/:id/place", h.PlaceOrder)
	write.POST("/inventory/purchase-orders/:id/receive", h.Receive)
	write.POST("/inventory/purchase-orders/:id/cancel", h.CancelPurchaseOrder)
}

func (h *Handler) CreateItem(c echo.Context) error {
	var it Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateItem(c.Request().Context(), &it); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	it, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var it Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	it.ID = id
	if err := h.svc.UpdateItem(c.Request().Context(), &it); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) ListItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	lowOnly := c.QueryParam("low_stock") == "true"
	items, total, err := h.svc.ListItems(c.Request().Context(), c.QueryParam("category"), lowOnly, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.LowStock(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ApplyMovement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Type      string  `json:"type"`
		Quantity  int64   `json:"quantity"`
		Reference *string `json:"reference"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.ApplyMovement(c.Request().Context(), id, req.Type, req.Quantity, req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Recompute(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	report, err := h.svc.Recompute(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) MovementHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	moves, total, err := h.svc.MovementHistory(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(moves, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreatePurchaseOrder(c echo.Context) error {
	var req struct {
		Supplier string `json:"supplier"`
		Lines    []struct {
			ItemID   uuid.UUID `json:"item_id"`
			Quantity int64     `json:"quantity"`
			UnitCost int64     `json:"unit_cost"`
		} `json:"lines"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	po := &PurchaseOrder{Supplier: req.Supplier}
	for _, line := range req.Lines {
		po.Lines = append(po.Lines, &POLine{ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	if err := h.svc.CreatePurchaseOrder(c.Request().Context(), po); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, po)
}

func (h *Handler) GetPurchaseOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	po, err := h.svc.GetPurchaseOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, po)
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	return h.applyPOTransition(c, h.svc.PlaceOrder)
}

func (h *Handler) Receive(c echo.Context) error {
	return h.applyPOTransition(c, h.svc.Receive)
}

func (h *Handler) CancelPurchaseOrder(c echo.Context) error {
	return h.applyPOTransition(c, h.svc.CancelPurchaseOrder)
}

func (h *Handler) applyPOTransition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	po, err := op(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, po)
}

func (h *Handler) ListPurchaseOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	pos, total, err := h.svc.ListPurchaseOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pos, total, pg.Limit, pg.Offset))
}
