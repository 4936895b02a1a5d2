package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/auth"
	"github.com/carewire/hms/internal/platform/db"
	"github.com/carewire/hms/internal/platform/events"
	"github.com/carewire/hms/internal/platform/metrics"
	"github.com/carewire/hms/internal/platform/sequence"
)

// Sequencer issues the next identifier for a counter kind.
type Sequencer interface {
	Next(ctx context.Context, kind sequence.Kind, on time.Time) (string, int64, error)
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	items     ItemRepository
	movements MovementRepository
	pos       PurchaseOrderRepository
	seq       Sequencer
	tx        TxRunner
	bus       *events.Bus
}

func NewService(items ItemRepository, movements MovementRepository, pos PurchaseOrderRepository, seq Sequencer, tx TxRunner, bus *events.Bus) *Service {
	return &Service{items: items, movements: movements, pos: pos, seq: seq, tx: tx, bus: bus}
}

// -- Items --

func (s *Service) CreateItem(ctx context.Context, it *Item) error {
	if it.Name == "" {
		return apperr.Validation("name is required", nil)
	}
	if it.Category != CategoryMedicine && it.Category != CategorySupply {
		return apperr.Validationf("invalid category: %s", it.Category)
	}
	if it.UnitPrice < 0 || it.ReorderLevel < 0 {
		return apperr.Validation("unit_price and reorder_level must not be negative", nil)
	}
	if it.Unit == "" {
		it.Unit = "unit"
	}
	it.StockQuantity = 0
	it.Active = true
	return s.items.Create(ctx, it)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inventory item", id.String())
	}
	return it, err
}

func (s *Service) UpdateItem(ctx context.Context, it *Item) error {
	existing, err := s.GetItem(ctx, it.ID)
	if err != nil {
		return err
	}
	if it.UnitPrice < 0 || it.ReorderLevel < 0 {
		return apperr.Validation("unit_price and reorder_level must not be negative", nil)
	}
	// Stock only moves through the ledger.
	it.StockQuantity = existing.StockQuantity
	it.Category = existing.Category
	return s.items.Update(ctx, it)
}

func (s *Service) ListItems(ctx context.Context, category string, lowOnly bool, limit, offset int) ([]*Item, int, error) {
	return s.items.List(ctx, category, lowOnly, limit, offset)
}

// LowStock lists active items at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	return s.items.List(ctx, "", true, limit, offset)
}

// -- Movements --

// movementDelta translates a movement request into a signed stock change.
// ADJUSTMENT receives the target level and returns the difference.
func movementDelta(movementType string, qty, current int64) (int64, error) {
	switch movementType {
	case MovementPurchase, MovementReturn:
		if qty <= 0 {
			return 0, apperr.Validation("quantity must be positive", nil)
		}
		return qty, nil
	case MovementSale, MovementExpired, MovementTransfer:
		if qty <= 0 {
			return 0, apperr.Validation("quantity must be positive", nil)
		}
		return -qty, nil
	case MovementAdjustment:
		if qty < 0 {
			return 0, apperr.Validation("adjusted level must not be negative", nil)
		}
		return qty - current, nil
	default:
		return 0, apperr.Validationf("invalid movement type: %s", movementType)
	}
}

// ApplyMovementTx mutates stock on the caller's transaction. It locks the
// item row, appends the ledger entry and refreshes the cached quantity.
// The returned flag reports whether this movement dropped the level to or
// below the reorder point; the caller publishes after its commit.
func (s *Service) ApplyMovementTx(ctx context.Context, itemID uuid.UUID, movementType string, qty int64, reference *string) (*Movement, bool, error) {
	item, err := s.items.GetByIDLocked(ctx, itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, apperr.NotFound("inventory item", itemID.String())
	}
	if err != nil {
		return nil, false, err
	}

	delta, err := movementDelta(movementType, qty, item.StockQuantity)
	if err != nil {
		return nil, false, err
	}
	newLevel := item.StockQuantity + delta
	if newLevel < 0 {
		return nil, false, apperr.Conflictf("insufficient stock for %s: available %d, requested %d",
			item.Name, item.StockQuantity, -delta)
	}

	m := &Movement{
		ItemID:    itemID,
		Type:      movementType,
		Quantity:  delta,
		Balance:   newLevel,
		Reference: reference,
		CreatedBy: auth.UserIDFromContext(ctx),
	}
	if err := s.movements.Create(ctx, m); err != nil {
		return nil, false, err
	}
	m.CreatedAt = time.Now().UTC()
	if err := s.items.UpdateStock(ctx, itemID, newLevel); err != nil {
		return nil, false, err
	}

	metrics.RecordStockMovement(db.TenantFromContext(ctx), movementType)
	crossedLow := delta < 0 && newLevel <= item.ReorderLevel && item.StockQuantity > item.ReorderLevel
	return m, crossedLow, nil
}

// ApplyMovement is the standalone form of ApplyMovementTx: it opens its
// own serializable transaction and publishes stock.low after commit.
func (s *Service) ApplyMovement(ctx context.Context, itemID uuid.UUID, movementType string, qty int64, reference *string) (*Movement, error) {
	var m *Movement
	var crossedLow bool
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		var err error
		m, crossedLow, err = s.ApplyMovementTx(ctx, itemID, movementType, qty, reference)
		return err
	})
	if err != nil {
		return nil, err
	}

	if crossedLow {
		s.PublishStockLow(ctx, itemID, m.Balance)
	}
	return m, nil
}

// PublishStockLow emits the low-stock event. Exposed so callers that run
// movements inside their own transaction can publish after commit.
func (s *Service) PublishStockLow(ctx context.Context, itemID uuid.UUID, balance int64) {
	s.bus.Publish(events.StockLow, db.TenantFromContext(ctx), map[string]string{
		"item_id": itemID.String(),
		"balance": strconv.FormatInt(balance, 10),
	})
}

// Recompute audits the cached quantity against the ledger sum and heals
// the cache when they disagree.
func (s *Service) Recompute(ctx context.Context, itemID uuid.UUID) (*DriftReport, error) {
	var report *DriftReport
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		item, err := s.items.GetByIDLocked(ctx, itemID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("inventory item", itemID.String())
		}
		if err != nil {
			return err
		}
		ledger, err := s.movements.SumForItem(ctx, itemID)
		if err != nil {
			return err
		}
		report = &DriftReport{
			ItemID:       itemID,
			LedgerTotal:  ledger,
			CachedBefore: item.StockQuantity,
			Drift:        item.StockQuantity - ledger,
		}
		if report.Drift != 0 {
			if err := s.items.UpdateStock(ctx, itemID, ledger); err != nil {
				return err
			}
			report.Healed = true
		}
		return nil
	})
	return report, err
}

func (s *Service) MovementHistory(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, 0, err
	}
	return s.movements.ListByItem(ctx, itemID, limit, offset)
}

// -- Purchase orders --

func (s *Service) CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error {
	if po.Supplier == "" {
		return apperr.Validation("supplier is required", nil)
	}
	if len(po.Lines) == 0 {
		return apperr.Validation("at least one line is required", nil)
	}
	for _, line := range po.Lines {
		if line.Quantity <= 0 {
			return apperr.Validation("line quantity must be positive", nil)
		}
		if line.UnitCost < 0 {
			return apperr.Validation("line unit_cost must not be negative", nil)
		}
		if _, err := s.GetItem(ctx, line.ItemID); err != nil {
			return err
		}
	}
	po.Status = POStatusDraft

	return s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		number, _, err := s.seq.Next(ctx, sequence.KindPurchaseOrder, time.Now())
		if err != nil {
			return err
		}
		po.PONumber = number
		return s.pos.Create(ctx, po)
	})
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	po, err := s.pos.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("purchase order", id.String())
	}
	return po, err
}

func (s *Service) transitionPO(ctx context.Context, id uuid.UUID, to string) (*PurchaseOrder, error) {
	var updated *PurchaseOrder
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		po, err := s.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if !canTransitionPO(po.Status, to) {
			return apperr.StateTransition("purchase order", po.Status, to)
		}
		po.Status = to
		if err := s.pos.Update(ctx, po); err != nil {
			return err
		}
		updated = po
		return nil
	})
	return updated, err
}

// PlaceOrder moves a draft purchase order to ORDERED.
func (s *Service) PlaceOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	return s.transitionPO(ctx, id, POStatusOrdered)
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	return s.transitionPO(ctx, id, POStatusCancelled)
}

// Receive books the delivered goods: one PURCHASE movement per line in a
// single transaction, then the order is closed.
func (s *Service) Receive(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	var received *PurchaseOrder
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		po, err := s.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if !canTransitionPO(po.Status, POStatusReceived) {
			return apperr.StateTransition("purchase order", po.Status, POStatusReceived)
		}

		ref := po.PONumber
		for _, line := range po.Lines {
			if _, _, err := s.ApplyMovementTx(ctx, line.ItemID, MovementPurchase, line.Quantity, &ref); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		po.Status = POStatusReceived
		po.ReceivedAt = &now
		if err := s.pos.Update(ctx, po); err != nil {
			return err
		}
		received = po
		return nil
	})
	return received, err
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit, offset int) ([]*PurchaseOrder, int, error) {
	if status != "" && status != POStatusDraft && status != POStatusOrdered &&
		status != POStatusReceived && status != POStatusCancelled {
		return nil, 0, apperr.Validationf("invalid status filter: %s", status)
	}
	return s.pos.List(ctx, status, limit, offset)
}
