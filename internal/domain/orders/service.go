package orders

import (
	"context"
	"errors"
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
	orders  OrderRepository
	results ResultRepository
	seq     Sequencer
	tx      TxRunner
	bus     *events.Bus
}

func NewService(orders OrderRepository, results ResultRepository, seq Sequencer, tx TxRunner, bus *events.Bus) *Service {
	return &Service{orders: orders, results: results, seq: seq, tx: tx, bus: bus}
}

func sequenceKind(orderKind string) sequence.Kind {
	if orderKind == KindRadiology {
		return sequence.KindRadOrder
	}
	return sequence.KindLabOrder
}

// Create stores an order with its item prices snapshotted. The order waits
// in PENDING_PAYMENT until billing marks it paid.
func (s *Service) Create(ctx context.Context, o *Order) error {
	if o.Kind != KindLab && o.Kind != KindRadiology {
		return apperr.Validationf("invalid order kind: %s", o.Kind)
	}
	if o.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required", nil)
	}
	if len(o.Items) == 0 {
		return apperr.Validation("at least one item is required", nil)
	}
	if o.Priority == "" {
		o.Priority = PriorityRoutine
	}
	if _, ok := priorityRank[o.Priority]; !ok {
		return apperr.Validationf("invalid priority: %s", o.Priority)
	}

	o.TotalAmount = 0
	for _, it := range o.Items {
		if it.Code == "" || it.Name == "" {
			return apperr.Validation("item code and name are required", nil)
		}
		if it.Price < 0 {
			return apperr.Validationf("negative price for item %s", it.Code)
		}
		it.Status = ItemPending
		o.TotalAmount += it.Price
	}
	o.Status = StatusPendingPayment
	o.PaidAmount = 0

	return s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		number, _, err := s.seq.Next(ctx, sequenceKind(o.Kind), time.Now())
		if err != nil {
			return err
		}
		o.OrderNumber = number
		return s.orders.Create(ctx, o)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order", id.String())
	}
	return o, err
}

// transition applies a guarded status change inside a transaction.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to string) (*Order, error) {
	var updated *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(o.Status, to) {
			return apperr.StateTransition("order", o.Status, to)
		}
		from := o.Status
		o.Status = to
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		metrics.RecordOrderStatusChange(o.Kind, from, to)
		updated = o
		return nil
	})
	return updated, err
}

// MarkSampleCollected records sample collection for a paid lab order.
func (s *Service) MarkSampleCollected(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Kind != KindLab {
		return nil, apperr.Validationf("sample collection applies to lab orders, not %s", o.Kind)
	}
	return s.transition(ctx, id, StatusSampleCollected)
}

// Schedule books a paid radiology order.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Kind != KindRadiology {
		return nil, apperr.Validationf("scheduling applies to radiology orders, not %s", o.Kind)
	}
	return s.transition(ctx, id, StatusScheduled)
}

// Start moves a collected or scheduled order into processing.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusInProgress)
}

// RecordResult stores the result for one item and completes the order once
// every item has reached a terminal state. At most one result per item.
func (s *Service) RecordResult(ctx context.Context, itemID uuid.UUID, value string, notes *string) (*Result, error) {
	if value == "" {
		return nil, apperr.Validation("result value is required", nil)
	}

	var result *Result
	var completedOrder *Order
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		completedOrder = nil
		item, err := s.orders.GetItem(ctx, itemID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("order item", itemID.String())
		}
		if err != nil {
			return err
		}
		if item.Status == ItemCancelled {
			return apperr.StateTransition("order item", item.Status, ItemCompleted)
		}

		o, err := s.Get(ctx, item.OrderID)
		if err != nil {
			return err
		}
		if o.Status != StatusInProgress {
			return apperr.StateTransition("order", o.Status, StatusCompleted)
		}

		exists, err := s.results.ExistsForItem(ctx, itemID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("a result is already recorded for this item")
		}

		r := &Result{
			OrderItemID: itemID,
			Value:       value,
			Notes:       notes,
			RecordedBy:  auth.UserIDFromContext(ctx),
		}
		if err := s.results.Create(ctx, r); err != nil {
			return err
		}
		r.RecordedAt = time.Now().UTC()

		item.Status = ItemCompleted
		if err := s.orders.UpdateItem(ctx, item); err != nil {
			return err
		}

		items, err := s.orders.ListItems(ctx, o.ID)
		if err != nil {
			return err
		}
		allDone := true
		for _, it := range items {
			if it.Status == ItemPending {
				allDone = false
				break
			}
		}
		if allDone {
			now := time.Now().UTC()
			o.Status = StatusCompleted
			o.CompletedAt = &now
			if err := s.orders.Update(ctx, o); err != nil {
				return err
			}
			metrics.RecordOrderStatusChange(o.Kind, StatusInProgress, StatusCompleted)
			completedOrder = o
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedOrder != nil {
		s.bus.Publish(events.OrderCompleted, db.TenantFromContext(ctx), map[string]string{
			"order_id":     completedOrder.ID.String(),
			"order_number": completedOrder.OrderNumber,
			"kind":         completedOrder.Kind,
		})
	}
	return result, nil
}

// Cancel voids a non-terminal order and cascades to its pending items. The
// snapshotted prices stay as they were.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	var cancelled *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if isTerminal(o.Status) {
			return apperr.StateTransition("order", o.Status, StatusCancelled)
		}
		from := o.Status
		o.Status = StatusCancelled
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		for _, it := range o.Items {
			if it.Status == ItemPending {
				it.Status = ItemCancelled
				if err := s.orders.UpdateItem(ctx, it); err != nil {
					return err
				}
			}
		}
		metrics.RecordOrderStatusChange(o.Kind, from, StatusCancelled)
		cancelled = o
		return nil
	})
	return cancelled, err
}

// MarkPaid transitions the order to PAID and credits the amount. It runs on
// the caller's transaction context; billing invokes it while settling a
// bill.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, amount int64) error {
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(o.Status, StatusPaid) {
		return apperr.StateTransition("order", o.Status, StatusPaid)
	}
	o.Status = StatusPaid
	o.PaidAmount += amount
	if err := s.orders.Update(ctx, o); err != nil {
		return err
	}
	metrics.RecordOrderStatusChange(o.Kind, StatusPendingPayment, StatusPaid)
	return nil
}

func (s *Service) Results(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.results.ListByOrder(ctx, orderID)
}

// Queue lists actionable orders of a kind, STAT first, then by age.
func (s *Service) Queue(ctx context.Context, kind string, limit, offset int) ([]*Order, int, error) {
	if kind != KindLab && kind != KindRadiology {
		return nil, 0, apperr.Validationf("invalid order kind: %s", kind)
	}
	return s.orders.ListQueue(ctx, kind, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.orders.ListByPatient(ctx, patientID, limit, offset)
}
