package billing

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

// OrderSettler marks linked clinical orders paid. It is invoked inside the
// payment transaction so the bill and its orders settle atomically.
type OrderSettler interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID, amount int64) error
}

type Service struct {
	bills    BillRepository
	payments PaymentRepository
	orders   OrderSettler
	seq      Sequencer
	tx       TxRunner
	bus      *events.Bus
}

func NewService(bills BillRepository, payments PaymentRepository, orders OrderSettler, seq Sequencer, tx TxRunner, bus *events.Bus) *Service {
	return &Service{bills: bills, payments: payments, orders: orders, seq: seq, tx: tx, bus: bus}
}

// -- Bills --

// Create stores a bill. Line amounts are computed from quantity and unit
// price; the total applies the bill-level discount and tax.
func (s *Service) Create(ctx context.Context, b *Bill) error {
	if b.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required", nil)
	}
	if b.BillType == "" {
		b.BillType = TypeGeneral
	}
	if !validBillTypes[b.BillType] {
		return apperr.Validationf("invalid bill type: %s", b.BillType)
	}
	if len(b.Items) == 0 {
		return apperr.Validation("at least one item is required", nil)
	}
	if b.Discount < 0 || b.Tax < 0 {
		return apperr.Validation("discount and tax must not be negative", nil)
	}

	b.Subtotal = 0
	for _, it := range b.Items {
		if it.Description == "" {
			return apperr.Validation("item description is required", nil)
		}
		if it.Quantity <= 0 {
			return apperr.Validation("item quantity must be positive", nil)
		}
		if it.UnitPrice < 0 {
			return apperr.Validation("item unit_price must not be negative", nil)
		}
		it.Amount = it.Quantity * it.UnitPrice
		b.Subtotal += it.Amount
	}
	if b.Discount > b.Subtotal {
		return apperr.Validation("discount cannot exceed subtotal", nil)
	}
	b.Total = b.Subtotal - b.Discount + b.Tax
	b.Paid = 0
	b.Status = StatusPending

	return s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		number, _, err := s.seq.Next(ctx, sequence.KindBill, time.Now())
		if err != nil {
			return err
		}
		b.BillNumber = number
		return s.bills.Create(ctx, b)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bill", id.String())
	}
	return b, err
}

// orderShare is the slice of a bill's total attributed to one linked
// order.
type orderShare struct {
	orderID uuid.UUID
	amount  int64
}

// orderShares splits the bill total across its linked orders pro rata by
// each order's line amounts. The bill-level discount and tax scale every
// share by total/subtotal; leftover cents from the integer division go to
// the first order.
func orderShares(b *Bill) []orderShare {
	type acc struct {
		id   uuid.UUID
		base int64
	}
	var ordered []*acc
	index := make(map[uuid.UUID]*acc)
	for _, it := range b.Items {
		if it.OrderID == nil {
			continue
		}
		a, ok := index[*it.OrderID]
		if !ok {
			a = &acc{id: *it.OrderID}
			index[*it.OrderID] = a
			ordered = append(ordered, a)
		}
		a.base += it.Amount
	}
	if len(ordered) == 0 || b.Subtotal == 0 {
		return nil
	}

	var orderBase int64
	for _, a := range ordered {
		orderBase += a.base
	}
	pool := orderBase * b.Total / b.Subtotal

	shares := make([]orderShare, len(ordered))
	var distributed int64
	for i, a := range ordered {
		amount := a.base * b.Total / b.Subtotal
		shares[i] = orderShare{orderID: a.id, amount: amount}
		distributed += amount
	}
	shares[0].amount += pool - distributed
	return shares
}

// RecordPayment settles money against a bill: the payment row is appended,
// the bill's paid amount and status advance, and when the bill crosses to
// PAID every linked order is marked paid with its share of the total.
// Everything happens in one serializable transaction; events go out after
// commit.
func (s *Service) RecordPayment(ctx context.Context, billID uuid.UUID, amount int64, method string, reference *string) (*Bill, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive", nil)
	}
	if !validMethods[method] {
		return nil, apperr.Validationf("invalid payment method: %s", method)
	}

	var bill *Bill
	var settled []orderShare
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		settled = nil
		b, err := s.bills.GetByIDLocked(ctx, billID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bill", billID.String())
		}
		if err != nil {
			return err
		}
		if b.Status != StatusPending && b.Status != StatusPartiallyPaid {
			return apperr.StateTransition("bill", b.Status, StatusPaid)
		}
		if b.Paid+amount > b.Total {
			return apperr.Conflictf("payment of %d exceeds outstanding balance %d", amount, b.Total-b.Paid)
		}

		p := &Payment{
			BillID:     billID,
			Amount:     amount,
			Method:     method,
			Reference:  reference,
			ReceivedBy: auth.UserIDFromContext(ctx),
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}

		b.Paid += amount
		if b.Paid == b.Total {
			b.Status = StatusPaid
		} else {
			b.Status = StatusPartiallyPaid
		}
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}

		if b.Status == StatusPaid {
			for _, share := range orderShares(b) {
				if err := s.orders.MarkPaid(ctx, share.orderID, share.amount); err != nil {
					return err
				}
				settled = append(settled, share)
			}
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	tenant := db.TenantFromContext(ctx)
	metrics.RecordPayment(tenant, method)
	if bill.Status == StatusPaid {
		s.bus.Publish(events.BillPaid, tenant, map[string]string{
			"bill_id":     bill.ID.String(),
			"bill_number": bill.BillNumber,
		})
		for _, share := range settled {
			s.bus.Publish(events.OrderPaid, tenant, map[string]string{
				"order_id": share.orderID.String(),
				"bill_id":  bill.ID.String(),
			})
		}
	}
	return bill, nil
}

// Cancel voids a bill no money has been taken against.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Bill, error) {
	var cancelled *Bill
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPending {
			return apperr.StateTransition("bill", b.Status, StatusCancelled)
		}
		if b.Paid != 0 {
			return apperr.Conflict("cannot cancel a bill with recorded payments")
		}
		b.Status = StatusCancelled
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	return cancelled, err
}

// Refund reverses a fully paid bill with a negative payment row. Linked
// order statuses are left alone; clinical work already happened.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, reference *string) (*Bill, error) {
	var refunded *Bill
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetByIDLocked(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bill", id.String())
		}
		if err != nil {
			return err
		}
		if b.Status != StatusPaid {
			return apperr.StateTransition("bill", b.Status, StatusRefunded)
		}

		p := &Payment{
			BillID:     id,
			Amount:     -b.Paid,
			Method:     MethodCash,
			Reference:  reference,
			ReceivedBy: auth.UserIDFromContext(ctx),
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		b.Paid = 0
		b.Status = StatusRefunded
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		refunded = b
		return nil
	})
	return refunded, err
}

func (s *Service) Payments(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	if _, err := s.Get(ctx, billID); err != nil {
		return nil, err
	}
	return s.payments.ListByBill(ctx, billID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return s.bills.ListByPatient(ctx, patientID, limit, offset)
}

// Outstanding lists unpaid bills, optionally for one patient (zero UUID
// means all patients).
func (s *Service) Outstanding(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*OutstandingBill, int, error) {
	return s.bills.ListOutstanding(ctx, patientID, limit, offset)
}

// Revenue aggregates billing over [from, to).
func (s *Service) Revenue(ctx context.Context, from, to time.Time) (*RevenueSummary, error) {
	if !to.After(from) {
		return nil, apperr.Validation("to must be after from", nil)
	}
	return s.bills.RevenueSummary(ctx, from, to)
}

// TodayRevenue is the dashboard view of the current day.
func (s *Service) TodayRevenue(ctx context.Context) (*RevenueSummary, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.bills.RevenueSummary(ctx, start, start.Add(24*time.Hour))
}
