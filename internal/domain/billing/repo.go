package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BillRepository interface {
	// Create inserts the bill and its items.
	Create(ctx context.Context, b *Bill) error
	// GetByID loads the bill including its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetByIDLocked loads the bill with a row lock so concurrent payments
	// serialize on it.
	GetByIDLocked(ctx context.Context, id uuid.UUID) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error)
	ListOutstanding(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*OutstandingBill, int, error)
	// RevenueSummary aggregates non-cancelled bills created in [from, to).
	RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error)
}
