package orders

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, o *Order) error
	// GetByID loads the order including its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	GetItem(ctx context.Context, itemID uuid.UUID) (*OrderItem, error)
	UpdateItem(ctx context.Context, item *OrderItem) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error)
	// ListQueue returns non-terminal post-payment orders of a kind,
	// priority first then oldest.
	ListQueue(ctx context.Context, kind string, limit, offset int) ([]*Order, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error)
}

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	// ExistsForItem reports whether a result was already recorded for the
	// item.
	ExistsForItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error)
}
