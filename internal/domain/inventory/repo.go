package inventory

import (
	"context"

	"github.com/google/uuid"
)

type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// GetByIDLocked loads the item row with a row lock so concurrent
	// movements serialize on it.
	GetByIDLocked(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, it *Item) error
	UpdateStock(ctx context.Context, id uuid.UUID, quantity int64) error
	// List filters by category (empty for all) and optionally items at or
	// below their reorder level.
	List(ctx context.Context, category string, lowOnly bool, limit, offset int) ([]*Item, int, error)
}

type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error
	// SumForItem totals the signed ledger quantities for the item.
	SumForItem(ctx context.Context, itemID uuid.UUID) (int64, error)
	ListByItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Movement, int, error)
}

type PurchaseOrderRepository interface {
	// Create inserts the order and its lines.
	Create(ctx context.Context, po *PurchaseOrder) error
	// GetByID loads the order including its lines.
	GetByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	Update(ctx context.Context, po *PurchaseOrder) error
	List(ctx context.Context, status string, limit, offset int) ([]*PurchaseOrder, int, error)
}
