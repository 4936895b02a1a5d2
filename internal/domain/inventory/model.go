package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item categories. Medicines live in the same stock ledger as general
// supplies; the pharmacy catalog is a view over MEDICINE items.
const (
	CategoryMedicine = "MEDICINE"
	CategorySupply   = "SUPPLY"
)

// Movement types. PURCHASE and RETURN add stock, SALE, EXPIRED and
// TRANSFER remove it, ADJUSTMENT sets the absolute level.
const (
	MovementPurchase   = "PURCHASE"
	MovementSale       = "SALE"
	MovementReturn     = "RETURN"
	MovementExpired    = "EXPIRED"
	MovementTransfer   = "TRANSFER"
	MovementAdjustment = "ADJUSTMENT"
)

var validMovementTypes = map[string]bool{
	MovementPurchase:   true,
	MovementSale:       true,
	MovementReturn:     true,
	MovementExpired:    true,
	MovementTransfer:   true,
	MovementAdjustment: true,
}

// Item maps to the inventory_item table. StockQuantity is a cache of the
// movement ledger; the ledger is the source of truth.
type Item struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	GenericName   *string   `db:"generic_name" json:"generic_name,omitempty"`
	Category      string    `db:"category" json:"category"`
	Unit          string    `db:"unit" json:"unit"`
	UnitPrice     int64     `db:"unit_price" json:"unit_price"`
	StockQuantity int64     `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel  int64     `db:"reorder_level" json:"reorder_level"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Movement is one ledger entry. Quantity carries the sign of the change;
// Balance is the stock level after the movement applied.
type Movement struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ItemID    uuid.UUID `db:"item_id" json:"item_id"`
	Type      string    `db:"type" json:"type"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	Balance   int64     `db:"balance" json:"balance"`
	Reference *string   `db:"reference" json:"reference,omitempty"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Purchase order statuses.
const (
	POStatusDraft     = "DRAFT"
	POStatusOrdered   = "ORDERED"
	POStatusReceived  = "RECEIVED"
	POStatusCancelled = "CANCELLED"
)

var poTransitions = map[string][]string{
	POStatusDraft:   {POStatusOrdered, POStatusCancelled},
	POStatusOrdered: {POStatusReceived, POStatusCancelled},
}

func canTransitionPO(from, to string) bool {
	for _, t := range poTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PurchaseOrder restocks inventory from a supplier.
type PurchaseOrder struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PONumber   string     `db:"po_number" json:"po_number"`
	Supplier   string     `db:"supplier" json:"supplier"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ReceivedAt *time.Time `db:"received_at" json:"received_at,omitempty"`
	Lines      []*POLine  `db:"-" json:"lines,omitempty"`
}

type POLine struct {
	ID       uuid.UUID `db:"id" json:"id"`
	POID     uuid.UUID `db:"po_id" json:"po_id"`
	ItemID   uuid.UUID `db:"item_id" json:"item_id"`
	Quantity int64     `db:"quantity" json:"quantity"`
	UnitCost int64     `db:"unit_cost" json:"unit_cost"`
}

// DriftReport is the outcome of auditing an item's cached quantity
// against its ledger.
type DriftReport struct {
	ItemID       uuid.UUID `json:"item_id"`
	LedgerTotal  int64     `json:"ledger_total"`
	CachedBefore int64     `json:"cached_before"`
	Drift        int64     `json:"drift"`
	Healed       bool      `json:"healed"`
}
