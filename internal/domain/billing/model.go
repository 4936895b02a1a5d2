package billing

import (
	"time"

	"github.com/google/uuid"
)

// Bill types.
const (
	TypeConsultation = "CONSULTATION"
	TypeLab          = "LAB"
	TypeRadiology    = "RADIOLOGY"
	TypePharmacy     = "PHARMACY"
	TypeIPD          = "IPD"
	TypeGeneral      = "GENERAL"
)

var validBillTypes = map[string]bool{
	TypeConsultation: true,
	TypeLab:          true,
	TypeRadiology:    true,
	TypePharmacy:     true,
	TypeIPD:          true,
	TypeGeneral:      true,
}

// Bill statuses.
const (
	StatusPending       = "PENDING"
	StatusPartiallyPaid = "PARTIALLY_PAID"
	StatusPaid          = "PAID"
	StatusCancelled     = "CANCELLED"
	StatusRefunded      = "REFUNDED"
)

// Payment methods.
const (
	MethodCash      = "CASH"
	MethodCard      = "CARD"
	MethodUPI       = "UPI"
	MethodInsurance = "INSURANCE"
)

var validMethods = map[string]bool{
	MethodCash:      true,
	MethodCard:      true,
	MethodUPI:       true,
	MethodInsurance: true,
}

// Bill maps to the bill table. All amounts are in the smallest currency
// unit. Paid accumulates across payments; Total never changes after
// creation.
type Bill struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	BillNumber string      `db:"bill_number" json:"bill_number"`
	BillType   string      `db:"bill_type" json:"bill_type"`
	PatientID  uuid.UUID   `db:"patient_id" json:"patient_id"`
	Subtotal   int64       `db:"subtotal" json:"subtotal"`
	Discount   int64       `db:"discount" json:"discount"`
	Tax        int64       `db:"tax" json:"tax"`
	Total      int64       `db:"total" json:"total"`
	Paid       int64       `db:"paid" json:"paid"`
	Status     string      `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	Items      []*BillItem `db:"-" json:"items,omitempty"`
}

// BillItem is one line on a bill. Lines that settle a clinical order carry
// the order reference for payment propagation.
type BillItem struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BillID      uuid.UUID  `db:"bill_id" json:"bill_id"`
	Description string     `db:"description" json:"description"`
	Quantity    int64      `db:"quantity" json:"quantity"`
	UnitPrice   int64      `db:"unit_price" json:"unit_price"`
	Amount      int64      `db:"amount" json:"amount"`
	OrderKind   *string    `db:"order_kind" json:"order_kind,omitempty"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
}

// Payment is an immutable ledger row. Refunds append a negative row; no
// payment is ever updated or deleted.
type Payment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BillID     uuid.UUID `db:"bill_id" json:"bill_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Method     string    `db:"method" json:"method"`
	Reference  *string   `db:"reference" json:"reference,omitempty"`
	ReceivedBy string    `db:"received_by" json:"received_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RevenueSummary aggregates billing over a date range. Cancelled bills are
// excluded.
type RevenueSummary struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	TotalBilled int64            `json:"total_billed"`
	Collected   int64            `json:"collected"`
	Outstanding int64            `json:"outstanding"`
	ByType      map[string]int64 `json:"by_type"`
}

// OutstandingBill is a projection for the collections view.
type OutstandingBill struct {
	BillID     uuid.UUID `json:"bill_id"`
	BillNumber string    `json:"bill_number"`
	PatientID  uuid.UUID `json:"patient_id"`
	Total      int64     `json:"total"`
	Paid       int64     `json:"paid"`
	Due        int64     `json:"due"`
	CreatedAt  time.Time `json:"created_at"`
}
