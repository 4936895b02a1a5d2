package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order kinds. Lab and radiology orders share the same table and life
// cycle apart from the intermediate step after payment.
const (
	KindLab       = "lab"
	KindRadiology = "radiology"
)

// Order statuses.
const (
	StatusPendingPayment  = "PENDING_PAYMENT"
	StatusPaid            = "PAID"
	StatusSampleCollected = "SAMPLE_COLLECTED"
	StatusScheduled       = "SCHEDULED"
	StatusInProgress      = "IN_PROGRESS"
	StatusCompleted       = "COMPLETED"
	StatusCancelled       = "CANCELLED"
)

var orderTransitions = map[string][]string{
	StatusPendingPayment:  {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusSampleCollected, StatusScheduled, StatusCancelled},
	StatusSampleCollected: {StatusInProgress, StatusCancelled},
	StatusScheduled:       {StatusInProgress, StatusCancelled},
	StatusInProgress:      {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func isTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Priorities.
const (
	PriorityStat    = "STAT"
	PriorityUrgent  = "URGENT"
	PriorityRoutine = "ROUTINE"
)

var priorityRank = map[string]int{
	PriorityStat:    0,
	PriorityUrgent:  1,
	PriorityRoutine: 2,
}

// Item statuses.
const (
	ItemPending   = "PENDING"
	ItemCompleted = "COMPLETED"
	ItemCancelled = "CANCELLED"
)

// Order maps to the clinical_order table. Amounts are in the smallest
// currency unit.
type Order struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	OrderNumber    string      `db:"order_number" json:"order_number"`
	Kind           string      `db:"kind" json:"kind"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	ConsultationID *uuid.UUID  `db:"consultation_id" json:"consultation_id,omitempty"`
	Priority       string      `db:"priority" json:"priority"`
	Status         string      `db:"status" json:"status"`
	TotalAmount    int64       `db:"total_amount" json:"total_amount"`
	PaidAmount     int64       `db:"paid_amount" json:"paid_amount"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	Items          []*OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem snapshots the catalog entry at ordering time. Price changes in
// the catalog never touch existing orders.
type OrderItem struct {
	ID      uuid.UUID `db:"id" json:"id"`
	OrderID uuid.UUID `db:"order_id" json:"order_id"`
	Code    string    `db:"code" json:"code"`
	Name    string    `db:"name" json:"name"`
	Price   int64     `db:"price" json:"price"`
	Status  string    `db:"status" json:"status"`
}

// Result holds the reported value for one order item. At most one result
// exists per item.
type Result struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrderItemID uuid.UUID `db:"order_item_id" json:"order_item_id"`
	Value       string    `db:"value" json:"value"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	RecordedBy  string    `db:"recorded_by" json:"recorded_by"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
}
