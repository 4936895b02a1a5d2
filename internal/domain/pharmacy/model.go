package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses. The status is derived from the items: every
// quantity dispensed means DISPENSED, any partial progress means
// PARTIALLY_DISPENSED.
const (
	StatusPending            = "PENDING"
	StatusPartiallyDispensed = "PARTIALLY_DISPENSED"
	StatusDispensed          = "DISPENSED"
	StatusCancelled          = "CANCELLED"
)

// Prescription maps to the prescription table.
type Prescription struct {
	ID                 uuid.UUID           `db:"id" json:"id"`
	PrescriptionNumber string              `db:"prescription_number" json:"prescription_number"`
	PatientID          uuid.UUID           `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID           `db:"doctor_id" json:"doctor_id"`
	ConsultationID     *uuid.UUID          `db:"consultation_id" json:"consultation_id,omitempty"`
	Status             string              `db:"status" json:"status"`
	Notes              *string             `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	DispensedAt        *time.Time          `db:"dispensed_at" json:"dispensed_at,omitempty"`
	Items              []*PrescriptionItem `db:"-" json:"items,omitempty"`
}

// PrescriptionItem snapshots the medicine name and unit price at
// prescribing time.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Quantity       int64     `db:"quantity" json:"quantity"`
	DispensedQty   int64     `db:"dispensed_qty" json:"dispensed_qty"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
}

// deriveStatus computes the prescription status from its items.
func deriveStatus(items []*PrescriptionItem) string {
	allDone := true
	anyProgress := false
	for _, it := range items {
		if it.DispensedQty < it.Quantity {
			allDone = false
		}
		if it.DispensedQty > 0 {
			anyProgress = true
		}
	}
	switch {
	case allDone:
		return StatusDispensed
	case anyProgress:
		return StatusPartiallyDispensed
	default:
		return StatusPending
	}
}
