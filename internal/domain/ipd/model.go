package ipd

import (
	"time"

	"github.com/google/uuid"
)

// Bed statuses.
const (
	BedAvailable   = "AVAILABLE"
	BedOccupied    = "OCCUPIED"
	BedMaintenance = "MAINTENANCE"
)

// Admission statuses. Every status except ADMITTED is terminal.
const (
	StatusAdmitted    = "ADMITTED"
	StatusDischarged  = "DISCHARGED"
	StatusTransferred = "TRANSFERRED"
	StatusDeceased    = "DECEASED"
)

// Discharge types map onto the terminal admission statuses.
const (
	DischargeNormal      = "normal"
	DischargeTransferred = "transferred"
	DischargeDeceased    = "deceased"
)

var dischargeStatus = map[string]string{
	DischargeNormal:      StatusDischarged,
	DischargeTransferred: StatusTransferred,
	DischargeDeceased:    StatusDeceased,
}

// Medication schedule statuses.
const (
	ScheduleActive       = "ACTIVE"
	ScheduleCompleted    = "COMPLETED"
	ScheduleDiscontinued = "DISCONTINUED"
)

// Bed maps to the bed table.
type Bed struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Ward      string    `db:"ward" json:"ward"`
	Number    string    `db:"number" json:"number"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Admission maps to the admission table.
type Admission struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AdmissionNumber string     `db:"admission_number" json:"admission_number"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	BedID           uuid.UUID  `db:"bed_id" json:"bed_id"`
	Status          string     `db:"status" json:"status"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	AdmittedAt      time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt    *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
}

// MedicationSchedule is an inpatient's standing medication order.
type MedicationSchedule struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AdmissionID uuid.UUID `db:"admission_id" json:"admission_id"`
	MedicineID  uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Dosage      string    `db:"dosage" json:"dosage"`
	Frequency   string    `db:"frequency" json:"frequency"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// OccupancyReport summarizes the ward at a point in time.
type OccupancyReport struct {
	TotalBeds     int            `json:"total_beds"`
	ByStatus      map[string]int `json:"by_status"`
	OccupancyRate float64        `json:"occupancy_rate"`
}
