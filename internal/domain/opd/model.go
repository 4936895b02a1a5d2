package opd

import (
	"time"

	"github.com/google/uuid"
)

// Token statuses.
const (
	StatusWaiting        = "WAITING"
	StatusCalled         = "CALLED"
	StatusInConsultation = "IN_CONSULTATION"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
	StatusNoShow         = "NO_SHOW"
)

// tokenTransitions is the allowed status graph. Terminal states have no
// entry.
var tokenTransitions = map[string][]string{
	StatusWaiting:        {StatusCalled, StatusCancelled, StatusNoShow},
	StatusCalled:         {StatusInConsultation, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusInConsultation: {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, t := range tokenTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Token maps to the opd_token table. TokenNumber orders the day's queue;
// Display is the patient-facing form (OPD007).
type Token struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TokenNumber   int64      `db:"token_number" json:"token_number"`
	Display       string     `db:"display" json:"display"`
	TokenDate     time.Time  `db:"token_date" json:"token_date"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	Priority      int        `db:"priority" json:"priority"`
	Status        string     `db:"status" json:"status"`
	CheckedInAt   time.Time  `db:"checked_in_at" json:"checked_in_at"`
	CalledAt      *time.Time `db:"called_at" json:"called_at,omitempty"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	EstimatedWait int        `db:"-" json:"estimated_wait_minutes,omitempty"`
}

// Consultation maps to the consultation table.
type Consultation struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TokenID     *uuid.UUID `db:"token_id" json:"token_id,omitempty"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Symptoms    *string    `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis   *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Consultation statuses.
const (
	ConsultInProgress = "IN_PROGRESS"
	ConsultCompleted  = "COMPLETED"
)

// QueueSnapshot is the waiting-room display projection.
type QueueSnapshot struct {
	DoctorID     uuid.UUID `json:"doctor_id"`
	Date         time.Time `json:"date"`
	Current      *Token    `json:"current,omitempty"`
	Waiting      []*Token  `json:"waiting"`
	StatusCounts map[string]int `json:"status_counts"`
}
