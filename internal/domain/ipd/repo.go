package ipd

import (
	"context"

	"github.com/google/uuid"
)

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// GetByIDLocked loads the bed with a row lock so concurrent admissions
	// serialize on it.
	GetByIDLocked(ctx context.Context, id uuid.UUID) (*Bed, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, ward, status string, limit, offset int) ([]*Bed, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type AdmissionRepository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	// ActiveForPatient returns the patient's current admission, if any.
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error)
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *MedicationSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicationSchedule, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*MedicationSchedule, error)
	// DiscontinueActive flips every ACTIVE schedule of the admission to
	// DISCONTINUED and reports how many changed.
	DiscontinueActive(ctx context.Context, admissionID uuid.UUID) (int, error)
}
