package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	// Create inserts the prescription and its items.
	Create(ctx context.Context, p *Prescription) error
	// GetByID loads the prescription including its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	UpdateItem(ctx context.Context, item *PrescriptionItem) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	// ListQueue returns undispensed prescriptions, oldest first.
	ListQueue(ctx context.Context, limit, offset int) ([]*Prescription, int, error)
}
