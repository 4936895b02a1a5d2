package opd

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TokenRepository interface {
	Create(ctx context.Context, t *Token) error
	GetByID(ctx context.Context, id uuid.UUID) (*Token, error)
	Update(ctx context.Context, t *Token) error
	// HasActiveToken reports whether the patient already holds a
	// WAITING/CALLED/IN_CONSULTATION token with the doctor on the date.
	HasActiveToken(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time) (bool, error)
	CountForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	CountWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	// NextWaitingLocked picks the next waiting token (priority first, then
	// token number) and locks the row, skipping rows locked by concurrent
	// callers.
	NextWaitingLocked(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Token, error)
	ListQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Token, error)
	CurrentlyCalled(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Token, error)
	CountByStatus(ctx context.Context, date time.Time) (map[string]int, error)
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
}
