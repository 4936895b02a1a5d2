package opd

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/db"
	"github.com/carewire/hms/internal/platform/events"
	"github.com/carewire/hms/internal/platform/metrics"
	"github.com/carewire/hms/internal/platform/sequence"
)

// Sequencer issues the next identifier for a counter kind.
type Sequencer interface {
	Next(ctx context.Context, kind sequence.Kind, on time.Time) (string, int64, error)
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	tokens        TokenRepository
	consultations ConsultationRepository
	seq           Sequencer
	tx            TxRunner
	bus           *events.Bus
	minutesPerPt  int
	dailyCap      int
}

// NewService builds the OPD queue service. dailyTokenCap bounds how many
// tokens a single doctor can take per day; cancelled tokens do not count
// against it.
func NewService(tokens TokenRepository, consultations ConsultationRepository, seq Sequencer, tx TxRunner, bus *events.Bus, minutesPerPatient, dailyTokenCap int) *Service {
	if minutesPerPatient <= 0 {
		minutesPerPatient = 10
	}
	if dailyTokenCap <= 0 {
		dailyTokenCap = 200
	}
	return &Service{
		tokens:        tokens,
		consultations: consultations,
		seq:           seq,
		tx:            tx,
		bus:           bus,
		minutesPerPt:  minutesPerPatient,
		dailyCap:      dailyTokenCap,
	}
}

func tokenDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// -- Tokens --

// CreateToken issues the next queue token for the doctor's day. A patient
// can hold at most one active token per doctor per day, and the doctor's
// daily cap applies.
func (s *Service) CreateToken(ctx context.Context, t *Token) error {
	if t.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required", nil)
	}
	if t.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required", nil)
	}
	now := time.Now().UTC()
	t.TokenDate = tokenDay(now)
	t.Status = StatusWaiting
	t.CheckedInAt = now

	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		active, err := s.tokens.HasActiveToken(ctx, t.PatientID, t.DoctorID, t.TokenDate)
		if err != nil {
			return err
		}
		if active {
			return apperr.Conflict("patient already holds an active token with this doctor today")
		}

		issued, err := s.tokens.CountForDoctor(ctx, t.DoctorID, t.TokenDate)
		if err != nil {
			return err
		}
		if issued >= s.dailyCap {
			return apperr.Conflict("doctor's daily token limit reached")
		}

		display, number, err := s.seq.Next(ctx, sequence.KindOPDToken, now)
		if err != nil {
			return err
		}
		t.Display = display
		t.TokenNumber = number

		return s.tokens.Create(ctx, t)
	})
	if err != nil {
		return err
	}

	waiting, err := s.tokens.CountWaiting(ctx, t.DoctorID, t.TokenDate)
	if err == nil {
		// The new token is at the back of the queue.
		t.EstimatedWait = (waiting - 1) * s.minutesPerPt
		if t.EstimatedWait < 0 {
			t.EstimatedWait = 0
		}
	}

	tenant := db.TenantFromContext(ctx)
	metrics.RecordTokenIssued(tenant)
	s.bus.Publish(events.TokenCreated, tenant, map[string]string{
		"token_id": t.ID.String(),
		"display":  t.Display,
		"doctor":   t.DoctorID.String(),
	})
	return nil
}

// CallNext moves the highest-priority waiting token to CALLED. Concurrent
// callers never pick the same token; the locked row is skipped. Returns
// NotFound when the queue is empty.
func (s *Service) CallNext(ctx context.Context, doctorID uuid.UUID) (*Token, error) {
	var called *Token
	today := tokenDay(time.Now().UTC())

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.tokens.NextWaitingLocked(ctx, doctorID, today)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("waiting token", doctorID.String())
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		t.Status = StatusCalled
		t.CalledAt = &now
		if err := s.tokens.Update(ctx, t); err != nil {
			return err
		}
		called = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.TokenCalled, db.TenantFromContext(ctx), map[string]string{
		"token_id": called.ID.String(),
		"display":  called.Display,
		"doctor":   called.DoctorID.String(),
	})
	return called, nil
}

func (s *Service) GetToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	t, err := s.tokens.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("token", id.String())
	}
	return t, err
}

// transition applies a guarded status change with the matching timestamp.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to string) (*Token, error) {
	var updated *Token
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.GetToken(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(t.Status, to) {
			return apperr.StateTransition("token", t.Status, to)
		}
		now := time.Now().UTC()
		t.Status = to
		switch to {
		case StatusCalled:
			t.CalledAt = &now
		case StatusInConsultation:
			t.StartedAt = &now
		case StatusCompleted, StatusCancelled, StatusNoShow:
			t.CompletedAt = &now
		}
		if err := s.tokens.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	return updated, err
}

// StartConsultation moves a called token to IN_CONSULTATION and opens a
// consultation record in the same transaction.
func (s *Service) StartConsultation(ctx context.Context, tokenID uuid.UUID) (*Consultation, error) {
	var consult *Consultation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.GetToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if !canTransition(t.Status, StatusInConsultation) {
			return apperr.StateTransition("token", t.Status, StatusInConsultation)
		}
		now := time.Now().UTC()
		t.Status = StatusInConsultation
		t.StartedAt = &now
		if err := s.tokens.Update(ctx, t); err != nil {
			return err
		}

		c := &Consultation{
			TokenID:   &t.ID,
			PatientID: t.PatientID,
			DoctorID:  t.DoctorID,
			Status:    ConsultInProgress,
		}
		if err := s.consultations.Create(ctx, c); err != nil {
			return err
		}
		c.CreatedAt = now
		consult = c
		return nil
	})
	return consult, err
}

// CompleteConsultation records the doctor's findings, closes the
// consultation, and completes the linked token in the same transaction.
func (s *Service) CompleteConsultation(ctx context.Context, id uuid.UUID, symptoms, diagnosis, notes *string) (*Consultation, error) {
	var consult *Consultation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.consultations.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("consultation", id.String())
		}
		if err != nil {
			return err
		}
		if c.Status == ConsultCompleted {
			return apperr.StateTransition("consultation", c.Status, ConsultCompleted)
		}

		now := time.Now().UTC()
		if symptoms != nil {
			c.Symptoms = symptoms
		}
		if diagnosis != nil {
			c.Diagnosis = diagnosis
		}
		if notes != nil {
			c.Notes = notes
		}
		c.Status = ConsultCompleted
		c.CompletedAt = &now
		if err := s.consultations.Update(ctx, c); err != nil {
			return err
		}

		if c.TokenID != nil {
			t, err := s.GetToken(ctx, *c.TokenID)
			if err != nil {
				return err
			}
			if canTransition(t.Status, StatusCompleted) {
				t.Status = StatusCompleted
				t.CompletedAt = &now
				if err := s.tokens.Update(ctx, t); err != nil {
					return err
				}
			}
		}
		consult = c
		return nil
	})
	return consult, err
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("consultation", id.String())
	}
	return c, err
}

func (s *Service) ListConsultationsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.consultations.ListByPatient(ctx, patientID, limit, offset)
}

// CancelToken removes a token from the queue before it reaches a terminal
// state.
func (s *Service) CancelToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// MarkNoShow flags a token whose patient never appeared when called.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Token, error) {
	return s.transition(ctx, id, StatusNoShow)
}

// Queue returns the waiting-room view for a doctor: the token currently
// with the doctor, the ordered waiting list with per-position wait
// estimates, and the day's status counts.
func (s *Service) Queue(ctx context.Context, doctorID uuid.UUID, date time.Time) (*QueueSnapshot, error) {
	day := tokenDay(date)

	current, err := s.tokens.CurrentlyCalled(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	waiting, err := s.tokens.ListQueue(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	for i, t := range waiting {
		t.EstimatedWait = i * s.minutesPerPt
	}
	counts, err := s.tokens.CountByStatus(ctx, day)
	if err != nil {
		return nil, err
	}

	return &QueueSnapshot{
		DoctorID:     doctorID,
		Date:         day,
		Current:      current,
		Waiting:      waiting,
		StatusCounts: counts,
	}, nil
}

// EstimatedWaitMinutes returns the projected wait for a waiting token
// based on its position in the queue.
func (s *Service) EstimatedWaitMinutes(ctx context.Context, id uuid.UUID) (int, error) {
	t, err := s.GetToken(ctx, id)
	if err != nil {
		return 0, err
	}
	if t.Status != StatusWaiting {
		return 0, nil
	}
	waiting, err := s.tokens.ListQueue(ctx, t.DoctorID, t.TokenDate)
	if err != nil {
		return 0, err
	}
	for i, w := range waiting {
		if w.ID == t.ID {
			return i * s.minutesPerPt, nil
		}
	}
	return 0, nil
}
