package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/platform/apperr"
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

// SchemaProvisioner creates the tenant schema for a new hospital.
type SchemaProvisioner func(ctx context.Context, tenantID string) error

type Service struct {
	hospitals HospitalRepository
	patients  PatientRepository
	seq       Sequencer
	tx        TxRunner
	provision SchemaProvisioner
}

func NewService(hospitals HospitalRepository, patients PatientRepository, seq Sequencer, tx TxRunner, provision SchemaProvisioner) *Service {
	return &Service{
		hospitals: hospitals,
		patients:  patients,
		seq:       seq,
		tx:        tx,
		provision: provision,
	}
}

// -- Hospital --

// CreateHospital mints an organisation code, stores the hospital in the
// shared directory, and provisions its tenant schema. The schema name is
// the lowercased code.
func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.Name == "" {
		return apperr.Validation("name is required", nil)
	}
	h.Active = true

	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		code, _, err := s.seq.Next(ctx, sequence.KindHospitalCode, time.Now())
		if err != nil {
			return err
		}
		h.Code = code
		return s.hospitals.Create(ctx, h)
	})
	if err != nil {
		return err
	}

	if s.provision != nil {
		if err := s.provision(ctx, strings.ToLower(h.Code)); err != nil {
			return apperr.Wrap(err, "provision tenant schema")
		}
	}
	return nil
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("hospital", id.String())
	}
	return h, err
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}

func (s *Service) DeactivateHospital(ctx context.Context, id uuid.UUID) error {
	h, err := s.GetHospital(ctx, id)
	if err != nil {
		return err
	}
	h.Active = false
	return s.hospitals.Update(ctx, h)
}

// -- Patient --

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

// RegisterPatient assigns a lifetime patient number and stores the record.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" {
		return apperr.Validation("first_name is required", nil)
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validationf("invalid gender: %s", *p.Gender)
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()) {
		return apperr.Validation("date_of_birth cannot be in the future", nil)
	}
	p.Active = true

	return s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		number, _, err := s.seq.Next(ctx, sequence.KindPatient, time.Now())
		if err != nil {
			return err
		}
		p.PatientNumber = number
		return s.patients.Create(ctx, p)
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id.String())
	}
	return p, err
}

func (s *Service) GetPatientByNumber(ctx context.Context, number string) (*Patient, error) {
	p, err := s.patients.GetByNumber(ctx, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", number)
	}
	return p, err
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	existing, err := s.GetPatient(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validationf("invalid gender: %s", *p.Gender)
	}
	// Patient numbers are immutable once assigned.
	p.PatientNumber = existing.PatientNumber
	p.Active = existing.Active
	return s.patients.Update(ctx, p)
}

// DeactivatePatient hides the patient from active lists. Records are kept.
func (s *Service) DeactivatePatient(ctx context.Context, id uuid.UUID) error {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	p.Active = false
	return s.patients.Update(ctx, p)
}

func (s *Service) SearchPatients(ctx context.Context, query string, activeOnly bool, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(query), activeOnly, limit, offset)
}
