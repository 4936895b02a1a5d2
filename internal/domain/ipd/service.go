package ipd

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/db"
	"github.com/carewire/hms/internal/platform/events"
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
	beds       BedRepository
	admissions AdmissionRepository
	schedules  ScheduleRepository
	seq        Sequencer
	tx         TxRunner
	bus        *events.Bus
}

func NewService(beds BedRepository, admissions AdmissionRepository, schedules ScheduleRepository, seq Sequencer, tx TxRunner, bus *events.Bus) *Service {
	return &Service{
		beds:       beds,
		admissions: admissions,
		schedules:  schedules,
		seq:        seq,
		tx:         tx,
		bus:        bus,
	}
}

// -- Beds --

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if b.Ward == "" {
		return apperr.Validation("ward is required", nil)
	}
	if b.Number == "" {
		return apperr.Validation("number is required", nil)
	}
	b.Status = BedAvailable
	return s.beds.Create(ctx, b)
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := s.beds.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bed", id.String())
	}
	return b, err
}

func (s *Service) ListBeds(ctx context.Context, ward, status string, limit, offset int) ([]*Bed, int, error) {
	if status != "" && status != BedAvailable && status != BedOccupied && status != BedMaintenance {
		return nil, 0, apperr.Validationf("unknown bed status %q", status)
	}
	return s.beds.List(ctx, ward, status, limit, offset)
}

// SetBedMaintenance moves a bed in or out of maintenance. An occupied bed
// cannot be taken down.
func (s *Service) SetBedMaintenance(ctx context.Context, id uuid.UUID, down bool) (*Bed, error) {
	var out *Bed
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.beds.GetByIDLocked(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bed", id.String())
		}
		if err != nil {
			return err
		}
		target := BedAvailable
		if down {
			target = BedMaintenance
		}
		if b.Status == BedOccupied {
			return apperr.Conflict("bed is occupied")
		}
		if b.Status == target {
			out = b
			return nil
		}
		if err := s.beds.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		b.Status = target
		out = b
		return nil
	})
	return out, err
}

// Occupancy reports bed counts by status and the share of beds occupied.
func (s *Service) Occupancy(ctx context.Context) (*OccupancyReport, error) {
	counts, err := s.beds.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	report := &OccupancyReport{ByStatus: counts}
	for _, n := range counts {
		report.TotalBeds += n
	}
	if report.TotalBeds > 0 {
		report.OccupancyRate = float64(counts[BedOccupied]) / float64(report.TotalBeds)
	}
	return report, nil
}

// -- Admissions --

// Admit places a patient in a bed. The bed row is locked for the duration of
// the transaction so two admissions cannot claim it at once, and a patient
// can hold only one active admission.
func (s *Service) Admit(ctx context.Context, a *Admission) error {
	if a.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required", nil)
	}
	if a.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required", nil)
	}
	if a.BedID == uuid.Nil {
		return apperr.Validation("bed_id is required", nil)
	}
	now := time.Now().UTC()
	a.Status = StatusAdmitted
	a.AdmittedAt = now

	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		existing, err := s.admissions.ActiveForPatient(ctx, a.PatientID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("patient already admitted under %s", existing.AdmissionNumber)
		}

		bed, err := s.beds.GetByIDLocked(ctx, a.BedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bed", a.BedID.String())
		}
		if err != nil {
			return err
		}
		if bed.Status != BedAvailable {
			return apperr.Conflictf("bed %s/%s is %s", bed.Ward, bed.Number, bed.Status)
		}

		number, _, err := s.seq.Next(ctx, sequence.KindAdmission, now)
		if err != nil {
			return err
		}
		a.AdmissionNumber = number

		if err := s.admissions.Create(ctx, a); err != nil {
			return err
		}
		return s.beds.UpdateStatus(ctx, a.BedID, BedOccupied)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(events.AdmissionAdmitted, db.TenantFromContext(ctx), map[string]string{
		"admission_id":     a.ID.String(),
		"admission_number": a.AdmissionNumber,
		"patient_id":       a.PatientID.String(),
		"bed_id":           a.BedID.String(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := s.admissions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("admission", id.String())
	}
	return a, err
}

// Discharge closes an admission. The discharge type selects the terminal
// status, active medication schedules are discontinued, and the bed is
// released, all in one transaction.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID, dischargeType string, notes *string) (*Admission, error) {
	target, ok := dischargeStatus[dischargeType]
	if !ok {
		return nil, apperr.Validationf("unknown discharge type %q", dischargeType)
	}

	var out *Admission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("admission", id.String())
		}
		if err != nil {
			return err
		}
		if a.Status != StatusAdmitted {
			return apperr.StateTransition("admission", a.Status, target)
		}

		now := time.Now().UTC()
		a.Status = target
		a.DischargedAt = &now
		if notes != nil {
			a.Notes = notes
		}
		if err := s.admissions.Update(ctx, a); err != nil {
			return err
		}
		if _, err := s.schedules.DiscontinueActive(ctx, a.ID); err != nil {
			return err
		}
		if err := s.beds.UpdateStatus(ctx, a.BedID, BedAvailable); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.AdmissionDischarged, db.TenantFromContext(ctx), map[string]string{
		"admission_id":     out.ID.String(),
		"admission_number": out.AdmissionNumber,
		"patient_id":       out.PatientID.String(),
		"discharge_type":   dischargeType,
	})
	return out, nil
}

// TransferBed moves an active admission to another bed. The old bed is
// released and the new bed claimed in the same transaction.
func (s *Service) TransferBed(ctx context.Context, id, newBedID uuid.UUID) (*Admission, error) {
	if newBedID == uuid.Nil {
		return nil, apperr.Validation("bed_id is required", nil)
	}

	var out *Admission
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("admission", id.String())
		}
		if err != nil {
			return err
		}
		if a.Status != StatusAdmitted {
			return apperr.Conflict("admission is not active")
		}
		if a.BedID == newBedID {
			return apperr.Validation("patient is already in that bed", nil)
		}

		bed, err := s.beds.GetByIDLocked(ctx, newBedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bed", newBedID.String())
		}
		if err != nil {
			return err
		}
		if bed.Status != BedAvailable {
			return apperr.Conflictf("bed %s/%s is %s", bed.Ward, bed.Number, bed.Status)
		}

		oldBedID := a.BedID
		a.BedID = newBedID
		if err := s.admissions.Update(ctx, a); err != nil {
			return err
		}
		if err := s.beds.UpdateStatus(ctx, newBedID, BedOccupied); err != nil {
			return err
		}
		if err := s.beds.UpdateStatus(ctx, oldBedID, BedAvailable); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return s.admissions.ListByPatient(ctx, patientID, limit, offset)
}

// -- Medication schedules --

func (s *Service) AddSchedule(ctx context.Context, sch *MedicationSchedule) error {
	if sch.MedicineID == uuid.Nil {
		return apperr.Validation("medicine_id is required", nil)
	}
	if sch.Dosage == "" {
		return apperr.Validation("dosage is required", nil)
	}
	if sch.Frequency == "" {
		return apperr.Validation("frequency is required", nil)
	}

	a, err := s.admissions.GetByID(ctx, sch.AdmissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("admission", sch.AdmissionID.String())
	}
	if err != nil {
		return err
	}
	if a.Status != StatusAdmitted {
		return apperr.Conflict("admission is not active")
	}
	sch.Status = ScheduleActive
	return s.schedules.Create(ctx, sch)
}

// SetScheduleStatus completes or discontinues a schedule. ACTIVE is the only
// state a schedule can leave.
func (s *Service) SetScheduleStatus(ctx context.Context, id uuid.UUID, status string) (*MedicationSchedule, error) {
	if status != ScheduleCompleted && status != ScheduleDiscontinued {
		return nil, apperr.Validationf("unknown schedule status %q", status)
	}
	sch, err := s.schedules.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("medication schedule", id.String())
	}
	if err != nil {
		return nil, err
	}
	if sch.Status != ScheduleActive {
		return nil, apperr.StateTransition("medication schedule", sch.Status, status)
	}
	if err := s.schedules.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	sch.Status = status
	return sch, nil
}

func (s *Service) Schedules(ctx context.Context, admissionID uuid.UUID) ([]*MedicationSchedule, error) {
	if _, err := s.Get(ctx, admissionID); err != nil {
		return nil, err
	}
	return s.schedules.ListByAdmission(ctx, admissionID)
}
