package pharmacy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/domain/inventory"
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

// Stock is the slice of the inventory service the pharmacy needs: the
// medicine catalog and the single mutation path for stock.
type Stock interface {
	GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
	CreateItem(ctx context.Context, it *inventory.Item) error
	UpdateItem(ctx context.Context, it *inventory.Item) error
	ListItems(ctx context.Context, category string, lowOnly bool, limit, offset int) ([]*inventory.Item, int, error)
	ApplyMovementTx(ctx context.Context, itemID uuid.UUID, movementType string, qty int64, reference *string) (*inventory.Movement, bool, error)
	PublishStockLow(ctx context.Context, itemID uuid.UUID, balance int64)
}

type Service struct {
	prescriptions PrescriptionRepository
	stock         Stock
	seq           Sequencer
	tx            TxRunner
}

func NewService(prescriptions PrescriptionRepository, stock Stock, seq Sequencer, tx TxRunner) *Service {
	return &Service{prescriptions: prescriptions, stock: stock, seq: seq, tx: tx}
}

// -- Medicine catalog --

// CreateMedicine registers a medicine in the shared stock ledger.
func (s *Service) CreateMedicine(ctx context.Context, it *inventory.Item) error {
	it.Category = inventory.CategoryMedicine
	return s.stock.CreateItem(ctx, it)
}

func (s *Service) UpdateMedicine(ctx context.Context, it *inventory.Item) error {
	existing, err := s.stock.GetItem(ctx, it.ID)
	if err != nil {
		return err
	}
	if existing.Category != inventory.CategoryMedicine {
		return apperr.NotFound("medicine", it.ID.String())
	}
	return s.stock.UpdateItem(ctx, it)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	it, err := s.stock.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Category != inventory.CategoryMedicine {
		return nil, apperr.NotFound("medicine", id.String())
	}
	return it, nil
}

func (s *Service) ListMedicines(ctx context.Context, lowOnly bool, limit, offset int) ([]*inventory.Item, int, error) {
	return s.stock.ListItems(ctx, inventory.CategoryMedicine, lowOnly, limit, offset)
}

// -- Prescriptions --

// CreatePrescription snapshots each medicine's name and unit price and
// stores the prescription as PENDING.
func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required", nil)
	}
	if p.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required", nil)
	}
	if len(p.Items) == 0 {
		return apperr.Validation("at least one item is required", nil)
	}
	for _, it := range p.Items {
		if it.Quantity <= 0 {
			return apperr.Validation("item quantity must be positive", nil)
		}
		med, err := s.GetMedicine(ctx, it.MedicineID)
		if err != nil {
			return err
		}
		if !med.Active {
			return apperr.Validationf("medicine %s is inactive", med.Name)
		}
		it.MedicineName = med.Name
		it.UnitPrice = med.UnitPrice
		it.DispensedQty = 0
	}
	p.Status = StatusPending

	return s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		number, _, err := s.seq.Next(ctx, sequence.KindPrescription, time.Now())
		if err != nil {
			return err
		}
		p.PrescriptionNumber = number
		return s.prescriptions.Create(ctx, p)
	})
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription", id.String())
	}
	return p, err
}

type lowStockNote struct {
	itemID  uuid.UUID
	balance int64
}

// dispenseItemTx hands out qty units of one item on the caller's
// transaction: stock moves through the ledger, the item progresses, and
// the parent status is rederived.
func (s *Service) dispenseItemTx(ctx context.Context, p *Prescription, item *PrescriptionItem, qty int64) (*lowStockNote, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive", nil)
	}
	if item.DispensedQty+qty > item.Quantity {
		return nil, apperr.Validationf("dispensing %d would exceed prescribed quantity %d for %s",
			item.DispensedQty+qty, item.Quantity, item.MedicineName)
	}

	ref := p.PrescriptionNumber
	movement, crossedLow, err := s.stock.ApplyMovementTx(ctx, item.MedicineID, inventory.MovementSale, qty, &ref)
	if err != nil {
		return nil, err
	}

	item.DispensedQty += qty
	if err := s.prescriptions.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	if crossedLow {
		return &lowStockNote{itemID: item.MedicineID, balance: movement.Balance}, nil
	}
	return nil, nil
}

// refreshStatusTx rederives the prescription status after dispensing.
func (s *Service) refreshStatusTx(ctx context.Context, p *Prescription) error {
	status := deriveStatus(p.Items)
	if status == p.Status {
		return nil
	}
	p.Status = status
	if status == StatusDispensed {
		now := time.Now().UTC()
		p.DispensedAt = &now
	}
	return s.prescriptions.Update(ctx, p)
}

// Dispense hands out part or all of one prescription item. Insufficient
// stock fails the whole request.
func (s *Service) Dispense(ctx context.Context, prescriptionID, itemID uuid.UUID, qty int64) (*Prescription, error) {
	var result *Prescription
	var low *lowStockNote

	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		low = nil
		p, err := s.GetPrescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled || p.Status == StatusDispensed {
			return apperr.StateTransition("prescription", p.Status, StatusDispensed)
		}

		var item *PrescriptionItem
		for _, it := range p.Items {
			if it.ID == itemID {
				item = it
				break
			}
		}
		if item == nil {
			return apperr.NotFound("prescription item", itemID.String())
		}

		low, err = s.dispenseItemTx(ctx, p, item, qty)
		if err != nil {
			return err
		}
		if err := s.refreshStatusTx(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if low != nil {
		s.stock.PublishStockLow(ctx, low.itemID, low.balance)
	}
	return result, nil
}

// DispenseAll hands out every remaining quantity in one transaction. Any
// stock shortage aborts the whole prescription.
func (s *Service) DispenseAll(ctx context.Context, prescriptionID uuid.UUID) (*Prescription, error) {
	var result *Prescription
	var lows []lowStockNote

	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		lows = lows[:0]
		p, err := s.GetPrescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled || p.Status == StatusDispensed {
			return apperr.StateTransition("prescription", p.Status, StatusDispensed)
		}

		for _, item := range p.Items {
			remaining := item.Quantity - item.DispensedQty
			if remaining == 0 {
				continue
			}
			low, err := s.dispenseItemTx(ctx, p, item, remaining)
			if err != nil {
				return err
			}
			if low != nil {
				lows = append(lows, *low)
			}
		}
		if err := s.refreshStatusTx(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, low := range lows {
		s.stock.PublishStockLow(ctx, low.itemID, low.balance)
	}
	return result, nil
}

// CancelPrescription voids a prescription nothing has been dispensed
// against.
func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var cancelled *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.GetPrescription(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled || p.Status == StatusDispensed {
			return apperr.StateTransition("prescription", p.Status, StatusCancelled)
		}
		for _, it := range p.Items {
			if it.DispensedQty > 0 {
				return apperr.Conflict("cannot cancel a prescription with dispensed items")
			}
		}
		p.Status = StatusCancelled
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		cancelled = p
		return nil
	})
	return cancelled, err
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// Queue lists prescriptions awaiting the pharmacist, oldest first.
func (s *Service) Queue(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListQueue(ctx, limit, offset)
}
