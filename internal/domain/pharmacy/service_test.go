package pharmacy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carewire/hms/internal/domain/inventory"
	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/sequence"
)

// -- Mocks --

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (passTx) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeSeq struct {
	counters map[sequence.Kind]int64
}

func newFakeSeq() *fakeSeq { return &fakeSeq{counters: make(map[sequence.Kind]int64)} }

func (f *fakeSeq) Next(_ context.Context, kind sequence.Kind, on time.Time) (string, int64, error) {
	f.counters[kind]++
	return sequence.Format(kind, f.counters[kind], on), f.counters[kind], nil
}

// fakeStock is an in-memory stand-in for the inventory service.
type fakeStock struct {
	items   map[uuid.UUID]*inventory.Item
	lowPubs []uuid.UUID
}

func newFakeStock() *fakeStock {
	return &fakeStock{items: make(map[uuid.UUID]*inventory.Item)}
}

func (f *fakeStock) addMedicine(name string, price, stock, reorder int64) *inventory.Item {
	it := &inventory.Item{
		ID:            uuid.New(),
		Name:          name,
		Category:      inventory.CategoryMedicine,
		Unit:          "tablet",
		UnitPrice:     price,
		StockQuantity: stock,
		ReorderLevel:  reorder,
		Active:        true,
	}
	f.items[it.ID] = it
	return it
}

func (f *fakeStock) GetItem(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound("inventory item", id.String())
	}
	cp := *it
	return &cp, nil
}

func (f *fakeStock) CreateItem(_ context.Context, it *inventory.Item) error {
	it.ID = uuid.New()
	it.Active = true
	cp := *it
	f.items[it.ID] = &cp
	return nil
}

func (f *fakeStock) UpdateItem(_ context.Context, it *inventory.Item) error {
	if _, ok := f.items[it.ID]; !ok {
		return apperr.NotFound("inventory item", it.ID.String())
	}
	cp := *it
	f.items[it.ID] = &cp
	return nil
}

func (f *fakeStock) ListItems(_ context.Context, category string, lowOnly bool, limit, offset int) ([]*inventory.Item, int, error) {
	var result []*inventory.Item
	for _, it := range f.items {
		if category != "" && it.Category != category {
			continue
		}
		if lowOnly && it.StockQuantity > it.ReorderLevel {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (f *fakeStock) ApplyMovementTx(_ context.Context, itemID uuid.UUID, movementType string, qty int64, reference *string) (*inventory.Movement, bool, error) {
	it, ok := f.items[itemID]
	if !ok {
		return nil, false, apperr.NotFound("inventory item", itemID.String())
	}
	if movementType != inventory.MovementSale {
		return nil, false, apperr.Validationf("unexpected movement type %s", movementType)
	}
	if it.StockQuantity < qty {
		return nil, false, apperr.Conflictf("insufficient stock for %s", it.Name)
	}
	before := it.StockQuantity
	it.StockQuantity -= qty
	crossedLow := it.StockQuantity <= it.ReorderLevel && before > it.ReorderLevel
	return &inventory.Movement{
		ItemID:   itemID,
		Type:     movementType,
		Quantity: -qty,
		Balance:  it.StockQuantity,
	}, crossedLow, nil
}

func (f *fakeStock) PublishStockLow(_ context.Context, itemID uuid.UUID, _ int64) {
	f.lowPubs = append(f.lowPubs, itemID)
}

type mockPrescriptionRepo struct {
	prescriptions map[uuid.UUID]*Prescription
	items         map[uuid.UUID]*PrescriptionItem
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{
		prescriptions: make(map[uuid.UUID]*Prescription),
		items:         make(map[uuid.UUID]*PrescriptionItem),
	}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	for _, it := range p.Items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		cp := *it
		m.items[it.ID] = &cp
	}
	cp := *p
	cp.Items = nil
	m.prescriptions[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	for _, it := range m.items {
		if it.PrescriptionID == id {
			icp := *it
			cp.Items = append(cp.Items, &icp)
		}
	}
	return &cp, nil
}

func (m *mockPrescriptionRepo) Update(_ context.Context, p *Prescription) error {
	if _, ok := m.prescriptions[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *p
	cp.Items = nil
	m.prescriptions[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) UpdateItem(_ context.Context, item *PrescriptionItem) error {
	if _, ok := m.items[item.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var result []*Prescription
	for _, p := range m.prescriptions {
		if p.PatientID == patientID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func (m *mockPrescriptionRepo) ListQueue(_ context.Context, limit, offset int) ([]*Prescription, int, error) {
	var result []*Prescription
	for _, p := range m.prescriptions {
		if p.Status == StatusPending || p.Status == StatusPartiallyDispensed {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func newTestService() (*Service, *fakeStock, *mockPrescriptionRepo) {
	stock := newFakeStock()
	repo := newMockPrescriptionRepo()
	svc := NewService(repo, stock, newFakeSeq(), passTx{})
	return svc, stock, repo
}

func prescribe(t *testing.T, svc *Service, items ...*PrescriptionItem) *Prescription {
	t.Helper()
	p := &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(), Items: items}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	return p
}

// -- Tests --

func TestCreatePrescription_SnapshotsCatalog(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin 250mg", 500, 100, 10)

	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Dosage: "1-0-1", Quantity: 10})
	if p.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", p.Status)
	}
	if p.Items[0].MedicineName != "Amoxicillin 250mg" || p.Items[0].UnitPrice != 500 {
		t.Errorf("catalog snapshot missing: %+v", p.Items[0])
	}
	wantPrefix := "RX-" + time.Now().Format("20060102")
	if len(p.PrescriptionNumber) < len(wantPrefix) || p.PrescriptionNumber[:len(wantPrefix)] != wantPrefix {
		t.Errorf("number = %s, want prefix %s", p.PrescriptionNumber, wantPrefix)
	}
}

func TestCreatePrescription_Validation(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 100, 10)

	cases := []struct {
		name    string
		p       *Prescription
		wantErr error
	}{
		{"no items", &Prescription{PatientID: uuid.New(), DoctorID: uuid.New()}, apperr.ErrValidation},
		{"zero quantity", &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(),
			Items: []*PrescriptionItem{{MedicineID: med.ID, Quantity: 0}}}, apperr.ErrValidation},
		{"unknown medicine", &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(),
			Items: []*PrescriptionItem{{MedicineID: uuid.New(), Quantity: 1}}}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.CreatePrescription(context.Background(), tc.p); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDispense_PartialThenFull(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 100, 10)
	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Dosage: "1-0-1", Quantity: 10})

	mid, err := svc.Dispense(context.Background(), p.ID, p.Items[0].ID, 4)
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if mid.Status != StatusPartiallyDispensed {
		t.Errorf("status = %s, want PARTIALLY_DISPENSED", mid.Status)
	}

	done, err := svc.Dispense(context.Background(), p.ID, p.Items[0].ID, 6)
	if err != nil {
		t.Fatalf("Dispense rest: %v", err)
	}
	if done.Status != StatusDispensed {
		t.Errorf("status = %s, want DISPENSED", done.Status)
	}
	if done.DispensedAt == nil {
		t.Error("dispensed_at should be set")
	}

	it, _ := stock.GetItem(context.Background(), med.ID)
	if it.StockQuantity != 90 {
		t.Errorf("stock = %d, want 90", it.StockQuantity)
	}
}

func TestDispense_RejectsOverdispense(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 100, 10)
	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 10})

	_, err := svc.Dispense(context.Background(), p.ID, p.Items[0].ID, 11)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("over-dispense should fail validation, got %v", err)
	}
}

func TestDispense_InsufficientStock(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 3, 0)
	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 10})

	_, err := svc.Dispense(context.Background(), p.ID, p.Items[0].ID, 5)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("insufficient stock should conflict, got %v", err)
	}
}

func TestDispense_EmitsLowStock(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 12, 10)
	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 5})

	if _, err := svc.Dispense(context.Background(), p.ID, p.Items[0].ID, 5); err != nil {
		t.Fatal(err)
	}
	if len(stock.lowPubs) != 1 || stock.lowPubs[0] != med.ID {
		t.Errorf("expected one low-stock event for the medicine, got %v", stock.lowPubs)
	}
}

func TestDispenseAll_AllOrNothing(t *testing.T) {
	svc, stock, _ := newTestService()
	plenty := stock.addMedicine("Amoxicillin", 500, 100, 0)
	scarce := stock.addMedicine("Insulin", 2000, 2, 0)
	p := prescribe(t, svc,
		&PrescriptionItem{MedicineID: plenty.ID, Quantity: 10},
		&PrescriptionItem{MedicineID: scarce.ID, Quantity: 5},
	)

	_, err := svc.DispenseAll(context.Background(), p.ID)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict when one item lacks stock, got %v", err)
	}
	// Note: atomicity across items rests on the database transaction; the
	// passthrough runner in tests does not roll back.
}

func TestDispenseAll_Completes(t *testing.T) {
	svc, stock, repo := newTestService()
	a := stock.addMedicine("Amoxicillin", 500, 100, 0)
	b := stock.addMedicine("Paracetamol", 150, 100, 0)
	p := prescribe(t, svc,
		&PrescriptionItem{MedicineID: a.ID, Quantity: 10},
		&PrescriptionItem{MedicineID: b.ID, Quantity: 20},
	)

	done, err := svc.DispenseAll(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("DispenseAll: %v", err)
	}
	if done.Status != StatusDispensed {
		t.Errorf("status = %s, want DISPENSED", done.Status)
	}
	for _, it := range done.Items {
		if it.DispensedQty != it.Quantity {
			t.Errorf("item %s dispensed %d of %d", it.MedicineName, it.DispensedQty, it.Quantity)
		}
	}

	_, err = svc.Dispense(context.Background(), p.ID, done.Items[0].ID, 1)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("dispensing a finished prescription should fail, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), p.ID)
	if got.Status != StatusDispensed {
		t.Errorf("persisted status = %s", got.Status)
	}
}

func TestCancelPrescription_OnlyUndispensed(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 100, 0)

	p := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 10})
	if _, err := svc.CancelPrescription(context.Background(), p.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	p2 := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 10})
	if _, err := svc.Dispense(context.Background(), p2.ID, p2.Items[0].ID, 1); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CancelPrescription(context.Background(), p2.ID)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("cancel after dispensing should conflict, got %v", err)
	}
}

func TestQueue_ExcludesFinished(t *testing.T) {
	svc, stock, _ := newTestService()
	med := stock.addMedicine("Amoxicillin", 500, 100, 0)

	pending := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 5})
	finished := prescribe(t, svc, &PrescriptionItem{MedicineID: med.ID, Quantity: 5})
	if _, err := svc.DispenseAll(context.Background(), finished.ID); err != nil {
		t.Fatal(err)
	}

	queue, total, err := svc.Queue(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if total != 1 || queue[0].ID != pending.ID {
		t.Errorf("queue should hold only the pending prescription, got %d", total)
	}
}
