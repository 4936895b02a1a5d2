package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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
	if kind == sequence.KindHospitalCode {
		return sequence.Format(kind, 100+f.counters[kind], on), 100 + f.counters[kind], nil
	}
	return sequence.Format(kind, f.counters[kind], on), f.counters[kind], nil
}

type mockHospitalRepo struct {
	hospitals map[uuid.UUID]*Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{hospitals: make(map[uuid.UUID]*Hospital)}
}

func (m *mockHospitalRepo) Create(_ context.Context, h *Hospital) error {
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = time.Now()
	m.hospitals[h.ID] = h
	return nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return h, nil
}

func (m *mockHospitalRepo) GetByCode(_ context.Context, code string) (*Hospital, error) {
	for _, h := range m.hospitals {
		if h.Code == code {
			return h, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockHospitalRepo) Update(_ context.Context, h *Hospital) error {
	if _, ok := m.hospitals[h.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.hospitals[h.ID] = h
	return nil
}

func (m *mockHospitalRepo) List(_ context.Context, limit, offset int) ([]*Hospital, int, error) {
	var result []*Hospital
	for _, h := range m.hospitals {
		result = append(result, h)
	}
	return result, len(result), nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPatientRepo) GetByNumber(_ context.Context, number string) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientNumber == number {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, query string, activeOnly bool, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if activeOnly && !p.Active {
			continue
		}
		if query != "" && p.PatientNumber != query && !strings.Contains(p.FirstName, query) {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func newTestService() (*Service, *mockHospitalRepo, *mockPatientRepo, *[]string) {
	hospitals := newMockHospitalRepo()
	patients := newMockPatientRepo()
	provisioned := &[]string{}
	svc := NewService(hospitals, patients, newFakeSeq(), passTx{}, func(_ context.Context, tenantID string) error {
		*provisioned = append(*provisioned, tenantID)
		return nil
	})
	return svc, hospitals, patients, provisioned
}

// -- Tests --

func TestCreateHospital_MintsCodeAndProvisions(t *testing.T) {
	svc, _, _, provisioned := newTestService()

	h := &Hospital{Name: "City Care"}
	if err := svc.CreateHospital(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Code != "H101" {
		t.Errorf("code = %s, want H101", h.Code)
	}
	if !h.Active {
		t.Error("new hospital should be active")
	}
	if len(*provisioned) != 1 || (*provisioned)[0] != "h101" {
		t.Errorf("expected tenant h101 provisioned, got %v", *provisioned)
	}

	h2 := &Hospital{Name: "Valley Clinic"}
	if err := svc.CreateHospital(context.Background(), h2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2.Code != "H102" {
		t.Errorf("second code = %s, want H102", h2.Code)
	}
}

func TestCreateHospital_RequiresName(t *testing.T) {
	svc, _, _, _ := newTestService()
	err := svc.CreateHospital(context.Background(), &Hospital{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRegisterPatient_AssignsLifetimeNumbers(t *testing.T) {
	svc, _, _, _ := newTestService()

	for i, want := range []string{"P0001", "P0002", "P0003"} {
		p := &Patient{FirstName: fmt.Sprintf("Patient%d", i)}
		if err := svc.RegisterPatient(context.Background(), p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.PatientNumber != want {
			t.Errorf("patient_number = %s, want %s", p.PatientNumber, want)
		}
	}
}

func TestRegisterPatient_RejectsFutureDOB(t *testing.T) {
	svc, _, _, _ := newTestService()
	future := time.Now().Add(48 * time.Hour)
	err := svc.RegisterPatient(context.Background(), &Patient{FirstName: "X", DateOfBirth: &future})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdatePatient_NumberImmutable(t *testing.T) {
	svc, _, _, _ := newTestService()
	p := &Patient{FirstName: "Asha"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	update := &Patient{ID: p.ID, FirstName: "Asha", LastName: "Rao", PatientNumber: "P9999"}
	if err := svc.UpdatePatient(context.Background(), update); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.PatientNumber != "P0001" {
		t.Errorf("patient_number = %s, want P0001 (immutable)", update.PatientNumber)
	}
}

func TestDeactivatePatient_KeepsRecord(t *testing.T) {
	svc, _, patients, _ := newTestService()
	p := &Patient{FirstName: "Asha"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeactivatePatient(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := patients.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("record should survive deactivation: %v", err)
	}
	if got.Active {
		t.Error("patient should be inactive")
	}

	found, _, _ := patients.Search(context.Background(), "", true, 10, 0)
	if len(found) != 0 {
		t.Errorf("inactive patient should not appear in active search, got %d", len(found))
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.GetPatient(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestPatientAge(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dob := time.Date(1990, 7, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{DateOfBirth: &dob}
	if got := p.Age(now); got != 33 {
		t.Errorf("Age = %d, want 33", got)
	}
	if got := (&Patient{}).Age(now); got != -1 {
		t.Errorf("Age without DOB = %d, want -1", got)
	}
}
