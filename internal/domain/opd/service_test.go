package opd

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/events"
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

type mockTokenRepo struct {
	tokens map[uuid.UUID]*Token
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[uuid.UUID]*Token)}
}

func (m *mockTokenRepo) Create(_ context.Context, t *Token) error {
	t.ID = uuid.New()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *mockTokenRepo) GetByID(_ context.Context, id uuid.UUID) (*Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokenRepo) Update(_ context.Context, t *Token) error {
	if _, ok := m.tokens[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *mockTokenRepo) HasActiveToken(_ context.Context, patientID, doctorID uuid.UUID, date time.Time) (bool, error) {
	for _, t := range m.tokens {
		if t.PatientID == patientID && t.DoctorID == doctorID && t.TokenDate.Equal(date) {
			switch t.Status {
			case StatusWaiting, StatusCalled, StatusInConsultation:
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockTokenRepo) CountForDoctor(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	n := 0
	for _, t := range m.tokens {
		if t.DoctorID == doctorID && t.TokenDate.Equal(date) && t.Status != StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (m *mockTokenRepo) CountWaiting(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	n := 0
	for _, t := range m.tokens {
		if t.DoctorID == doctorID && t.TokenDate.Equal(date) && t.Status == StatusWaiting {
			n++
		}
	}
	return n, nil
}

func (m *mockTokenRepo) sortedWaiting(doctorID uuid.UUID, date time.Time) []*Token {
	var waiting []*Token
	for _, t := range m.tokens {
		if t.DoctorID == doctorID && t.TokenDate.Equal(date) && t.Status == StatusWaiting {
			cp := *t
			waiting = append(waiting, &cp)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Priority != waiting[j].Priority {
			return waiting[i].Priority > waiting[j].Priority
		}
		return waiting[i].TokenNumber < waiting[j].TokenNumber
	})
	return waiting
}

func (m *mockTokenRepo) NextWaitingLocked(_ context.Context, doctorID uuid.UUID, date time.Time) (*Token, error) {
	waiting := m.sortedWaiting(doctorID, date)
	if len(waiting) == 0 {
		return nil, pgx.ErrNoRows
	}
	return waiting[0], nil
}

func (m *mockTokenRepo) ListQueue(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*Token, error) {
	return m.sortedWaiting(doctorID, date), nil
}

func (m *mockTokenRepo) CurrentlyCalled(_ context.Context, doctorID uuid.UUID, date time.Time) (*Token, error) {
	for _, t := range m.tokens {
		if t.DoctorID == doctorID && t.TokenDate.Equal(date) {
			if t.Status == StatusCalled || t.Status == StatusInConsultation {
				cp := *t
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *mockTokenRepo) CountByStatus(_ context.Context, date time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, t := range m.tokens {
		if t.TokenDate.Equal(date) {
			counts[t.Status]++
		}
	}
	return counts, nil
}

type mockConsultationRepo struct {
	consultations map[uuid.UUID]*Consultation
}

func newMockConsultationRepo() *mockConsultationRepo {
	return &mockConsultationRepo{consultations: make(map[uuid.UUID]*Consultation)}
}

func (m *mockConsultationRepo) Create(_ context.Context, c *Consultation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	m.consultations[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := m.consultations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockConsultationRepo) Update(_ context.Context, c *Consultation) error {
	if _, ok := m.consultations[c.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *c
	m.consultations[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var items []*Consultation
	for _, c := range m.consultations {
		if c.PatientID == patientID {
			cp := *c
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

func newTestService() (*Service, *mockTokenRepo, *mockConsultationRepo) {
	tokens := newMockTokenRepo()
	consultations := newMockConsultationRepo()
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(tokens, consultations, newFakeSeq(), passTx{}, bus, 10, 200)
	return svc, tokens, consultations
}

func issueToken(t *testing.T, svc *Service, doctorID, patientID uuid.UUID, priority int) *Token {
	t.Helper()
	tok := &Token{DoctorID: doctorID, PatientID: patientID, Priority: priority}
	if err := svc.CreateToken(context.Background(), tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

// -- Tests --

func TestCreateToken_SequentialNumbers(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()

	t1 := issueToken(t, svc, doctor, uuid.New(), 0)
	t2 := issueToken(t, svc, doctor, uuid.New(), 0)

	if t1.TokenNumber != 1 || t2.TokenNumber != 2 {
		t.Errorf("token numbers = %d, %d, want 1, 2", t1.TokenNumber, t2.TokenNumber)
	}
	if t1.Display != "OPD001" {
		t.Errorf("display = %s, want OPD001", t1.Display)
	}
	if t1.Status != StatusWaiting {
		t.Errorf("status = %s, want WAITING", t1.Status)
	}
}

func TestCreateToken_ConfiguredDailyCap(t *testing.T) {
	tokens := newMockTokenRepo()
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(tokens, newMockConsultationRepo(), newFakeSeq(), passTx{}, bus, 10, 2)
	doctor := uuid.New()

	issueToken(t, svc, doctor, uuid.New(), 0)
	issueToken(t, svc, doctor, uuid.New(), 0)

	err := svc.CreateToken(context.Background(), &Token{DoctorID: doctor, PatientID: uuid.New()})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict at the daily cap, got %v", err)
	}

	// Another doctor has their own cap.
	issueToken(t, svc, uuid.New(), uuid.New(), 0)
}

func TestCreateToken_CancelledDoesNotCountAgainstCap(t *testing.T) {
	tokens := newMockTokenRepo()
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(tokens, newMockConsultationRepo(), newFakeSeq(), passTx{}, bus, 10, 1)
	doctor := uuid.New()

	tok := issueToken(t, svc, doctor, uuid.New(), 0)
	if _, err := svc.CancelToken(context.Background(), tok.ID); err != nil {
		t.Fatalf("CancelToken: %v", err)
	}

	issueToken(t, svc, doctor, uuid.New(), 0)
}

func TestCreateToken_RejectsDuplicateActive(t *testing.T) {
	svc, _, _ := newTestService()
	doctor, patient := uuid.New(), uuid.New()

	issueToken(t, svc, doctor, patient, 0)
	err := svc.CreateToken(context.Background(), &Token{DoctorID: doctor, PatientID: patient})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict for duplicate active token, got %v", err)
	}

	// A different doctor is fine.
	if err := svc.CreateToken(context.Background(), &Token{DoctorID: uuid.New(), PatientID: patient}); err != nil {
		t.Errorf("token with another doctor should succeed: %v", err)
	}
}

func TestCreateToken_AllowsReissueAfterCancel(t *testing.T) {
	svc, _, _ := newTestService()
	doctor, patient := uuid.New(), uuid.New()

	tok := issueToken(t, svc, doctor, patient, 0)
	if _, err := svc.CancelToken(context.Background(), tok.ID); err != nil {
		t.Fatalf("CancelToken: %v", err)
	}
	if err := svc.CreateToken(context.Background(), &Token{DoctorID: doctor, PatientID: patient}); err != nil {
		t.Errorf("reissue after cancel should succeed: %v", err)
	}
}

func TestCreateToken_EstimatedWait(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()

	first := issueToken(t, svc, doctor, uuid.New(), 0)
	if first.EstimatedWait != 0 {
		t.Errorf("first token wait = %d, want 0", first.EstimatedWait)
	}
	second := issueToken(t, svc, doctor, uuid.New(), 0)
	if second.EstimatedWait != 10 {
		t.Errorf("second token wait = %d, want 10", second.EstimatedWait)
	}
}

func TestCallNext_PriorityBeforeFIFO(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()

	issueToken(t, svc, doctor, uuid.New(), 0)
	urgent := issueToken(t, svc, doctor, uuid.New(), 1)

	called, err := svc.CallNext(context.Background(), doctor)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.ID != urgent.ID {
		t.Errorf("called token %s, want priority token %s", called.Display, urgent.Display)
	}
	if called.Status != StatusCalled {
		t.Errorf("status = %s, want CALLED", called.Status)
	}
	if called.CalledAt == nil {
		t.Error("called_at should be set")
	}
}

func TestCallNext_FIFOWithinPriority(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()

	first := issueToken(t, svc, doctor, uuid.New(), 0)
	issueToken(t, svc, doctor, uuid.New(), 0)

	called, err := svc.CallNext(context.Background(), doctor)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.ID != first.ID {
		t.Errorf("called %d, want earliest token %d", called.TokenNumber, first.TokenNumber)
	}
}

func TestCallNext_EmptyQueue(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CallNext(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on empty queue, got %v", err)
	}
}

func TestTokenTransitions_Guarded(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()
	tok := issueToken(t, svc, doctor, uuid.New(), 0)

	// A waiting token cannot jump straight to IN_CONSULTATION.
	_, err := svc.StartConsultation(context.Background(), tok.ID)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("expected state transition error, got %v", err)
	}

	if _, err := svc.CallNext(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartConsultation(context.Background(), tok.ID); err != nil {
		t.Errorf("called token should start consultation: %v", err)
	}
}

func TestCancelToken_TerminalIsFinal(t *testing.T) {
	svc, _, _ := newTestService()
	tok := issueToken(t, svc, uuid.New(), uuid.New(), 0)

	if _, err := svc.CancelToken(context.Background(), tok.ID); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CancelToken(context.Background(), tok.ID)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("cancelling a cancelled token should fail, got %v", err)
	}
}

func TestConsultationFlow_CompletesToken(t *testing.T) {
	svc, tokens, _ := newTestService()
	doctor := uuid.New()
	tok := issueToken(t, svc, doctor, uuid.New(), 0)

	if _, err := svc.CallNext(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}
	consult, err := svc.StartConsultation(context.Background(), tok.ID)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	if consult.Status != ConsultInProgress {
		t.Errorf("consultation status = %s, want IN_PROGRESS", consult.Status)
	}

	diagnosis := "viral fever"
	done, err := svc.CompleteConsultation(context.Background(), consult.ID, nil, &diagnosis, nil)
	if err != nil {
		t.Fatalf("CompleteConsultation: %v", err)
	}
	if done.Status != ConsultCompleted {
		t.Errorf("consultation status = %s, want COMPLETED", done.Status)
	}
	if done.Diagnosis == nil || *done.Diagnosis != diagnosis {
		t.Error("diagnosis not recorded")
	}

	got, err := tokens.GetByID(context.Background(), tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("token status = %s, want COMPLETED after consultation", got.Status)
	}
}

func TestCompleteConsultation_Twice(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()
	tok := issueToken(t, svc, doctor, uuid.New(), 0)
	if _, err := svc.CallNext(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}
	consult, err := svc.StartConsultation(context.Background(), tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteConsultation(context.Background(), consult.ID, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	_, err = svc.CompleteConsultation(context.Background(), consult.ID, nil, nil, nil)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("completing twice should fail, got %v", err)
	}
}

func TestQueue_Snapshot(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()

	issueToken(t, svc, doctor, uuid.New(), 0)
	issueToken(t, svc, doctor, uuid.New(), 0)
	issueToken(t, svc, doctor, uuid.New(), 0)
	if _, err := svc.CallNext(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Queue(context.Background(), doctor, time.Now().UTC())
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if snap.Current == nil || snap.Current.Status != StatusCalled {
		t.Error("snapshot should show the called token as current")
	}
	if len(snap.Waiting) != 2 {
		t.Fatalf("waiting = %d, want 2", len(snap.Waiting))
	}
	if snap.Waiting[0].EstimatedWait != 0 || snap.Waiting[1].EstimatedWait != 10 {
		t.Errorf("wait estimates = %d, %d, want 0, 10",
			snap.Waiting[0].EstimatedWait, snap.Waiting[1].EstimatedWait)
	}
	if snap.StatusCounts[StatusWaiting] != 2 || snap.StatusCounts[StatusCalled] != 1 {
		t.Errorf("status counts = %v", snap.StatusCounts)
	}
}

func TestMarkNoShow(t *testing.T) {
	svc, _, _ := newTestService()
	doctor := uuid.New()
	tok := issueToken(t, svc, doctor, uuid.New(), 0)
	if _, err := svc.CallNext(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.MarkNoShow(context.Background(), tok.ID)
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if updated.Status != StatusNoShow {
		t.Errorf("status = %s, want NO_SHOW", updated.Status)
	}
}
