package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
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

type mockOrderRepo struct {
	orders map[uuid.UUID]*Order
	items  map[uuid.UUID]*OrderItem
	seq    int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders: make(map[uuid.UUID]*Order),
		items:  make(map[uuid.UUID]*OrderItem),
	}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	o.ID = uuid.New()
	m.seq++
	o.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	for _, it := range o.Items {
		it.ID = uuid.New()
		it.OrderID = o.ID
		cp := *it
		m.items[it.ID] = &cp
	}
	cp := *o
	cp.Items = nil
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	for _, it := range m.items {
		if it.OrderID == id {
			icp := *it
			cp.Items = append(cp.Items, &icp)
		}
	}
	return &cp, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *o
	cp.Items = nil
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetItem(_ context.Context, itemID uuid.UUID) (*OrderItem, error) {
	it, ok := m.items[itemID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *it
	return &cp, nil
}

func (m *mockOrderRepo) UpdateItem(_ context.Context, item *OrderItem) error {
	if _, ok := m.items[item.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockOrderRepo) ListItems(_ context.Context, orderID uuid.UUID) ([]*OrderItem, error) {
	var items []*OrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			cp := *it
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (m *mockOrderRepo) ListQueue(_ context.Context, kind string, limit, offset int) ([]*Order, int, error) {
	var queue []*Order
	for _, o := range m.orders {
		if o.Kind != kind {
			continue
		}
		switch o.Status {
		case StatusPaid, StatusSampleCollected, StatusScheduled, StatusInProgress:
			cp := *o
			queue = append(queue, &cp)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if priorityRank[queue[i].Priority] != priorityRank[queue[j].Priority] {
			return priorityRank[queue[i].Priority] < priorityRank[queue[j].Priority]
		}
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	return queue, len(queue), nil
}

func (m *mockOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	var result []*Order
	for _, o := range m.orders {
		if o.PatientID == patientID {
			cp := *o
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

type mockResultRepo struct {
	results map[uuid.UUID]*Result
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{results: make(map[uuid.UUID]*Result)}
}

func (m *mockResultRepo) Create(_ context.Context, r *Result) error {
	r.ID = uuid.New()
	r.RecordedAt = time.Now()
	cp := *r
	m.results[r.ID] = &cp
	return nil
}

func (m *mockResultRepo) ExistsForItem(_ context.Context, itemID uuid.UUID) (bool, error) {
	for _, r := range m.results {
		if r.OrderItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockResultRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*Result, error) {
	var results []*Result
	for _, r := range m.results {
		cp := *r
		results = append(results, &cp)
	}
	return results, nil
}

func newTestService() (*Service, *mockOrderRepo) {
	repo := newMockOrderRepo()
	svc := NewService(repo, newMockResultRepo(), newFakeSeq(), passTx{}, events.NewBus(zerolog.Nop()))
	return svc, repo
}

func createOrder(t *testing.T, svc *Service, kind string, prices ...int64) *Order {
	t.Helper()
	o := &Order{Kind: kind, PatientID: uuid.New()}
	for i, p := range prices {
		o.Items = append(o.Items, &OrderItem{Code: string(rune('A' + i)), Name: "test", Price: p})
	}
	if err := svc.Create(context.Background(), o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return o
}

func advanceToInProgress(t *testing.T, svc *Service, o *Order) {
	t.Helper()
	ctx := context.Background()
	if err := svc.MarkPaid(ctx, o.ID, o.TotalAmount); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	var err error
	if o.Kind == KindLab {
		_, err = svc.MarkSampleCollected(ctx, o.ID)
	} else {
		_, err = svc.Schedule(ctx, o.ID)
	}
	if err != nil {
		t.Fatalf("intermediate step: %v", err)
	}
	if _, err := svc.Start(ctx, o.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// -- Tests --

func TestCreate_SnapshotsPrices(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 25000, 40000)

	if o.Status != StatusPendingPayment {
		t.Errorf("status = %s, want PENDING_PAYMENT", o.Status)
	}
	if o.TotalAmount != 65000 {
		t.Errorf("total = %d, want 65000", o.TotalAmount)
	}
	if o.Priority != PriorityRoutine {
		t.Errorf("priority = %s, want ROUTINE default", o.Priority)
	}
	wantPrefix := "LAB-" + time.Now().Format("20060102")
	if len(o.OrderNumber) < len(wantPrefix) || o.OrderNumber[:len(wantPrefix)] != wantPrefix {
		t.Errorf("order number = %s, want prefix %s", o.OrderNumber, wantPrefix)
	}
}

func TestCreate_NumbersOrdersByKind(t *testing.T) {
	svc, _ := newTestService()
	lab := createOrder(t, svc, KindLab, 1000)
	rad := createOrder(t, svc, KindRadiology, 1000)

	if !strings.HasPrefix(lab.OrderNumber, "LAB-") {
		t.Errorf("lab order number = %q, want LAB- prefix", lab.OrderNumber)
	}
	if !strings.HasPrefix(rad.OrderNumber, "RAD-") {
		t.Errorf("radiology order number = %q, want RAD- prefix", rad.OrderNumber)
	}

	// Each kind counts independently, so the first of each ends in 001.
	if !strings.HasSuffix(lab.OrderNumber, "-001") || !strings.HasSuffix(rad.OrderNumber, "-001") {
		t.Errorf("expected independent counters, got %q and %q", lab.OrderNumber, rad.OrderNumber)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService()
	cases := []struct {
		name  string
		order *Order
	}{
		{"bad kind", &Order{Kind: "dental", PatientID: uuid.New(), Items: []*OrderItem{{Code: "X", Name: "x", Price: 1}}}},
		{"no items", &Order{Kind: KindLab, PatientID: uuid.New()}},
		{"negative price", &Order{Kind: KindLab, PatientID: uuid.New(), Items: []*OrderItem{{Code: "X", Name: "x", Price: -1}}}},
		{"bad priority", &Order{Kind: KindLab, PatientID: uuid.New(), Priority: "ASAP", Items: []*OrderItem{{Code: "X", Name: "x", Price: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Create(context.Background(), tc.order); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestTransitions_GatedOnPayment(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 1000)

	_, err := svc.MarkSampleCollected(context.Background(), o.ID)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("collecting before payment should fail, got %v", err)
	}

	if err := svc.MarkPaid(context.Background(), o.ID, 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkSampleCollected(context.Background(), o.ID); err != nil {
		t.Errorf("collecting after payment should succeed: %v", err)
	}
}

func TestKindSpecificIntermediateStep(t *testing.T) {
	svc, _ := newTestService()
	lab := createOrder(t, svc, KindLab, 1000)
	rad := createOrder(t, svc, KindRadiology, 1000)
	ctx := context.Background()

	if err := svc.MarkPaid(ctx, lab.ID, 1000); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkPaid(ctx, rad.ID, 1000); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Schedule(ctx, lab.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("scheduling a lab order should fail, got %v", err)
	}
	if _, err := svc.MarkSampleCollected(ctx, rad.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("collecting a radiology sample should fail, got %v", err)
	}
	if _, err := svc.Schedule(ctx, rad.ID); err != nil {
		t.Errorf("scheduling a radiology order should succeed: %v", err)
	}
}

func TestMarkPaid_OnlyFromPendingPayment(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 1000)

	if err := svc.MarkPaid(context.Background(), o.ID, 1000); err != nil {
		t.Fatal(err)
	}
	err := svc.MarkPaid(context.Background(), o.ID, 1000)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("double payment marking should fail, got %v", err)
	}
}

func TestRecordResult_CompletesOrderWhenAllItemsDone(t *testing.T) {
	svc, repo := newTestService()
	o := createOrder(t, svc, KindLab, 1000, 2000)
	advanceToInProgress(t, svc, o)

	loaded, err := svc.Get(context.Background(), o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(loaded.Items))
	}

	if _, err := svc.RecordResult(context.Background(), loaded.Items[0].ID, "4.2", nil); err != nil {
		t.Fatalf("first result: %v", err)
	}
	mid, _ := repo.GetByID(context.Background(), o.ID)
	if mid.Status != StatusInProgress {
		t.Errorf("order should stay IN_PROGRESS with one result, got %s", mid.Status)
	}

	if _, err := svc.RecordResult(context.Background(), loaded.Items[1].ID, "negative", nil); err != nil {
		t.Fatalf("second result: %v", err)
	}
	done, _ := repo.GetByID(context.Background(), o.ID)
	if done.Status != StatusCompleted {
		t.Errorf("order status = %s, want COMPLETED", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
}

func TestRecordResult_OnePerItem(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 1000, 2000)
	advanceToInProgress(t, svc, o)

	loaded, _ := svc.Get(context.Background(), o.ID)
	if _, err := svc.RecordResult(context.Background(), loaded.Items[0].ID, "4.2", nil); err != nil {
		t.Fatal(err)
	}
	_, err := svc.RecordResult(context.Background(), loaded.Items[0].ID, "4.3", nil)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second result for the same item should conflict, got %v", err)
	}
}

func TestRecordResult_RequiresInProgress(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 1000)
	loaded, _ := svc.Get(context.Background(), o.ID)

	_, err := svc.RecordResult(context.Background(), loaded.Items[0].ID, "4.2", nil)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("result on unpaid order should fail, got %v", err)
	}
}

func TestCancel_CascadesToItems(t *testing.T) {
	svc, repo := newTestService()
	o := createOrder(t, svc, KindLab, 1000, 2000)

	if _, err := svc.Cancel(context.Background(), o.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), o.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if got.TotalAmount != 3000 {
		t.Errorf("total changed on cancel: %d", got.TotalAmount)
	}
	for _, it := range got.Items {
		if it.Status != ItemCancelled {
			t.Errorf("item %s status = %s, want CANCELLED", it.Code, it.Status)
		}
	}
}

func TestCancel_TerminalIsFinal(t *testing.T) {
	svc, _ := newTestService()
	o := createOrder(t, svc, KindLab, 1000)
	if _, err := svc.Cancel(context.Background(), o.ID); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Cancel(context.Background(), o.ID)
	if !errors.Is(err, apperr.ErrStateTransition) {
		t.Errorf("cancelling twice should fail, got %v", err)
	}
}

func TestQueue_PriorityThenAge(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first := createOrder(t, svc, KindLab, 1000)
	second := createOrder(t, svc, KindLab, 1000)
	stat := &Order{Kind: KindLab, PatientID: uuid.New(), Priority: PriorityStat,
		Items: []*OrderItem{{Code: "X", Name: "x", Price: 1000}}}
	if err := svc.Create(ctx, stat); err != nil {
		t.Fatal(err)
	}
	// Only paid orders enter the work queue.
	for _, o := range []*Order{first, second, stat} {
		if err := svc.MarkPaid(ctx, o.ID, 1000); err != nil {
			t.Fatal(err)
		}
	}

	queue, total, err := svc.Queue(ctx, KindLab, 50, 0)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if queue[0].ID != stat.ID {
		t.Errorf("STAT order should be first, got %s priority %s", queue[0].OrderNumber, queue[0].Priority)
	}
	if queue[1].ID != first.ID {
		t.Errorf("routine orders should keep creation order")
	}
}

func TestQueue_InvalidKind(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Queue(context.Background(), "dental", 10, 0)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
