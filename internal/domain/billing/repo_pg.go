package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carewire/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

const billCols = `id, bill_number, bill_type, patient_id, subtotal, discount, tax, total,
	paid, status, created_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.BillType, &b.PatientID, &b.Subtotal, &b.Discount,
		&b.Tax, &b.Total, &b.Paid, &b.Status, &b.CreatedAt)
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	c := connFor(ctx, r.pool)
	b.ID = uuid.New()
	_, err := c.Exec(ctx, `
		INSERT INTO bill (id, bill_number, bill_type, patient_id, subtotal, discount, tax,
			total, paid, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.BillNumber, b.BillType, b.PatientID, b.Subtotal, b.Discount, b.Tax,
		b.Total, b.Paid, b.Status)
	if err != nil {
		return err
	}
	for _, it := range b.Items {
		it.ID = uuid.New()
		it.BillID = b.ID
		if _, err := c.Exec(ctx, `
			INSERT INTO bill_item (id, bill_id, description, quantity, unit_price, amount,
				order_kind, order_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.BillID, it.Description, it.Quantity, it.UnitPrice, it.Amount,
			it.OrderKind, it.OrderID); err != nil {
			return err
		}
	}
	return nil
}

func (r *billRepoPG) loadItems(ctx context.Context, id uuid.UUID) ([]*BillItem, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, description, quantity, unit_price, amount, order_kind, order_id
		FROM bill_item WHERE bill_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BillItem
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.Amount, &it.OrderKind, &it.OrderID); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *billRepoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*Bill, error) {
	q := `SELECT ` + billCols + ` FROM bill WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	b, err := scanBill(connFor(ctx, r.pool).QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.loadItems(ctx, id)
	return b, err
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return r.get(ctx, id, false)
}

func (r *billRepoPG) GetByIDLocked(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return r.get(ctx, id, true)
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE bill SET paid=$2, status=$3 WHERE id = $1`, b.ID, b.Paid, b.Status)
	return err
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM bill WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+billCols+` FROM bill
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var bills []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	return bills, total, rows.Err()
}

func (r *billRepoPG) ListOutstanding(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*OutstandingBill, int, error) {
	c := connFor(ctx, r.pool)
	where := `WHERE status IN ('PENDING','PARTIALLY_PAID') AND ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR patient_id = $1)`

	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM bill `+where, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT id, bill_number, patient_id, total, paid, total - paid AS due, created_at
		FROM bill `+where+`
		ORDER BY created_at LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*OutstandingBill
	for rows.Next() {
		var o OutstandingBill
		if err := rows.Scan(&o.BillID, &o.BillNumber, &o.PatientID, &o.Total, &o.Paid, &o.Due, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &o)
	}
	return out, total, rows.Err()
}

func (r *billRepoPG) RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error) {
	c := connFor(ctx, r.pool)
	summary := &RevenueSummary{From: from, To: to, ByType: make(map[string]int64)}

	err := c.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0), COALESCE(SUM(paid), 0)
		FROM bill
		WHERE status <> 'CANCELLED' AND created_at >= $1 AND created_at < $2`,
		from, to).Scan(&summary.TotalBilled, &summary.Collected)
	if err != nil {
		return nil, err
	}
	summary.Outstanding = summary.TotalBilled - summary.Collected

	rows, err := c.Query(ctx, `
		SELECT bill_type, COALESCE(SUM(paid), 0)
		FROM bill
		WHERE status <> 'CANCELLED' AND created_at >= $1 AND created_at < $2
		GROUP BY bill_type`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var billType string
		var collected int64
		if err := rows.Scan(&billType, &collected); err != nil {
			return nil, err
		}
		summary.ByType[billType] = collected
	}
	return summary, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment (id, bill_id, amount, method, reference, received_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.BillID, p.Amount, p.Method, p.Reference, p.ReceivedBy)
	return err
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, amount, method, reference, received_by, created_at
		FROM payment WHERE bill_id = $1 ORDER BY created_at`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}
