package orders

import (
	"context"

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

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, order_number, kind, patient_id, consultation_id, priority, status,
	total_amount, paid_amount, created_at, completed_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.Kind, &o.PatientID, &o.ConsultationID, &o.Priority, &o.Status,
		&o.TotalAmount, &o.PaidAmount, &o.CreatedAt, &o.CompletedAt)
	return &o, err
}

const itemCols = `id, order_id, code, name, price, status`

func scanItem(row pgx.Row) (*OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.Code, &it.Name, &it.Price, &it.Status)
	return &it, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	c := connFor(ctx, r.pool)
	o.ID = uuid.New()
	_, err := c.Exec(ctx, `
		INSERT INTO clinical_order (id, order_number, kind, patient_id, consultation_id, priority,
			status, total_amount, paid_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.OrderNumber, o.Kind, o.PatientID, o.ConsultationID, o.Priority,
		o.Status, o.TotalAmount, o.PaidAmount)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		it.ID = uuid.New()
		it.OrderID = o.ID
		if _, err := c.Exec(ctx, `
			INSERT INTO clinical_order_item (id, order_id, code, name, price, status)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.Code, it.Name, it.Price, it.Status); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+orderCols+` FROM clinical_order WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.ListItems(ctx, id)
	return o, err
}

func (r *orderRepoPG) Update(ctx context.Context, o *Order) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE clinical_order SET status=$2, paid_amount=$3, completed_at=$4
		WHERE id = $1`,
		o.ID, o.Status, o.PaidAmount, o.CompletedAt)
	return err
}

func (r *orderRepoPG) GetItem(ctx context.Context, itemID uuid.UUID) (*OrderItem, error) {
	return scanItem(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM clinical_order_item WHERE id = $1`, itemID))
}

func (r *orderRepoPG) UpdateItem(ctx context.Context, item *OrderItem) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE clinical_order_item SET status=$2 WHERE id = $1`, item.ID, item.Status)
	return err
}

func (r *orderRepoPG) ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+itemCols+` FROM clinical_order_item WHERE order_id = $1 ORDER BY code`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *orderRepoPG) ListQueue(ctx context.Context, kind string, limit, offset int) ([]*Order, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	err := c.QueryRow(ctx, `
		SELECT COUNT(*) FROM clinical_order
		WHERE kind = $1 AND status IN ('PAID','SAMPLE_COLLECTED','SCHEDULED','IN_PROGRESS')`,
		kind).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+orderCols+` FROM clinical_order
		WHERE kind = $1 AND status IN ('PAID','SAMPLE_COLLECTED','SCHEDULED','IN_PROGRESS')
		ORDER BY CASE priority WHEN 'STAT' THEN 0 WHEN 'URGENT' THEN 1 ELSE 2 END, created_at
		LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectOrders(rows, total)
}

func (r *orderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_order WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+orderCols+` FROM clinical_order
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectOrders(rows, total)
}

func collectOrders(rows pgx.Rows, total int) ([]*Order, int, error) {
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// =========== Result Repository ===========

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

const resultCols = `id, order_item_id, value, notes, recorded_by, recorded_at`

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO order_result (id, order_item_id, value, notes, recorded_by)
		VALUES ($1,$2,$3,$4,$5)`,
		res.ID, res.OrderItemID, res.Value, res.Notes, res.RecordedBy)
	return err
}

func (r *resultRepoPG) ExistsForItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var exists bool
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_result WHERE order_item_id = $1)`, itemID).Scan(&exists)
	return exists, err
}

func (r *resultRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT r.id, r.order_item_id, r.value, r.notes, r.recorded_by, r.recorded_at
		FROM order_result r
		JOIN clinical_order_item i ON i.id = r.order_item_id
		WHERE i.order_id = $1
		ORDER BY r.recorded_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.OrderItemID, &res.Value, &res.Notes, &res.RecordedBy, &res.RecordedAt); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}
