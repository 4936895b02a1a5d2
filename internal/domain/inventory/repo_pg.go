package inventory

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

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

const itemCols = `id, name, generic_name, category, unit, unit_price, stock_quantity,
	reorder_level, active, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.GenericName, &it.Category, &it.Unit, &it.UnitPrice,
		&it.StockQuantity, &it.ReorderLevel, &it.Active, &it.CreatedAt, &it.UpdatedAt)
	return &it, err
}

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO inventory_item (id, name, generic_name, category, unit, unit_price,
			stock_quantity, reorder_level, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		it.ID, it.Name, it.GenericName, it.Category, it.Unit, it.UnitPrice,
		it.StockQuantity, it.ReorderLevel, it.Active)
	return err
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_item WHERE id = $1`, id))
}

func (r *itemRepoPG) GetByIDLocked(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_item WHERE id = $1 FOR UPDATE`, id))
}

func (r *itemRepoPG) Update(ctx context.Context, it *Item) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE inventory_item
		SET name=$2, generic_name=$3, unit=$4, unit_price=$5, reorder_level=$6, active=$7,
			updated_at=NOW()
		WHERE id = $1`,
		it.ID, it.Name, it.GenericName, it.Unit, it.UnitPrice, it.ReorderLevel, it.Active)
	return err
}

func (r *itemRepoPG) UpdateStock(ctx context.Context, id uuid.UUID, quantity int64) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE inventory_item SET stock_quantity=$2, updated_at=NOW() WHERE id = $1`, id, quantity)
	return err
}

func (r *itemRepoPG) List(ctx context.Context, category string, lowOnly bool, limit, offset int) ([]*Item, int, error) {
	c := connFor(ctx, r.pool)
	where := `WHERE active AND ($1 = '' OR category = $1)`
	if lowOnly {
		where += ` AND stock_quantity <= reorder_level`
	}

	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_item `+where, category).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx,
		`SELECT `+itemCols+` FROM inventory_item `+where+` ORDER BY name LIMIT $2 OFFSET $3`,
		category, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// =========== Movement Repository ===========

type movementRepoPG struct{ pool *pgxpool.Pool }

func NewMovementRepoPG(pool *pgxpool.Pool) MovementRepository {
	return &movementRepoPG{pool: pool}
}

const movementCols = `id, item_id, type, quantity, balance, reference, created_by, created_at`

func (r *movementRepoPG) Create(ctx context.Context, m *Movement) error {
	m.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO stock_movement (id, item_id, type, quantity, balance, reference, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.ItemID, m.Type, m.Quantity, m.Balance, m.Reference, m.CreatedBy)
	return err
}

func (r *movementRepoPG) SumForItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var sum int64
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_movement WHERE item_id = $1`, itemID).Scan(&sum)
	return sum, err
}

func (r *movementRepoPG) ListByItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_movement WHERE item_id = $1`, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+movementCols+` FROM stock_movement
		WHERE item_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		itemID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var moves []*Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.Balance, &m.Reference, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		moves = append(moves, &m)
	}
	return moves, total, rows.Err()
}

// =========== Purchase Order Repository ===========

type poRepoPG struct{ pool *pgxpool.Pool }

func NewPurchaseOrderRepoPG(pool *pgxpool.Pool) PurchaseOrderRepository {
	return &poRepoPG{pool: pool}
}

const poCols = `id, po_number, supplier, status, created_at, received_at`

func scanPO(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PONumber, &po.Supplier, &po.Status, &po.CreatedAt, &po.ReceivedAt)
	return &po, err
}

func (r *poRepoPG) Create(ctx context.Context, po *PurchaseOrder) error {
	c := connFor(ctx, r.pool)
	po.ID = uuid.New()
	_, err := c.Exec(ctx, `
		INSERT INTO purchase_order (id, po_number, supplier, status)
		VALUES ($1,$2,$3,$4)`,
		po.ID, po.PONumber, po.Supplier, po.Status)
	if err != nil {
		return err
	}
	for _, line := range po.Lines {
		line.ID = uuid.New()
		line.POID = po.ID
		if _, err := c.Exec(ctx, `
			INSERT INTO purchase_order_line (id, po_id, item_id, quantity, unit_cost)
			VALUES ($1,$2,$3,$4,$5)`,
			line.ID, line.POID, line.ItemID, line.Quantity, line.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func (r *poRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	c := connFor(ctx, r.pool)
	po, err := scanPO(c.QueryRow(ctx,
		`SELECT `+poCols+` FROM purchase_order WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := c.Query(ctx, `
		SELECT id, po_id, item_id, quantity, unit_cost
		FROM purchase_order_line WHERE po_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ItemID, &line.Quantity, &line.UnitCost); err != nil {
			return nil, err
		}
		po.Lines = append(po.Lines, &line)
	}
	return po, rows.Err()
}

func (r *poRepoPG) Update(ctx context.Context, po *PurchaseOrder) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE purchase_order SET status=$2, received_at=$3 WHERE id = $1`,
		po.ID, po.Status, po.ReceivedAt)
	return err
}

func (r *poRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*PurchaseOrder, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchase_order WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+poCols+` FROM purchase_order
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var pos []*PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		pos = append(pos, po)
	}
	return pos, total, rows.Err()
}
