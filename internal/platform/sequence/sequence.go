// Package sequence issues tenant-scoped, gap-tolerant human identifiers
// (patient numbers, token numbers, order numbers). Counters live in a
// per-tenant table; incrementing takes a row lock, so concurrent callers
// serialize and the same value is never handed out twice.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carewire/hms/internal/platform/apperr"
	"github.com/carewire/hms/internal/platform/db"
)

// Kind identifies a counter family.
type Kind string

const (
	KindPatient       Kind = "patient"
	KindOPDToken      Kind = "opd_token"
	KindLabOrder      Kind = "lab_order"
	KindRadOrder      Kind = "radiology_order"
	KindPrescription  Kind = "prescription"
	KindBill          Kind = "bill"
	KindAdmission     Kind = "admission"
	KindPurchaseOrder Kind = "purchase_order"
	KindHospitalCode  Kind = "hospital_code"
)

// format describes how a counter value is rendered.
type format struct {
	prefix     string
	pad        int
	dateLayout string // empty for lifetime counters
	start      int64
}

var formats = map[Kind]format{
	KindPatient:       {prefix: "P", pad: 4, start: 1},
	KindOPDToken:      {prefix: "OPD", pad: 3, dateLayout: "", start: 1}, // daily, date not shown
	KindLabOrder:      {prefix: "LAB", pad: 3, dateLayout: "20060102", start: 1},
	KindRadOrder:      {prefix: "RAD", pad: 3, dateLayout: "20060102", start: 1},
	KindPrescription:  {prefix: "RX", pad: 3, dateLayout: "20060102", start: 1},
	KindBill:          {prefix: "BILL", pad: 4, dateLayout: "20060102", start: 1},
	KindAdmission:     {prefix: "IPD", pad: 3, dateLayout: "20060102", start: 1},
	KindPurchaseOrder: {prefix: "PO", pad: 3, dateLayout: "20060102", start: 1},
	KindHospitalCode:  {prefix: "H", pad: 3, start: 101},
}

// dailyKinds reset their counter each calendar day.
var dailyKinds = map[Kind]bool{
	KindOPDToken:      true,
	KindLabOrder:      true,
	KindRadOrder:      true,
	KindPrescription:  true,
	KindBill:          true,
	KindAdmission:     true,
	KindPurchaseOrder: true,
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Generator hands out the next identifier for a kind. Calls made inside a
// transaction (via db.WithTx / db.WithSerializableTx) join it, so an
// aborted operation abandons its number along with everything else.
type Generator struct {
	pool *pgxpool.Pool
}

func NewGenerator(pool *pgxpool.Pool) *Generator {
	return &Generator{pool: pool}
}

func (g *Generator) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return g.pool
}

// Next returns the next identifier for kind, formatted, along with its raw
// numeric value. For daily kinds, on picks the counter's day.
func (g *Generator) Next(ctx context.Context, kind Kind, on time.Time) (string, int64, error) {
	f, ok := formats[kind]
	if !ok {
		return "", 0, apperr.Validationf("unknown sequence kind: %s", kind)
	}

	scope := ""
	if dailyKinds[kind] {
		scope = on.Format("2006-01-02")
	}

	var value int64
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO sequence_counter (kind, scope, last_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, scope)
		DO UPDATE SET last_value = sequence_counter.last_value + 1
		RETURNING last_value`,
		string(kind), scope, f.start).Scan(&value)
	if err != nil {
		return "", 0, fmt.Errorf("next %s sequence: %w", kind, err)
	}

	if value < f.start {
		// A corrupted counter must stop the operation, never mint duplicates.
		return "", 0, apperr.Internal(fmt.Errorf("sequence %s counter corrupted: value %d below start %d", kind, value, f.start))
	}

	return Format(kind, value, on), value, nil
}

// Format renders a counter value as its display identifier
// (e.g. LAB-20240115-007, OPD007, P0001).
func Format(kind Kind, value int64, on time.Time) string {
	f := formats[kind]
	if f.dateLayout != "" {
		return fmt.Sprintf("%s-%s-%0*d", f.prefix, on.Format(f.dateLayout), f.pad, value)
	}
	return fmt.Sprintf("%s%0*d", f.prefix, f.pad, value)
}
