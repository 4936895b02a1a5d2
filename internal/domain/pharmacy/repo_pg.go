package pharmacy

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

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const prescriptionCols = `id, prescription_number, patient_id, doctor_id, consultation_id,
	status, notes, created_at, dispensed_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionNumber, &p.PatientID, &p.DoctorID, &p.ConsultationID,
		&p.Status, &p.Notes, &p.CreatedAt, &p.DispensedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	c := r.conn(ctx)
	p.ID = uuid.New()
	_, err := c.Exec(ctx, `
		INSERT INTO prescription (id, prescription_number, patient_id, doctor_id, consultation_id,
			status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.PrescriptionNumber, p.PatientID, p.DoctorID, p.ConsultationID,
		p.Status, p.Notes)
	if err != nil {
		return err
	}
	for _, it := range p.Items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		if _, err := c.Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, medicine_id, medicine_name,
				dosage, quantity, dispensed_qty, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.PrescriptionID, it.MedicineID, it.MedicineName,
			it.Dosage, it.Quantity, it.DispensedQty, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, id uuid.UUID) ([]*PrescriptionItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, dosage, quantity, dispensed_qty, unit_price
		FROM prescription_item WHERE prescription_id = $1 ORDER BY medicine_name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PrescriptionItem
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName,
			&it.Dosage, &it.Quantity, &it.DispensedQty, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	p.Items, err = r.loadItems(ctx, id)
	return p, err
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET status=$2, notes=$3, dispensed_at=$4 WHERE id = $1`,
		p.ID, p.Status, p.Notes, p.DispensedAt)
	return err
}

func (r *prescriptionRepoPG) UpdateItem(ctx context.Context, item *PrescriptionItem) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescription_item SET dispensed_qty=$2 WHERE id = $1`, item.ID, item.DispensedQty)
	return err
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	c := r.conn(ctx)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescription
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPrescriptions(rows, total)
}

func (r *prescriptionRepoPG) ListQueue(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	c := r.conn(ctx)
	var total int
	if err := c.QueryRow(ctx, `
		SELECT COUNT(*) FROM prescription
		WHERE status IN ('PENDING','PARTIALLY_DISPENSED')`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescription
		WHERE status IN ('PENDING','PARTIALLY_DISPENSED')
		ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPrescriptions(rows, total)
}

func collectPrescriptions(rows pgx.Rows, total int) ([]*Prescription, int, error) {
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
