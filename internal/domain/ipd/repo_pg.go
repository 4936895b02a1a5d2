package ipd

import (
	"context"
	"errors"

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

// =========== Bed Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

const bedCols = `id, ward, number, status, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.Ward, &b.Number, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO bed (id, ward, number, status) VALUES ($1,$2,$3,$4)`,
		b.ID, b.Ward, b.Number, b.Status)
	return err
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
}

func (r *bedRepoPG) GetByIDLocked(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bedCols+` FROM bed WHERE id = $1 FOR UPDATE`, id))
}

func (r *bedRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE bed SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	return err
}

func (r *bedRepoPG) List(ctx context.Context, ward, status string, limit, offset int) ([]*Bed, int, error) {
	c := connFor(ctx, r.pool)
	where := `WHERE ($1 = '' OR ward = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM bed `+where, ward, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx,
		`SELECT `+bedCols+` FROM bed `+where+` ORDER BY ward, number LIMIT $3 OFFSET $4`,
		ward, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var beds []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, 0, err
		}
		beds = append(beds, b)
	}
	return beds, total, rows.Err()
}

func (r *bedRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT status, COUNT(*) FROM bed GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository {
	return &admissionRepoPG{pool: pool}
}

const admissionCols = `id, admission_number, patient_id, doctor_id, bed_id, status, notes,
	admitted_at, discharged_at`

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.AdmissionNumber, &a.PatientID, &a.DoctorID, &a.BedID, &a.Status,
		&a.Notes, &a.AdmittedAt, &a.DischargedAt)
	return &a, err
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO admission (id, admission_number, patient_id, doctor_id, bed_id, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.AdmissionNumber, a.PatientID, a.DoctorID, a.BedID, a.Status, a.Notes)
	return err
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return scanAdmission(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM admission WHERE id = $1`, id))
}

func (r *admissionRepoPG) Update(ctx context.Context, a *Admission) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE admission SET bed_id=$2, status=$3, notes=$4, discharged_at=$5 WHERE id = $1`,
		a.ID, a.BedID, a.Status, a.Notes, a.DischargedAt)
	return err
}

func (r *admissionRepoPG) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+admissionCols+` FROM admission
		WHERE patient_id = $1 AND status = 'ADMITTED'`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *admissionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	c := connFor(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM admission WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+admissionCols+` FROM admission
		WHERE patient_id = $1 ORDER BY admitted_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var admissions []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		admissions = append(admissions, a)
	}
	return admissions, total, rows.Err()
}

// =========== Medication Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepoPG{pool: pool}
}

const scheduleCols = `id, admission_id, medicine_id, dosage, frequency, status, created_at`

func (r *scheduleRepoPG) Create(ctx context.Context, s *MedicationSchedule) error {
	s.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO medication_schedule (id, admission_id, medicine_id, dosage, frequency, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.AdmissionID, s.MedicineID, s.Dosage, s.Frequency, s.Status)
	return err
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicationSchedule, error) {
	var s MedicationSchedule
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+scheduleCols+` FROM medication_schedule WHERE id = $1`, id).
		Scan(&s.ID, &s.AdmissionID, &s.MedicineID, &s.Dosage, &s.Frequency, &s.Status, &s.CreatedAt)
	return &s, err
}

func (r *scheduleRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE medication_schedule SET status=$2 WHERE id = $1`, id, status)
	return err
}

func (r *scheduleRepoPG) ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*MedicationSchedule, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+scheduleCols+` FROM medication_schedule
		WHERE admission_id = $1 ORDER BY created_at`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var schedules []*MedicationSchedule
	for rows.Next() {
		var s MedicationSchedule
		if err := rows.Scan(&s.ID, &s.AdmissionID, &s.MedicineID, &s.Dosage, &s.Frequency, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, &s)
	}
	return schedules, rows.Err()
}

func (r *scheduleRepoPG) DiscontinueActive(ctx context.Context, admissionID uuid.UUID) (int, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE medication_schedule SET status='DISCONTINUED'
		WHERE admission_id = $1 AND status = 'ACTIVE'`, admissionID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
