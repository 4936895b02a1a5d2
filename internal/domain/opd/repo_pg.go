package opd

import (
	"context"
	"errors"
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

// =========== Token Repository ===========

type tokenRepoPG struct{ pool *pgxpool.Pool }

func NewTokenRepoPG(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepoPG{pool: pool}
}

func (r *tokenRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const tokenCols = `id, token_number, display, token_date, doctor_id, patient_id, priority,
	status, checked_in_at, called_at, started_at, completed_at`

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.TokenNumber, &t.Display, &t.TokenDate, &t.DoctorID, &t.PatientID, &t.Priority,
		&t.Status, &t.CheckedInAt, &t.CalledAt, &t.StartedAt, &t.CompletedAt)
	return &t, err
}

func (r *tokenRepoPG) Create(ctx context.Context, t *Token) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO opd_token (id, token_number, display, token_date, doctor_id, patient_id, priority,
			status, checked_in_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.TokenNumber, t.Display, t.TokenDate, t.DoctorID, t.PatientID, t.Priority,
		t.Status, t.CheckedInAt)
	return err
}

func (r *tokenRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Token, error) {
	return scanToken(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tokenCols+` FROM opd_token WHERE id = $1`, id))
}

func (r *tokenRepoPG) Update(ctx context.Context, t *Token) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE opd_token SET status=$2, called_at=$3, started_at=$4, completed_at=$5
		WHERE id = $1`,
		t.ID, t.Status, t.CalledAt, t.StartedAt, t.CompletedAt)
	return err
}

func (r *tokenRepoPG) HasActiveToken(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM opd_token
			WHERE patient_id = $1 AND doctor_id = $2 AND token_date = $3
			  AND status IN ('WAITING','CALLED','IN_CONSULTATION')
		)`, patientID, doctorID, date).Scan(&exists)
	return exists, err
}

func (r *tokenRepoPG) CountForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM opd_token
		WHERE doctor_id = $1 AND token_date = $2 AND status <> 'CANCELLED'`,
		doctorID, date).Scan(&n)
	return n, err
}

func (r *tokenRepoPG) CountWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM opd_token
		WHERE doctor_id = $1 AND token_date = $2 AND status = 'WAITING'`,
		doctorID, date).Scan(&n)
	return n, err
}

func (r *tokenRepoPG) NextWaitingLocked(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Token, error) {
	return scanToken(r.conn(ctx).QueryRow(ctx, `
		SELECT `+tokenCols+` FROM opd_token
		WHERE doctor_id = $1 AND token_date = $2 AND status = 'WAITING'
		ORDER BY priority DESC, token_number ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, doctorID, date))
}

func (r *tokenRepoPG) ListQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Token, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+tokenCols+` FROM opd_token
		WHERE doctor_id = $1 AND token_date = $2 AND status = 'WAITING'
		ORDER BY priority DESC, token_number ASC`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *tokenRepoPG) CurrentlyCalled(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Token, error) {
	t, err := scanToken(r.conn(ctx).QueryRow(ctx, `
		SELECT `+tokenCols+` FROM opd_token
		WHERE doctor_id = $1 AND token_date = $2 AND status IN ('CALLED','IN_CONSULTATION')
		ORDER BY called_at DESC NULLS LAST
		LIMIT 1`, doctorID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *tokenRepoPG) CountByStatus(ctx context.Context, date time.Time) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM opd_token WHERE token_date = $1 GROUP BY status`, date)
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

// =========== Consultation Repository ===========

type consultationRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationRepoPG(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consultCols = `id, token_id, patient_id, doctor_id, symptoms, diagnosis, notes,
	status, created_at, completed_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.TokenID, &c.PatientID, &c.DoctorID, &c.Symptoms, &c.Diagnosis, &c.Notes,
		&c.Status, &c.CreatedAt, &c.CompletedAt)
	return &c, err
}

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation (id, token_id, patient_id, doctor_id, symptoms, diagnosis, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.TokenID, c.PatientID, c.DoctorID, c.Symptoms, c.Diagnosis, c.Notes, c.Status)
	return err
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultCols+` FROM consultation WHERE id = $1`, id))
}

func (r *consultationRepoPG) Update(ctx context.Context, c *Consultation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation SET symptoms=$2, diagnosis=$3, notes=$4, status=$5, completed_at=$6
		WHERE id = $1`,
		c.ID, c.Symptoms, c.Diagnosis, c.Notes, c.Status, c.CompletedAt)
	return err
}

func (r *consultationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consultCols+` FROM consultation
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
