package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, professional_id, patient_id, service_id, start_time, end_time, status,
	notes, cancellation_reason, total_amount, deposit_amount, deposit_paid, remaining_balance,
	balance_paid, payment_status, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ProfessionalID, &a.PatientID, &a.ServiceID, &a.StartTime, &a.EndTime, &a.Status,
		&a.Notes, &a.CancellationReason, &a.TotalAmount, &a.DepositAmount, &a.DepositPaid, &a.RemainingBalance,
		&a.BalancePaid, &a.PaymentStatus, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Version = 1
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, professional_id, patient_id, service_id, start_time, end_time, status,
			notes, cancellation_reason, total_amount, deposit_amount, deposit_paid, remaining_balance,
			balance_paid, payment_status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.ProfessionalID, a.PatientID, a.ServiceID, a.StartTime, a.EndTime, a.Status,
		a.Notes, a.CancellationReason, a.TotalAmount, a.DepositAmount, a.DepositPaid, a.RemainingBalance,
		a.BalancePaid, a.PaymentStatus, a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, professionalID, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND professional_id = $2`, id, professionalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE appointments SET start_time=$4, end_time=$5, status=$6, notes=$7, cancellation_reason=$8,
			total_amount=$9, deposit_amount=$10, deposit_paid=$11, remaining_balance=$12,
			balance_paid=$13, payment_status=$14, version=version+1, updated_at=NOW()
		WHERE id = $1 AND professional_id = $2 AND version = $3
		RETURNING version, updated_at`,
		a.ID, a.ProfessionalID, a.Version, a.StartTime, a.EndTime, a.Status, a.Notes, a.CancellationReason,
		a.TotalAmount, a.DepositAmount, a.DepositPaid, a.RemainingBalance,
		a.BalancePaid, a.PaymentStatus).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *appointmentRepoPG) List(ctx context.Context, professionalID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE professional_id = $1`
	args := []interface{}{professionalID}
	idx := 2

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PaymentStatus != "" {
		where += fmt.Sprintf(` AND payment_status = $%d`, idx)
		args = append(args, f.PaymentStatus)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

const paymentCols = `id, professional_id, appointment_id, patient_id, service_id, service_name, kind,
	amount, payment_date, note, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ProfessionalID, &p.AppointmentID, &p.PatientID, &p.ServiceID, &p.ServiceName, &p.Kind,
		&p.Amount, &p.PaymentDate, &p.Note, &p.CreatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment, version int) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	if p.PaymentDate.IsZero() {
		p.PaymentDate = p.CreatedAt
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock taken here serializes writers; a second writer holding the
	// same version re-checks the predicate after the first commits and misses.
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET version = version + 1, updated_at = NOW()
		WHERE id = $1 AND professional_id = $2 AND version = $3`,
		p.AppointmentID, p.ProfessionalID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sales (id, professional_id, appointment_id, patient_id, service_id, service_name, kind,
			amount, payment_date, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.ProfessionalID, p.AppointmentID, p.PatientID, p.ServiceID, p.ServiceName, p.Kind,
		p.Amount, p.PaymentDate, p.Note, p.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *paymentRepoPG) ListByAppointment(ctx context.Context, professionalID, appointmentID uuid.UUID) ([]*Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentCols+` FROM sales
		WHERE appointment_id = $1 AND professional_id = $2
		ORDER BY payment_date, created_at`, appointmentID, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
