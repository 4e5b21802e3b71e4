package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const entryCols = `id, professional_id, activity_type, patient_id, appointment_id, sale_id,
	title, description, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ProfessionalID, &e.Type, &e.PatientID, &e.AppointmentID, &e.SaleID,
		&e.Title, &e.Description, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_log (id, professional_id, activity_type, patient_id, appointment_id, sale_id,
			title, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.ProfessionalID, e.Type, e.PatientID, e.AppointmentID, e.SaleID,
		e.Title, e.Description, e.CreatedAt)
	return err
}

func (r *repoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := ` WHERE professional_id = $1`
	args := []interface{}{professionalID}
	idx := 2

	if f.Type != "" {
		where += fmt.Sprintf(` AND activity_type = $%d`, idx)
		args = append(args, f.Type)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Since != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, *f.Since)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + entryCols + ` FROM activity_log` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
