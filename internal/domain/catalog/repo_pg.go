package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const itemCols = `id, professional_id, name, description, price, duration_minutes, active,
	created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.ProfessionalID, &i.Name, &i.Description, &i.Price,
		&i.DurationMinutes, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *repoPG) Create(ctx context.Context, i *Item) error {
	i.ID = uuid.New()
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, professional_id, name, description, price, duration_minutes, active,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		i.ID, i.ProfessionalID, i.Name, i.Description, i.Price, i.DurationMinutes, i.Active,
		i.CreatedAt, i.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, professionalID, id uuid.UUID) (*Item, error) {
	i, err := scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM services WHERE id = $1 AND professional_id = $2`, id, professionalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("service", id)
	}
	return i, err
}

func (r *repoPG) Update(ctx context.Context, i *Item) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET name=$3, description=$4, price=$5, duration_minutes=$6, active=$7,
			updated_at=NOW()
		WHERE id = $1 AND professional_id = $2`,
		i.ID, i.ProfessionalID, i.Name, i.Description, i.Price, i.DurationMinutes, i.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service", i.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, professionalID uuid.UUID, activeOnly bool, limit, offset int) ([]*Item, int, error) {
	where := ` WHERE professional_id = $1`
	if activeOnly {
		where += ` AND active`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM services`+where, professionalID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+itemCols+` FROM services`+where+
		` ORDER BY name LIMIT $2 OFFSET $3`, professionalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}
