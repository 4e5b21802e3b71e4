package catalog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, professionalID, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, item *Item) error
	List(ctx context.Context, professionalID uuid.UUID, activeOnly bool, limit, offset int) ([]*Item, int, error)
}
