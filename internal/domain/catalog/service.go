package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validate(i *Item) error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if i.Price.Valid && i.Price.Decimal.IsNegative() {
		return apperr.Invalid("price", "must not be negative")
	}
	if i.Price.Valid && !i.Price.Decimal.Equal(i.Price.Decimal.Round(2)) {
		return apperr.Invalid("price", "must have at most two decimal places")
	}
	if i.DurationMinutes < 0 {
		return apperr.Invalid("duration_minutes", "must be positive")
	}
	return nil
}

func (s *Service) CreateItem(ctx context.Context, professionalID uuid.UUID, i *Item) error {
	if professionalID == uuid.Nil {
		return apperr.Invalid("professional_id", "is required")
	}
	if err := validate(i); err != nil {
		return err
	}
	if i.DurationMinutes == 0 {
		i.DurationMinutes = DefaultDurationMinutes
	}
	i.ProfessionalID = professionalID
	i.Active = true
	return apperr.Persistence("create service", s.repo.Create(ctx, i))
}

func (s *Service) GetItem(ctx context.Context, professionalID, id uuid.UUID) (*Item, error) {
	i, err := s.repo.GetByID(ctx, professionalID, id)
	if err != nil {
		return nil, apperr.Persistence("get service", err)
	}
	return i, nil
}

// UpdateItem replaces the editable fields of an existing item. A zero
// duration keeps the stored one.
func (s *Service) UpdateItem(ctx context.Context, professionalID uuid.UUID, i *Item) error {
	if err := validate(i); err != nil {
		return err
	}
	existing, err := s.GetItem(ctx, professionalID, i.ID)
	if err != nil {
		return err
	}
	if i.DurationMinutes == 0 {
		i.DurationMinutes = existing.DurationMinutes
	}
	i.ProfessionalID = professionalID
	i.CreatedAt = existing.CreatedAt
	return apperr.Persistence("update service", s.repo.Update(ctx, i))
}

// DeactivateItem hides an item from new appointments. Appointments that
// already reference it keep their totals.
func (s *Service) DeactivateItem(ctx context.Context, professionalID, id uuid.UUID) error {
	i, err := s.GetItem(ctx, professionalID, id)
	if err != nil {
		return err
	}
	if !i.Active {
		return nil
	}
	i.Active = false
	return apperr.Persistence("deactivate service", s.repo.Update(ctx, i))
}

func (s *Service) ListItems(ctx context.Context, professionalID uuid.UUID, activeOnly bool, limit, offset int) ([]*Item, int, error) {
	items, total, err := s.repo.List(ctx, professionalID, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list services", err)
	}
	return items, total, nil
}
