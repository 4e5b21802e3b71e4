package activity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRecent returns the professional's activity feed, newest first.
func (s *Service) ListRecent(ctx context.Context, professionalID uuid.UUID, f Filter, limit, offset int) ([]*Entry, int, error) {
	if professionalID == uuid.Nil {
		return nil, 0, apperr.Invalid("professional_id", "is required")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, apperr.Invalid("type", "unknown activity type %q", f.Type)
	}
	items, total, err := s.repo.ListByProfessional(ctx, professionalID, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list activity", err)
	}
	return items, total, nil
}
