package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/activity"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

type Service struct {
	repo     Repository
	activity activity.Recorder
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetActivityRecorder enables patient_created entries.
func (s *Service) SetActivityRecorder(r activity.Recorder) {
	s.activity = r
}

func normalize(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return apperr.Invalid("first_name", "is required")
	}
	if p.LastName == "" {
		return apperr.Invalid("last_name", "is required")
	}
	if p.Phone != nil {
		phone := strings.TrimSpace(*p.Phone)
		if phone == "" {
			p.Phone = nil
		} else {
			p.Phone = &phone
		}
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		switch {
		case email == "":
			p.Email = nil
		case !strings.Contains(email, "@"):
			return apperr.Invalid("email", "is not a valid address")
		default:
			p.Email = &email
		}
	}
	return nil
}

// CreatePatient stores a new active patient. A failed activity write is
// logged and does not fail the call.
func (s *Service) CreatePatient(ctx context.Context, professionalID uuid.UUID, p *Patient) error {
	if professionalID == uuid.Nil {
		return apperr.Invalid("professional_id", "is required")
	}
	if err := normalize(p); err != nil {
		return err
	}
	p.ProfessionalID = professionalID
	p.Active = true
	if err := s.repo.Create(ctx, p); err != nil {
		return apperr.Persistence("create patient", err)
	}

	if s.activity != nil {
		id := p.ID
		err := s.activity.Record(ctx, &activity.Entry{
			ProfessionalID: professionalID,
			Type:           activity.TypePatientCreated,
			PatientID:      &id,
			Title:          "New patient",
			Description:    p.FullName(),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("record patient_created activity")
		}
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, professionalID, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, professionalID, id)
	if err != nil {
		return nil, apperr.Persistence("get patient", err)
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, professionalID uuid.UUID, p *Patient) error {
	if err := normalize(p); err != nil {
		return err
	}
	existing, err := s.GetPatient(ctx, professionalID, p.ID)
	if err != nil {
		return err
	}
	p.ProfessionalID = professionalID
	p.CreatedAt = existing.CreatedAt
	return apperr.Persistence("update patient", s.repo.Update(ctx, p))
}

// DeactivatePatient archives a patient. Appointments and payments stay.
func (s *Service) DeactivatePatient(ctx context.Context, professionalID, id uuid.UUID) error {
	p, err := s.GetPatient(ctx, professionalID, id)
	if err != nil {
		return err
	}
	if !p.Active {
		return nil
	}
	p.Active = false
	return apperr.Persistence("deactivate patient", s.repo.Update(ctx, p))
}

func (s *Service) ListPatients(ctx context.Context, professionalID uuid.UUID, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	params.Query = strings.TrimSpace(params.Query)
	items, total, err := s.repo.List(ctx, professionalID, params, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list patients", err)
	}
	return items, total, nil
}
