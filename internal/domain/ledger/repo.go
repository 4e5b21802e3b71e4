package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row is missing or owned by another
	// professional.
	ErrNotFound = errors.New("ledger: not found")
	// ErrVersionConflict is returned by AppointmentRepository.Update when the
	// stored version no longer matches.
	ErrVersionConflict = errors.New("ledger: version conflict")
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, professionalID, id uuid.UUID) (*Appointment, error)
	// Update writes every mutable column when a.Version matches the stored
	// version and bumps a.Version on success.
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, professionalID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error)
}

// PaymentRepository has no update or delete: payments are immutable.
type PaymentRepository interface {
	// Create inserts p only while its appointment is still at version and
	// bumps the appointment version in the same transaction. A stale version
	// returns ErrVersionConflict and writes nothing.
	Create(ctx context.Context, p *Payment, version int) error
	ListByAppointment(ctx context.Context, professionalID, appointmentID uuid.UUID) ([]*Payment, error)
}

type ServiceLookup interface {
	LookupService(ctx context.Context, professionalID, id uuid.UUID) (*ServiceInfo, error)
}

type PatientLookup interface {
	LookupPatient(ctx context.Context, professionalID, id uuid.UUID) (*PatientInfo, error)
}

// Notifier renders a message template into a deep link for phone.
type Notifier interface {
	Link(templateID, phone string, data map[string]string) (string, error)
}
