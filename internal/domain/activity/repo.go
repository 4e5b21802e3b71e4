package activity

import (
	"context"

	"github.com/google/uuid"
)

// Recorder appends activity entries. Implementations: the PostgreSQL
// repository, the Kafka EventRecorder and Multi.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

type Repository interface {
	Recorder
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, f Filter, limit, offset int) ([]*Entry, int, error)
}
