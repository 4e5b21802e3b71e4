package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Multi records to every recorder and joins their errors. A failing
// recorder does not stop the others.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e *Entry) error {
	// Every sink sees the same id and timestamp.
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is satisfied by *events.Publisher.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload interface{}) error
}

// EventRecorder forwards entries to a message broker keyed by professional.
type EventRecorder struct {
	pub Publisher
}

func NewEventRecorder(pub Publisher) *EventRecorder {
	return &EventRecorder{pub: pub}
}

func (r *EventRecorder) Record(ctx context.Context, e *Entry) error {
	return r.pub.Publish(ctx, e.ProfessionalID.String(), string(e.Type), e)
}
