package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakePublisher struct {
	key, eventType string
	payload        interface{}
	err            error
}

func (f *fakePublisher) Publish(_ context.Context, key, eventType string, payload interface{}) error {
	f.key, f.eventType, f.payload = key, eventType, payload
	return f.err
}

func TestMulti_RecordsToAll(t *testing.T) {
	a, b := newMockRepo(), newMockRepo()
	e := &Entry{ProfessionalID: uuid.New(), Type: TypePatientCreated, Title: "New patient"}

	if err := (Multi{a, nil, b}).Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Fatalf("expected entry in both recorders, got %d and %d", len(a.entries), len(b.entries))
	}
	if e.ID == uuid.Nil || e.CreatedAt.IsZero() {
		t.Error("expected Multi to stamp id and created_at")
	}
}

func TestMulti_ContinuesPastFailure(t *testing.T) {
	failing := newMockRepo()
	failing.err = errors.New("db down")
	ok := newMockRepo()

	err := (Multi{failing, ok}).Record(context.Background(), &Entry{ProfessionalID: uuid.New(), Type: TypeRatesUpdated})
	if err == nil || !errors.Is(err, failing.err) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.entries) != 1 {
		t.Error("expected the healthy recorder to still receive the entry")
	}
}

func TestEventRecorder_KeysByProfessional(t *testing.T) {
	pub := &fakePublisher{}
	pro := uuid.New()
	e := &Entry{ProfessionalID: pro, Type: TypePaymentReceived, Title: "Payment"}

	if err := NewEventRecorder(pub).Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.key != pro.String() || pub.eventType != "payment_received" || pub.payload != e {
		t.Errorf("unexpected publish call %+v", pub)
	}
}
