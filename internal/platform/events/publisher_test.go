package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("pro-1", "payment_received", map[string]string{"amount": "800.00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.Key) != "pro-1" {
		t.Errorf("unexpected key %q", msg.Key)
	}
	if HeaderValue(msg.Headers, HeaderEventType) != "payment_received" {
		t.Errorf("missing event_type header: %v", msg.Headers)
	}
	if _, err := uuid.Parse(HeaderValue(msg.Headers, HeaderEventID)); err != nil {
		t.Errorf("event_id header is not a uuid: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Value, &body); err != nil || body["amount"] != "800.00" {
		t.Errorf("unexpected value %s (%v)", msg.Value, err)
	}
}

func TestNewMessage_UnencodablePayload(t *testing.T) {
	if _, err := NewMessage("k", "x", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, zerolog.Nop())

	if err := p.Publish(context.Background(), "pro-1", "appointment_created", struct{ ID string }{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if HeaderValue(w.msgs[0].Headers, HeaderEventType) != "appointment_created" {
		t.Error("expected event type header on written message")
	}
}

func TestPublisher_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(w, zerolog.Nop())
	err := p.Publish(context.Background(), "k", "payment_received", 1)
	if err == nil || !errors.Is(err, w.err) {
		t.Errorf("expected wrapped writer error, got %v", err)
	}
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	if err := newPublisher(w, zerolog.Nop()).Close(); err != nil || !w.closed {
		t.Error("expected Close to close the writer")
	}
}

func TestNewPublisher_RequiresConfig(t *testing.T) {
	if _, err := NewPublisher(PublisherConfig{Topic: "t"}, zerolog.Nop()); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop()); err == nil {
		t.Error("expected error without topic")
	}
	p, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Async: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = p.Close()
}
