package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Channel a message is meant for.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Template IDs used by the ledger.
const (
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplatePaymentReceipt       = "payment-receipt"
)

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAppointmentCancelled,
			Name:    "Appointment Cancelled",
			Body:    "Hi {{patient_name}}, your appointment on {{date}} at {{time}} has been cancelled.{{reason}} Reply to this message to book a new time.",
			Channel: ChannelWhatsApp,
		},
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Body:    "Hi {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}}.{{balance}}",
			Channel: ChannelWhatsApp,
		},
		{
			ID:      TemplatePaymentReceipt,
			Name:    "Payment Receipt",
			Body:    "Hi {{patient_name}}, we received your payment of {{amount}} for the appointment on {{date}}. Remaining balance: {{remaining}}.",
			Channel: ChannelWhatsApp,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Templates lists the registered templates in no particular order.
func (e *TemplateEngine) Templates() []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, *t)
	}
	return out
}

// Render looks up a template by ID and replaces {{key}} placeholders with
// data. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}
