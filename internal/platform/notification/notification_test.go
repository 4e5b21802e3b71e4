package notification

import (
	"net/url"
	"strings"
	"testing"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Body:    "Dear {{name}}, your code is {{code}}.",
		Channel: ChannelSMS,
	})

	body, err := eng.Render("test-tpl", map[string]string{"name": "Alice", "code": "1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	if _, err := NewTemplateEngine().Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	data := map[string]string{
		"patient_name": "Ana",
		"date":         "2026-03-02",
		"time":         "10:00",
		"reason":       "",
		"balance":      "",
		"amount":       "800.00",
		"remaining":    "0.00",
	}
	for _, id := range []string{TemplateAppointmentCancelled, TemplateAppointmentReminder, TemplatePaymentReceipt} {
		body, err := eng.Render(id, data)
		if err != nil {
			t.Errorf("built-in template %q not found: %v", id, err)
			continue
		}
		if strings.Contains(body, "{{") {
			t.Errorf("template %q left placeholders: %q", id, body)
		}
	}
	if len(eng.Templates()) != 3 {
		t.Errorf("expected 3 built-in templates, got %d", len(eng.Templates()))
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	body, err := NewTemplateEngine().Render(TemplateAppointmentReminder, map[string]string{"patient_name": "Ana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{date}}") {
		t.Errorf("expected unresolved placeholder to remain, got %q", body)
	}
}

func TestLinkBuilder_WhatsApp(t *testing.T) {
	tests := []struct {
		name    string
		cc      string
		phone   string
		want    string
		wantErr bool
	}{
		{"international plus", "", "+54 9 11 2233-4455", "https://wa.me/5491122334455", false},
		{"international 00 dialed from region", "54", "0054 9 11 2233 4455", "https://wa.me/5491122334455", false},
		{"foreign number from region", "54", "+1 415 555 0100", "https://wa.me/14155550100", false},
		{"local with trunk zero", "54", "011 2233 4455", "https://wa.me/541122334455", false},
		{"local without trunk zero", "54", "11 2233 4455", "https://wa.me/541122334455", false},
		{"local country code with plus", "+1", "(415) 555-0100", "https://wa.me/14155550100", false},
		{"national number written with country code", "54", "5491122334455", "https://wa.me/5491122334455", false},
		{"local without region", "", "011 2233 4455", "", true},
		{"unknown country code", "999", "011 2233 4455", "", true},
		{"too short", "54", "2233", "", true},
		{"too long", "54", "11 2233 4455 6677 8899", "", true},
		{"not a number", "54", "call me", "", true},
		{"empty", "54", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LinkBuilder{CountryCode: tt.cc}.WhatsApp(tt.phone, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("WhatsApp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("WhatsApp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinkBuilder_EncodesMessage(t *testing.T) {
	link, err := LinkBuilder{}.WhatsApp("+14155550100", "Hi Ana & co, 50% off? yes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	if u.Host != "wa.me" || u.Path != "/14155550100" {
		t.Errorf("unexpected link target %q", link)
	}
	if got := u.Query().Get("text"); got != "Hi Ana & co, 50% off? yes" {
		t.Errorf("text round-trip = %q", got)
	}
	if strings.Contains(link, "+") {
		t.Errorf("expected spaces encoded as %%20, got %q", link)
	}
}

func TestMessenger_Link(t *testing.T) {
	m := NewMessenger(NewTemplateEngine(), LinkBuilder{CountryCode: "54"})
	link, err := m.Link(TemplateAppointmentCancelled, "11 2233 4455", map[string]string{
		"patient_name": "Ana",
		"date":         "2026-03-02",
		"time":         "10:00",
		"reason":       " Reason: doctor unavailable.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(link)
	text := u.Query().Get("text")
	if !strings.HasPrefix(text, "Hi Ana, your appointment on 2026-03-02 at 10:00 has been cancelled. Reason: doctor unavailable.") {
		t.Errorf("unexpected message %q", text)
	}
	if u.Path != "/541122334455" {
		t.Errorf("unexpected phone path %q", u.Path)
	}
}

func TestMessenger_UnknownTemplate(t *testing.T) {
	m := NewMessenger(NewTemplateEngine(), LinkBuilder{})
	if _, err := m.Link("nope", "+14155550100", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
