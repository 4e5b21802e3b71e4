package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

// ---------------------------------------------------------------------------
// Lookup adapters
// ---------------------------------------------------------------------------

type fakeItems struct {
	item *catalog.Item
	err  error
}

func (f fakeItems) GetItem(_ context.Context, _, _ uuid.UUID) (*catalog.Item, error) {
	return f.item, f.err
}

type fakePatients struct {
	patient *patient.Patient
	err     error
}

func (f fakePatients) GetPatient(_ context.Context, _, _ uuid.UUID) (*patient.Patient, error) {
	return f.patient, f.err
}

func TestCatalogLookup_MapsItem(t *testing.T) {
	item := &catalog.Item{
		ID:              uuid.New(),
		Name:            "Initial consultation",
		Price:           decimal.NewNullDecimal(decimal.RequireFromString("1500.50")),
		DurationMinutes: 45,
	}
	info, err := catalogLookup{items: fakeItems{item: item}}.LookupService(context.Background(), uuid.New(), item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ID != item.ID || info.Name != "Initial consultation" {
		t.Errorf("unexpected info %+v", info)
	}
	if !info.Price.IsSet() || !info.Price.Decimal.Equal(decimal.RequireFromString("1500.50")) {
		t.Errorf("expected price 1500.50, got %v", info.Price)
	}
	if info.Duration != 45*time.Minute {
		t.Errorf("expected 45m, got %s", info.Duration)
	}
}

func TestCatalogLookup_NullPrice(t *testing.T) {
	item := &catalog.Item{ID: uuid.New(), Name: "Follow-up", DurationMinutes: 30}
	info, err := catalogLookup{items: fakeItems{item: item}}.LookupService(context.Background(), uuid.New(), item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Price.IsSet() {
		t.Errorf("expected unset price, got %v", info.Price)
	}
}

func TestCatalogLookup_PassesNotFound(t *testing.T) {
	id := uuid.New()
	_, err := catalogLookup{items: fakeItems{err: apperr.NotFound("service", id)}}.LookupService(context.Background(), uuid.New(), id)
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestPatientLookup_MapsPatient(t *testing.T) {
	phone := "11 2233 4455"
	p := &patient.Patient{ID: uuid.New(), FirstName: "Ana", LastName: "García", Phone: &phone}
	info, err := patientLookup{patients: fakePatients{patient: p}}.LookupPatient(context.Background(), uuid.New(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "Ana García" {
		t.Errorf("expected full name, got %q", info.Name)
	}
	if info.Phone != phone {
		t.Errorf("expected phone %q, got %q", phone, info.Phone)
	}
}

func TestPatientLookup_NoPhone(t *testing.T) {
	p := &patient.Patient{ID: uuid.New(), FirstName: "Luis"}
	info, err := patientLookup{patients: fakePatients{patient: p}}.LookupPatient(context.Background(), uuid.New(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Phone != "" {
		t.Errorf("expected empty phone, got %q", info.Phone)
	}
}

func TestPatientLookup_Error(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := patientLookup{patients: fakePatients{err: boom}}.LookupPatient(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Env:                "development",
		PaymentPolicy:      config.PaymentPolicyDepositFirst,
		DefaultCountryCode: "54",
		DevProfessionalID:  "00000000-0000-0000-0000-000000000001",
	}
}

func TestNewApp_RegistersRoutes(t *testing.T) {
	wired, err := newApp(nil, testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}

	e := echo.New()
	wired.registerRoutes(e.Group("/api/v1"))

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/activity",
		"GET /api/v1/services",
		"POST /api/v1/services",
		"DELETE /api/v1/services/:id",
		"GET /api/v1/patients",
		"POST /api/v1/patients",
		"PUT /api/v1/patients/:id",
		"POST /api/v1/appointments",
		"GET /api/v1/appointments/:id",
		"POST /api/v1/appointments/:id/payments",
		"GET /api/v1/appointments/:id/payments",
		"PUT /api/v1/appointments/:id/rates",
		"PUT /api/v1/appointments/:id/status",
		"POST /api/v1/appointments/:id/recompute",
		"GET /api/v1/appointments/:id/reminder-link",
		"GET /api/v1/reports/measures",
		"GET /api/v1/reports/measures/:id/evaluate",
	} {
		if !registered[want] {
			t.Errorf("expected route %s to be registered", want)
		}
	}
}

func TestNewApp_PaymentPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.PaymentPolicy = config.PaymentPolicyInstallments
	wired, err := newApp(nil, cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	if got := string(wired.ledger.Policy()); got != config.PaymentPolicyInstallments {
		t.Errorf("expected installments policy, got %q", got)
	}
}

func TestNewApp_UnknownPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.PaymentPolicy = "pay-whenever"
	if _, err := newApp(nil, cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown payment policy")
	}
}

func TestAuthMiddleware_DevActsAsConfiguredProfessional(t *testing.T) {
	mw, err := authMiddleware(testConfig())
	if err != nil {
		t.Fatalf("authMiddleware() error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got uuid.UUID
	h := mw(func(c echo.Context) error {
		id, err := auth.ProfessionalID(c)
		got = id
		return err
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("expected dev professional, got %s", got)
	}
}

func TestAuthMiddleware_InvalidDevProfessional(t *testing.T) {
	cfg := testConfig()
	cfg.DevProfessionalID = "not-a-uuid"
	if _, err := authMiddleware(cfg); err == nil {
		t.Fatal("expected error for invalid DEV_PROFESSIONAL_ID")
	}
}

func TestAuthMiddleware_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "test-secret"
	mw, err := authMiddleware(cfg)
	if err != nil {
		t.Fatalf("authMiddleware() error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	err = mw(func(c echo.Context) error { return nil })(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRateLimiter_InMemoryWithoutRedis(t *testing.T) {
	mw, closeFn, err := rateLimiter(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("rateLimiter() error: %v", err)
	}
	if mw == nil || closeFn == nil {
		t.Fatal("expected middleware and close func")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestRateLimiter_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "http://not-redis"
	if _, _, err := rateLimiter(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid REDIS_URL")
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestRecomputeTarget(t *testing.T) {
	prof, appt := uuid.New(), uuid.New()
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"both set", []string{"--professional", prof.String(), "--appointment", appt.String()}, false},
		{"missing appointment", []string{"--professional", prof.String()}, true},
		{"bad professional", []string{"--professional", "nope", "--appointment", appt.String()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ledgerCmd()
			recompute, _, err := cmd.Find([]string{"recompute"})
			if err != nil {
				t.Fatalf("find recompute: %v", err)
			}
			if err := recompute.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			gotProf, gotAppt, err := recomputeTarget(recompute)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotProf != prof || gotAppt != appt {
				t.Errorf("got %s/%s, want %s/%s", gotProf, gotAppt, prof, appt)
			}
		})
	}
}

func TestLedgerRecompute_ValidatesConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://clinicdesk@127.0.0.1:1/none")
	t.Setenv("ENV", "development")
	t.Setenv("LEDGER_PAYMENT_POLICY", "pay-whenever")

	cmd := ledgerCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"recompute", "--professional", uuid.NewString(), "--appointment", uuid.NewString()})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "LEDGER_PAYMENT_POLICY") {
		t.Fatalf("expected payment policy validation error, got %v", err)
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	for _, name := range []string{"up", "status", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("expected migrate %s subcommand", name)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "00001_core.sql", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "00002_ledger.sql"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2026-03-01 09:30:00") {
		t.Errorf("expected applied row, got:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending row, got:\n%s", out)
	}
}
