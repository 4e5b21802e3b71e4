package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

// MeasureDefinition defines a reporting measure with its SQL query. Every
// query is scoped by $1 = professional id, $2 = from and $3 = to.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

var window = []string{"from", "to"}

// PredefinedMeasures is the list of available dashboard measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "revenue-by-month",
		Name:        "Revenue by Month",
		Description: "Sum of recorded payments per calendar month",
		SQL: `SELECT date_trunc('month', payment_date) AS month, SUM(amount) AS revenue, COUNT(*) AS payments
			FROM sales WHERE professional_id = $1 AND payment_date >= $2 AND payment_date < $3
			GROUP BY 1 ORDER BY 1`,
		Parameters: window,
	},
	{
		ID:          "revenue-by-service",
		Name:        "Revenue by Service",
		Description: "Sum of recorded payments grouped by service",
		SQL: `SELECT COALESCE(service_name, 'unassigned') AS service, SUM(amount) AS revenue, COUNT(*) AS payments
			FROM sales WHERE professional_id = $1 AND payment_date >= $2 AND payment_date < $3
			GROUP BY 1 ORDER BY revenue DESC`,
		Parameters: window,
	},
	{
		ID:          "outstanding-balances",
		Name:        "Outstanding Balances",
		Description: "Appointments that still owe money, excluding cancelled ones",
		SQL: `SELECT a.id AS appointment_id, a.patient_id, p.first_name || ' ' || p.last_name AS patient_name,
				a.start_time, a.status, a.remaining_balance
			FROM appointments a JOIN patients p ON p.id = a.patient_id
			WHERE a.professional_id = $1 AND a.start_time >= $2 AND a.start_time < $3
				AND a.remaining_balance > 0 AND a.status <> 'cancelled'
			ORDER BY a.start_time`,
		Parameters: window,
	},
	{
		ID:          "payment-status-summary",
		Name:        "Payment Status Summary",
		Description: "Appointment count and outstanding amount per payment status",
		SQL: `SELECT payment_status, COUNT(*) AS total, COALESCE(SUM(remaining_balance), 0) AS outstanding
			FROM appointments WHERE professional_id = $1 AND start_time >= $2 AND start_time < $3
			GROUP BY payment_status ORDER BY total DESC`,
		Parameters: window,
	},
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Appointment count per scheduling status",
		SQL: `SELECT status, COUNT(*) AS total
			FROM appointments WHERE professional_id = $1 AND start_time >= $2 AND start_time < $3
			GROUP BY status ORDER BY total DESC`,
		Parameters: window,
	},
}

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	db  Querier
	now func() time.Time
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleProfessional))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure runs a measure for the authenticated professional over
// ?from= and ?to= (RFC 3339 or YYYY-MM-DD). The window defaults to the last
// twelve months.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	professionalID, err := auth.ProfessionalID(c)
	if err != nil {
		return err
	}
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	to := h.now().UTC()
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = parseTime(raw); err != nil {
			return apperr.HTTPError(apperr.Invalid("to", "expected RFC 3339 or YYYY-MM-DD"))
		}
	}
	from := to.AddDate(-1, 0, 0)
	if raw := c.QueryParam("from"); raw != "" {
		if from, err = parseTime(raw); err != nil {
			return apperr.HTTPError(apperr.Invalid("from", "expected RFC 3339 or YYYY-MM-DD"))
		}
	}
	if !to.After(from) {
		return apperr.HTTPError(apperr.Invalid("to", "must be after from"))
	}

	results, err := h.execute(c.Request().Context(), measure.SQL, professionalID, from, to)
	if err != nil {
		return apperr.HTTPError(apperr.Persistence("evaluate "+measure.ID, err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now().UTC(),
		Results:     results,
		Parameters: map[string]string{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		},
	})
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// execute runs a measure query and returns its rows keyed by column name.
func (h *Handler) execute(ctx context.Context, sql string, professionalID uuid.UUID, from, to time.Time) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
