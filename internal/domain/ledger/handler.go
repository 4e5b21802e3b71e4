package ledger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Front desk and professional
	g := api.Group("", auth.RequireRole(auth.RoleProfessional, auth.RoleAssistant))
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/:id", h.GetAppointment)
	g.GET("/appointments/:id/payments", h.GetSessionPayments)
	g.GET("/appointments/:id/reminder-link", h.ReminderLink)
	g.GET("/appointments/:id/payments/:paymentId/receipt-link", h.ReceiptLink)
	g.POST("/appointments", h.CreateAppointment)
	g.POST("/appointments/:id/payments", h.RegisterPayment)
	g.PUT("/appointments/:id/status", h.UpdateSessionStatus)
	g.POST("/appointments/:id/recompute", h.RecomputeBalance)

	// Rates are set by the professional only.
	rates := api.Group("", auth.RequireRole(auth.RoleProfessional))
	rates.PUT("/appointments/:id/rates", h.UpdateSessionRates)
}

type createAppointmentRequest struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	ServiceID     *uuid.UUID      `json:"service_id"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       *time.Time      `json:"end_time"`
	TotalAmount   Amount          `json:"total_amount"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Notes         *string         `json:"notes"`
}

type registerPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	PaymentDate *time.Time      `json:"payment_date"`
}

type updateRatesRequest struct {
	TotalAmount   *decimal.Decimal `json:"total_amount"`
	DepositAmount *decimal.Decimal `json:"deposit_amount"`
}

type updateStatusRequest struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

type linkResponse struct {
	Link string `json:"link"`
}

// scope extracts the professional from the token and the appointment id
// from the path.
func scope(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	professionalID, err := auth.ProfessionalID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return professionalID, id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	professionalID, err := auth.ProfessionalID(c)
	if err != nil {
		return err
	}
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.CreateAppointment(c.Request().Context(), professionalID, Draft{
		PatientID:     req.PatientID,
		ServiceID:     req.ServiceID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		TotalAmount:   req.TotalAmount,
		DepositAmount: req.DepositAmount,
		Notes:         req.Notes,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), professionalID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListAppointments supports ?status=, ?payment_status=, ?patient_id=, and
// ?from= / ?to= as RFC 3339 timestamps.
func (h *Handler) ListAppointments(c echo.Context) error {
	professionalID, err := auth.ProfessionalID(c)
	if err != nil {
		return err
	}
	f := ListFilter{
		Status:        Status(c.QueryParam("status")),
		PaymentStatus: PaymentStatus(c.QueryParam("payment_status")),
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+", expected RFC 3339")
		}
		*p.dst = &t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), professionalID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetSessionPayments(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	payments, err := h.svc.GetSessionPayments(c.Request().Context(), professionalID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) RegisterPayment(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	var req registerPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.RegisterPayment(c.Request().Context(), professionalID, id, PaymentInput{
		Amount:      req.Amount,
		Note:        req.Note,
		PaymentDate: req.PaymentDate,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateSessionRates(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	var req updateRatesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TotalAmount == nil {
		return apperr.HTTPError(apperr.Invalid("total_amount", "is required"))
	}
	deposit := decimal.Zero
	if req.DepositAmount != nil {
		deposit = *req.DepositAmount
	}
	out, err := h.svc.UpdateSessionRates(c.Request().Context(), professionalID, id, *req.TotalAmount, deposit)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateSessionStatus(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.UpdateSessionStatus(c.Request().Context(), professionalID, id, StatusChange{
		Status: req.Status,
		Reason: req.Reason,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) RecomputeBalance(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	a, err := h.svc.RecomputeBalance(c.Request().Context(), professionalID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ReminderLink(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	link, err := h.svc.ReminderLink(c.Request().Context(), professionalID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, linkResponse{Link: link})
}

func (h *Handler) ReceiptLink(c echo.Context) error {
	professionalID, id, err := scope(c)
	if err != nil {
		return err
	}
	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}
	link, err := h.svc.ReceiptLink(c.Request().Context(), professionalID, id, paymentID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, linkResponse{Link: link})
}
