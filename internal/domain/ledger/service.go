package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/domain/activity"
	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

const (
	defaultDuration = 60 * time.Minute
	// maxUpdateAttempts bounds the optimistic-lock retry loop in settle.
	maxUpdateAttempts = 3
)

// Template IDs understood by the Notifier.
const (
	templateCancelled = "appointment-cancelled"
	templateReminder  = "appointment-reminder"
	templateReceipt   = "payment-receipt"
)

// errUnchanged lets a mutation report that nothing needs writing.
var errUnchanged = errors.New("unchanged")

// mutation validates and changes a freshly read appointment. paid holds the
// amounts of the appointment's current payments.
type mutation func(a *Appointment, paid []decimal.Decimal) error

type Service struct {
	appts    AppointmentRepository
	payments PaymentRepository
	services ServiceLookup
	patients PatientLookup
	activity activity.Recorder
	notifier Notifier
	policy   PaymentPolicy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(appts AppointmentRepository, payments PaymentRepository, services ServiceLookup,
	patients PatientLookup, logger zerolog.Logger) *Service {
	return &Service{
		appts:    appts,
		payments: payments,
		services: services,
		patients: patients,
		policy:   PolicyDepositFirst,
		logger:   logger.With().Str("component", "ledger").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetActivityRecorder(r activity.Recorder) { s.activity = r }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) SetPaymentPolicy(p PaymentPolicy) { s.policy = p }

func (s *Service) Policy() PaymentPolicy { return s.policy }

// =========== Validation helpers ===========

func checkAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return apperr.Invalid(field, "must not be negative")
	}
	if !d.Equal(d.Round(2)) {
		return apperr.Invalid(field, "must have at most two decimal places")
	}
	return nil
}

func requireProfessional(id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Invalid("professional_id", "is required")
	}
	return nil
}

// =========== Reads ===========

func (s *Service) GetAppointment(ctx context.Context, professionalID, id uuid.UUID) (*Appointment, error) {
	if err := requireProfessional(professionalID); err != nil {
		return nil, err
	}
	a, err := s.appts.GetByID(ctx, professionalID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("appointment", id)
	}
	if err != nil {
		return nil, apperr.Persistence("get appointment", err)
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, professionalID uuid.UUID, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if err := requireProfessional(professionalID); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", "unknown status %q", f.Status)
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, 0, apperr.Invalid("payment_status", "unknown payment status %q", f.PaymentStatus)
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, 0, apperr.Invalid("to", "must be after from")
	}
	items, total, err := s.appts.List(ctx, professionalID, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list appointments", err)
	}
	return items, total, nil
}

// GetSessionPayments returns the payments of an appointment ordered by
// payment date.
func (s *Service) GetSessionPayments(ctx context.Context, professionalID, appointmentID uuid.UUID) ([]*Payment, error) {
	if _, err := s.GetAppointment(ctx, professionalID, appointmentID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByAppointment(ctx, professionalID, appointmentID)
	if err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	return payments, nil
}

// =========== Writes ===========

// CreateAppointment stores a scheduled appointment and, when it carries a
// deposit, the matching deposit payment. Only the appointment insert is
// fatal; the later writes report warnings.
func (s *Service) CreateAppointment(ctx context.Context, professionalID uuid.UUID, d Draft) (*Outcome, error) {
	if err := requireProfessional(professionalID); err != nil {
		return nil, err
	}
	if d.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id", "is required")
	}
	if d.StartTime.IsZero() {
		return nil, apperr.Invalid("start_time", "is required")
	}
	if err := checkAmount("deposit_amount", d.DepositAmount); err != nil {
		return nil, err
	}
	if d.TotalAmount.IsSet() {
		if err := checkAmount("total_amount", d.TotalAmount.Decimal); err != nil {
			return nil, err
		}
	}

	patient, err := s.patients.LookupPatient(ctx, professionalID, d.PatientID)
	if err != nil {
		return nil, apperr.Persistence("lookup patient", err)
	}

	total := d.TotalAmount
	duration := defaultDuration
	var serviceName *string
	if d.ServiceID != nil {
		svc, err := s.services.LookupService(ctx, professionalID, *d.ServiceID)
		if err != nil {
			return nil, apperr.Persistence("lookup service", err)
		}
		if !total.IsSet() {
			total = svc.Price
		}
		if svc.Duration > 0 {
			duration = svc.Duration
		}
		name := svc.Name
		serviceName = &name
	}

	end := d.StartTime.Add(duration)
	if d.EndTime != nil {
		end = *d.EndTime
	}
	if !end.After(d.StartTime) {
		return nil, apperr.Invalid("end_time", "must be after start_time")
	}
	if total.IsSet() && d.DepositAmount.GreaterThan(total.Decimal) {
		return nil, apperr.OverLimit("deposit_amount", total.Decimal, "the total amount")
	}

	a := &Appointment{
		ProfessionalID: professionalID,
		PatientID:      d.PatientID,
		ServiceID:      d.ServiceID,
		StartTime:      d.StartTime,
		EndTime:        end,
		Status:         StatusScheduled,
		Notes:          d.Notes,
		TotalAmount:    total,
		DepositAmount:  d.DepositAmount,
		DepositPaid:    d.DepositAmount.IsPositive(),
	}
	a.Recompute(nil)
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, apperr.Persistence("create appointment", err)
	}

	out := &Outcome{Appointment: a}
	if d.DepositAmount.IsPositive() {
		p := &Payment{
			ProfessionalID: professionalID,
			AppointmentID:  a.ID,
			PatientID:      a.PatientID,
			ServiceID:      a.ServiceID,
			ServiceName:    serviceName,
			Kind:           PaymentKindDeposit,
			Amount:         d.DepositAmount,
			PaymentDate:    s.now(),
			Note:           "Deposit",
		}
		if err := s.payments.Create(ctx, p, a.Version); err != nil {
			s.warn(out, "create_deposit_payment", err)
		} else {
			out.Payment = p
			if updated, err := s.settle(ctx, professionalID, a.ID, recompute); err != nil {
				s.warn(out, "recompute_balance", err)
			} else {
				out.Appointment = updated
			}
		}
	}

	s.record(ctx, out, &activity.Entry{
		ProfessionalID: professionalID,
		Type:           activity.TypeAppointmentCreated,
		PatientID:      &a.PatientID,
		AppointmentID:  &a.ID,
		Title:          "Appointment scheduled",
		Description:    fmt.Sprintf("%s on %s", patient.Name, a.StartTime.Format("2006-01-02 15:04")),
	})
	if out.Payment != nil {
		s.recordPayment(ctx, out, out.Payment, patient.Name)
	}
	return out, nil
}

// RegisterPayment records a payment against an appointment, capped by the
// configured PaymentPolicy, and recomputes the balance. The cap is checked
// against the appointment version the payment insert is guarded by, so a
// concurrent payment forces a re-read and a fresh cap. A failed balance
// write leaves the payment in place and returns a persist_balance warning.
func (s *Service) RegisterPayment(ctx context.Context, professionalID, appointmentID uuid.UUID, in PaymentInput) (*Outcome, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Invalid("amount", "must be greater than zero")
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return nil, err
	}

	out := &Outcome{}
	var (
		a    *Appointment
		p    *Payment
		paid []decimal.Decimal
	)
	for attempt := 1; ; attempt++ {
		var err error
		a, err = s.GetAppointment(ctx, professionalID, appointmentID)
		if err != nil {
			return nil, err
		}
		if a.Status == StatusCancelled {
			return nil, apperr.Invalid("status", "cannot register a payment on a cancelled appointment")
		}
		existing, err := s.payments.ListByAppointment(ctx, professionalID, appointmentID)
		if err != nil {
			return nil, apperr.Persistence("list payments", err)
		}
		paid = Amounts(existing)
		a.Recompute(paid)

		kind, limit, what := s.paymentCap(a)
		if in.Amount.GreaterThan(limit) {
			return nil, apperr.OverLimit("amount", limit, what)
		}

		p = &Payment{
			ProfessionalID: professionalID,
			AppointmentID:  a.ID,
			PatientID:      a.PatientID,
			ServiceID:      a.ServiceID,
			ServiceName:    s.serviceName(ctx, out, a, existing),
			Kind:           kind,
			Amount:         in.Amount,
			PaymentDate:    s.now(),
			Note:           in.Note,
		}
		if in.PaymentDate != nil {
			p.PaymentDate = *in.PaymentDate
		}

		err = s.payments.Create(ctx, p, a.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Persistence("create payment", err)
		}
		if attempt >= maxUpdateAttempts {
			return nil, &apperr.ConflictError{Resource: "appointment", ID: appointmentID.String()}
		}
		s.logger.Debug().
			Str("appointment_id", appointmentID.String()).
			Int("attempt", attempt).
			Msg("appointment changed before payment insert, retrying")
	}

	out.Payment = p
	updated, err := s.settle(ctx, professionalID, a.ID, func(cur *Appointment, paid []decimal.Decimal) error {
		if p.Kind == PaymentKindDeposit {
			cur.DepositPaid = true
		}
		cur.Recompute(paid)
		return nil
	})
	if err != nil {
		s.warn(out, "persist_balance", err)
		// Report the balance the caller would see after a refresh.
		if p.Kind == PaymentKindDeposit {
			a.DepositPaid = true
		}
		a.Recompute(append(paid, p.Amount))
		updated = a
	}
	out.Appointment = updated

	s.recordPayment(ctx, out, p, "")
	return out, nil
}

// serviceName returns the service name to snapshot on a new payment: the one
// already stored on the appointment's payments, else the catalog's current
// name. A failed lookup stores the payment without a name.
func (s *Service) serviceName(ctx context.Context, out *Outcome, a *Appointment, existing []*Payment) *string {
	for _, p := range existing {
		if p.ServiceName != nil {
			return p.ServiceName
		}
	}
	if a.ServiceID == nil {
		return nil
	}
	svc, err := s.services.LookupService(ctx, a.ProfessionalID, *a.ServiceID)
	if err != nil {
		s.warn(out, "lookup_service", err)
		return nil
	}
	name := svc.Name
	return &name
}

// paymentCap returns the kind of the next payment on a and the most it may
// be. a must carry a freshly computed balance.
func (s *Service) paymentCap(a *Appointment) (PaymentKind, decimal.Decimal, string) {
	if s.policy == PolicyInstallments {
		kind := PaymentKindBalance
		if !a.DepositPaid && a.DepositAmount.IsPositive() {
			kind = PaymentKindDeposit
		}
		return kind, a.RemainingBalance, "the remaining balance"
	}
	if !a.DepositPaid {
		return PaymentKindDeposit, a.DepositAmount, "the deposit amount"
	}
	return PaymentKindBalance, a.RemainingBalance, "the remaining balance"
}

// UpdateSessionRates replaces the total and deposit of an appointment and
// recomputes its balance against the existing payments.
func (s *Service) UpdateSessionRates(ctx context.Context, professionalID, appointmentID uuid.UUID, total, deposit decimal.Decimal) (*Outcome, error) {
	if err := checkAmount("total_amount", total); err != nil {
		return nil, err
	}
	if err := checkAmount("deposit_amount", deposit); err != nil {
		return nil, err
	}
	if deposit.GreaterThan(total) {
		return nil, apperr.OverLimit("deposit_amount", total, "the total amount")
	}
	if err := requireProfessional(professionalID); err != nil {
		return nil, err
	}

	a, err := s.settle(ctx, professionalID, appointmentID, func(cur *Appointment, paid []decimal.Decimal) error {
		cur.TotalAmount = Some(total)
		cur.DepositAmount = deposit
		cur.Recompute(paid)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Appointment: a}
	s.record(ctx, out, &activity.Entry{
		ProfessionalID: professionalID,
		Type:           activity.TypeRatesUpdated,
		PatientID:      &a.PatientID,
		AppointmentID:  &a.ID,
		Title:          "Rates updated",
		Description:    fmt.Sprintf("Total %s, deposit %s", total.StringFixed(2), deposit.StringFixed(2)),
	})
	return out, nil
}

// UpdateSessionStatus moves an appointment along its lifecycle. Completing
// requires a zero balance after a recompute; cancelling builds a patient
// notification link when a phone is known. Requesting the current status
// returns the appointment unchanged.
func (s *Service) UpdateSessionStatus(ctx context.Context, professionalID, appointmentID uuid.UUID, change StatusChange) (*Outcome, error) {
	next := change.Status
	if !next.Valid() {
		return nil, apperr.Invalid("status", "unknown status %q", next)
	}
	if err := requireProfessional(professionalID); err != nil {
		return nil, err
	}

	var from Status
	a, err := s.settle(ctx, professionalID, appointmentID, func(cur *Appointment, paid []decimal.Decimal) error {
		from = cur.Status
		if cur.Status == next {
			return errUnchanged
		}
		if !cur.Status.CanTransitionTo(next) {
			return apperr.Invalid("status", "cannot change from %s to %s", cur.Status, next)
		}
		if next == StatusCompleted {
			cur.Recompute(paid)
			if cur.RemainingBalance.IsPositive() {
				return apperr.Invalid("status", "cannot complete with an outstanding balance of %s",
					cur.RemainingBalance.StringFixed(2))
			}
		}
		if next == StatusCancelled && change.Reason != "" {
			reason := change.Reason
			cur.CancellationReason = &reason
		}
		cur.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Appointment: a}
	if from == next {
		return out, nil
	}

	switch next {
	case StatusCompleted:
		s.record(ctx, out, &activity.Entry{
			ProfessionalID: professionalID,
			Type:           activity.TypeAppointmentCompleted,
			PatientID:      &a.PatientID,
			AppointmentID:  &a.ID,
			Title:          "Appointment completed",
			Description:    a.StartTime.Format("2006-01-02 15:04"),
		})
	case StatusCancelled:
		s.record(ctx, out, &activity.Entry{
			ProfessionalID: professionalID,
			Type:           activity.TypeAppointmentCancelled,
			PatientID:      &a.PatientID,
			AppointmentID:  &a.ID,
			Title:          "Appointment cancelled",
			Description:    change.Reason,
		})
		s.cancellationLink(ctx, out, change.Reason)
	}
	return out, nil
}

func (s *Service) cancellationLink(ctx context.Context, out *Outcome, reason string) {
	if s.notifier == nil {
		return
	}
	a := out.Appointment
	patient, err := s.patients.LookupPatient(ctx, a.ProfessionalID, a.PatientID)
	if err != nil {
		s.warn(out, "build_notification_link", err)
		return
	}
	if patient.Phone == "" {
		return
	}
	data := messageData(a, patient)
	if reason != "" {
		data["reason"] = " Reason: " + reason + "."
	}
	link, err := s.notifier.Link(templateCancelled, patient.Phone, data)
	if err != nil {
		s.warn(out, "build_notification_link", err)
		return
	}
	out.NotificationLink = link
}

// RecomputeBalance rebuilds the derived balance from the stored payments.
// It heals an appointment left stale by a persist_balance warning.
func (s *Service) RecomputeBalance(ctx context.Context, professionalID, appointmentID uuid.UUID) (*Appointment, error) {
	if err := requireProfessional(professionalID); err != nil {
		return nil, err
	}
	return s.settle(ctx, professionalID, appointmentID, recompute)
}

func recompute(a *Appointment, paid []decimal.Decimal) error {
	before := ComputeBalance(a.TotalAmount, a.DepositAmount, paid)
	if before.RemainingBalance.Equal(a.RemainingBalance) && before.PaymentStatus == a.PaymentStatus &&
		before.BalancePaid == a.BalancePaid {
		return errUnchanged
	}
	a.ApplyBalance(before)
	return nil
}

// settle reads the appointment and its payments, applies fn and writes the
// result under the version check. On a version conflict the whole cycle is
// repeated, up to maxUpdateAttempts times.
func (s *Service) settle(ctx context.Context, professionalID, appointmentID uuid.UUID, fn mutation) (*Appointment, error) {
	for attempt := 1; ; attempt++ {
		a, err := s.GetAppointment(ctx, professionalID, appointmentID)
		if err != nil {
			return nil, err
		}
		payments, err := s.payments.ListByAppointment(ctx, professionalID, appointmentID)
		if err != nil {
			return nil, apperr.Persistence("list payments", err)
		}
		if err := fn(a, Amounts(payments)); err != nil {
			if errors.Is(err, errUnchanged) {
				return a, nil
			}
			return nil, err
		}

		err = s.appts.Update(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Persistence("update appointment", err)
		}
		if attempt >= maxUpdateAttempts {
			return nil, &apperr.ConflictError{Resource: "appointment", ID: appointmentID.String()}
		}
		s.logger.Debug().
			Str("appointment_id", appointmentID.String()).
			Int("attempt", attempt).
			Msg("appointment version conflict, retrying")
	}
}

// =========== Notification links ===========

func messageData(a *Appointment, p *PatientInfo) map[string]string {
	return map[string]string{
		"patient_name": p.Name,
		"date":         a.StartTime.Format("02/01/2006"),
		"time":         a.StartTime.Format("15:04"),
	}
}

func (s *Service) linkFor(ctx context.Context, a *Appointment) (*PatientInfo, error) {
	if s.notifier == nil {
		return nil, errors.New("notification links are not configured")
	}
	patient, err := s.patients.LookupPatient(ctx, a.ProfessionalID, a.PatientID)
	if err != nil {
		return nil, apperr.Persistence("lookup patient", err)
	}
	if patient.Phone == "" {
		return nil, apperr.Invalid("phone", "patient has no phone number")
	}
	return patient, nil
}

// ReminderLink builds a reminder message link for the appointment's patient,
// mentioning the outstanding balance when there is one.
func (s *Service) ReminderLink(ctx context.Context, professionalID, appointmentID uuid.UUID) (string, error) {
	a, err := s.GetAppointment(ctx, professionalID, appointmentID)
	if err != nil {
		return "", err
	}
	patient, err := s.linkFor(ctx, a)
	if err != nil {
		return "", err
	}
	data := messageData(a, patient)
	data["balance"] = ""
	if a.RemainingBalance.IsPositive() {
		data["balance"] = " Outstanding balance: " + a.RemainingBalance.StringFixed(2) + "."
	}
	return s.notifier.Link(templateReminder, patient.Phone, data)
}

// ReceiptLink builds a receipt message link for one payment.
func (s *Service) ReceiptLink(ctx context.Context, professionalID, appointmentID, paymentID uuid.UUID) (string, error) {
	a, err := s.GetAppointment(ctx, professionalID, appointmentID)
	if err != nil {
		return "", err
	}
	payments, err := s.payments.ListByAppointment(ctx, professionalID, appointmentID)
	if err != nil {
		return "", apperr.Persistence("list payments", err)
	}
	var payment *Payment
	for _, p := range payments {
		if p.ID == paymentID {
			payment = p
			break
		}
	}
	if payment == nil {
		return "", apperr.NotFound("payment", paymentID)
	}
	patient, err := s.linkFor(ctx, a)
	if err != nil {
		return "", err
	}
	data := messageData(a, patient)
	data["amount"] = payment.Amount.StringFixed(2)
	data["remaining"] = a.RemainingBalance.StringFixed(2)
	return s.notifier.Link(templateReceipt, patient.Phone, data)
}

// =========== Secondary writes ===========

func (s *Service) warn(out *Outcome, op string, err error) {
	ev := s.logger.Warn().Err(err).Str("op", op)
	if out.Appointment != nil {
		ev = ev.Str("appointment_id", out.Appointment.ID.String())
	}
	ev.Msg("ledger secondary write failed")
	out.Warnings = append(out.Warnings, apperr.NewWarning(op, err))
}

func (s *Service) record(ctx context.Context, out *Outcome, e *activity.Entry) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, e); err != nil {
		s.warn(out, "record_activity", err)
	}
}

func (s *Service) recordPayment(ctx context.Context, out *Outcome, p *Payment, patientName string) {
	title := "Payment received"
	if p.Kind == PaymentKindDeposit {
		title = "Deposit received"
	}
	desc := p.Amount.StringFixed(2)
	if patientName != "" {
		desc = patientName + ", " + desc
	}
	s.record(ctx, out, &activity.Entry{
		ProfessionalID: p.ProfessionalID,
		Type:           activity.TypePaymentReceived,
		PatientID:      &p.PatientID,
		AppointmentID:  &p.AppointmentID,
		SaleID:         &p.ID,
		Title:          title,
		Description:    desc,
	})
}
