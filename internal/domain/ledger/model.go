package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/pkg/apperr"
)

// Status is the scheduling state of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

var transitions = map[Status][]Status{
	StatusScheduled:   {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusRescheduled: {StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:   nil,
	StatusCancelled:   nil,
	StatusNoShow:      nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// PaymentKind tells a deposit payment from a payment against the balance.
type PaymentKind string

const (
	PaymentKindDeposit PaymentKind = "deposit"
	PaymentKindBalance PaymentKind = "balance"
)

// PaymentPolicy selects the ceiling applied to a new payment.
type PaymentPolicy string

const (
	// PolicyDepositFirst caps the first payment at the deposit amount and
	// later payments at the remaining balance.
	PolicyDepositFirst PaymentPolicy = "deposit-first"
	// PolicyInstallments caps every payment at the remaining balance.
	PolicyInstallments PaymentPolicy = "installments"
)

func ParsePaymentPolicy(s string) (PaymentPolicy, error) {
	switch p := PaymentPolicy(s); p {
	case PolicyDepositFirst, PolicyInstallments:
		return p, nil
	case "":
		return PolicyDepositFirst, nil
	default:
		return "", fmt.Errorf("unknown payment policy %q", s)
	}
}

// Appointment maps to the appointments table. Version guards the
// read-compute-write cycle of balance updates.
type Appointment struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	ProfessionalID     uuid.UUID       `db:"professional_id" json:"professional_id"`
	PatientID          uuid.UUID       `db:"patient_id" json:"patient_id"`
	ServiceID          *uuid.UUID      `db:"service_id" json:"service_id,omitempty"`
	StartTime          time.Time       `db:"start_time" json:"start_time"`
	EndTime            time.Time       `db:"end_time" json:"end_time"`
	Status             Status          `db:"status" json:"status"`
	Notes              *string         `db:"notes" json:"notes,omitempty"`
	CancellationReason *string         `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	TotalAmount        Amount          `db:"total_amount" json:"total_amount"`
	DepositAmount      decimal.Decimal `db:"deposit_amount" json:"deposit_amount"`
	DepositPaid        bool            `db:"deposit_paid" json:"deposit_paid"`
	RemainingBalance   decimal.Decimal `db:"remaining_balance" json:"remaining_balance"`
	BalancePaid        bool            `db:"balance_paid" json:"balance_paid"`
	PaymentStatus      PaymentStatus   `db:"payment_status" json:"payment_status"`
	Version            int             `db:"version" json:"version"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) ApplyBalance(b Balance) {
	a.RemainingBalance = b.RemainingBalance
	a.PaymentStatus = b.PaymentStatus
	a.BalancePaid = b.BalancePaid
}

// Recompute refreshes the derived balance fields from the given payments.
func (a *Appointment) Recompute(payments []decimal.Decimal) {
	a.ApplyBalance(ComputeBalance(a.TotalAmount, a.DepositAmount, payments))
}

// Payment maps to the sales table. Payments are never updated or deleted.
type Payment struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ProfessionalID uuid.UUID       `db:"professional_id" json:"professional_id"`
	AppointmentID  uuid.UUID       `db:"appointment_id" json:"appointment_id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	ServiceID      *uuid.UUID      `db:"service_id" json:"service_id,omitempty"`
	ServiceName    *string         `db:"service_name" json:"service_name,omitempty"`
	Kind           PaymentKind     `db:"kind" json:"kind"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate    time.Time       `db:"payment_date" json:"payment_date"`
	Note           string          `db:"note" json:"note"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Draft is the input for a new appointment. EndTime defaults to the start
// plus the service duration, TotalAmount to the service price.
type Draft struct {
	PatientID     uuid.UUID
	ServiceID     *uuid.UUID
	StartTime     time.Time
	EndTime       *time.Time
	TotalAmount   Amount
	DepositAmount decimal.Decimal
	Notes         *string
}

// PaymentInput is the input of RegisterPayment. PaymentDate defaults to now.
type PaymentInput struct {
	Amount      decimal.Decimal
	Note        string
	PaymentDate *time.Time
}

// StatusChange is the input of UpdateSessionStatus. Reason is kept only for
// cancellations.
type StatusChange struct {
	Status Status
	Reason string
}

// Outcome is what a ledger write returns. Warnings list secondary writes
// that failed after the primary write succeeded.
type Outcome struct {
	Appointment      *Appointment     `json:"appointment"`
	Payment          *Payment         `json:"payment,omitempty"`
	NotificationLink string           `json:"notification_link,omitempty"`
	Warnings         []apperr.Warning `json:"warnings,omitempty"`
}

// ListFilter narrows ListAppointments. Zero fields are ignored.
type ListFilter struct {
	Status        Status
	PaymentStatus PaymentStatus
	PatientID     *uuid.UUID
	From          *time.Time
	To            *time.Time
}

// ServiceInfo is the catalog data the ledger reads.
type ServiceInfo struct {
	ID       uuid.UUID
	Name     string
	Price    Amount
	Duration time.Duration
}

// PatientInfo is the patient data the ledger reads.
type PatientInfo struct {
	ID    uuid.UUID
	Name  string
	Phone string
}
