package activity

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an activity entry.
type Type string

const (
	TypeAppointmentCreated   Type = "appointment_created"
	TypePaymentReceived      Type = "payment_received"
	TypeAppointmentCompleted Type = "appointment_completed"
	TypeAppointmentCancelled Type = "appointment_cancelled"
	TypeRatesUpdated         Type = "rates_updated"
	TypePatientCreated       Type = "patient_created"
)

var validTypes = map[Type]bool{
	TypeAppointmentCreated:   true,
	TypePaymentReceived:      true,
	TypeAppointmentCompleted: true,
	TypeAppointmentCancelled: true,
	TypeRatesUpdated:         true,
	TypePatientCreated:       true,
}

func (t Type) Valid() bool { return validTypes[t] }

// Entry maps to the activity_log table.
type Entry struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProfessionalID uuid.UUID  `db:"professional_id" json:"professional_id"`
	Type           Type       `db:"activity_type" json:"activity_type"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	SaleID         *uuid.UUID `db:"sale_id" json:"sale_id,omitempty"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Filter narrows ListByProfessional.
type Filter struct {
	Type      Type
	PatientID *uuid.UUID
	Since     *time.Time
}
