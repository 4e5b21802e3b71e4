package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultDurationMinutes applies when an item is created without a duration.
const DefaultDurationMinutes = 60

// Item is a billable service offered by a professional. It maps to the
// services table.
type Item struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	ProfessionalID  uuid.UUID           `db:"professional_id" json:"professional_id"`
	Name            string              `db:"name" json:"name"`
	Description     *string             `db:"description" json:"description,omitempty"`
	Price           decimal.NullDecimal `db:"price" json:"price"`
	DurationMinutes int                 `db:"duration_minutes" json:"duration_minutes"`
	Active          bool                `db:"active" json:"active"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// Duration returns the item's length as a time.Duration.
func (i *Item) Duration() time.Duration {
	return time.Duration(i.DurationMinutes) * time.Minute
}
