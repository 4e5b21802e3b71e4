// Package apperr defines the error kinds shared by the domain services and
// the HTTP edge. Services return these types; handlers translate them with
// errors.As into status codes via HTTPStatus.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// ValidationError reports bad caller input. Limit is set when the failure is
// a breached ceiling (for example a payment above the outstanding amount).
type ValidationError struct {
	Field   string
	Message string
	Limit   *decimal.Decimal
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OverLimit builds a ValidationError for an amount that exceeds limit.
func OverLimit(field string, limit decimal.Decimal, what string) *ValidationError {
	l := limit
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("cannot exceed %s (%s)", what, limit.StringFixed(2)),
		Limit:   &l,
	}
}

// NotFoundError reports a missing row, or one owned by another professional.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it already carries one
// of the kinds in this package.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// ConflictError reports a concurrent modification the service could not
// reconcile.
type ConflictError struct {
	Resource string
	ID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently, reload and try again", e.Resource, e.ID)
}

// Warning is a non-fatal failure of a secondary write that happened after
// the primary write succeeded.
type Warning struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// NewWarning builds a Warning from a failed secondary operation.
func NewWarning(op string, err error) Warning {
	return Warning{Op: op, Message: err.Error()}
}

// IsKnown reports whether err is one of the kinds defined here.
func IsKnown(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		pe *PersistenceError
		ce *ConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &pe) || errors.As(err, &ce)
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into the echo error returned by handlers. Store
// failures are reported without their driver message.
func HTTPError(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		body := map[string]string{"message": ve.Error(), "field": ve.Field}
		if ve.Limit != nil {
			body["limit"] = ve.Limit.StringFixed(2)
		}
		return echo.NewHTTPError(status, body)
	case status == http.StatusInternalServerError:
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	default:
		return echo.NewHTTPError(status, err.Error())
	}
}
