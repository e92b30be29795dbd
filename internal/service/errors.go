package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/mealbook/api/internal/lifecycle"
)

// Error kinds. Every error returned by MealService that is not an
// infrastructure failure matches exactly one of these with errors.Is.
var (
	ErrValidation        = errors.New("invalid request")
	ErrDuplicateBooking  = errors.New("meal already booked")
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrForbidden         = errors.New("action not permitted for this user")
	ErrNotFound          = errors.New("meal request not found")
)

// Narrower conditions, still matching the kinds above.
var (
	ErrOTPMismatch          = lifecycle.ErrOTPMismatch
	ErrCancellationDeadline = lifecycle.ErrCancellationDeadline
)

// ValidationError is a user-correctable input problem. No state was touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

var (
	ErrEmptySelections    = &ValidationError{"selections are required"}
	ErrInvalidMealType    = &ValidationError{"mealType must be BREAKFAST or LUNCH"}
	ErrEmptyDates         = &ValidationError{"dates are required"}
	ErrInvalidDate        = &ValidationError{"dates must be ISO 8601 (YYYY-MM-DD or RFC 3339)"}
	ErrDateOutOfRange     = &ValidationError{"date is outside the booking window"}
	ErrInvalidAction      = &ValidationError{"action must be ACCEPT or REJECT"}
	ErrInvalidPaymentType = &ValidationError{"paymentType must be PAY_NOW or PAY_LATER"}
	ErrInvalidOTPFormat   = &ValidationError{fmt.Sprintf("otp must be %d digits", lifecycle.CodeLength)}
)

// NotFoundError explains which lookup came back empty.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string        { return e.Msg }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

var (
	ErrNoBookingToday    = &NotFoundError{"no pre-booked meal found for today"}
	ErrNoBookingTomorrow = &NotFoundError{"no booking found for tomorrow"}
)

// DuplicateBookingError names the slot that is already taken.
type DuplicateBookingError struct {
	MealType string
	Date     time.Time
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf("%s is already booked for %s", e.MealType, e.Date.Format("2006-01-02"))
}

func (e *DuplicateBookingError) Is(target error) bool { return target == ErrDuplicateBooking }
