// Package lifecycle holds the meal request state machine, the serving-window
// and cancellation-deadline policy, and one-time code handling.
//
// Transition is the single authority on which status changes are legal.
// Callers apply its result with a conditional update keyed on the status
// they read, so two racing callers can never both succeed.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mealbook/api/internal/enum"
)

// Status is the lifecycle state of a meal request.
type Status string

const (
	StatusPending     Status = enum.MealStatusPending
	StatusActive      Status = enum.MealStatusActive
	StatusAccepted    Status = enum.MealStatusAccepted
	StatusRejected    Status = enum.MealStatusRejected
	StatusOTPVerified Status = enum.MealStatusOTPVerified
	StatusIssued      Status = enum.MealStatusIssued
	StatusCancelled   Status = enum.MealStatusCancelled
)

// Initial is the status every booking is created with.
const Initial = StatusPending

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusAccepted, StatusRejected,
		StatusOTPVerified, StatusIssued, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no event is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusIssued || s == StatusCancelled
}

// Event is something an actor asks to happen to a meal request.
type Event string

const (
	EventActivate      Event = "ACTIVATE"
	EventAccept        Event = "ACCEPT"
	EventReject        Event = "REJECT"
	EventVerifyOTP     Event = "VERIFY_OTP"
	EventSelectPayment Event = "SELECT_PAYMENT"
	EventIssue         Event = "ISSUE"
	EventDeny          Event = "DENY"
	EventCancel        Event = "CANCEL"
)

func (e Event) verb() string {
	return strings.ToLower(strings.ReplaceAll(string(e), "_", " "))
}

// ErrInvalidTransition is the sentinel every rejected transition unwraps to.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected event together with the status the
// request was in when it was rejected.
type TransitionError struct {
	From   Status
	Event  Event
	Reason string
	// Err optionally narrows the failure (for example ErrOTPMismatch).
	Err error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s a meal request in status %s", e.Event.verb(), e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidTransition, e.Err}
	}
	return []error{ErrInvalidTransition}
}

// transitions is the complete edge set. SELECT_PAYMENT is a self-loop: it
// records data without moving the request.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventActivate: StatusActive,
		EventCancel:   StatusCancelled,
	},
	StatusActive: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
	},
	StatusAccepted: {
		EventVerifyOTP: StatusOTPVerified,
	},
	StatusOTPVerified: {
		EventSelectPayment: StatusOTPVerified,
		EventIssue:         StatusIssued,
		EventDeny:          StatusRejected,
	},
}

// Transition returns the status reached by applying ev to a request in
// status from, or a *TransitionError if the edge does not exist.
func Transition(from Status, ev Event) (Status, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return "", &TransitionError{From: from, Event: ev, Reason: rejectReason(from, ev)}
}

// Allowed lists the events accepted from s.
func Allowed(s Status) []Event {
	var events []Event
	for _, ev := range []Event{
		EventActivate, EventAccept, EventReject, EventVerifyOTP,
		EventSelectPayment, EventIssue, EventDeny, EventCancel,
	} {
		if _, ok := transitions[s][ev]; ok {
			events = append(events, ev)
		}
	}
	return events
}

func rejectReason(from Status, ev Event) string {
	switch {
	case !from.Valid():
		return "unknown status"
	case from.Terminal():
		return "request has already been processed"
	case from == StatusPending:
		return "request has not been activated"
	case from == StatusActive:
		return "request is awaiting canteen approval"
	case from == StatusAccepted && (ev == EventSelectPayment || ev == EventIssue || ev == EventDeny):
		return "one-time code has not been verified"
	}
	return "request has moved past this step"
}
