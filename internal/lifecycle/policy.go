package lifecycle

import (
	"fmt"
	"time"

	"github.com/mealbook/api/internal/enum"
)

// Policy holds the time rules that gate booking, activation and cancellation.
// Hours are evaluated in Location; calendar dates are represented as UTC
// midnight instants of the local calendar day.
type Policy struct {
	Location         *time.Location
	SwitchHour       int // breakfast before, lunch from this hour
	CancelCutoffHour int // tomorrow's booking is cancellable strictly before this hour
	HorizonDays      int // bookable days starting today
}

func DefaultPolicy() Policy {
	return Policy{
		Location:         time.UTC,
		SwitchHour:       12,
		CancelCutoffHour: 12,
		HorizonDays:      10,
	}
}

func (p Policy) local(now time.Time) time.Time {
	if p.Location == nil {
		return now.UTC()
	}
	return now.In(p.Location)
}

// CalendarDate truncates t to the UTC midnight of its UTC calendar day.
func CalendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the server's current calendar date.
func (p Policy) Today(now time.Time) time.Time {
	l := p.local(now)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// Tomorrow returns the calendar date after Today.
func (p Policy) Tomorrow(now time.Time) time.Time {
	return p.Today(now).AddDate(0, 0, 1)
}

// Horizon returns the first and last bookable dates, inclusive.
func (p Policy) Horizon(now time.Time) (time.Time, time.Time) {
	first := p.Today(now)
	return first, first.AddDate(0, 0, p.HorizonDays-1)
}

// InHorizon reports whether date falls within the booking horizon.
func (p Policy) InHorizon(date, now time.Time) bool {
	first, last := p.Horizon(now)
	d := CalendarDate(date)
	return !d.Before(first) && !d.After(last)
}

// CurrentMealType returns the meal whose serving window is open at now.
func (p Policy) CurrentMealType(now time.Time) string {
	if p.local(now).Hour() < p.SwitchHour {
		return enum.MealTypeBreakfast
	}
	return enum.MealTypeLunch
}

// WindowOpen reports whether mealType may be activated at now.
func (p Policy) WindowOpen(mealType string, now time.Time) bool {
	return p.CurrentMealType(now) == mealType
}

// CheckActivate applies the ACTIVATE guard to a PENDING request.
func (p Policy) CheckActivate(mealType string, date, now time.Time) error {
	if !CalendarDate(date).Equal(p.Today(now)) {
		return &TransitionError{
			From:   StatusPending,
			Event:  EventActivate,
			Reason: "only today's bookings can be activated",
		}
	}
	if !p.WindowOpen(mealType, now) {
		return &TransitionError{
			From:   StatusPending,
			Event:  EventActivate,
			Reason: p.windowReason(mealType),
		}
	}
	return nil
}

// CheckRespond applies the ACCEPT/REJECT guard: only requests for the meal
// being served today can be answered.
func (p Policy) CheckRespond(ev Event, mealType string, date, now time.Time) error {
	if !CalendarDate(date).Equal(p.Today(now)) {
		return &TransitionError{
			From:   StatusActive,
			Event:  ev,
			Reason: "only today's requests can be answered",
		}
	}
	if !p.WindowOpen(mealType, now) {
		return &TransitionError{
			From:   StatusActive,
			Event:  ev,
			Reason: p.windowReason(mealType),
		}
	}
	return nil
}

func (p Policy) windowReason(mealType string) string {
	if mealType == enum.MealTypeBreakfast {
		return fmt.Sprintf("breakfast is served only before %02d:00", p.SwitchHour)
	}
	return fmt.Sprintf("lunch is served only from %02d:00", p.SwitchHour)
}

// CheckCancel applies the CANCEL guard to a PENDING request.
func (p Policy) CheckCancel(date, now time.Time) error {
	if !CalendarDate(date).Equal(p.Tomorrow(now)) {
		return &TransitionError{
			From:   StatusPending,
			Event:  EventCancel,
			Reason: "only tomorrow's bookings can be cancelled",
		}
	}
	if p.local(now).Hour() >= p.CancelCutoffHour {
		return &TransitionError{
			From:   StatusPending,
			Event:  EventCancel,
			Reason: fmt.Sprintf("tomorrow's booking must be cancelled before %02d:00 today", p.CancelCutoffHour),
			Err:    ErrCancellationDeadline,
		}
	}
	return nil
}
