package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mealbook/api/internal/database"
	"github.com/mealbook/api/internal/enum"
	"github.com/shopspring/decimal"
)

// QueueEntry is a request as the canteen sees it, with the name of the
// employee at the counter.
type QueueEntry struct {
	database.MealRequest
	FirstName string
	LastName  string
}

// Dashboard is the canteen's view of the meal being served right now.
type Dashboard struct {
	Date     time.Time
	MealType string
	Requests []QueueEntry
	Active   []QueueEntry // awaiting accept/reject
	Verified []QueueEntry // awaiting issue/deny
}

// Dashboard returns today's requests for the meal of the current window.
func (s *MealService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	if err := requireRole(actor, enum.UserRoleCanteen); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	d := &Dashboard{
		Date:     s.policy.Today(now),
		MealType: s.policy.CurrentMealType(now),
	}
	rows, err := s.store().ListMealRequestsByDateAndType(ctx, database.ListMealRequestsByDateAndTypeParams{
		Date:     toPgDate(d.Date),
		MealType: d.MealType,
	})
	if err != nil {
		return nil, fmt.Errorf("list dashboard requests: %w", err)
	}

	d.Requests = make([]QueueEntry, len(rows))
	d.Active = []QueueEntry{}
	d.Verified = []QueueEntry{}
	for i, row := range rows {
		e := QueueEntry{MealRequest: row.MealRequest, FirstName: row.FirstName, LastName: row.LastName}
		d.Requests[i] = e
		switch e.Status {
		case enum.MealStatusActive:
			d.Active = append(d.Active, e)
		case enum.MealStatusOTPVerified:
			d.Verified = append(d.Verified, e)
		}
	}
	return d, nil
}

// MealTotals aggregates one meal type for a day.
type MealTotals struct {
	MealType      string
	Counts        map[string]int64 // by status
	PayNowCount   int64
	PayLaterCount int64
	PayNowTotal   decimal.Decimal
	PayLaterTotal decimal.Decimal
}

// DailySummary is the canteen's end-of-day report. Money totals only
// include ISSUED meals.
type DailySummary struct {
	Date  time.Time
	Meals []MealTotals
}

// Summary reports request counts and issued-meal totals for date. A zero
// date means today.
func (s *MealService) Summary(ctx context.Context, actor Actor, date time.Time) (*DailySummary, error) {
	if err := requireRole(actor, enum.UserRoleCanteen); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.policy.Today(s.clock.Now())
	}

	rows, err := s.store().SummarizeMealRequests(ctx, toPgDate(date))
	if err != nil {
		return nil, fmt.Errorf("summarize meal requests: %w", err)
	}

	sum := &DailySummary{Date: date}
	byType := map[string]*MealTotals{}
	for _, mt := range []string{enum.MealTypeBreakfast, enum.MealTypeLunch} {
		byType[mt] = &MealTotals{
			MealType:      mt,
			Counts:        map[string]int64{},
			PayNowTotal:   decimal.Zero,
			PayLaterTotal: decimal.Zero,
		}
	}
	for _, row := range rows {
		t, ok := byType[row.MealType]
		if !ok {
			continue
		}
		t.Counts[row.Status] += row.RequestCount
		if row.Status != enum.MealStatusIssued {
			continue
		}
		total := NumericToDecimal(row.TotalAmount)
		switch row.PaymentType {
		case enum.PaymentTypePayNow:
			t.PayNowCount += row.RequestCount
			t.PayNowTotal = t.PayNowTotal.Add(total)
		case enum.PaymentTypePayLater:
			t.PayLaterCount += row.RequestCount
			t.PayLaterTotal = t.PayLaterTotal.Add(total)
		}
	}
	sum.Meals = []MealTotals{*byType[enum.MealTypeBreakfast], *byType[enum.MealTypeLunch]}
	return sum, nil
}
