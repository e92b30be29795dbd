package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mealbook/api/internal/database"
	"github.com/mealbook/api/internal/enum"
	"github.com/mealbook/api/internal/lifecycle"
)

// Respond records the canteen's decision on an ACTIVE request for the meal
// being served now. Accepting issues a fresh one-time code; rejecting is terminal.
func (s *MealService) Respond(ctx context.Context, actor Actor, id uuid.UUID, action string) (database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleCanteen); err != nil {
		return database.MealRequest{}, err
	}

	var ev lifecycle.Event
	switch action {
	case enum.RespondActionAccept:
		ev = lifecycle.EventAccept
	case enum.RespondActionReject:
		ev = lifecycle.EventReject
	default:
		return database.MealRequest{}, ErrInvalidAction
	}

	store := s.store()
	req, err := load(ctx, store, id)
	if err != nil {
		return database.MealRequest{}, err
	}
	next, err := lifecycle.Transition(lifecycle.Status(req.Status), ev)
	if err != nil {
		return database.MealRequest{}, err
	}
	if err := s.policy.CheckRespond(ev, req.MealType, req.Date.Time, s.clock.Now()); err != nil {
		return database.MealRequest{}, err
	}

	var updated database.MealRequest
	if ev == lifecycle.EventAccept {
		code, cerr := s.newCode()
		if cerr != nil {
			return database.MealRequest{}, fmt.Errorf("generate otp: %w", cerr)
		}
		updated, err = store.AcceptMealRequest(ctx, database.AcceptMealRequestParams{
			ID:  id,
			Otp: pgtype.Text{String: code, Valid: true},
		})
	} else {
		updated, err = store.UpdateMealRequestStatus(ctx, database.UpdateMealRequestStatusParams{
			ID:             id,
			Status:         string(next),
			ExpectedStatus: req.Status,
		})
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, s.lostRace(ctx, store, id, ev)
		}
		return database.MealRequest{}, fmt.Errorf("respond to meal request: %w", err)
	}

	s.log.Info("meal request answered", "request_id", id, "canteen_id", actor.UserID, "status", updated.Status)
	return updated, nil
}

// VerifyOTP checks the employee's code against the one issued on
// acceptance. A wrong code leaves the request ACCEPTED so it can be retried.
func (s *MealService) VerifyOTP(ctx context.Context, actor Actor, id uuid.UUID, otp string) (database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return database.MealRequest{}, err
	}
	if !lifecycle.ValidCodeFormat(otp) {
		return database.MealRequest{}, ErrInvalidOTPFormat
	}

	store := s.store()
	req, err := loadOwned(ctx, store, actor, id)
	if err != nil {
		return database.MealRequest{}, err
	}
	from := lifecycle.Status(req.Status)
	if _, err := lifecycle.Transition(from, lifecycle.EventVerifyOTP); err != nil {
		return database.MealRequest{}, err
	}
	if !lifecycle.CodesMatch(req.Otp.String, otp) {
		s.log.Warn("otp mismatch", "request_id", id, "employee_id", actor.UserID)
		return database.MealRequest{}, &lifecycle.TransitionError{
			From:   from,
			Event:  lifecycle.EventVerifyOTP,
			Reason: "the code does not match",
			Err:    ErrOTPMismatch,
		}
	}

	updated, err := store.VerifyMealRequestOtp(ctx, database.VerifyMealRequestOtpParams{
		ID:  id,
		Otp: pgtype.Text{String: otp, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, s.lostRace(ctx, store, id, lifecycle.EventVerifyOTP)
		}
		return database.MealRequest{}, fmt.Errorf("verify otp: %w", err)
	}

	s.log.Info("otp verified", "request_id", id, "employee_id", actor.UserID)
	return updated, nil
}

// SelectPayment records how the employee will pay and snapshots the meal
// price. It may be repeated until the canteen finalizes.
func (s *MealService) SelectPayment(ctx context.Context, actor Actor, id uuid.UUID, paymentType string) (database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return database.MealRequest{}, err
	}
	if !enum.IsPaymentType(paymentType) {
		return database.MealRequest{}, ErrInvalidPaymentType
	}

	store := s.store()
	req, err := loadOwned(ctx, store, actor, id)
	if err != nil {
		return database.MealRequest{}, err
	}
	if _, err := lifecycle.Transition(lifecycle.Status(req.Status), lifecycle.EventSelectPayment); err != nil {
		return database.MealRequest{}, err
	}

	updated, err := store.SetMealRequestPayment(ctx, database.SetMealRequestPaymentParams{
		ID:          id,
		PaymentType: pgtype.Text{String: paymentType, Valid: true},
		Amount:      decimalToNumeric(s.prices[req.MealType]),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, s.lostRace(ctx, store, id, lifecycle.EventSelectPayment)
		}
		return database.MealRequest{}, fmt.Errorf("select payment: %w", err)
	}

	s.log.Info("payment selected", "request_id", id, "employee_id", actor.UserID, "payment_type", paymentType)
	return updated, nil
}

// Finalize issues the meal or denies it. Issuing requires a payment type.
func (s *MealService) Finalize(ctx context.Context, actor Actor, id uuid.UUID, issue bool) (database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleCanteen); err != nil {
		return database.MealRequest{}, err
	}

	ev := lifecycle.EventDeny
	if issue {
		ev = lifecycle.EventIssue
	}

	store := s.store()
	req, err := load(ctx, store, id)
	if err != nil {
		return database.MealRequest{}, err
	}
	from := lifecycle.Status(req.Status)
	next, err := lifecycle.Transition(from, ev)
	if err != nil {
		return database.MealRequest{}, err
	}

	var updated database.MealRequest
	if issue {
		if !req.PaymentType.Valid {
			return database.MealRequest{}, &lifecycle.TransitionError{
				From:   from,
				Event:  ev,
				Reason: "no payment type has been selected",
			}
		}
		updated, err = store.IssueMealRequest(ctx, id)
	} else {
		updated, err = store.UpdateMealRequestStatus(ctx, database.UpdateMealRequestStatusParams{
			ID:             id,
			Status:         string(next),
			ExpectedStatus: req.Status,
		})
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, s.lostRace(ctx, store, id, ev)
		}
		return database.MealRequest{}, fmt.Errorf("finalize meal request: %w", err)
	}

	s.log.Info("meal request finalized", "request_id", id, "canteen_id", actor.UserID, "status", updated.Status)
	return updated, nil
}

func load(ctx context.Context, store MealStore, id uuid.UUID) (database.MealRequest, error) {
	req, err := store.GetMealRequest(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, ErrNotFound
		}
		return database.MealRequest{}, fmt.Errorf("get meal request: %w", err)
	}
	return req, nil
}

// loadOwned hides other employees' requests behind ErrNotFound.
func loadOwned(ctx context.Context, store MealStore, actor Actor, id uuid.UUID) (database.MealRequest, error) {
	req, err := load(ctx, store, id)
	if err != nil {
		return database.MealRequest{}, err
	}
	if req.EmployeeID != actor.UserID {
		return database.MealRequest{}, ErrNotFound
	}
	return req, nil
}
