package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jonboulle/clockwork"
	"github.com/mealbook/api/internal/database"
	"github.com/mealbook/api/internal/enum"
	"github.com/mealbook/api/internal/lifecycle"
	"github.com/shopspring/decimal"
)

const slotConstraint = "meal_requests_employee_id_meal_type_date_key"

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a connection pool: it runs queries and starts transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// MealStore defines the DB methods the meal workflow needs.
// Satisfied by *database.Queries (and its WithTx variant).
type MealStore interface {
	CreateMealRequest(ctx context.Context, arg database.CreateMealRequestParams) (database.MealRequest, error)
	GetMealRequest(ctx context.Context, id uuid.UUID) (database.MealRequest, error)
	GetMealRequestBySlot(ctx context.Context, arg database.GetMealRequestBySlotParams) (database.MealRequest, error)
	ListMealRequestsByEmployee(ctx context.Context, arg database.ListMealRequestsByEmployeeParams) ([]database.MealRequest, error)
	ListMealRequestsByDateAndType(ctx context.Context, arg database.ListMealRequestsByDateAndTypeParams) ([]database.ListMealRequestsByDateAndTypeRow, error)
	UpdateMealRequestStatus(ctx context.Context, arg database.UpdateMealRequestStatusParams) (database.MealRequest, error)
	AcceptMealRequest(ctx context.Context, arg database.AcceptMealRequestParams) (database.MealRequest, error)
	VerifyMealRequestOtp(ctx context.Context, arg database.VerifyMealRequestOtpParams) (database.MealRequest, error)
	SetMealRequestPayment(ctx context.Context, arg database.SetMealRequestPaymentParams) (database.MealRequest, error)
	IssueMealRequest(ctx context.Context, id uuid.UUID) (database.MealRequest, error)
	SummarizeMealRequests(ctx context.Context, date pgtype.Date) ([]database.SummarizeMealRequestsRow, error)
}

// NewMealStore creates a MealStore from a DBTX (pool or tx).
type NewMealStore func(db database.DBTX) MealStore

// Actor is the authenticated caller of a service method.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// Options tunes a MealService. Zero values fall back to production defaults.
type Options struct {
	Clock   clockwork.Clock
	Policy  lifecycle.Policy
	Prices  map[string]decimal.Decimal
	Logger  *slog.Logger
	NewCode func() (string, error)
}

// MealService runs the meal request lifecycle: booking, activation,
// canteen approval, code verification, payment choice and issuance.
type MealService struct {
	db       DB
	newStore NewMealStore
	clock    clockwork.Clock
	policy   lifecycle.Policy
	prices   map[string]decimal.Decimal
	log      *slog.Logger
	newCode  func() (string, error)
}

// NewMealService creates a new MealService.
func NewMealService(db DB, newStore NewMealStore, opts Options) *MealService {
	s := &MealService{
		db:       db,
		newStore: newStore,
		clock:    opts.Clock,
		policy:   opts.Policy,
		prices:   opts.Prices,
		log:      opts.Logger,
		newCode:  opts.NewCode,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.policy.HorizonDays == 0 {
		s.policy = lifecycle.DefaultPolicy()
	}
	if s.prices == nil {
		s.prices = map[string]decimal.Decimal{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.newCode == nil {
		s.newCode = lifecycle.GenerateCode
	}
	return s
}

// Policy exposes the time policy in effect.
func (s *MealService) Policy() lifecycle.Policy { return s.policy }

// Now returns the service clock's current time.
func (s *MealService) Now() time.Time { return s.clock.Now() }

func (s *MealService) store() MealStore { return s.newStore(s.db) }

// BookingSelection is one meal type and the dates it should be booked for.
// Dates are ISO 8601 strings as sent by the client.
type BookingSelection struct {
	MealType string
	Dates    []string
}

type slot struct {
	mealType string
	date     time.Time
}

// Book creates a PENDING request for every (meal type, date) pair in one
// transaction. Either every slot is booked or none is.
func (s *MealService) Book(ctx context.Context, actor Actor, selections []BookingSelection) ([]database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		return nil, ErrEmptySelections
	}

	now := s.clock.Now()
	seen := make(map[slot]bool)
	var slots []slot
	for i, sel := range selections {
		if !enum.IsMealType(sel.MealType) {
			return nil, fmt.Errorf("selections[%d]: %w", i, ErrInvalidMealType)
		}
		if len(sel.Dates) == 0 {
			return nil, fmt.Errorf("selections[%d]: %w", i, ErrEmptyDates)
		}
		for j, raw := range sel.Dates {
			d, err := parseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("selections[%d].dates[%d]: %w", i, j, ErrInvalidDate)
			}
			if !s.policy.InHorizon(d, now) {
				return nil, fmt.Errorf("selections[%d].dates[%d]: %w", i, j, ErrDateOutOfRange)
			}
			sl := slot{mealType: sel.MealType, date: d}
			if seen[sl] {
				return nil, &DuplicateBookingError{MealType: sl.mealType, Date: sl.date}
			}
			seen[sl] = true
			slots = append(slots, sl)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	created := make([]database.MealRequest, 0, len(slots))
	for _, sl := range slots {
		req, err := store.CreateMealRequest(ctx, database.CreateMealRequestParams{
			EmployeeID: actor.UserID,
			MealType:   sl.mealType,
			Date:       toPgDate(sl.date),
		})
		if err != nil {
			if isSlotConflict(err) {
				return nil, &DuplicateBookingError{MealType: sl.mealType, Date: sl.date}
			}
			return nil, fmt.Errorf("create meal request: %w", err)
		}
		created = append(created, req)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Info("meals booked", "employee_id", actor.UserID, "count", len(created))
	return created, nil
}

// ListMine returns the caller's requests from today through the next days-1
// days, ordered by date. days outside 1..horizon is clamped to the horizon.
func (s *MealService) ListMine(ctx context.Context, actor Actor, days int) ([]database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return nil, err
	}
	if days <= 0 || days > s.policy.HorizonDays {
		days = s.policy.HorizonDays
	}

	today := s.policy.Today(s.clock.Now())
	reqs, err := s.store().ListMealRequestsByEmployee(ctx, database.ListMealRequestsByEmployeeParams{
		EmployeeID: actor.UserID,
		StartDate:  toPgDate(today),
		EndDate:    toPgDate(today.AddDate(0, 0, days-1)),
	})
	if err != nil {
		return nil, fmt.Errorf("list meal requests: %w", err)
	}
	return reqs, nil
}

// RequestNow returns the caller's requests for today. When activate is set it
// first moves today's PENDING booking for mealType (or, if empty, the meal
// currently being served) to ACTIVE.
func (s *MealService) RequestNow(ctx context.Context, actor Actor, activate bool, mealType string) ([]database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	today := s.policy.Today(now)
	store := s.store()

	if activate {
		if mealType == "" {
			mealType = s.policy.CurrentMealType(now)
		}
		if !enum.IsMealType(mealType) {
			return nil, ErrInvalidMealType
		}
		if err := s.activate(ctx, store, actor, mealType, today, now); err != nil {
			return nil, err
		}
	}

	reqs, err := store.ListMealRequestsByEmployee(ctx, database.ListMealRequestsByEmployeeParams{
		EmployeeID: actor.UserID,
		StartDate:  toPgDate(today),
		EndDate:    toPgDate(today),
	})
	if err != nil {
		return nil, fmt.Errorf("list today's meal requests: %w", err)
	}
	return reqs, nil
}

func (s *MealService) activate(ctx context.Context, store MealStore, actor Actor, mealType string, today, now time.Time) error {
	req, err := store.GetMealRequestBySlot(ctx, database.GetMealRequestBySlotParams{
		EmployeeID: actor.UserID,
		MealType:   mealType,
		Date:       toPgDate(today),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoBookingToday
		}
		return fmt.Errorf("get today's booking: %w", err)
	}

	next, err := lifecycle.Transition(lifecycle.Status(req.Status), lifecycle.EventActivate)
	if err != nil {
		return err
	}
	if err := s.policy.CheckActivate(req.MealType, req.Date.Time, now); err != nil {
		return err
	}

	if _, err := store.UpdateMealRequestStatus(ctx, database.UpdateMealRequestStatusParams{
		ID:             req.ID,
		Status:         string(next),
		ExpectedStatus: req.Status,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.lostRace(ctx, store, req.ID, lifecycle.EventActivate)
		}
		return fmt.Errorf("activate meal request: %w", err)
	}

	s.log.Info("meal request activated", "request_id", req.ID, "employee_id", actor.UserID, "meal_type", mealType)
	return nil
}

// CancelTomorrow withdraws the caller's PENDING booking of mealType for
// tomorrow. It must happen before the cutoff hour today.
func (s *MealService) CancelTomorrow(ctx context.Context, actor Actor, mealType string) (database.MealRequest, error) {
	if err := requireRole(actor, enum.UserRoleEmployee); err != nil {
		return database.MealRequest{}, err
	}
	if !enum.IsMealType(mealType) {
		return database.MealRequest{}, ErrInvalidMealType
	}

	now := s.clock.Now()
	store := s.store()

	req, err := store.GetMealRequestBySlot(ctx, database.GetMealRequestBySlotParams{
		EmployeeID: actor.UserID,
		MealType:   mealType,
		Date:       toPgDate(s.policy.Tomorrow(now)),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, ErrNoBookingTomorrow
		}
		return database.MealRequest{}, fmt.Errorf("get tomorrow's booking: %w", err)
	}

	next, err := lifecycle.Transition(lifecycle.Status(req.Status), lifecycle.EventCancel)
	if err != nil {
		return database.MealRequest{}, err
	}
	if err := s.policy.CheckCancel(req.Date.Time, now); err != nil {
		return database.MealRequest{}, err
	}

	cancelled, err := store.UpdateMealRequestStatus(ctx, database.UpdateMealRequestStatusParams{
		ID:             req.ID,
		Status:         string(next),
		ExpectedStatus: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MealRequest{}, s.lostRace(ctx, store, req.ID, lifecycle.EventCancel)
		}
		return database.MealRequest{}, fmt.Errorf("cancel meal request: %w", err)
	}

	s.log.Info("meal booking cancelled", "request_id", req.ID, "employee_id", actor.UserID, "meal_type", mealType)
	return cancelled, nil
}

// lostRace explains why a conditional update matched no row: the request
// is gone, or another caller moved it first.
func (s *MealService) lostRace(ctx context.Context, store MealStore, id uuid.UUID, ev lifecycle.Event) error {
	cur, err := store.GetMealRequest(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("reload meal request: %w", err)
	}
	from := lifecycle.Status(cur.Status)
	if _, err := lifecycle.Transition(from, ev); err != nil {
		return err
	}
	return &lifecycle.TransitionError{From: from, Event: ev, Reason: "request changed while processing"}
}

// --- Helpers ---

func requireRole(actor Actor, role string) error {
	if actor.UserID == uuid.Nil || actor.Role != role {
		return ErrForbidden
	}
	return nil
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == slotConstraint
	}
	return false
}

// parseDate accepts a bare calendar date or an RFC 3339 timestamp and
// returns its UTC calendar day.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return lifecycle.CalendarDate(t), nil
}
