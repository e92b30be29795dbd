package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
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

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockDB implements DB. Queries go through the store, never the pool.
type mockDB struct {
	tx *mockTx
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) { return m.tx, nil }
func (m *mockDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

// memStore is an in-memory MealStore that enforces the same conditional
// updates and slot uniqueness as the SQL queries.
type memStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]database.MealRequest
	users map[uuid.UUID]database.User
}

func newMemStore() *memStore {
	return &memStore{rows: map[uuid.UUID]database.MealRequest{}, users: map[uuid.UUID]database.User{}}
}

func (m *memStore) addUser(id uuid.UUID, firstName, lastName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = database.User{ID: id, FirstName: firstName, LastName: lastName}
}

func (m *memStore) CreateMealRequest(ctx context.Context, arg database.CreateMealRequestParams) (database.MealRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EmployeeID == arg.EmployeeID && r.MealType == arg.MealType && r.Date.Time.Equal(arg.Date.Time) {
			return database.MealRequest{}, &pgconn.PgError{Code: "23505", ConstraintName: slotConstraint}
		}
	}
	r := database.MealRequest{
		ID:         uuid.New(),
		EmployeeID: arg.EmployeeID,
		MealType:   arg.MealType,
		Date:       arg.Date,
		Status:     enum.MealStatusPending,
	}
	m.rows[r.ID] = r
	return r, nil
}

func (m *memStore) GetMealRequest(ctx context.Context, id uuid.UUID) (database.MealRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return database.MealRequest{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) GetMealRequestBySlot(ctx context.Context, arg database.GetMealRequestBySlotParams) (database.MealRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EmployeeID == arg.EmployeeID && r.MealType == arg.MealType && r.Date.Time.Equal(arg.Date.Time) {
			return r, nil
		}
	}
	return database.MealRequest{}, pgx.ErrNoRows
}

func (m *memStore) ListMealRequestsByEmployee(ctx context.Context, arg database.ListMealRequestsByEmployeeParams) ([]database.MealRequest, error) {
	return m.filter(func(r database.MealRequest) bool {
		return r.EmployeeID == arg.EmployeeID &&
			!r.Date.Time.Before(arg.StartDate.Time) && !r.Date.Time.After(arg.EndDate.Time)
	}), nil
}

// ListMealRequestsByDateAndType joins users like the SQL query: requests
// whose employee is unknown are dropped.
func (m *memStore) ListMealRequestsByDateAndType(ctx context.Context, arg database.ListMealRequestsByDateAndTypeParams) ([]database.ListMealRequestsByDateAndTypeRow, error) {
	reqs := m.filter(func(r database.MealRequest) bool {
		return r.MealType == arg.MealType && r.Date.Time.Equal(arg.Date.Time)
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.ListMealRequestsByDateAndTypeRow{}
	for _, r := range reqs {
		u, ok := m.users[r.EmployeeID]
		if !ok {
			continue
		}
		out = append(out, database.ListMealRequestsByDateAndTypeRow{MealRequest: r, FirstName: u.FirstName, LastName: u.LastName})
	}
	return out, nil
}

func (m *memStore) filter(keep func(database.MealRequest) bool) []database.MealRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.MealRequest{}
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Time.Equal(out[j].Date.Time) {
			return out[i].Date.Time.Before(out[j].Date.Time)
		}
		return out[i].MealType < out[j].MealType
	})
	return out
}

// update applies fn to the row when cond holds, else returns pgx.ErrNoRows.
func (m *memStore) update(id uuid.UUID, cond func(database.MealRequest) bool, fn func(*database.MealRequest)) (database.MealRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !cond(r) {
		return database.MealRequest{}, pgx.ErrNoRows
	}
	fn(&r)
	m.rows[id] = r
	return r, nil
}

func (m *memStore) UpdateMealRequestStatus(ctx context.Context, arg database.UpdateMealRequestStatusParams) (database.MealRequest, error) {
	return m.update(arg.ID,
		func(r database.MealRequest) bool { return r.Status == arg.ExpectedStatus },
		func(r *database.MealRequest) { r.Status = arg.Status })
}

func (m *memStore) AcceptMealRequest(ctx context.Context, arg database.AcceptMealRequestParams) (database.MealRequest, error) {
	return m.update(arg.ID,
		func(r database.MealRequest) bool { return r.Status == enum.MealStatusActive },
		func(r *database.MealRequest) { r.Status = enum.MealStatusAccepted; r.Otp = arg.Otp })
}

func (m *memStore) VerifyMealRequestOtp(ctx context.Context, arg database.VerifyMealRequestOtpParams) (database.MealRequest, error) {
	return m.update(arg.ID,
		func(r database.MealRequest) bool {
			return r.Status == enum.MealStatusAccepted && r.Otp.Valid && r.Otp.String == arg.Otp.String
		},
		func(r *database.MealRequest) { r.Status = enum.MealStatusOTPVerified; r.Otp = pgtype.Text{} })
}

func (m *memStore) SetMealRequestPayment(ctx context.Context, arg database.SetMealRequestPaymentParams) (database.MealRequest, error) {
	return m.update(arg.ID,
		func(r database.MealRequest) bool { return r.Status == enum.MealStatusOTPVerified },
		func(r *database.MealRequest) { r.PaymentType = arg.PaymentType; r.Amount = arg.Amount })
}

func (m *memStore) IssueMealRequest(ctx context.Context, id uuid.UUID) (database.MealRequest, error) {
	return m.update(id,
		func(r database.MealRequest) bool { return r.Status == enum.MealStatusOTPVerified && r.PaymentType.Valid },
		func(r *database.MealRequest) { r.Status = enum.MealStatusIssued })
}

func (m *memStore) SummarizeMealRequests(ctx context.Context, date pgtype.Date) ([]database.SummarizeMealRequestsRow, error) {
	type key struct{ mealType, status, payment string }
	agg := map[key]*database.SummarizeMealRequestsRow{}
	var order []key
	for _, r := range m.filter(func(r database.MealRequest) bool { return r.Date.Time.Equal(date.Time) }) {
		k := key{r.MealType, r.Status, r.PaymentType.String}
		row, ok := agg[k]
		if !ok {
			row = &database.SummarizeMealRequestsRow{MealType: k.mealType, Status: k.status, PaymentType: k.payment}
			agg[k] = row
			order = append(order, k)
		}
		row.RequestCount++
		row.TotalAmount = decimalToNumeric(NumericToDecimal(row.TotalAmount).Add(NumericToDecimal(r.Amount)))
	}
	out := make([]database.SummarizeMealRequestsRow, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out, nil
}

// staleStore serves one outdated snapshot from GetMealRequest, as if
// another caller updated the row between our read and our write.
type staleStore struct {
	*memStore
	stale *database.MealRequest
}

func (s *staleStore) GetMealRequest(ctx context.Context, id uuid.UUID) (database.MealRequest, error) {
	if s.stale != nil && s.stale.ID == id {
		r := *s.stale
		s.stale = nil
		return r, nil
	}
	return s.memStore.GetMealRequest(ctx, id)
}

// --- Helpers ---

// 2026-03-10 09:00 UTC, inside the breakfast window.
var testMorning = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *MealService
	store    *memStore
	clock    *clockwork.FakeClock
	employee Actor
	canteen  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	return newFixtureWithStore(t, store, store)
}

func newFixtureWithStore(t *testing.T, mem *memStore, store MealStore) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testMorning)
	svc := NewMealService(&mockDB{tx: &mockTx{}}, func(db database.DBTX) MealStore { return store }, Options{
		Clock:  clock,
		Policy: lifecycle.DefaultPolicy(),
		Prices: map[string]decimal.Decimal{
			enum.MealTypeBreakfast: decimal.NewFromInt(150),
			enum.MealTypeLunch:     decimal.NewFromInt(250),
		},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewCode: func() (string, error) { return "0427", nil },
	})
	f := &fixture{
		svc:      svc,
		store:    mem,
		clock:    clock,
		employee: Actor{UserID: uuid.New(), Role: enum.UserRoleEmployee},
		canteen:  Actor{UserID: uuid.New(), Role: enum.UserRoleCanteen},
	}
	mem.addUser(f.employee.UserID, "Nimal", "Perera")
	return f
}

func (f *fixture) book(t *testing.T, mealType string, dates ...string) []database.MealRequest {
	t.Helper()
	reqs, err := f.svc.Book(context.Background(), f.employee, []BookingSelection{{MealType: mealType, Dates: dates}})
	if err != nil {
		t.Fatalf("book %s %v: %v", mealType, dates, err)
	}
	return reqs
}

func (f *fixture) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	r, err := f.store.GetMealRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return r.Status
}

// activeBreakfast books and activates today's breakfast.
func (f *fixture) activeBreakfast(t *testing.T) database.MealRequest {
	t.Helper()
	req := f.book(t, enum.MealTypeBreakfast, "2026-03-10")[0]
	if _, err := f.svc.RequestNow(context.Background(), f.employee, true, ""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return req
}

// verifiedBreakfast walks today's breakfast up to OTP_VERIFIED.
func (f *fixture) verifiedBreakfast(t *testing.T) database.MealRequest {
	t.Helper()
	ctx := context.Background()
	req := f.activeBreakfast(t)
	if _, err := f.svc.Respond(ctx, f.canteen, req.ID, enum.RespondActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "0427"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return req
}

// --- Book ---

func TestBook_CreatesPendingRequests(t *testing.T) {
	f := newFixture(t)
	reqs, err := f.svc.Book(context.Background(), f.employee, []BookingSelection{
		{MealType: enum.MealTypeBreakfast, Dates: []string{"2026-03-10", "2026-03-11T00:00:00.000Z"}},
		{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-11"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	for _, r := range reqs {
		if r.Status != enum.MealStatusPending {
			t.Errorf("status: got %s, want PENDING", r.Status)
		}
		if r.EmployeeID != f.employee.UserID {
			t.Errorf("employee: got %s", r.EmployeeID)
		}
	}
	if got := reqs[1].Date.Time; !got.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date: got %v", got)
	}
}

func TestBook_DuplicateSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeLunch, "2026-03-12")

	_, err := f.svc.Book(context.Background(), f.employee, []BookingSelection{
		{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-12"}},
	})
	if !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("expected ErrDuplicateBooking, got %v", err)
	}
	var dup *DuplicateBookingError
	if !errors.As(err, &dup) || dup.MealType != enum.MealTypeLunch {
		t.Fatalf("expected DuplicateBookingError for LUNCH, got %v", err)
	}
	if dup.Error() != "LUNCH is already booked for 2026-03-12" {
		t.Errorf("message: got %q", dup.Error())
	}
}

func TestBook_DuplicateWithinRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), f.employee, []BookingSelection{
		{MealType: enum.MealTypeBreakfast, Dates: []string{"2026-03-12", "2026-03-12"}},
	})
	if !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("expected ErrDuplicateBooking, got %v", err)
	}
	if n := len(f.store.rows); n != 0 {
		t.Errorf("expected nothing stored, got %d rows", n)
	}
}

func TestBook_OtherEmployeeSameSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeLunch, "2026-03-12")

	other := Actor{UserID: uuid.New(), Role: enum.UserRoleEmployee}
	if _, err := f.svc.Book(context.Background(), other, []BookingSelection{
		{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-12"}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	tests := []struct {
		name string
		sel  []BookingSelection
		want error
	}{
		{"no selections", nil, ErrEmptySelections},
		{"bad meal type", []BookingSelection{{MealType: "DINNER", Dates: []string{"2026-03-10"}}}, ErrInvalidMealType},
		{"no dates", []BookingSelection{{MealType: enum.MealTypeLunch}}, ErrEmptyDates},
		{"unparseable date", []BookingSelection{{MealType: enum.MealTypeLunch, Dates: []string{"10/03/2026"}}}, ErrInvalidDate},
		{"yesterday", []BookingSelection{{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-09"}}}, ErrDateOutOfRange},
		{"past horizon", []BookingSelection{{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-20"}}}, ErrDateOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Book(context.Background(), f.employee, tt.sel)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation kind, got %v", err)
			}
		})
	}
}

func TestBook_LastHorizonDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeBreakfast, "2026-03-19")
}

func TestBook_CanteenForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), f.canteen, []BookingSelection{
		{MealType: enum.MealTypeLunch, Dates: []string{"2026-03-10"}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// --- ListMine ---

func TestListMine_LimitsDays(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeLunch, "2026-03-10", "2026-03-11", "2026-03-15")

	reqs, err := f.svc.ListMine(context.Background(), f.employee, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}

	all, err := f.svc.ListMine(context.Background(), f.employee, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 requests, got %d", len(all))
	}
}

// --- RequestNow ---

func TestRequestNow_ActivatesCurrentMeal(t *testing.T) {
	f := newFixture(t)
	req := f.book(t, enum.MealTypeBreakfast, "2026-03-10")[0]

	reqs, err := f.svc.RequestNow(context.Background(), f.employee, true, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Status != enum.MealStatusActive {
		t.Fatalf("expected one ACTIVE request, got %+v", reqs)
	}
	if f.status(t, req.ID) != enum.MealStatusActive {
		t.Error("stored status not ACTIVE")
	}
}

func TestRequestNow_PeekDoesNotActivate(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeBreakfast, "2026-03-10")

	reqs, err := f.svc.RequestNow(context.Background(), f.employee, false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Status != enum.MealStatusPending {
		t.Fatalf("expected one PENDING request, got %+v", reqs)
	}
}

func TestRequestNow_WindowClosed(t *testing.T) {
	f := newFixture(t)
	req := f.book(t, enum.MealTypeBreakfast, "2026-03-10")[0]
	f.clock.Advance(4 * time.Hour) // 13:00

	_, err := f.svc.RequestNow(context.Background(), f.employee, true, enum.MealTypeBreakfast)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.status(t, req.ID) != enum.MealStatusPending {
		t.Error("status changed on failed activation")
	}
}

func TestRequestNow_LunchAfterSwitch(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeLunch, "2026-03-10")
	f.clock.Advance(3 * time.Hour) // 12:00

	reqs, err := f.svc.RequestNow(context.Background(), f.employee, true, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reqs[0].Status != enum.MealStatusActive {
		t.Errorf("status: got %s", reqs[0].Status)
	}
}

func TestRequestNow_NoBooking(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestNow(context.Background(), f.employee, true, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestNow_AlreadyActive(t *testing.T) {
	f := newFixture(t)
	f.activeBreakfast(t)
	_, err := f.svc.RequestNow(context.Background(), f.employee, true, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// --- Respond ---

func TestRespond_AcceptIssuesCode(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)

	got, err := f.svc.Respond(context.Background(), f.canteen, req.ID, enum.RespondActionAccept)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enum.MealStatusAccepted || got.Otp.String != "0427" {
		t.Errorf("got status %s otp %q", got.Status, got.Otp.String)
	}
}

func TestRespond_RejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)
	ctx := context.Background()

	if _, err := f.svc.Respond(ctx, f.canteen, req.ID, enum.RespondActionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := f.svc.Respond(ctx, f.canteen, req.ID, enum.RespondActionAccept)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.status(t, req.ID) != enum.MealStatusRejected {
		t.Error("status should stay REJECTED")
	}
}

func TestRespond_PendingCannotBeAccepted(t *testing.T) {
	f := newFixture(t)
	req := f.book(t, enum.MealTypeBreakfast, "2026-03-10")[0]
	_, err := f.svc.Respond(context.Background(), f.canteen, req.ID, enum.RespondActionAccept)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRespond_Errors(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)
	ctx := context.Background()

	if _, err := f.svc.Respond(ctx, f.employee, req.ID, enum.RespondActionAccept); !errors.Is(err, ErrForbidden) {
		t.Errorf("employee: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, f.canteen, req.ID, "MAYBE"); !errors.Is(err, ErrValidation) {
		t.Errorf("action: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.Respond(ctx, f.canteen, uuid.New(), enum.RespondActionAccept); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestRespond_OnlyCurrentMeal(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		action  string
		reason  string
	}{
		{"next morning", 24 * time.Hour, enum.RespondActionAccept, "only today's requests"},
		{"after breakfast window", 4 * time.Hour, enum.RespondActionReject, "before 12:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.activeBreakfast(t)
			f.clock.Advance(tt.advance)

			_, err := f.svc.Respond(context.Background(), f.canteen, req.ID, tt.action)
			var te *lifecycle.TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransitionError, got %v", err)
			}
			if te.From != lifecycle.StatusActive {
				t.Errorf("from: got %s, want ACTIVE", te.From)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("message: got %q, want it to contain %q", err.Error(), tt.reason)
			}
			if got := f.status(t, req.ID); got != enum.MealStatusActive {
				t.Errorf("status: got %s, want ACTIVE", got)
			}
		})
	}
}

func TestRespond_ConcurrentAcceptOneWins(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Respond(context.Background(), f.canteen, req.ID, enum.RespondActionAccept)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, ErrInvalidTransition):
			t.Errorf("loser: expected ErrInvalidTransition, got %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
}

func TestRespond_LostRaceReportsCurrentStatus(t *testing.T) {
	mem := newMemStore()
	store := &staleStore{memStore: mem}
	f := newFixtureWithStore(t, mem, store)
	req := f.activeBreakfast(t)

	// Another canteen terminal rejects first; our read still sees ACTIVE.
	snapshot, _ := mem.GetMealRequest(context.Background(), req.ID)
	store.stale = &snapshot
	if _, err := mem.UpdateMealRequestStatus(context.Background(), database.UpdateMealRequestStatusParams{
		ID: req.ID, Status: enum.MealStatusRejected, ExpectedStatus: enum.MealStatusActive,
	}); err != nil {
		t.Fatalf("setup reject: %v", err)
	}

	_, err := f.svc.Respond(context.Background(), f.canteen, req.ID, enum.RespondActionAccept)
	var te *lifecycle.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != lifecycle.StatusRejected {
		t.Errorf("from: got %s, want REJECTED", te.From)
	}
}

// --- VerifyOTP ---

func TestVerifyOTP_WrongThenRight(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)
	ctx := context.Background()
	if _, err := f.svc.Respond(ctx, f.canteen, req.ID, enum.RespondActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	_, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "1111")
	if !errors.Is(err, ErrOTPMismatch) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}
	if f.status(t, req.ID) != enum.MealStatusAccepted {
		t.Fatal("mismatch must leave status ACCEPTED")
	}

	got, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "0427")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enum.MealStatusOTPVerified {
		t.Errorf("status: got %s", got.Status)
	}
	if got.Otp.Valid {
		t.Error("otp should be cleared after verification")
	}
}

func TestVerifyOTP_Errors(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)
	ctx := context.Background()

	if _, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "0427"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("before accept: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "42"); !errors.Is(err, ErrValidation) {
		t.Errorf("short code: expected ErrValidation, got %v", err)
	}
	stranger := Actor{UserID: uuid.New(), Role: enum.UserRoleEmployee}
	if _, err := f.svc.VerifyOTP(ctx, stranger, req.ID, "0427"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other employee: expected ErrNotFound, got %v", err)
	}
}

// --- SelectPayment / Finalize ---

func TestFinalize_IssueRequiresPayment(t *testing.T) {
	f := newFixture(t)
	req := f.verifiedBreakfast(t)

	_, err := f.svc.Finalize(context.Background(), f.canteen, req.ID, true)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.status(t, req.ID) != enum.MealStatusOTPVerified {
		t.Error("status should stay OTP_VERIFIED")
	}
}

func TestSelectPayment_SnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	req := f.verifiedBreakfast(t)

	got, err := f.svc.SelectPayment(context.Background(), f.employee, req.ID, enum.PaymentTypePayNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PaymentType.String != enum.PaymentTypePayNow {
		t.Errorf("payment type: got %s", got.PaymentType.String)
	}
	if amt := NumericToDecimal(got.Amount); !amt.Equal(decimal.NewFromInt(150)) {
		t.Errorf("amount: got %s, want 150", amt)
	}
}

func TestSelectPayment_Errors(t *testing.T) {
	f := newFixture(t)
	req := f.activeBreakfast(t)
	ctx := context.Background()

	if _, err := f.svc.SelectPayment(ctx, f.employee, req.ID, "CASH"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad type: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.SelectPayment(ctx, f.employee, req.ID, enum.PaymentTypePayNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("not verified: expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinalize_Deny(t *testing.T) {
	f := newFixture(t)
	req := f.verifiedBreakfast(t)

	got, err := f.svc.Finalize(context.Background(), f.canteen, req.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != enum.MealStatusRejected {
		t.Errorf("status: got %s, want REJECTED", got.Status)
	}
}

func TestMealLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.book(t, enum.MealTypeBreakfast, "2026-03-10")[0]
	if _, err := f.svc.RequestNow(ctx, f.employee, true, ""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.svc.Respond(ctx, f.canteen, req.ID, enum.RespondActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, f.employee, req.ID, "0427"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := f.svc.SelectPayment(ctx, f.employee, req.ID, enum.PaymentTypePayLater); err != nil {
		t.Fatalf("payment: %v", err)
	}
	got, err := f.svc.Finalize(ctx, f.canteen, req.ID, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.Status != enum.MealStatusIssued {
		t.Fatalf("status: got %s, want ISSUED", got.Status)
	}

	if _, err := f.svc.Finalize(ctx, f.canteen, req.ID, false); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ISSUED must be terminal, got %v", err)
	}

	sum, err := f.svc.Summary(ctx, f.canteen, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	breakfast := sum.Meals[0]
	if breakfast.Counts[enum.MealStatusIssued] != 1 {
		t.Errorf("issued count: got %d", breakfast.Counts[enum.MealStatusIssued])
	}
	if breakfast.PayLaterCount != 1 || !breakfast.PayLaterTotal.Equal(decimal.NewFromInt(150)) {
		t.Errorf("pay later: got %d / %s", breakfast.PayLaterCount, breakfast.PayLaterTotal)
	}
	if !breakfast.PayNowTotal.IsZero() {
		t.Errorf("pay now total: got %s", breakfast.PayNowTotal)
	}
}

// --- CancelTomorrow ---

func TestCancelTomorrow_Deadline(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		wantErr  bool
		deadline bool
	}{
		{"11:59", 2*time.Hour + 59*time.Minute, false, false},
		{"12:00", 3 * time.Hour, true, true},
		{"12:01", 3*time.Hour + time.Minute, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.book(t, enum.MealTypeLunch, "2026-03-11")[0]
			f.clock.Advance(tt.advance)

			got, err := f.svc.CancelTomorrow(context.Background(), f.employee, enum.MealTypeLunch)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Status != enum.MealStatusCancelled {
					t.Errorf("status: got %s", got.Status)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if tt.deadline && !errors.Is(err, ErrCancellationDeadline) {
				t.Errorf("expected ErrCancellationDeadline, got %v", err)
			}
			if f.status(t, req.ID) != enum.MealStatusPending {
				t.Error("status should stay PENDING")
			}
		})
	}
}

func TestCancelTomorrow_NoBooking(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeLunch, "2026-03-12")
	_, err := f.svc.CancelTomorrow(context.Background(), f.employee, enum.MealTypeLunch)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelTomorrow_Twice(t *testing.T) {
	f := newFixture(t)
	f.book(t, enum.MealTypeBreakfast, "2026-03-11")
	ctx := context.Background()
	if _, err := f.svc.CancelTomorrow(ctx, f.employee, enum.MealTypeBreakfast); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := f.svc.CancelTomorrow(ctx, f.employee, enum.MealTypeBreakfast); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// --- Dashboard ---

func TestDashboard_SplitsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verified := f.verifiedBreakfast(t)

	other := Actor{UserID: uuid.New(), Role: enum.UserRoleEmployee}
	f.store.addUser(other.UserID, "Kamala", "Silva")
	if _, err := f.svc.Book(ctx, other, []BookingSelection{{MealType: enum.MealTypeBreakfast, Dates: []string{"2026-03-10"}}}); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.RequestNow(ctx, other, true, ""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.book(t, enum.MealTypeLunch, "2026-03-10")

	d, err := f.svc.Dashboard(ctx, f.canteen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.MealType != enum.MealTypeBreakfast {
		t.Errorf("meal type: got %s", d.MealType)
	}
	if len(d.Requests) != 2 {
		t.Errorf("requests: got %d, want 2", len(d.Requests))
	}
	if len(d.Active) != 1 || d.Active[0].EmployeeID != other.UserID {
		t.Fatalf("active: got %+v", d.Active)
	}
	if d.Active[0].FirstName != "Kamala" || d.Active[0].LastName != "Silva" {
		t.Errorf("active employee name: got %s %s", d.Active[0].FirstName, d.Active[0].LastName)
	}
	if len(d.Verified) != 1 || d.Verified[0].ID != verified.ID {
		t.Fatalf("verified: got %+v", d.Verified)
	}
	if d.Verified[0].FirstName != "Nimal" {
		t.Errorf("verified employee name: got %s", d.Verified[0].FirstName)
	}

	if _, err := f.svc.Dashboard(ctx, f.employee); !errors.Is(err, ErrForbidden) {
		t.Errorf("employee: expected ErrForbidden, got %v", err)
	}
}
