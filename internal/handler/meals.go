package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mealbook/api/internal/database"
	"github.com/mealbook/api/internal/lifecycle"
	"github.com/mealbook/api/internal/middleware"
	"github.com/mealbook/api/internal/service"
)

// MealServicer defines the service methods needed by meal handlers.
// Satisfied by *service.MealService; narrow interface for testability.
type MealServicer interface {
	Book(ctx context.Context, actor service.Actor, selections []service.BookingSelection) ([]database.MealRequest, error)
	ListMine(ctx context.Context, actor service.Actor, days int) ([]database.MealRequest, error)
	RequestNow(ctx context.Context, actor service.Actor, activate bool, mealType string) ([]database.MealRequest, error)
	VerifyOTP(ctx context.Context, actor service.Actor, id uuid.UUID, otp string) (database.MealRequest, error)
	SelectPayment(ctx context.Context, actor service.Actor, id uuid.UUID, paymentType string) (database.MealRequest, error)
	CancelTomorrow(ctx context.Context, actor service.Actor, mealType string) (database.MealRequest, error)
	Dashboard(ctx context.Context, actor service.Actor) (*service.Dashboard, error)
	Respond(ctx context.Context, actor service.Actor, id uuid.UUID, action string) (database.MealRequest, error)
	Finalize(ctx context.Context, actor service.Actor, id uuid.UUID, issue bool) (database.MealRequest, error)
	Summary(ctx context.Context, actor service.Actor, date time.Time) (*service.DailySummary, error)
}

// MealHandler handles meal request endpoints.
type MealHandler struct {
	svc MealServicer
}

// NewMealHandler creates a new MealHandler.
func NewMealHandler(svc MealServicer) *MealHandler {
	return &MealHandler{svc: svc}
}

// RegisterEmployeeRoutes registers the employee endpoints. Expected to be
// mounted under /meals behind Authenticate and RequireRole(EMPLOYEE).
// verify wraps the OTP verification route, typically with a rate limiter.
func (h *MealHandler) RegisterEmployeeRoutes(r chi.Router, verify func(http.Handler) http.Handler) {
	if verify == nil {
		verify = func(next http.Handler) http.Handler { return next }
	}
	r.Post("/book", h.Book)
	r.Get("/mine", h.Mine)
	r.Post("/request-now", h.RequestNow)
	r.With(verify).Post("/verify-otp", h.VerifyOTP)
	r.Post("/select-payment", h.SelectPayment)
	r.Delete("/cancel-tomorrow", h.CancelTomorrow)
}

// RegisterCanteenRoutes registers the canteen endpoints. Expected to be
// mounted under /meals behind Authenticate and RequireRole(CANTEEN).
func (h *MealHandler) RegisterCanteenRoutes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/dashboard/queue", h.Queue)
	r.Patch("/respond", h.Respond)
	r.Patch("/finalize", h.Finalize)
	r.Get("/summary", h.Summary)
}

// --- Request / Response types ---

type bookRequest struct {
	Selections []bookSelection `json:"selections" validate:"required,min=1,dive"`
}

type bookSelection struct {
	MealType string   `json:"mealType" validate:"required,oneof=BREAKFAST LUNCH"`
	Dates    []string `json:"dates" validate:"required,min=1,dive,required"`
}

type requestNowRequest struct {
	Action   *bool  `json:"action" validate:"required"`
	MealType string `json:"mealType" validate:"omitempty,oneof=BREAKFAST LUNCH"`
}

type verifyOTPRequest struct {
	RequestID string `json:"requestId" validate:"required,uuid"`
	OTP       string `json:"otp" validate:"required,len=4,numeric"`
}

type selectPaymentRequest struct {
	RequestID   string `json:"requestId" validate:"required,uuid"`
	PaymentType string `json:"paymentType" validate:"required,oneof=PAY_NOW PAY_LATER"`
}

type cancelTomorrowRequest struct {
	MealType string `json:"mealType" validate:"required,oneof=BREAKFAST LUNCH"`
}

type respondRequest struct {
	RequestID string `json:"requestId" validate:"required,uuid"`
	Action    string `json:"action" validate:"required,oneof=ACCEPT REJECT"`
}

type finalizeRequest struct {
	RequestID string `json:"requestId" validate:"required,uuid"`
	Issue     *bool  `json:"issue" validate:"required"`
}

type mealRequestResponse struct {
	ID          uuid.UUID `json:"id"`
	EmployeeID  uuid.UUID `json:"employeeId"`
	MealType    string    `json:"mealType"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	OTP         *string   `json:"otp,omitempty"`
	PaymentType *string   `json:"paymentType"`
	Amount      *string   `json:"amount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type employeeResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// canteenRequestResponse is a request on the canteen dashboard. It never
// carries the code.
type canteenRequestResponse struct {
	mealRequestResponse
	Employee employeeResponse `json:"employee"`
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

type queueResponse struct {
	Date     string                   `json:"date"`
	MealType string                   `json:"mealType"`
	Active   []canteenRequestResponse `json:"active"`
	Verified []canteenRequestResponse `json:"verified"`
}

type paymentTotals struct {
	Count int64  `json:"count"`
	Total string `json:"total"`
}

type mealSummaryResponse struct {
	MealType string           `json:"mealType"`
	Counts   map[string]int64 `json:"counts"`
	PayNow   paymentTotals    `json:"payNow"`
	PayLater paymentTotals    `json:"payLater"`
}

type summaryResponse struct {
	Date  string                `json:"date"`
	Meals []mealSummaryResponse `json:"meals"`
}

// --- Employee handlers ---

// Book handles POST /meals/book.
func (h *MealHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	selections := make([]service.BookingSelection, len(req.Selections))
	for i, s := range req.Selections {
		selections[i] = service.BookingSelection{MealType: s.MealType, Dates: s.Dates}
	}

	reqs, err := h.svc.Book(r.Context(), actor, selections)
	if err != nil {
		writeServiceError(w, "book meals", err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: toMealResponses(reqs, true)})
}

// Mine handles GET /meals/mine?limit=N, where N is a number of days.
func (h *MealHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	days := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer", "code": codeValidation})
			return
		}
		days = n
	}

	reqs, err := h.svc.ListMine(r.Context(), actor, days)
	if err != nil {
		writeServiceError(w, "list meals", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponses(reqs, true)})
}

// RequestNow handles POST /meals/request-now.
func (h *MealHandler) RequestNow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req requestNowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	reqs, err := h.svc.RequestNow(r.Context(), actor, *req.Action, req.MealType)
	if err != nil {
		writeServiceError(w, "request meal", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponses(reqs, true)})
}

// VerifyOTP handles POST /meals/verify-otp.
func (h *MealHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req verifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, ok := parseRequestID(w, req.RequestID)
	if !ok {
		return
	}

	res, err := h.svc.VerifyOTP(r.Context(), actor, id, req.OTP)
	if err != nil {
		writeServiceError(w, "verify otp", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponse(res, true)})
}

// SelectPayment handles POST /meals/select-payment.
func (h *MealHandler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req selectPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, ok := parseRequestID(w, req.RequestID)
	if !ok {
		return
	}

	res, err := h.svc.SelectPayment(r.Context(), actor, id, req.PaymentType)
	if err != nil {
		writeServiceError(w, "select payment", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponse(res, true)})
}

// CancelTomorrow handles DELETE /meals/cancel-tomorrow.
func (h *MealHandler) CancelTomorrow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req cancelTomorrowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.svc.CancelTomorrow(r.Context(), actor, req.MealType)
	if err != nil {
		writeServiceError(w, "cancel meal", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponse(res, true)})
}

// --- Canteen handlers ---

// Dashboard handles GET /meals/dashboard.
func (h *MealHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Dashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(w, "load dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toCanteenResponses(d.Requests))
}

// Queue handles GET /meals/dashboard/queue.
func (h *MealHandler) Queue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Dashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(w, "load queue", err)
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Date:     d.Date.Format(dateLayout),
		MealType: d.MealType,
		Active:   toCanteenResponses(d.Active),
		Verified: toCanteenResponses(d.Verified),
	})
}

// Respond handles PATCH /meals/respond.
func (h *MealHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, ok := parseRequestID(w, req.RequestID)
	if !ok {
		return
	}

	res, err := h.svc.Respond(r.Context(), actor, id, req.Action)
	if err != nil {
		writeServiceError(w, "respond to meal request", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponse(res, false)})
}

// Finalize handles PATCH /meals/finalize.
func (h *MealHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, ok := parseRequestID(w, req.RequestID)
	if !ok {
		return
	}

	res, err := h.svc.Finalize(r.Context(), actor, id, *req.Issue)
	if err != nil {
		writeServiceError(w, "finalize meal request", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toMealResponse(res, false)})
}

// Summary handles GET /meals/summary?date=YYYY-MM-DD. Without date it
// reports today.
func (h *MealHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var date time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD", "code": codeValidation})
			return
		}
		date = d
	}

	sum, err := h.svc.Summary(r.Context(), actor, date)
	if err != nil {
		writeServiceError(w, "summarize meals", err)
		return
	}

	resp := summaryResponse{Date: sum.Date.Format(dateLayout), Meals: make([]mealSummaryResponse, len(sum.Meals))}
	for i, m := range sum.Meals {
		resp.Meals[i] = mealSummaryResponse{
			MealType: m.MealType,
			Counts:   m.Counts,
			PayNow:   paymentTotals{Count: m.PayNowCount, Total: m.PayNowTotal.StringFixed(2)},
			PayLater: paymentTotals{Count: m.PayLaterCount, Total: m.PayLaterTotal.StringFixed(2)},
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

const dateLayout = "2006-01-02"

const (
	codeValidation        = "VALIDATION_ERROR"
	codeDuplicateBooking  = "DUPLICATE_BOOKING"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeOTPMismatch       = "OTP_MISMATCH"
	codeUnauthorized      = "UNAUTHORIZED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeInternal          = "INTERNAL"
)

func actorFrom(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated", "code": codeUnauthorized})
		return service.Actor{}, false
	}
	return service.Actor{UserID: claims.UserID, Role: claims.Role}, true
}

func parseRequestID(w http.ResponseWriter, s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requestId must be a valid id", "code": codeValidation})
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps a MealService error onto the HTTP error payload.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var te *lifecycle.TransitionError
	switch {
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": codeValidation})
	case errors.Is(err, service.ErrDuplicateBooking):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": codeDuplicateBooking})
	case errors.As(err, &te):
		code := codeInvalidTransition
		if errors.Is(err, service.ErrOTPMismatch) {
			code = codeOTPMismatch
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  te.Error(),
			"code":   code,
			"status": string(te.From),
			"action": string(te.Event),
		})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error(), "code": codeForbidden})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "code": codeNotFound})
	default:
		slog.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error", "code": codeInternal})
	}
}

// toMealResponse renders a request. The one-time code is only shown to the
// employee who owns it.
func toMealResponse(m database.MealRequest, withOTP bool) mealRequestResponse {
	resp := mealRequestResponse{
		ID:          m.ID,
		EmployeeID:  m.EmployeeID,
		MealType:    m.MealType,
		Date:        m.Date.Time,
		Status:      m.Status,
		PaymentType: textPtr(m.PaymentType),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if withOTP {
		resp.OTP = textPtr(m.Otp)
	}
	if m.Amount.Valid {
		s := service.NumericToDecimal(m.Amount).StringFixed(2)
		resp.Amount = &s
	}
	return resp
}

func toMealResponses(reqs []database.MealRequest, withOTP bool) []mealRequestResponse {
	out := make([]mealRequestResponse, len(reqs))
	for i, m := range reqs {
		out[i] = toMealResponse(m, withOTP)
	}
	return out
}

func toCanteenResponses(entries []service.QueueEntry) []canteenRequestResponse {
	out := make([]canteenRequestResponse, len(entries))
	for i, e := range entries {
		out[i] = canteenRequestResponse{
			mealRequestResponse: toMealResponse(e.MealRequest, false),
			Employee: employeeResponse{
				ID:        e.EmployeeID,
				FirstName: e.FirstName,
				LastName:  e.LastName,
			},
		}
	}
	return out
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
