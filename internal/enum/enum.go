package enum

// ── Group A: State machine (CHECK constrained in DB) ──

const (
	MealStatusPending     = "PENDING"
	MealStatusActive      = "ACTIVE"
	MealStatusAccepted    = "ACCEPTED"
	MealStatusRejected    = "REJECTED"
	MealStatusOTPVerified = "OTP_VERIFIED"
	MealStatusIssued      = "ISSUED"
	MealStatusCancelled   = "CANCELLED"
)

// ── Group B: Fixed domains (CHECK constrained in DB) ──

const (
	MealTypeBreakfast = "BREAKFAST"
	MealTypeLunch     = "LUNCH"
)

const (
	PaymentTypePayNow   = "PAY_NOW"
	PaymentTypePayLater = "PAY_LATER"
)

const (
	UserRoleEmployee = "EMPLOYEE"
	UserRoleCanteen  = "CANTEEN"
)

// ── Group C: Request actions (wire only, no DB constraint) ──

const (
	RespondActionAccept = "ACCEPT"
	RespondActionReject = "REJECT"
)

func IsMealType(s string) bool {
	return s == MealTypeBreakfast || s == MealTypeLunch
}

func IsPaymentType(s string) bool {
	return s == PaymentTypePayNow || s == PaymentTypePayLater
}

func IsUserRole(s string) bool {
	return s == UserRoleEmployee || s == UserRoleCanteen
}
