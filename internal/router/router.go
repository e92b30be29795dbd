package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/mealbook/api/internal/config"
	"github.com/mealbook/api/internal/enum"
	"github.com/mealbook/api/internal/handler"
	"github.com/mealbook/api/internal/logger"
	mw "github.com/mealbook/api/internal/middleware"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, log *slog.Logger, users handler.AuthStore, meals handler.MealServicer) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTokenTTL)
	authHandler.RegisterRoutes(r)

	// Meal routes (authenticated, split by role)
	mealHandler := handler.NewMealHandler(meals)
	verifyLimiter := httprate.Limit(
		cfg.VerifyRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(mw.UserKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many verification attempts, try again shortly","code":"RATE_LIMITED"}`))
		}),
	)

	r.Route("/meals", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleEmployee))
			mealHandler.RegisterEmployeeRoutes(r, verifyLimiter)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleCanteen))
			mealHandler.RegisterCanteenRoutes(r)
		})
	})

	log.Info("router initialized")
	return r
}
