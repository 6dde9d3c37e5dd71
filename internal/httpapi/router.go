// Package httpapi is the JSON over HTTP transport for the funds service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/household-funds-ledger/internal/funds"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
)

func NewRouter(svc *funds.Service, accounts interfaces.AccountStore, m *metrics.Collector, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(svc)
	ah := NewAccountHandler(accounts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", m.Handler())

	// long-lived, so outside the request timeout
	r.Get("/requests/events", h.Events(logger))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", ah.List)
			r.Post("/", h.OpenAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ah.Get)
				r.Put("/", ah.Put)
				r.Get("/balance", ah.Balance)
				r.Patch("/balance", ah.ChangeBalance)
				r.Get("/history", h.History)
				r.Post("/transactions", h.AddTransaction)
			})
		})
		r.Get("/children", h.ListChildren)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/", h.ListRequests)
			r.Get("/pending", h.ListPending)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Post("/approve", h.Approve)
				r.Post("/reject", h.Reject)
				r.Post("/cancel", h.Cancel)
			})
		})
	})
	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
