package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"library-circulation/internal/middleware"
)

// NewRouter wires every handler onto a chi router.
func NewRouter(svc Circulation, outbox Outbox, checks map[string]Check, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	index := NewIndexHandler(checks)
	users := NewUserHandler(svc)
	staff := NewStaffHandler(svc, outbox)
	catalog := NewCatalogHandler(svc)
	books := NewBooksHandler(svc)

	r.Get("/healthz", index.Live)
	r.Get("/readyz", index.Ready)

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", users.Reserve)
		r.Delete("/", users.CancelReservation)
	})

	r.Get("/users/{userID}/activity", users.ListActivity)

	r.Route("/branches/{branchID}", func(r chi.Router) {
		r.Get("/reservations", staff.ShowReservations)
		r.Get("/loans", staff.ShowLoans)
		r.Post("/loans", staff.MarkAsLoan)
		r.Post("/loans/return", staff.ReturnLoan)
		r.Get("/overdue", staff.ShowOverdue)
	})

	r.Route("/books/{bookID}/branches/{branchID}", func(r chi.Router) {
		r.Get("/availability", books.ShowAvailability)
		r.Post("/", catalog.AddBranch)
		r.Delete("/", catalog.RemoveBranch)
		r.Post("/copies/increment", catalog.IncrementCopies)
		r.Post("/copies/decrement", catalog.DecrementCopies)
	})

	r.Route("/outbox/tasks", func(r chi.Router) {
		r.Get("/", staff.ListTasks)
		r.Post("/{taskID}/requeue", staff.RequeueTask)
	})

	return r
}
