package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rmolina-dev/libris-backend/api/controllers"
	"github.com/rmolina-dev/libris-backend/api/middleware"
	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
	"github.com/rmolina-dev/libris-backend/internal/fines"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/reservations"
	"github.com/rmolina-dev/libris-backend/internal/settings"
	"github.com/rmolina-dev/libris-backend/pkg/config"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

// Deps carries every service the HTTP surface exposes.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Health       map[string]Pinger
	Metrics      http.Handler
	Circulation  circulation.Service
	Reservations reservations.Service
	Fines        fines.Service
	Catalog      catalog.Service
	Settings     settings.Service
	Ledger       ledger.Service
}

// Pinger is the dependency health-check surface.
type Pinger = controllers.Pinger

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		desk := middleware.RequireDesk(logg)

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", controllers.BorrowLoan(deps.Circulation, logg))
			r.With(desk).Get("/", controllers.ListOpenLoans(deps.Circulation, logg))
			r.With(desk).Get("/overdue", controllers.ListOverdueLoans(deps.Circulation, logg))
			r.Post("/{loanId}/renew", controllers.RenewLoan(deps.Circulation, logg))
			r.Post("/{loanId}/return-request", controllers.RequestLoanReturn(deps.Circulation, logg))
			r.With(desk).Post("/{loanId}/return", controllers.ReturnLoan(deps.Circulation, logg))
			r.With(desk).Post("/{loanId}/return-confirm", controllers.ConfirmLoanReturn(deps.Circulation, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(deps.Reservations, logg))
			r.With(desk).Get("/", controllers.ListReservationQueue(deps.Reservations, logg))
			r.Delete("/{reservationId}", controllers.CancelReservation(deps.Reservations, logg))
		})

		r.Route("/fines", func(r chi.Router) {
			r.With(desk).Get("/", controllers.ListPendingFines(deps.Fines, logg))
			r.With(desk).Post("/", controllers.AssessFine(deps.Fines, logg))
			r.With(desk).Post("/compute-overdue", controllers.ComputeOverdueFines(deps.Fines, logg))
			r.With(desk).Post("/{fineId}/pay", controllers.PayFine(deps.Fines, logg))
			r.With(desk).Post("/{fineId}/waive", controllers.WaiveFine(deps.Fines, logg))
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", controllers.ListItems(deps.Catalog, logg))
			r.Get("/{itemId}", controllers.GetItem(deps.Catalog, logg))
			r.With(desk).Post("/", controllers.AddItem(deps.Catalog, logg))
			r.With(desk).Patch("/{itemId}", controllers.UpdateItem(deps.Catalog, logg))
			r.With(desk).Post("/{itemId}/archive", controllers.ArchiveItem(deps.Catalog, logg))
			r.With(desk).Post("/{itemId}/unarchive", controllers.UnarchiveItem(deps.Catalog, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.With(desk).Get("/", controllers.GetSettings(deps.Settings, logg))
			r.With(desk).Patch("/", controllers.UpdateSettings(deps.Settings, logg))
		})

		r.With(desk).Get("/activities", controllers.ListActivities(deps.Ledger, logg))

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/loans", controllers.ListUserLoans(deps.Circulation, logg))
			r.Get("/reservations", controllers.ListUserReservations(deps.Reservations, logg))
			r.Get("/fines", controllers.ListUserFines(deps.Fines, logg))
			r.Get("/activities", controllers.ListUserActivities(deps.Ledger, logg))
		})
	})

	return r
}
