package controllers

import (
	"net/http"

	"github.com/rmolina-dev/libris-backend/api/responses"
	"github.com/rmolina-dev/libris-backend/api/validators"
	"github.com/rmolina-dev/libris-backend/internal/fines"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

// AssessFine creates a manual fine for a damaged or lost item.
func AssessFine(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload fines.AssessFineInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := svc.Assess(r.Context(), fines.Actor{UserID: actorID, Role: role}, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fine)
	}
}

// PayFine marks a pending fine as paid.
func PayFine(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fineID, err := parsePathID(r, "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := svc.MarkPaid(r.Context(), fines.Actor{UserID: actorID, Role: role}, fineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fine)
	}
}

// WaiveFine forgives a pending fine and records who waived it.
func WaiveFine(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fineID, err := parsePathID(r, "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := svc.Waive(r.Context(), fines.Actor{UserID: actorID, Role: role}, fineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fine)
	}
}

// ComputeOverdueFines triggers the overdue sweep outside the cron schedule.
func ComputeOverdueFines(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assessed, err := svc.ComputeOverdueFines(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assessed)
	}
}

// ListPendingFines returns every pending fine for the desk view.
func ListPendingFines(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ListUserFines returns a member's fines. Members see only their own.
func ListUserFines(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := parsePathID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if userID != actorID && !role.CanOperateDesk() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only view their own fines"))
			return
		}

		pendingOnly := r.URL.Query().Get("pending") == "true"
		list, err := svc.ListUserFines(r.Context(), userID, pendingOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
