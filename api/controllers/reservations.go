package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/api/responses"
	"github.com/rmolina-dev/libris-backend/api/validators"
	"github.com/rmolina-dev/libris-backend/internal/reservations"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

type createReservationRequest struct {
	ItemID uuid.UUID  `json:"itemId" validate:"required"`
	UserID *uuid.UUID `json:"userId"`
}

// CreateReservation queues a member for an item. Staff may reserve on behalf
// of any member by setting userId.
func CreateReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		holderID := actorID
		if payload.UserID != nil {
			holderID = *payload.UserID
		}
		if holderID != actorID && !role.CanOperateDesk() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only reserve for themselves"))
			return
		}

		actor := reservations.Actor{UserID: actorID, Role: role}
		reservation, err := svc.Create(r.Context(), actor, holderID, payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

// CancelReservation closes a live reservation. The holder or staff may cancel.
func CancelReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservationID, err := parsePathID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Cancel(r.Context(), reservations.Actor{UserID: actorID, Role: role}, reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// ListReservationQueue returns the live queue for one item, oldest first.
func ListReservationQueue(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("itemId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "itemId query parameter is required"))
			return
		}
		itemID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid itemId"))
			return
		}

		queue, err := svc.ListQueue(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, queue)
	}
}

// ListUserReservations returns a member's reservations. Members see only
// their own.
func ListUserReservations(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
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
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only view their own reservations"))
			return
		}

		liveOnly := r.URL.Query().Get("live") == "true"
		list, err := svc.ListUserReservations(r.Context(), userID, liveOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
