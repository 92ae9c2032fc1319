package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/api/responses"
	"github.com/rmolina-dev/libris-backend/api/validators"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

type borrowRequest struct {
	ItemID uuid.UUID  `json:"itemId" validate:"required"`
	UserID *uuid.UUID `json:"userId"`
}

// BorrowLoan checks an item out. Members borrow for themselves; staff may
// borrow on behalf of any member by setting userId.
func BorrowLoan(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload borrowRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		borrowerID := actorID
		if payload.UserID != nil {
			borrowerID = *payload.UserID
		}
		if borrowerID != actorID && !role.CanOperateDesk() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only borrow for themselves"))
			return
		}

		actor := circulation.Actor{UserID: actorID, Role: role}
		loan, err := svc.Borrow(r.Context(), actor, borrowerID, payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

// ReturnLoan closes a loan at the desk.
func ReturnLoan(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := parsePathID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.Return(r.Context(), circulation.Actor{UserID: actorID, Role: role}, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// RenewLoan extends a loan's due date. Members may renew their own loans.
func RenewLoan(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := parsePathID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !role.CanOperateDesk() {
			loan, err := svc.GetLoan(r.Context(), loanID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if loan.UserID != actorID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only renew their own loans"))
				return
			}
		}

		loan, err := svc.Renew(r.Context(), circulation.Actor{UserID: actorID, Role: role}, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// RequestLoanReturn lets the borrower flag a loan for desk confirmation.
func RequestLoanReturn(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := parsePathID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.RequestReturn(r.Context(), actorID, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// ConfirmLoanReturn closes a loan whose return was requested remotely.
func ConfirmLoanReturn(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := parsePathID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.ConfirmReturn(r.Context(), circulation.Actor{UserID: actorID, Role: role}, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// ListOpenLoans returns every open loan for the desk view.
func ListOpenLoans(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loans, err := svc.ListOpenLoans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}

// ListOverdueLoans returns open loans past their due date.
func ListOverdueLoans(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loans, err := svc.ListOverdueLoans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}

// ListUserLoans returns a member's loans. Members see only their own.
func ListUserLoans(svc circulation.Service, logg *logger.Logger) http.HandlerFunc {
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
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only view their own loans"))
			return
		}

		openOnly := r.URL.Query().Get("open") == "true"
		loans, err := svc.ListUserLoans(r.Context(), userID, openOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}
