package controllers

import (
	"net/http"
	"strings"

	"github.com/rmolina-dev/libris-backend/api/responses"
	"github.com/rmolina-dev/libris-backend/api/validators"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/pagination"
)

type activityPage struct {
	Entries    any    `json:"entries"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListActivities returns the full audit trail, newest first.
func ListActivities(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.ListAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, activityPage{Entries: entries, NextCursor: next})
	}
}

// ListUserActivities returns one member's audit trail. Members see only
// their own.
func ListUserActivities(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
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
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "members may only view their own activity"))
			return
		}

		params, err := paginationFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, activityPage{Entries: entries, NextCursor: next})
	}
}

func paginationFromQuery(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
