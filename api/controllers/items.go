package controllers

import (
	"net/http"
	"strings"

	"github.com/rmolina-dev/libris-backend/api/responses"
	"github.com/rmolina-dev/libris-backend/api/validators"
	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

const maxCatalogPageSize = 200

// AddItem registers a new catalog entry.
func AddItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload catalog.AddItemInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Title = validators.SanitizeString(payload.Title, validators.MaxTitleLen)
		payload.Barcode = validators.SanitizeOptional(payload.Barcode, validators.MaxLabelLen)
		payload.Location = validators.SanitizeOptional(payload.Location, validators.MaxLabelLen)

		item, err := svc.AddItem(r.Context(), actorID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// UpdateItem applies partial catalog field changes.
func UpdateItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload catalog.UpdateItemInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Barcode = validators.SanitizeOptional(payload.Barcode, validators.MaxLabelLen)
		payload.Location = validators.SanitizeOptional(payload.Location, validators.MaxLabelLen)

		item, err := svc.UpdateItem(r.Context(), itemID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// GetItem returns one catalog entry.
func GetItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ListItems returns catalog entries filtered by query parameters.
func ListItems(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := catalogFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListItems(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// ArchiveItem removes an item from circulation.
func ArchiveItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.ArchiveItem(r.Context(), actorID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// UnarchiveItem restores an archived item to circulation.
func UnarchiveItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UnarchiveItem(r.Context(), actorID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func catalogFilterFromQuery(r *http.Request) (catalog.ListFilter, error) {
	var filter catalog.ListFilter

	filter.Search = validators.SanitizeString(r.URL.Query().Get("search"), validators.MaxTitleLen)

	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		itemType, err := enums.ParseItemType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter")
		}
		filter.Type = &itemType
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseItemStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = &status
	}

	filter.IncludeArchived = r.URL.Query().Get("includeArchived") == "true"

	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, maxCatalogPageSize)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
	if err != nil {
		return filter, err
	}
	filter.Offset = offset

	return filter, nil
}
