package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/pkg/db"
	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	apperrors "github.com/rmolina-dev/libris-backend/pkg/errors"
)

// OpenLoanChecker reports whether an item currently has an open loan.
type OpenLoanChecker interface {
	HasOpenLoan(ctx context.Context, itemID uuid.UUID) (bool, error)
}

// Service manages the item catalog.
type Service interface {
	AddItem(ctx context.Context, actorID uuid.UUID, input AddItemInput) (*models.LibraryItem, error)
	UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.LibraryItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.LibraryItem, error)
	ListItems(ctx context.Context, filter ListFilter) ([]models.LibraryItem, error)
	ArchiveItem(ctx context.Context, actorID, id uuid.UUID) (*models.LibraryItem, error)
	UnarchiveItem(ctx context.Context, actorID, id uuid.UUID) (*models.LibraryItem, error)
}

// AddItemInput describes a new catalog entry.
type AddItemInput struct {
	Title    string          `json:"title" validate:"required"`
	Type     string          `json:"type" validate:"required"`
	Barcode  *string         `json:"barcode"`
	Location *string         `json:"location"`
	Metadata json.RawMessage `json:"metadata"`
}

// UpdateItemInput carries optional catalog field changes.
type UpdateItemInput struct {
	Title    *string         `json:"title"`
	Barcode  *string         `json:"barcode"`
	Location *string         `json:"location"`
	Metadata json.RawMessage `json:"metadata"`
}

// ServiceDeps wires the catalog service.
type ServiceDeps struct {
	DB     *db.Client
	Repo   Repository
	Ledger ledger.Repository
	Loans  OpenLoanChecker
}

type service struct {
	db     *db.Client
	repo   Repository
	ledger ledger.Repository
	loans  OpenLoanChecker
}

// NewService validates dependencies and returns the catalog service.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if deps.Loans == nil {
		return nil, fmt.Errorf("open loan checker required")
	}
	return &service{db: deps.DB, repo: deps.Repo, ledger: deps.Ledger, loans: deps.Loans}, nil
}

func (s *service) AddItem(ctx context.Context, actorID uuid.UUID, input AddItemInput) (*models.LibraryItem, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "title is required")
	}
	itemType, err := enums.ParseItemType(input.Type)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeValidation, err.Error())
	}

	item := &models.LibraryItem{
		Title:    title,
		Type:     itemType,
		Status:   enums.ItemStatusAvailable,
		Barcode:  input.Barcode,
		Location: input.Location,
		Metadata: input.Metadata,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			if db.IsUniqueViolation(err, "ux_library_items_barcode") {
				return apperrors.New(apperrors.CodeConflict, "an item with this barcode already exists")
			}
			return err
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &actorID,
			Action:  enums.LedgerActionItemAdded,
			Details: fmt.Sprintf("Added %s %q to the catalog", strings.ToLower(string(itemType)), title),
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.LibraryItem, error) {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "title must not be empty")
		}
		item.Title = title
	}
	if input.Barcode != nil {
		item.Barcode = input.Barcode
	}
	if input.Location != nil {
		item.Location = input.Location
	}
	if input.Metadata != nil {
		item.Metadata = input.Metadata
	}

	if err := s.repo.Update(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "ux_library_items_barcode") {
			return nil, apperrors.New(apperrors.CodeConflict, "an item with this barcode already exists")
		}
		return nil, err
	}
	return item, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*models.LibraryItem, error) {
	return s.mustGet(ctx, id)
}

func (s *service) ListItems(ctx context.Context, filter ListFilter) ([]models.LibraryItem, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) ArchiveItem(ctx context.Context, actorID, id uuid.UUID) (*models.LibraryItem, error) {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsArchived {
		return nil, apperrors.New(apperrors.CodeStateConflict, "item is already archived")
	}

	open, err := s.loans.HasOpenLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, apperrors.New(apperrors.CodeStateConflict, "item cannot be archived while on loan")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetArchived(ctx, id, true); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &actorID,
			Action:  enums.LedgerActionItemArchived,
			Details: fmt.Sprintf("Archived %q", item.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	item.IsArchived = true
	return item, nil
}

func (s *service) UnarchiveItem(ctx context.Context, actorID, id uuid.UUID) (*models.LibraryItem, error) {
	item, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsArchived {
		return nil, apperrors.New(apperrors.CodeStateConflict, "item is not archived")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetArchived(ctx, id, false); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &actorID,
			Action:  enums.LedgerActionItemUnarchived,
			Details: fmt.Sprintf("Restored %q to circulation", item.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	item.IsArchived = false
	return item, nil
}

func (s *service) mustGet(ctx context.Context, id uuid.UUID) (*models.LibraryItem, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "item id is required")
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "item not found")
	}
	return item, nil
}
