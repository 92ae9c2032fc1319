package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	"github.com/rmolina-dev/libris-backend/pkg/pagination"
)

// Service defines operations that record and list activity entries.
type Service interface {
	Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error)
	ListAll(ctx context.Context, params pagination.Params) ([]models.LedgerEntry, string, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data an activity entry requires.
type RecordEntryInput struct {
	UserID  *uuid.UUID
	Action  enums.LedgerAction
	Details string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error) {
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid ledger action %q", input.Action)
	}
	if strings.TrimSpace(input.Details) == "" {
		return nil, fmt.Errorf("ledger details are required")
	}
	if input.UserID != nil && *input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id must not be the zero uuid")
	}

	entry := &models.LedgerEntry{
		UserID:  input.UserID,
		Action:  input.Action,
		Details: input.Details,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	if userID == uuid.Nil {
		return nil, "", fmt.Errorf("user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.repo.ListByUserID(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, "", err
	}
	return trimPage(entries, params.Limit)
}

func (s *service) ListAll(ctx context.Context, params pagination.Params) ([]models.LedgerEntry, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.repo.List(ctx, params.Limit, cursor)
	if err != nil {
		return nil, "", err
	}
	return trimPage(entries, params.Limit)
}

func trimPage(entries []models.LedgerEntry, limit int) ([]models.LedgerEntry, string, error) {
	normalized := pagination.NormalizeLimit(limit)
	if len(entries) <= normalized {
		return entries, "", nil
	}
	entries = entries[:normalized]
	last := entries[len(entries)-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return entries, next, nil
}
