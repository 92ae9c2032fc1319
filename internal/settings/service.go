package settings

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	apperrors "github.com/rmolina-dev/libris-backend/pkg/errors"
)

// Service exposes circulation policy reads and staff updates.
type Service interface {
	Get(ctx context.Context) (*models.LibrarySettings, error)
	Update(ctx context.Context, input UpdateSettingsInput) (*models.LibrarySettings, error)
}

// UpdateSettingsInput carries optional overrides; nil fields keep current values.
type UpdateSettingsInput struct {
	LoanDurationDays      *int             `json:"loanDurationDays" validate:"omitempty,gt=0"`
	OverdueFinePerDay     *decimal.Decimal `json:"overdueFinePerDay"`
	ReservationExpiryDays *int             `json:"reservationExpiryDays" validate:"omitempty,gt=0"`
	MaxRenewals           *int             `json:"maxRenewals" validate:"omitempty,gte=0"`
	MaxLoansBook          *int             `json:"maxLoansBook" validate:"omitempty,gt=0"`
	MaxLoansDVD           *int             `json:"maxLoansDvd" validate:"omitempty,gt=0"`
	MaxLoansEquip         *int             `json:"maxLoansEquip" validate:"omitempty,gt=0"`
}

type service struct {
	repo Repository
}

// NewService wires the settings service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "settings repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context) (*models.LibrarySettings, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading library settings")
	}
	if row == nil {
		row, err = s.repo.EnsureDefaults(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "seeding library settings")
		}
	}
	return row, nil
}

func (s *service) Update(ctx context.Context, input UpdateSettingsInput) (*models.LibrarySettings, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if input.LoanDurationDays != nil {
		row.LoanDurationDays = *input.LoanDurationDays
	}
	if input.OverdueFinePerDay != nil {
		if input.OverdueFinePerDay.IsNegative() {
			return nil, apperrors.New(apperrors.CodeValidation, "overdue fine per day must not be negative")
		}
		row.OverdueFinePerDay = *input.OverdueFinePerDay
	}
	if input.ReservationExpiryDays != nil {
		row.ReservationExpiryDays = *input.ReservationExpiryDays
	}
	if input.MaxRenewals != nil {
		row.MaxRenewals = *input.MaxRenewals
	}
	if input.MaxLoansBook != nil {
		row.MaxLoansBook = *input.MaxLoansBook
	}
	if input.MaxLoansDVD != nil {
		row.MaxLoansDVD = *input.MaxLoansDVD
	}
	if input.MaxLoansEquip != nil {
		row.MaxLoansEquip = *input.MaxLoansEquip
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "updating library settings")
	}
	return row, nil
}

// BorrowCapFor returns the concurrent loan cap for the item type, zero meaning no cap.
func BorrowCapFor(row *models.LibrarySettings, itemType enums.ItemType) int {
	if row == nil {
		return 0
	}
	switch itemType {
	case enums.ItemTypeBook:
		return row.MaxLoansBook
	case enums.ItemTypeDVD:
		return row.MaxLoansDVD
	case enums.ItemTypeEquipment:
		return row.MaxLoansEquip
	default:
		return 0
	}
}
