package fines

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// Repository is the data access surface for fine rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, fine *models.Fine) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Fine, error)
	HasPendingForLoan(ctx context.Context, loanID uuid.UUID) (bool, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]models.Fine, error)
	ListPending(ctx context.Context) ([]models.Fine, error)
	// Settle moves a fine out of PENDING. The WHERE guard rejects the update
	// when a concurrent settle already won.
	Settle(ctx context.Context, id uuid.UUID, status enums.FineStatus, settledAt time.Time, waivedBy *uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository wires the fine repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, fine *models.Fine) error {
	if fine.ID == uuid.Nil {
		fine.ID = uuid.New()
	}
	if fine.Status == "" {
		fine.Status = enums.FineStatusPending
	}
	return r.db.WithContext(ctx).Create(fine).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	err := r.db.WithContext(ctx).
		Preload("Loan").
		First(&fine, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *repository) HasPendingForLoan(ctx context.Context, loanID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("loan_id = ? AND status = ?", loanID, enums.FineStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]models.Fine, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if pendingOnly {
		query = query.Where("status = ?", enums.FineStatusPending)
	}
	var fines []models.Fine
	err := query.Order("created_at DESC").Find(&fines).Error
	return fines, err
}

func (r *repository) ListPending(ctx context.Context) ([]models.Fine, error) {
	var fines []models.Fine
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.FineStatusPending).
		Order("created_at ASC").
		Find(&fines).Error
	return fines, err
}

func (r *repository) Settle(ctx context.Context, id uuid.UUID, status enums.FineStatus, settledAt time.Time, waivedBy *uuid.UUID) (bool, error) {
	updates := map[string]any{
		"status":     status,
		"settled_at": settledAt,
	}
	if waivedBy != nil {
		updates["waived_by_id"] = *waivedBy
	}
	result := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("id = ? AND status = ?", id, enums.FineStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
