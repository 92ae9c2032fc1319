package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// Repository manages persistence for loans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	GetOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Loan, error)
	HasOpenLoan(ctx context.Context, itemID uuid.UUID) (bool, error)
	HasOpenLoanByUser(ctx context.Context, itemID, userID uuid.UUID) (bool, error)
	CountOpenByUserAndType(ctx context.Context, userID uuid.UUID, itemType enums.ItemType) (int64, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, openOnly bool) ([]models.Loan, error)
	ListOpen(ctx context.Context) ([]models.Loan, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.Loan, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error)
	// Close stamps the return date only when the loan is still open. The
	// returned flag reports whether this caller closed it.
	Close(ctx context.Context, id uuid.UUID, returnedAt time.Time) (bool, error)
	// MarkReturnRequested records the member's return request when none is
	// pending yet.
	MarkReturnRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error)
	Renew(ctx context.Context, id uuid.UUID, newDueDate time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Item").
		First(&loan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

func (r *repository) GetOpenByItemID(ctx context.Context, itemID uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND return_date IS NULL", itemID).
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

func (r *repository) HasOpenLoan(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("item_id = ? AND return_date IS NULL", itemID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) HasOpenLoanByUser(ctx context.Context, itemID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("item_id = ? AND user_id = ? AND return_date IS NULL", itemID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountOpenByUserAndType(ctx context.Context, userID uuid.UUID, itemType enums.ItemType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Joins("JOIN library_items ON library_items.id = loans.item_id").
		Where("loans.user_id = ? AND loans.return_date IS NULL AND library_items.type = ?", userID, itemType).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID, openOnly bool) ([]models.Loan, error) {
	query := r.db.WithContext(ctx).
		Preload("Item").
		Where("user_id = ?", userID)
	if openOnly {
		query = query.Where("return_date IS NULL")
	}
	var loans []models.Loan
	err := query.Order("loan_date DESC").Find(&loans).Error
	return loans, err
}

func (r *repository) ListOpen(ctx context.Context) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Preload("Item").
		Where("return_date IS NULL").
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}

func (r *repository) ListOverdue(ctx context.Context, asOf time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("return_date IS NULL AND due_date < ?", asOf).
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}

func (r *repository) ListDueBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("return_date IS NULL AND due_date >= ? AND due_date < ?", from, to).
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}

func (r *repository) Close(ctx context.Context, id uuid.UUID, returnedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND return_date IS NULL", id).
		Update("return_date", returnedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkReturnRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND return_date IS NULL AND return_requested_at IS NULL", id).
		Update("return_requested_at", requestedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Renew(ctx context.Context, id uuid.UUID, newDueDate time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND return_date IS NULL", id).
		Updates(map[string]any{
			"due_date":      newDueDate,
			"renewal_count": gorm.Expr("renewal_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
