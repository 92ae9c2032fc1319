package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
)

// Repository is the data access surface for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindLiveByUserAndItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Reservation, error)
	QueueHead(ctx context.Context, itemID uuid.UUID, now time.Time) (*models.Reservation, error)
	ListLiveByItem(ctx context.Context, itemID uuid.UUID) ([]models.Reservation, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, liveOnly bool) ([]models.Reservation, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Reservation, error)
	Close(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository wires the reservation repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Item").
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindLiveByUserAndItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ? AND fulfilled = ?", userID, itemID, false).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// QueueHead returns the oldest live, unexpired reservation for the item.
func (r *repository) QueueHead(ctx context.Context, itemID uuid.UUID, now time.Time) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND fulfilled = ? AND expires_at > ?", itemID, false, now).
		Order("reserved_at ASC, id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListLiveByItem(ctx context.Context, itemID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND fulfilled = ?", itemID, false).
		Order("reserved_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID, liveOnly bool) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Preload("Item").
		Where("user_id = ?", userID)
	if liveOnly {
		query = query.Where("fulfilled = ?", false)
	}
	var rows []models.Reservation
	err := query.Order("reserved_at DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListExpired(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("fulfilled = ? AND expires_at <= ?", false, now).
		Order("expires_at ASC").
		Find(&rows).Error
	return rows, err
}

// Close flips the reservation to its terminal state. The WHERE guard makes the
// update race safe against a concurrent cancel or expiry sweep.
func (r *repository) Close(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND fulfilled = ?", id, false).
		Update("fulfilled", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
