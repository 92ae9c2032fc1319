package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	return r.page(query, limit, cursor)
}

func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	return r.page(r.db.WithContext(ctx), limit, cursor)
}

func (r *repository) page(query *gorm.DB, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var entries []models.LedgerEntry
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
