package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// Repository manages persistence for library items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.LibraryItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LibraryItem, error)
	List(ctx context.Context, filter ListFilter) ([]models.LibraryItem, error)
	Update(ctx context.Context, item *models.LibraryItem) error
	// MarkBorrowed flips an item to BORROWED only when it is currently
	// AVAILABLE and not archived. The returned flag reports whether this
	// caller won the flip; losing means another borrow got there first.
	MarkBorrowed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Search          string
	Type            *enums.ItemType
	Status          *enums.ItemStatus
	IncludeArchived bool
	Limit           int
	Offset          int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an item repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.LibraryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LibraryItem, error) {
	var item models.LibraryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.LibraryItem, error) {
	query := r.db.WithContext(ctx).Model(&models.LibraryItem{})
	if !filter.IncludeArchived {
		query = query.Where("is_archived = ?", false)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []models.LibraryItem
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&items).Error
	return items, err
}

func (r *repository) Update(ctx context.Context, item *models.LibraryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) MarkBorrowed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.LibraryItem{}).
		Where("id = ? AND status = ? AND is_archived = ?", id, enums.ItemStatusAvailable, false).
		Update("status", enums.ItemStatusBorrowed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.LibraryItem{}).
		Where("id = ?", id).
		Update("status", enums.ItemStatusAvailable).Error
}

func (r *repository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return r.db.WithContext(ctx).Model(&models.LibraryItem{}).
		Where("id = ?", id).
		Update("is_archived", archived).Error
}
