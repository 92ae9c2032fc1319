package settings

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
)

// Repository manages the singleton library_settings row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context) (*models.LibrarySettings, error)
	EnsureDefaults(ctx context.Context) (*models.LibrarySettings, error)
	Update(ctx context.Context, row *models.LibrarySettings) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context) (*models.LibrarySettings, error) {
	var row models.LibrarySettings
	err := r.db.WithContext(ctx).First(&row, "id = ?", models.SettingsRowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// EnsureDefaults inserts the default row when missing and returns the current values.
func (r *repository) EnsureDefaults(ctx context.Context) (*models.LibrarySettings, error) {
	row := defaultSettings()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx)
}

func (r *repository) Update(ctx context.Context, row *models.LibrarySettings) error {
	row.ID = models.SettingsRowID
	return r.db.WithContext(ctx).Save(row).Error
}

func defaultSettings() models.LibrarySettings {
	return models.LibrarySettings{
		ID:                    models.SettingsRowID,
		LoanDurationDays:      14,
		OverdueFinePerDay:     decimal.NewFromFloat(1.00),
		ReservationExpiryDays: 7,
		MaxRenewals:           0,
		MaxLoansBook:          5,
		MaxLoansDVD:           3,
		MaxLoansEquip:         2,
	}
}
