package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsRowID is the only allowed primary key for library_settings; the
// table holds a single row enforced with a check constraint.
const SettingsRowID = 1

// LibrarySettings holds library-wide circulation policy. Defaults here match
// the seed migration so a lazily created row behaves the same as a seeded one.
type LibrarySettings struct {
	ID                    int             `gorm:"column:id;primaryKey"`
	LoanDurationDays      int             `gorm:"column:loan_duration_days;not null;default:14"`
	OverdueFinePerDay     decimal.Decimal `gorm:"column:overdue_fine_per_day;type:numeric(12,2);not null;default:1.00"`
	ReservationExpiryDays int             `gorm:"column:reservation_expiry_days;not null;default:7"`
	// MaxRenewals of zero means unlimited renewals.
	MaxRenewals      int       `gorm:"column:max_renewals;not null;default:0"`
	MaxLoansBook     int       `gorm:"column:max_loans_book;not null;default:5"`
	MaxLoansDVD      int       `gorm:"column:max_loans_dvd;not null;default:3"`
	MaxLoansEquip    int       `gorm:"column:max_loans_equip;not null;default:2"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (LibrarySettings) TableName() string {
	return "library_settings"
}
