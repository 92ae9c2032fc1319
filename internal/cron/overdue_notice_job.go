package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/outbox/payloads"
)

type overdueLoanReader interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.Loan, error)
}

type policyReader interface {
	Get(ctx context.Context) (*models.LibrarySettings, error)
}

// OverdueNoticeJobParams configure the overdue notice job.
type OverdueNoticeJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Loans    overdueLoanReader
	Settings policyReader
	Outbox   outboxEmitter
}

// NewOverdueNoticeJob builds the job that notifies borrowers of overdue
// loans and the amount accrued so far.
func NewOverdueNoticeJob(params OverdueNoticeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan reader required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &overdueNoticeJob{
		logg:     params.Logger,
		db:       params.DB,
		loans:    params.Loans,
		settings: params.Settings,
		outbox:   params.Outbox,
		now:      time.Now,
	}, nil
}

type overdueNoticeJob struct {
	logg     *logger.Logger
	db       txRunner
	loans    overdueLoanReader
	settings policyReader
	outbox   outboxEmitter
	now      func() time.Time
}

func (j *overdueNoticeJob) Name() string { return "overdue-notice" }

func (j *overdueNoticeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	policy, err := j.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	loans, err := j.loans.ListOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("query overdue loans: %w", err)
	}

	var errs []error
	count := 0
	for i := range loans {
		loan := loans[i]
		days := int(now.Sub(loan.DueDate) / (24 * time.Hour))
		accrued := policy.OverdueFinePerDay.Mul(decimal.NewFromInt(int64(days)))
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoanOverdue,
				AggregateType: enums.AggregateLoan,
				AggregateID:   loan.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.LoanOverdueEvent{
					LoanID:        loan.ID,
					ItemID:        loan.ItemID,
					UserID:        loan.UserID,
					DueDate:       loan.DueDate,
					DaysOverdue:   days,
					AccruedAmount: accrued,
				},
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("emit overdue notice for loan %s: %w", loan.ID, err))
			continue
		}
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count, "failed": len(errs)})
	j.logg.Info(logCtx, "overdue notice loop complete")
	return multierr.Combine(errs...)
}
