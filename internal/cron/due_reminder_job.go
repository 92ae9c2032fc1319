package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dueLoanReader interface {
	ListDueBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error)
}

// DueReminderJobParams configure the due date reminder job.
type DueReminderJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Loans  dueLoanReader
	Outbox outboxEmitter
}

// NewDueReminderJob builds the job that reminds borrowers shortly before
// their due date.
func NewDueReminderJob(params DueReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &dueReminderJob{
		logg:   params.Logger,
		db:     params.DB,
		loans:  params.Loans,
		outbox: params.Outbox,
		now:    time.Now,
	}, nil
}

type dueReminderJob struct {
	logg   *logger.Logger
	db     txRunner
	loans  dueLoanReader
	outbox outboxEmitter
	now    func() time.Time
}

func (j *dueReminderJob) Name() string { return "due-reminder" }

func (j *dueReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	// Remind for loans due tomorrow, by calendar day.
	from := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	loans, err := j.loans.ListDueBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("query loans due soon: %w", err)
	}

	var errs []error
	count := 0
	for i := range loans {
		loan := loans[i]
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoanDueSoon,
				AggregateType: enums.AggregateLoan,
				AggregateID:   loan.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.LoanDueSoonEvent{
					LoanID:       loan.ID,
					ItemID:       loan.ItemID,
					UserID:       loan.UserID,
					DueDate:      loan.DueDate,
					DaysUntilDue: int(loan.DueDate.Truncate(24*time.Hour).Sub(now.Truncate(24*time.Hour)) / (24 * time.Hour)),
				},
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("emit due reminder for loan %s: %w", loan.ID, err))
			continue
		}
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count, "failed": len(errs)})
	j.logg.Info(logCtx, "due reminder loop complete")
	return multierr.Combine(errs...)
}
