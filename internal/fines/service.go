package fines

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/settings"
	"github.com/rmolina-dev/libris-backend/pkg/db"
	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	apperrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/metrics"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/outbox/payloads"
)

// Actor identifies the authenticated caller of a settlement action.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// OverdueLoanSource lists open loans past their due date.
type OverdueLoanSource interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.Loan, error)
}

// AssessFineInput creates a fine outside the overdue sweep, for damaged or
// lost items.
type AssessFineInput struct {
	UserID uuid.UUID       `json:"userId" validate:"required"`
	LoanID *uuid.UUID      `json:"loanId"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required"`
}

// Service assesses and settles fines.
type Service interface {
	ComputeOverdueFines(ctx context.Context) ([]models.Fine, error)
	Assess(ctx context.Context, actor Actor, input AssessFineInput) (*models.Fine, error)
	MarkPaid(ctx context.Context, actor Actor, fineID uuid.UUID) (*models.Fine, error)
	Waive(ctx context.Context, actor Actor, fineID uuid.UUID) (*models.Fine, error)
	Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error)
	ListUserFines(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]models.Fine, error)
	ListPending(ctx context.Context) ([]models.Fine, error)
}

// ServiceDeps wires the fine service.
type ServiceDeps struct {
	DB       *db.Client
	Repo     Repository
	Loans    OverdueLoanSource
	Settings settings.Service
	Ledger   ledger.Repository
	Outbox   *outbox.Service
	Metrics  *metrics.CirculationMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	db       *db.Client
	repo     Repository
	loans    OverdueLoanSource
	settings settings.Service
	ledger   ledger.Repository
	outbox   *outbox.Service
	metrics  *metrics.CirculationMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates dependencies and returns the fine service.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("fine repository required")
	}
	if deps.Loans == nil {
		return nil, fmt.Errorf("loan source required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:       deps.DB,
		repo:     deps.Repo,
		loans:    deps.Loans,
		settings: deps.Settings,
		ledger:   deps.Ledger,
		outbox:   deps.Outbox,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      now,
	}, nil
}

// ComputeOverdueFines assesses one pending fine per overdue open loan and
// returns the fines created. Loans that already carry a pending fine are
// skipped, so the sweep is safe to rerun. A failure on one loan is logged
// and collected; the remaining loans are still swept.
func (s *service) ComputeOverdueFines(ctx context.Context) ([]models.Fine, error) {
	now := s.now()
	policy, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	rate := policy.OverdueFinePerDay
	if rate.IsZero() {
		return nil, nil
	}

	overdue, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	var errs []error
	assessed := make([]models.Fine, 0, len(overdue))
	for i := range overdue {
		loan := overdue[i]
		days := daysOverdue(loan.DueDate, now)
		if days <= 0 {
			continue
		}
		pending, err := s.repo.HasPendingForLoan(ctx, loan.ID)
		if err != nil {
			s.logSweepFailure(ctx, loan.ID, err)
			errs = append(errs, fmt.Errorf("check pending fine for loan %s: %w", loan.ID, err))
			continue
		}
		if pending {
			continue
		}
		fine, err := s.assessOverdue(ctx, &loan, days, rate, now)
		if err != nil {
			s.logSweepFailure(ctx, loan.ID, err)
			errs = append(errs, fmt.Errorf("assess fine for loan %s: %w", loan.ID, err))
			continue
		}
		if fine != nil {
			assessed = append(assessed, *fine)
		}
	}
	return assessed, multierr.Combine(errs...)
}

func (s *service) logSweepFailure(ctx context.Context, loanID uuid.UUID, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"loan_id": loanID})
	s.logg.Error(logCtx, "overdue fine sweep skipped loan", err)
}

// assessOverdue creates the fine for one loan. A nil fine with nil error
// means another sweep already assessed it.
func (s *service) assessOverdue(ctx context.Context, loan *models.Loan, days int, rate decimal.Decimal, now time.Time) (*models.Fine, error) {
	loanID := loan.ID
	fine := &models.Fine{
		UserID: loan.UserID,
		LoanID: &loanID,
		Amount: rate.Mul(decimal.NewFromInt(int64(days))),
		Status: enums.FineStatusPending,
		Reason: fmt.Sprintf("Overdue by %d day(s)", days),
	}

	duplicate := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, fine); err != nil {
			if db.IsUniqueViolation(err, "ux_fines_loan_pending") {
				duplicate = true
				return nil
			}
			return err
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &loan.UserID,
			Action:  enums.LedgerActionFineApplied,
			Details: fmt.Sprintf("Fine of %s assessed, %d day(s) overdue", fine.Amount.StringFixed(2), days),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFineAssessed,
			AggregateType: enums.AggregateFine,
			AggregateID:   fine.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.FineAssessedEvent{
				FineID: fine.ID,
				LoanID: fine.LoanID,
				UserID: fine.UserID,
				Amount: fine.Amount,
				Reason: fine.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, nil
	}
	s.metrics.IncFineTransition("assessed")
	return fine, nil
}

func (s *service) Assess(ctx context.Context, actor Actor, input AssessFineInput) (*models.Fine, error) {
	if input.UserID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if input.Reason == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "reason is required")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}

	now := s.now()
	fine := &models.Fine{
		UserID: input.UserID,
		LoanID: input.LoanID,
		Amount: input.Amount,
		Status: enums.FineStatusPending,
		Reason: input.Reason,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, fine); err != nil {
			if db.IsUniqueViolation(err, "ux_fines_loan_pending") {
				return apperrors.New(apperrors.CodeConflict, "loan already has a pending fine")
			}
			return err
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &input.UserID,
			Action:  enums.LedgerActionFineApplied,
			Details: fmt.Sprintf("Fine of %s assessed: %s", fine.Amount.StringFixed(2), fine.Reason),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFineAssessed,
			AggregateType: enums.AggregateFine,
			AggregateID:   fine.ID,
			Actor:         s.actorRef(actor),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.FineAssessedEvent{
				FineID: fine.ID,
				LoanID: fine.LoanID,
				UserID: fine.UserID,
				Amount: fine.Amount,
				Reason: fine.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncFineTransition("assessed")
	return fine, nil
}

func (s *service) MarkPaid(ctx context.Context, actor Actor, fineID uuid.UUID) (*models.Fine, error) {
	return s.settle(ctx, actor, fineID, enums.FineStatusPaid)
}

func (s *service) Waive(ctx context.Context, actor Actor, fineID uuid.UUID) (*models.Fine, error) {
	return s.settle(ctx, actor, fineID, enums.FineStatusWaived)
}

func (s *service) settle(ctx context.Context, actor Actor, fineID uuid.UUID, target enums.FineStatus) (*models.Fine, error) {
	fine, err := s.mustGet(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine.Status.IsTerminal() {
		return nil, apperrors.New(apperrors.CodeStateConflict,
			fmt.Sprintf("fine is already %s", fine.Status))
	}

	now := s.now()
	var waivedBy *uuid.UUID
	action := enums.LedgerActionFinePaid
	transition := "paid"
	if target == enums.FineStatusWaived {
		if actor.UserID == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "waiving requires an acting staff user")
		}
		waivedBy = &actor.UserID
		action = enums.LedgerActionFineWaived
		transition = "waived"
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		settled, err := s.repo.WithTx(tx).Settle(ctx, fineID, target, now, waivedBy)
		if err != nil {
			return err
		}
		if !settled {
			return apperrors.New(apperrors.CodeStateConflict, "fine is no longer pending")
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &fine.UserID,
			Action:  action,
			Details: fmt.Sprintf("Fine of %s %s", fine.Amount.StringFixed(2), transition),
		})
	})
	if err != nil {
		return nil, err
	}

	fine.Status = target
	fine.SettledAt = &now
	fine.WaivedByID = waivedBy
	s.metrics.IncFineTransition(transition)
	return fine, nil
}

func (s *service) Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	return s.mustGet(ctx, fineID)
}

func (s *service) ListUserFines(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]models.Fine, error) {
	if userID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUserID(ctx, userID, pendingOnly)
}

func (s *service) ListPending(ctx context.Context) ([]models.Fine, error) {
	return s.repo.ListPending(ctx)
}

func (s *service) mustGet(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	if fineID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "fine id is required")
	}
	fine, err := s.repo.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "fine not found")
	}
	return fine, nil
}

func (s *service) actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

// daysOverdue counts whole 24 hour periods past the due date.
func daysOverdue(dueDate, now time.Time) int {
	if !now.After(dueDate) {
		return 0
	}
	return int(now.Sub(dueDate) / (24 * time.Hour))
}
