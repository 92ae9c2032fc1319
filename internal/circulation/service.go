package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/settings"
	"github.com/rmolina-dev/libris-backend/internal/users"
	"github.com/rmolina-dev/libris-backend/pkg/db"
	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	apperrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
	"github.com/rmolina-dev/libris-backend/pkg/metrics"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/outbox/payloads"
)

// Actor identifies the authenticated caller of a desk operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// ReservationNotifier runs the queue fulfillment check after a return commits.
type ReservationNotifier interface {
	CheckAndFulfill(ctx context.Context, itemID uuid.UUID) error
}

// Service is the loan lifecycle engine.
type Service interface {
	Borrow(ctx context.Context, actor Actor, userID, itemID uuid.UUID) (*models.Loan, error)
	Return(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error)
	Renew(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error)
	RequestReturn(ctx context.Context, requesterID, loanID uuid.UUID) (*models.Loan, error)
	ConfirmReturn(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	ListUserLoans(ctx context.Context, userID uuid.UUID, openOnly bool) ([]models.Loan, error)
	ListOpenLoans(ctx context.Context) ([]models.Loan, error)
	ListOverdueLoans(ctx context.Context) ([]models.Loan, error)
}

// ServiceDeps wires the circulation service.
type ServiceDeps struct {
	DB           *db.Client
	Loans        Repository
	Items        catalog.Repository
	Users        users.Repository
	Settings     settings.Service
	Ledger       ledger.Repository
	Outbox       *outbox.Service
	Reservations ReservationNotifier
	Metrics      *metrics.CirculationMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	db           *db.Client
	loans        Repository
	items        catalog.Repository
	users        users.Repository
	settings     settings.Service
	ledger       ledger.Repository
	outbox       *outbox.Service
	reservations ReservationNotifier
	metrics      *metrics.CirculationMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService validates dependencies and returns the circulation service.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if deps.Loans == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if deps.Items == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository required")
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
		db:           deps.DB,
		loans:        deps.Loans,
		items:        deps.Items,
		users:        deps.Users,
		settings:     deps.Settings,
		ledger:       deps.Ledger,
		outbox:       deps.Outbox,
		reservations: deps.Reservations,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
		now:          now,
	}, nil
}

func (s *service) Borrow(ctx context.Context, actor Actor, userID, itemID uuid.UUID) (*models.Loan, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id and item id are required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if !user.IsActive {
		return nil, apperrors.New(apperrors.CodeForbidden, "user account is inactive")
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "item not found")
	}
	if item.IsArchived {
		return nil, s.rejectBorrow(apperrors.New(apperrors.CodeStateConflict, "item is archived"))
	}
	if item.Status != enums.ItemStatusAvailable {
		return nil, s.rejectBorrow(apperrors.New(apperrors.CodeStateConflict, "item is not available"))
	}

	policy, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if limit := settings.BorrowCapFor(policy, item.Type); limit > 0 {
		open, err := s.loans.CountOpenByUserAndType(ctx, userID, item.Type)
		if err != nil {
			return nil, err
		}
		if open >= int64(limit) {
			return nil, s.rejectBorrow(apperrors.New(apperrors.CodeConflict,
				fmt.Sprintf("borrow limit of %d reached for %s items", limit, item.Type)))
		}
	}

	now := s.now()
	loan := &models.Loan{
		ItemID:   itemID,
		UserID:   userID,
		LoanDate: now,
		DueDate:  now.Add(time.Duration(policy.LoanDurationDays) * 24 * time.Hour),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		// The conditional flip is the serialization point for concurrent
		// borrows of the same copy.
		won, err := s.items.WithTx(tx).MarkBorrowed(ctx, itemID)
		if err != nil {
			return err
		}
		if !won {
			return apperrors.New(apperrors.CodeStateConflict, "item is not available")
		}
		if err := s.loans.WithTx(tx).Create(ctx, loan); err != nil {
			if db.IsUniqueViolation(err, "ux_loans_item_open") {
				return apperrors.New(apperrors.CodeStateConflict, "item is not available")
			}
			return err
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &userID,
			Action:  enums.LedgerActionLoanCreated,
			Details: fmt.Sprintf("Borrowed %q, due %s", item.Title, loan.DueDate.Format("2006-01-02")),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanCreated,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Actor:         s.actorRef(actor),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.LoanCreatedEvent{
				LoanID:   loan.ID,
				ItemID:   itemID,
				UserID:   userID,
				DueDate:  loan.DueDate,
				LoanDate: loan.LoanDate,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncLoanOperation("borrow", "success")
	return loan, nil
}

func (s *service) Return(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.mustGetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return s.closeLoan(ctx, actor, loan)
}

// RequestReturn records a member's intent to return; the loan stays open and
// the item stays BORROWED until staff confirms at the desk.
func (s *service) RequestReturn(ctx context.Context, requesterID, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.mustGetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.UserID != requesterID {
		return nil, apperrors.New(apperrors.CodeForbidden, "only the borrower can request a return")
	}
	if !loan.IsOpen() {
		return nil, apperrors.New(apperrors.CodeStateConflict, "loan is already closed")
	}

	now := s.now()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		marked, err := s.loans.WithTx(tx).MarkReturnRequested(ctx, loanID, now)
		if err != nil {
			return err
		}
		if !marked {
			return apperrors.New(apperrors.CodeStateConflict, "a return request is already pending")
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &loan.UserID,
			Action:  enums.LedgerActionReturnRequested,
			Details: fmt.Sprintf("Requested return of %s", loanItemTitle(loan)),
		})
	})
	if err != nil {
		return nil, err
	}
	loan.ReturnRequestedAt = &now
	return loan, nil
}

func (s *service) ConfirmReturn(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.mustGetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.ReturnRequestedAt == nil {
		return nil, apperrors.New(apperrors.CodeStateConflict, "no return request is pending for this loan")
	}
	return s.closeLoan(ctx, actor, loan)
}

func (s *service) Renew(ctx context.Context, actor Actor, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.mustGetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		s.metrics.IncLoanOperation("renew", "rejected")
		return nil, apperrors.New(apperrors.CodeStateConflict, "loan is already closed")
	}

	policy, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if policy.MaxRenewals > 0 && loan.RenewalCount >= policy.MaxRenewals {
		s.metrics.IncLoanOperation("renew", "rejected")
		return nil, apperrors.New(apperrors.CodeStateConflict,
			fmt.Sprintf("loan has reached the renewal limit of %d", policy.MaxRenewals))
	}

	// Renewals stack: the new due date extends the current one, not now.
	newDue := loan.DueDate.Add(time.Duration(policy.LoanDurationDays) * 24 * time.Hour)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		renewed, err := s.loans.WithTx(tx).Renew(ctx, loanID, newDue)
		if err != nil {
			return err
		}
		if !renewed {
			return apperrors.New(apperrors.CodeStateConflict, "loan is already closed")
		}
		return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &loan.UserID,
			Action:  enums.LedgerActionLoanRenewed,
			Details: fmt.Sprintf("Renewed %s, now due %s", loanItemTitle(loan), newDue.Format("2006-01-02")),
		})
	})
	if err != nil {
		return nil, err
	}

	loan.DueDate = newDue
	loan.RenewalCount++
	s.metrics.IncLoanOperation("renew", "success")
	return loan, nil
}

func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return s.mustGetLoan(ctx, loanID)
}

func (s *service) ListUserLoans(ctx context.Context, userID uuid.UUID, openOnly bool) ([]models.Loan, error) {
	if userID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	return s.loans.ListByUserID(ctx, userID, openOnly)
}

func (s *service) ListOpenLoans(ctx context.Context) ([]models.Loan, error) {
	return s.loans.ListOpen(ctx)
}

func (s *service) ListOverdueLoans(ctx context.Context) ([]models.Loan, error) {
	return s.loans.ListOverdue(ctx, s.now().UTC())
}

// closeLoan performs the shared return path. Closing an already closed loan
// fails with a state conflict; the conditional update is the guard.
func (s *service) closeLoan(ctx context.Context, actor Actor, loan *models.Loan) (*models.Loan, error) {
	if !loan.IsOpen() {
		s.metrics.IncLoanOperation("return", "rejected")
		return nil, apperrors.New(apperrors.CodeStateConflict, "loan is already closed")
	}

	now := s.now()
	wasOverdue := now.After(loan.DueDate)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		closed, err := s.loans.WithTx(tx).Close(ctx, loan.ID, now)
		if err != nil {
			return err
		}
		if !closed {
			return apperrors.New(apperrors.CodeStateConflict, "loan is already closed")
		}
		if err := s.items.WithTx(tx).MarkAvailable(ctx, loan.ItemID); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &loan.UserID,
			Action:  enums.LedgerActionLoanReturned,
			Details: fmt.Sprintf("Returned %s", loanItemTitle(loan)),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanReturned,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Actor:         s.actorRef(actor),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.LoanReturnedEvent{
				LoanID:     loan.ID,
				ItemID:     loan.ItemID,
				UserID:     loan.UserID,
				ReturnDate: now,
				WasOverdue: wasOverdue,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	loan.ReturnDate = &now
	s.metrics.IncLoanOperation("return", "success")

	// The queue check runs after commit. It only notifies; another borrower
	// can still take the item first.
	if s.reservations != nil {
		if err := s.reservations.CheckAndFulfill(ctx, loan.ItemID); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "item_id", loan.ItemID.String()), "reservation fulfillment check failed", err)
		}
	}
	return loan, nil
}

func (s *service) mustGetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "loan id is required")
	}
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "loan not found")
	}
	return loan, nil
}

func (s *service) rejectBorrow(err error) error {
	s.metrics.IncLoanOperation("borrow", "rejected")
	return err
}

func (s *service) actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func loanItemTitle(loan *models.Loan) string {
	if loan.Item != nil {
		return fmt.Sprintf("%q", loan.Item.Title)
	}
	return "an item"
}
