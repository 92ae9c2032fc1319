package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
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
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
	"github.com/rmolina-dev/libris-backend/pkg/outbox/payloads"
)

// Actor identifies the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// LoanChecker reports whether a member already holds the item.
type LoanChecker interface {
	HasOpenLoanByUser(ctx context.Context, itemID, userID uuid.UUID) (bool, error)
}

// Service manages the per-item reservation queue. The queue is advisory: a
// returned item is not held for the head of the line, they are only notified
// first.
type Service interface {
	Create(ctx context.Context, actor Actor, userID, itemID uuid.UUID) (*models.Reservation, error)
	Cancel(ctx context.Context, actor Actor, reservationID uuid.UUID) (*models.Reservation, error)
	Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ListUserReservations(ctx context.Context, userID uuid.UUID, liveOnly bool) ([]models.Reservation, error)
	ListQueue(ctx context.Context, itemID uuid.UUID) ([]models.Reservation, error)
	CheckAndFulfill(ctx context.Context, itemID uuid.UUID) error
	ExpireDue(ctx context.Context) (int, error)
}

// ServiceDeps wires the reservation service.
type ServiceDeps struct {
	DB       *db.Client
	Repo     Repository
	Items    catalog.Repository
	Users    users.Repository
	Loans    LoanChecker
	Settings settings.Service
	Ledger   ledger.Repository
	Outbox   *outbox.Service
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	db       *db.Client
	repo     Repository
	items    catalog.Repository
	users    users.Repository
	loans    LoanChecker
	settings settings.Service
	ledger   ledger.Repository
	outbox   *outbox.Service
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates dependencies and returns the reservation service.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if deps.Items == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if deps.Loans == nil {
		return nil, fmt.Errorf("loan checker required")
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
		items:    deps.Items,
		users:    deps.Users,
		loans:    deps.Loans,
		settings: deps.Settings,
		ledger:   deps.Ledger,
		outbox:   deps.Outbox,
		logg:     deps.Logger,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, userID, itemID uuid.UUID) (*models.Reservation, error) {
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
		return nil, apperrors.New(apperrors.CodeStateConflict, "item is archived")
	}

	existing, err := s.repo.FindLiveByUserAndItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict, "user already has a reservation for this item")
	}

	holding, err := s.loans.HasOpenLoanByUser(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if holding {
		return nil, apperrors.New(apperrors.CodeConflict, "user already has this item on loan")
	}

	policy, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reservation := &models.Reservation{
		ItemID:     itemID,
		UserID:     userID,
		ReservedAt: now,
		ExpiresAt:  now.Add(time.Duration(policy.ReservationExpiryDays) * 24 * time.Hour),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
			if db.IsUniqueViolation(err, "ux_reservations_member_item_live") {
				return apperrors.New(apperrors.CodeConflict, "user already has a reservation for this item")
			}
			return err
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &userID,
			Action:  enums.LedgerActionReservationPlaced,
			Details: fmt.Sprintf("Reserved %q, expires %s", item.Title, reservation.ExpiresAt.Format("2006-01-02")),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationPlaced,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Actor:         s.actorRef(actor),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.ReservationPlacedEvent{
				ReservationID: reservation.ID,
				ItemID:        itemID,
				UserID:        userID,
				ExpiresAt:     reservation.ExpiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, reservationID uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.mustGet(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != actor.UserID && !actor.Role.CanOperateDesk() {
		return nil, apperrors.New(apperrors.CodeForbidden, "only the reservation holder or staff can cancel")
	}
	if reservation.Fulfilled {
		return nil, apperrors.New(apperrors.CodeStateConflict, "reservation is already closed")
	}

	now := s.now()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		closed, err := s.repo.WithTx(tx).Close(ctx, reservationID)
		if err != nil {
			return err
		}
		if !closed {
			return apperrors.New(apperrors.CodeStateConflict, "reservation is already closed")
		}
		if err := s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
			UserID:  &reservation.UserID,
			Action:  enums.LedgerActionReservationCancelled,
			Details: fmt.Sprintf("Cancelled reservation for %q", reservationItemTitle(reservation)),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationCancelled,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Actor:         s.actorRef(actor),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.ReservationCancelledEvent{
				ReservationID: reservation.ID,
				ItemID:        reservation.ItemID,
				UserID:        reservation.UserID,
				CancelledAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	reservation.Fulfilled = true
	return reservation, nil
}

func (s *service) Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	return s.mustGet(ctx, reservationID)
}

func (s *service) ListUserReservations(ctx context.Context, userID uuid.UUID, liveOnly bool) ([]models.Reservation, error) {
	if userID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUserID(ctx, userID, liveOnly)
}

func (s *service) ListQueue(ctx context.Context, itemID uuid.UUID) ([]models.Reservation, error) {
	if itemID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "item id is required")
	}
	return s.repo.ListLiveByItem(ctx, itemID)
}

// CheckAndFulfill notifies the head of the item's queue that a copy came back.
// It never mutates the queue: the reservation stays live until the member
// borrows the item, cancels, or the hold expires.
func (s *service) CheckAndFulfill(ctx context.Context, itemID uuid.UUID) error {
	head, err := s.repo.QueueHead(ctx, itemID, s.now())
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationAvailable,
			AggregateType: enums.AggregateReservation,
			AggregateID:   head.ID,
			Version:       1,
			OccurredAt:    s.now(),
			Data: payloads.ReservationAvailableEvent{
				ReservationID: head.ID,
				ItemID:        head.ItemID,
				UserID:        head.UserID,
				ExpiresAt:     head.ExpiresAt,
			},
		})
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"reservation_id": head.ID.String(),
			"item_id":        itemID.String(),
		})
		s.logg.Info(logCtx, "queue head notified of available item")
	}
	return nil
}

// ExpireDue closes every live reservation whose hold window has passed and
// returns the number closed.
func (s *service) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	var errs []error
	closed := 0
	for i := range expired {
		reservation := expired[i]
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			done, err := s.repo.WithTx(tx).Close(ctx, reservation.ID)
			if err != nil {
				return err
			}
			if !done {
				return nil
			}
			closed++
			return s.ledger.WithTx(tx).Create(ctx, &models.LedgerEntry{
				UserID:  &reservation.UserID,
				Action:  enums.LedgerActionReservationExpired,
				Details: fmt.Sprintf("Reservation expired on %s", reservation.ExpiresAt.Format("2006-01-02")),
			})
		})
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{"reservation_id": reservation.ID})
				s.logg.Error(logCtx, "expiry sweep skipped reservation", err)
			}
			errs = append(errs, fmt.Errorf("expire reservation %s: %w", reservation.ID, err))
			continue
		}
	}
	return closed, multierr.Combine(errs...)
}

func (s *service) mustGet(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "reservation id is required")
	}
	reservation, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "reservation not found")
	}
	return reservation, nil
}

func (s *service) actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func reservationItemTitle(reservation *models.Reservation) string {
	if reservation.Item != nil {
		return reservation.Item.Title
	}
	return reservation.ItemID.String()
}
