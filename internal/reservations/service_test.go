package reservations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/catalog"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/settings"
	"github.com/rmolina-dev/libris-backend/internal/users"
	dbpkg "github.com/rmolina-dev/libris-backend/pkg/db"
	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	apperrors "github.com/rmolina-dev/libris-backend/pkg/errors"
	"github.com/rmolina-dev/libris-backend/pkg/outbox"
)

type fixture struct {
	svc    Service
	conn   *gorm.DB
	now    time.Time
	member *models.User
	second *models.User
	book   *models.LibraryItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.LibraryItem{},
		&models.Loan{},
		&models.Reservation{},
		&models.LedgerEntry{},
		&models.LibrarySettings{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	setSvc, err := settings.NewService(settings.NewRepository(conn))
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceDeps{
		DB:       dbpkg.NewFromConn(conn),
		Repo:     NewRepository(conn),
		Items:    catalog.NewRepository(conn),
		Users:    users.NewRepository(conn),
		Loans:    circulation.NewRepository(conn),
		Settings: setSvc,
		Ledger:   ledger.NewRepository(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	member := &models.User{ID: uuid.New(), Email: "reader@example.com", Name: "Reader", Role: enums.UserRoleMember, IsActive: true}
	second := &models.User{ID: uuid.New(), Email: "second@example.com", Name: "Second", Role: enums.UserRoleMember, IsActive: true}
	book := &models.LibraryItem{ID: uuid.New(), Title: "A Wizard of Earthsea", Type: enums.ItemTypeBook, Status: enums.ItemStatusBorrowed}
	for _, row := range []any{member, second, book} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	return &fixture{svc: svc, conn: conn, now: now, member: member, second: second, book: book}
}

func asMember(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	coded := apperrors.As(err)
	if coded == nil {
		t.Fatalf("expected coded error, got %v", err)
	}
	if coded.Code() != want {
		t.Fatalf("expected code %s, got %s (%v)", want, coded.Code(), err)
	}
}

func TestCreateReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	wantExpiry := f.now.Add(7 * 24 * time.Hour)
	if !reservation.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, reservation.ExpiresAt)
	}

	var outboxCount int64
	if err := f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventReservationPlaced, reservation.ID).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected 1 outbox event, got %d", outboxCount)
	}
}

func TestCreateRejectsDuplicateLiveReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeConflict)
}

func TestCreateRejectsCurrentBorrower(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan := &models.Loan{
		ID:       uuid.New(),
		ItemID:   f.book.ID,
		UserID:   f.member.ID,
		LoanDate: f.now,
		DueDate:  f.now.Add(14 * 24 * time.Hour),
	}
	if err := f.conn.Create(loan).Error; err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	_, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeConflict)
}

func TestCreateRejectsArchivedItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.conn.Model(&models.LibraryItem{}).
		Where("id = ?", f.book.ID).
		Update("is_archived", true).Error; err != nil {
		t.Fatalf("archive item: %v", err)
	}

	_, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestCancelByHolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, asMember(f.member), reservation.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !cancelled.Fulfilled {
		t.Fatal("expected reservation to be closed")
	}

	// Cancelling again is a conflict.
	_, err = f.svc.Cancel(ctx, asMember(f.member), reservation.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestCancelRejectsStranger(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Cancel(ctx, asMember(f.second), reservation.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	// Staff may cancel on the member's behalf.
	staff := Actor{UserID: uuid.New(), Role: enums.UserRoleStaff}
	if _, err := f.svc.Cancel(ctx, staff, reservation.ID); err != nil {
		t.Fatalf("staff cancel: %v", err)
	}
}

func TestCheckAndFulfillNotifiesOldestReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, asMember(f.member), f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// The second member joins the queue later.
	if err := f.conn.Create(&models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.second.ID,
		ReservedAt: f.now.Add(time.Hour),
		ExpiresAt:  f.now.Add(8 * 24 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed second reservation: %v", err)
	}

	if err := f.svc.CheckAndFulfill(ctx, f.book.ID); err != nil {
		t.Fatalf("CheckAndFulfill error: %v", err)
	}

	var events []models.OutboxEvent
	if err := f.conn.Where("event_type = ?", enums.EventReservationAvailable).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 availability event, got %d", len(events))
	}
	if events[0].AggregateID != first.ID {
		t.Fatalf("expected head of queue %s notified, got %s", first.ID, events[0].AggregateID)
	}

	// The reservation stays live. A repeat check does not queue a second event.
	head, err := NewRepository(f.conn).QueueHead(ctx, f.book.ID, f.now)
	if err != nil {
		t.Fatalf("queue head: %v", err)
	}
	if head == nil || head.ID != first.ID {
		t.Fatal("expected reservation to remain live at the head of the queue")
	}
	if err := f.svc.CheckAndFulfill(ctx, f.book.ID); err != nil {
		t.Fatalf("second CheckAndFulfill: %v", err)
	}
	if err := f.conn.Where("event_type = ?", enums.EventReservationAvailable).Find(&events).Error; err != nil {
		t.Fatalf("reload events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the availability event to stay deduplicated, got %d", len(events))
	}
}

func TestCheckAndFulfillSkipsExpiredHead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	expired := &models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.member.ID,
		ReservedAt: f.now.Add(-10 * 24 * time.Hour),
		ExpiresAt:  f.now.Add(-3 * 24 * time.Hour),
	}
	if err := f.conn.Create(expired).Error; err != nil {
		t.Fatalf("seed expired reservation: %v", err)
	}
	live := &models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.second.ID,
		ReservedAt: f.now.Add(-time.Hour),
		ExpiresAt:  f.now.Add(6 * 24 * time.Hour),
	}
	if err := f.conn.Create(live).Error; err != nil {
		t.Fatalf("seed live reservation: %v", err)
	}

	if err := f.svc.CheckAndFulfill(ctx, f.book.ID); err != nil {
		t.Fatalf("CheckAndFulfill error: %v", err)
	}

	var events []models.OutboxEvent
	if err := f.conn.Where("event_type = ?", enums.EventReservationAvailable).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 || events[0].AggregateID != live.ID {
		t.Fatalf("expected only the live reservation notified, got %d events", len(events))
	}
}

func TestExpireDueClosesLapsedReservations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	lapsed := &models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.member.ID,
		ReservedAt: f.now.Add(-9 * 24 * time.Hour),
		ExpiresAt:  f.now.Add(-2 * 24 * time.Hour),
	}
	if err := f.conn.Create(lapsed).Error; err != nil {
		t.Fatalf("seed lapsed reservation: %v", err)
	}
	if _, err := f.svc.Create(ctx, asMember(f.second), f.second.ID, f.book.ID); err != nil {
		t.Fatalf("create live reservation: %v", err)
	}

	closed, err := f.svc.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("ExpireDue error: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 reservation closed, got %d", closed)
	}

	var stored models.Reservation
	if err := f.conn.First(&stored, "id = ?", lapsed.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if !stored.Fulfilled {
		t.Fatal("expected lapsed reservation to be closed")
	}

	var ledgerCount int64
	if err := f.conn.Model(&models.LedgerEntry{}).
		Where("action = ?", enums.LedgerActionReservationExpired).
		Count(&ledgerCount).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if ledgerCount != 1 {
		t.Fatalf("expected 1 expiry ledger entry, got %d", ledgerCount)
	}

	// A second sweep finds nothing.
	closed, err = f.svc.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("second ExpireDue: %v", err)
	}
	if closed != 0 {
		t.Fatalf("expected idempotent sweep, closed %d", closed)
	}
}

type faultyReservationRepo struct {
	Repository
	failID uuid.UUID
}

func (r *faultyReservationRepo) WithTx(tx *gorm.DB) Repository {
	return &faultyReservationRepo{Repository: r.Repository.WithTx(tx), failID: r.failID}
}

func (r *faultyReservationRepo) Close(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == r.failID {
		return false, errors.New("storage failure")
	}
	return r.Repository.Close(ctx, id)
}

func TestExpireDueContinuesPastFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// The longest-lapsed reservation sorts first and its close fails.
	broken := &models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.member.ID,
		ReservedAt: f.now.Add(-12 * 24 * time.Hour),
		ExpiresAt:  f.now.Add(-5 * 24 * time.Hour),
	}
	healthy := &models.Reservation{
		ID:         uuid.New(),
		ItemID:     f.book.ID,
		UserID:     f.second.ID,
		ReservedAt: f.now.Add(-9 * 24 * time.Hour),
		ExpiresAt:  f.now.Add(-2 * 24 * time.Hour),
	}
	for _, row := range []*models.Reservation{broken, healthy} {
		if err := f.conn.Create(row).Error; err != nil {
			t.Fatalf("seed reservation: %v", err)
		}
	}

	setSvc, err := settings.NewService(settings.NewRepository(f.conn))
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	svc, err := NewService(ServiceDeps{
		DB:       dbpkg.NewFromConn(f.conn),
		Repo:     &faultyReservationRepo{Repository: NewRepository(f.conn), failID: broken.ID},
		Items:    catalog.NewRepository(f.conn),
		Users:    users.NewRepository(f.conn),
		Loans:    circulation.NewRepository(f.conn),
		Settings: setSvc,
		Ledger:   ledger.NewRepository(f.conn),
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Now:      func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	closed, err := svc.ExpireDue(ctx)
	if err == nil {
		t.Fatal("expected the combined sweep error")
	}
	if closed != 1 {
		t.Fatalf("expected the later reservation to still close, closed %d", closed)
	}

	var stored models.Reservation
	if err := f.conn.First(&stored, "id = ?", healthy.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if !stored.Fulfilled {
		t.Fatal("expected the healthy reservation to be closed")
	}
}
