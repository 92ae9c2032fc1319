package circulation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/catalog"
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
	svc     Service
	conn    *gorm.DB
	loans   Repository
	items   catalog.Repository
	setSvc  settings.Service
	notify  *stubNotifier
	now     time.Time
	staff   Actor
	member  *models.User
	book    *models.LibraryItem
}

type stubNotifier struct {
	calls []uuid.UUID
	err   error
}

func (s *stubNotifier) CheckAndFulfill(ctx context.Context, itemID uuid.UUID) error {
	s.calls = append(s.calls, itemID)
	return s.err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:circulation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.LibraryItem{},
		&models.Loan{},
		&models.LedgerEntry{},
		&models.LibrarySettings{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := dbpkg.NewFromConn(conn)
	loanRepo := NewRepository(conn)
	itemRepo := catalog.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	setSvc, err := settings.NewService(settings.NewRepository(conn))
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	notify := &stubNotifier{}

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceDeps{
		DB:           client,
		Loans:        loanRepo,
		Items:        itemRepo,
		Users:        userRepo,
		Settings:     setSvc,
		Ledger:       ledgerRepo,
		Outbox:       outboxSvc,
		Reservations: notify,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	member := &models.User{ID: uuid.New(), Email: "reader@example.com", Name: "Reader", Role: enums.UserRoleMember, IsActive: true}
	if err := conn.Create(member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	book := &models.LibraryItem{ID: uuid.New(), Title: "The Dispossessed", Type: enums.ItemTypeBook, Status: enums.ItemStatusAvailable}
	if err := conn.Create(book).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}

	return &fixture{
		svc:    svc,
		conn:   conn,
		loans:  loanRepo,
		items:  itemRepo,
		setSvc: setSvc,
		notify: notify,
		now:    now,
		staff:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
		member: member,
		book:   book,
	}
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

func TestBorrowCreatesLoanAndFlipsItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("Borrow error: %v", err)
	}
	wantDue := f.now.Add(14 * 24 * time.Hour)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %v, got %v", wantDue, loan.DueDate)
	}

	var item models.LibraryItem
	if err := f.conn.First(&item, "id = ?", f.book.ID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.Status != enums.ItemStatusBorrowed {
		t.Fatalf("expected item BORROWED, got %s", item.Status)
	}

	var ledgerCount int64
	if err := f.conn.Model(&models.LedgerEntry{}).
		Where("action = ?", enums.LedgerActionLoanCreated).
		Count(&ledgerCount).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if ledgerCount != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", ledgerCount)
	}

	var outboxCount int64
	if err := f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventLoanCreated, loan.ID).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected 1 outbox event, got %d", outboxCount)
	}
}

func TestBorrowRejectsUnavailableItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID); err != nil {
		t.Fatalf("first borrow: %v", err)
	}

	second := &models.User{ID: uuid.New(), Email: "other@example.com", Name: "Other", Role: enums.UserRoleMember, IsActive: true}
	if err := f.conn.Create(second).Error; err != nil {
		t.Fatalf("seed second member: %v", err)
	}

	_, err := f.svc.Borrow(ctx, f.staff, second.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestBorrowRejectsArchivedItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.conn.Model(&models.LibraryItem{}).
		Where("id = ?", f.book.ID).
		Update("is_archived", true).Error; err != nil {
		t.Fatalf("archive item: %v", err)
	}

	_, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestBorrowRejectsInactiveUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.conn.Model(&models.User{}).
		Where("id = ?", f.member.ID).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate member: %v", err)
	}

	_, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestBorrowEnforcesPerTypeCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	one := 1
	if _, err := f.setSvc.Update(ctx, settings.UpdateSettingsInput{MaxLoansBook: &one}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	if _, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID); err != nil {
		t.Fatalf("first borrow: %v", err)
	}

	other := &models.LibraryItem{ID: uuid.New(), Title: "Rocannon's World", Type: enums.ItemTypeBook, Status: enums.ItemStatusAvailable}
	if err := f.conn.Create(other).Error; err != nil {
		t.Fatalf("seed second book: %v", err)
	}

	_, err := f.svc.Borrow(ctx, f.staff, f.member.ID, other.ID)
	assertCode(t, err, apperrors.CodeConflict)
}

func TestReturnClosesLoanAndNotifiesQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	returned, err := f.svc.Return(ctx, f.staff, loan.ID)
	if err != nil {
		t.Fatalf("Return error: %v", err)
	}
	if returned.ReturnDate == nil {
		t.Fatal("expected return date to be set")
	}

	var item models.LibraryItem
	if err := f.conn.First(&item, "id = ?", f.book.ID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.Status != enums.ItemStatusAvailable {
		t.Fatalf("expected item AVAILABLE, got %s", item.Status)
	}

	if len(f.notify.calls) != 1 || f.notify.calls[0] != f.book.ID {
		t.Fatalf("expected fulfillment check for item, got %v", f.notify.calls)
	}
}

func TestReturnTwiceFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.svc.Return(ctx, f.staff, loan.ID); err != nil {
		t.Fatalf("first return: %v", err)
	}

	_, err = f.svc.Return(ctx, f.staff, loan.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestReturnUnknownLoan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Return(context.Background(), f.staff, uuid.New())
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestRenewStacksFromCurrentDueDate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	firstDue := loan.DueDate

	renewed, err := f.svc.Renew(ctx, f.staff, loan.ID)
	if err != nil {
		t.Fatalf("first renew: %v", err)
	}
	renewed, err = f.svc.Renew(ctx, f.staff, loan.ID)
	if err != nil {
		t.Fatalf("second renew: %v", err)
	}

	wantDue := firstDue.Add(28 * 24 * time.Hour)
	if !renewed.DueDate.Equal(wantDue) {
		t.Fatalf("expected stacked due date %v, got %v", wantDue, renewed.DueDate)
	}

	var stored models.Loan
	if err := f.conn.First(&stored, "id = ?", loan.ID).Error; err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.RenewalCount != 2 {
		t.Fatalf("expected renewal count 2, got %d", stored.RenewalCount)
	}
}

func TestRenewRespectsConfiguredLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	one := 1
	if _, err := f.setSvc.Update(ctx, settings.UpdateSettingsInput{MaxRenewals: &one}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.svc.Renew(ctx, f.staff, loan.ID); err != nil {
		t.Fatalf("first renew: %v", err)
	}

	_, err = f.svc.Renew(ctx, f.staff, loan.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestRenewClosedLoanFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.svc.Return(ctx, f.staff, loan.ID); err != nil {
		t.Fatalf("return: %v", err)
	}

	_, err = f.svc.Renew(ctx, f.staff, loan.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestRequestReturnOnlyByBorrower(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	_, err = f.svc.RequestReturn(ctx, uuid.New(), loan.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	requested, err := f.svc.RequestReturn(ctx, f.member.ID, loan.ID)
	if err != nil {
		t.Fatalf("RequestReturn error: %v", err)
	}
	if requested.ReturnRequestedAt == nil {
		t.Fatal("expected return request timestamp")
	}

	// A second request is a conflict, not a silent overwrite.
	_, err = f.svc.RequestReturn(ctx, f.member.ID, loan.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestConfirmReturnRequiresPendingRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	_, err = f.svc.ConfirmReturn(ctx, f.staff, loan.ID)
	assertCode(t, err, apperrors.CodeStateConflict)

	if _, err := f.svc.RequestReturn(ctx, f.member.ID, loan.ID); err != nil {
		t.Fatalf("request return: %v", err)
	}
	confirmed, err := f.svc.ConfirmReturn(ctx, f.staff, loan.ID)
	if err != nil {
		t.Fatalf("ConfirmReturn error: %v", err)
	}
	if confirmed.ReturnDate == nil {
		t.Fatal("expected loan to be closed")
	}
}

func TestListUserLoansFiltersOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Borrow(ctx, f.staff, f.member.ID, f.book.ID)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.svc.Return(ctx, f.staff, loan.ID); err != nil {
		t.Fatalf("return: %v", err)
	}

	other := &models.LibraryItem{ID: uuid.New(), Title: "The Lathe of Heaven", Type: enums.ItemTypeBook, Status: enums.ItemStatusAvailable}
	if err := f.conn.Create(other).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if _, err := f.svc.Borrow(ctx, f.staff, f.member.ID, other.ID); err != nil {
		t.Fatalf("second borrow: %v", err)
	}

	open, err := f.svc.ListUserLoans(ctx, f.member.ID, true)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open loan, got %d", len(open))
	}

	all, err := f.svc.ListUserLoans(ctx, f.member.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 loans, got %d", len(all))
	}
}
