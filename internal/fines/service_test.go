package fines

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmolina-dev/libris-backend/internal/circulation"
	"github.com/rmolina-dev/libris-backend/internal/ledger"
	"github.com/rmolina-dev/libris-backend/internal/settings"
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
	book   *models.LibraryItem
	staff  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:fines_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.LibraryItem{},
		&models.Loan{},
		&models.Fine{},
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
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceDeps{
		DB:       dbpkg.NewFromConn(conn),
		Repo:     NewRepository(conn),
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
	book := &models.LibraryItem{ID: uuid.New(), Title: "The Left Hand of Darkness", Type: enums.ItemTypeBook, Status: enums.ItemStatusBorrowed}
	for _, row := range []any{member, book} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	return &fixture{
		svc:    svc,
		conn:   conn,
		now:    now,
		member: member,
		book:   book,
		staff:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	}
}

func (f *fixture) seedOverdueLoan(t *testing.T, daysLate int) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		ID:       uuid.New(),
		ItemID:   f.book.ID,
		UserID:   f.member.ID,
		LoanDate: f.now.Add(-time.Duration(daysLate+14) * 24 * time.Hour),
		DueDate:  f.now.Add(-time.Duration(daysLate) * 24 * time.Hour),
	}
	if err := f.conn.Create(loan).Error; err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return loan
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

func TestComputeOverdueFinesAssessesPerDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	loan := f.seedOverdueLoan(t, 3)

	assessed, err := f.svc.ComputeOverdueFines(ctx)
	if err != nil {
		t.Fatalf("ComputeOverdueFines error: %v", err)
	}
	if len(assessed) != 1 {
		t.Fatalf("expected 1 fine assessed, got %d", len(assessed))
	}
	if assessed[0].LoanID == nil || *assessed[0].LoanID != loan.ID {
		t.Fatal("expected the returned fine to reference the overdue loan")
	}

	var fine models.Fine
	if err := f.conn.First(&fine, "loan_id = ?", loan.ID).Error; err != nil {
		t.Fatalf("load fine: %v", err)
	}
	if !fine.Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected amount 3.00 at the default daily rate, got %s", fine.Amount)
	}
	if fine.Status != enums.FineStatusPending {
		t.Fatalf("expected PENDING, got %s", fine.Status)
	}

	var outboxCount int64
	if err := f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventFineAssessed).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected 1 outbox event, got %d", outboxCount)
	}
}

func TestComputeOverdueFinesIsRerunSafe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.seedOverdueLoan(t, 5)

	if _, err := f.svc.ComputeOverdueFines(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	assessed, err := f.svc.ComputeOverdueFines(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(assessed) != 0 {
		t.Fatalf("expected second sweep to skip the pending fine, assessed %d", len(assessed))
	}

	var count int64
	if err := f.conn.Model(&models.Fine{}).Count(&count).Error; err != nil {
		t.Fatalf("count fines: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 fine, got %d", count)
	}
}

func TestComputeOverdueFinesSkipsPartialDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Due 12 hours ago: overdue, but not yet a full billable day.
	loan := &models.Loan{
		ID:       uuid.New(),
		ItemID:   f.book.ID,
		UserID:   f.member.ID,
		LoanDate: f.now.Add(-14 * 24 * time.Hour),
		DueDate:  f.now.Add(-12 * time.Hour),
	}
	if err := f.conn.Create(loan).Error; err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	assessed, err := f.svc.ComputeOverdueFines(ctx)
	if err != nil {
		t.Fatalf("ComputeOverdueFines error: %v", err)
	}
	if len(assessed) != 0 {
		t.Fatalf("expected no fine before a full day passes, assessed %d", len(assessed))
	}
}

type faultyFineRepo struct {
	Repository
	failLoanID uuid.UUID
}

func (r *faultyFineRepo) WithTx(tx *gorm.DB) Repository {
	return &faultyFineRepo{Repository: r.Repository.WithTx(tx), failLoanID: r.failLoanID}
}

func (r *faultyFineRepo) Create(ctx context.Context, fine *models.Fine) error {
	if fine.LoanID != nil && *fine.LoanID == r.failLoanID {
		return errors.New("storage failure")
	}
	return r.Repository.Create(ctx, fine)
}

func TestComputeOverdueFinesContinuesPastFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// The most overdue loan sorts first in the sweep and its insert fails.
	broken := f.seedOverdueLoan(t, 6)
	healthy := f.seedOverdueLoan(t, 2)

	setSvc, err := settings.NewService(settings.NewRepository(f.conn))
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	svc, err := NewService(ServiceDeps{
		DB:       dbpkg.NewFromConn(f.conn),
		Repo:     &faultyFineRepo{Repository: NewRepository(f.conn), failLoanID: broken.ID},
		Loans:    circulation.NewRepository(f.conn),
		Settings: setSvc,
		Ledger:   ledger.NewRepository(f.conn),
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Now:      func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	assessed, err := svc.ComputeOverdueFines(ctx)
	if err == nil {
		t.Fatal("expected the combined sweep error")
	}
	if len(assessed) != 1 {
		t.Fatalf("expected the later loan to still be assessed, got %d fines", len(assessed))
	}
	if assessed[0].LoanID == nil || *assessed[0].LoanID != healthy.ID {
		t.Fatal("expected the assessed fine to belong to the healthy loan")
	}

	var count int64
	if err := f.conn.Model(&models.Fine{}).Where("loan_id = ?", healthy.ID).Count(&count).Error; err != nil {
		t.Fatalf("count fines: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored fine for the healthy loan, got %d", count)
	}
}

func TestAssessManualFine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	fine, err := f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.RequireFromString("12.50"),
		Reason: "Damaged cover",
	})
	if err != nil {
		t.Fatalf("Assess error: %v", err)
	}
	if fine.LoanID != nil {
		t.Fatal("expected manual fine without a loan")
	}

	_, err = f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.NewFromInt(-2),
		Reason: "bogus",
	})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestMarkPaidSettlesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	fine, err := f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.NewFromInt(4),
		Reason: "Late return",
	})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	paid, err := f.svc.MarkPaid(ctx, f.staff, fine.ID)
	if err != nil {
		t.Fatalf("MarkPaid error: %v", err)
	}
	if paid.Status != enums.FineStatusPaid || paid.SettledAt == nil {
		t.Fatalf("expected settled PAID fine, got %s", paid.Status)
	}

	_, err = f.svc.MarkPaid(ctx, f.staff, fine.ID)
	assertCode(t, err, apperrors.CodeStateConflict)

	_, err = f.svc.Waive(ctx, f.staff, fine.ID)
	assertCode(t, err, apperrors.CodeStateConflict)
}

func TestWaiveRecordsActingStaff(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	fine, err := f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.NewFromInt(7),
		Reason: "Late return",
	})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	waived, err := f.svc.Waive(ctx, f.staff, fine.ID)
	if err != nil {
		t.Fatalf("Waive error: %v", err)
	}
	if waived.Status != enums.FineStatusWaived {
		t.Fatalf("expected WAIVED, got %s", waived.Status)
	}
	if waived.WaivedByID == nil || *waived.WaivedByID != f.staff.UserID {
		t.Fatal("expected the acting staff user on the waived fine")
	}

	var ledgerCount int64
	if err := f.conn.Model(&models.LedgerEntry{}).
		Where("action = ?", enums.LedgerActionFineWaived).
		Count(&ledgerCount).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if ledgerCount != 1 {
		t.Fatalf("expected 1 waive ledger entry, got %d", ledgerCount)
	}
}

func TestListUserFinesFiltersPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.NewFromInt(2),
		Reason: "Late return",
	})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if _, err := f.svc.MarkPaid(ctx, f.staff, first.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if _, err := f.svc.Assess(ctx, f.staff, AssessFineInput{
		UserID: f.member.ID,
		Amount: decimal.NewFromInt(3),
		Reason: "Damaged cover",
	}); err != nil {
		t.Fatalf("assess second: %v", err)
	}

	pending, err := f.svc.ListUserFines(ctx, f.member.ID, true)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending fine, got %d", len(pending))
	}

	all, err := f.svc.ListUserFines(ctx, f.member.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 fines, got %d", len(all))
	}
}
