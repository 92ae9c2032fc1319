package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/api/middleware"
	"github.com/rmolina-dev/libris-backend/internal/circulation"
	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/enums"
	pkgerrors "github.com/rmolina-dev/libris-backend/pkg/errors"
)

type stubCirculationService struct {
	loan  *models.Loan
	loans []models.Loan
	err   error

	borrowed struct {
		actor  circulation.Actor
		userID uuid.UUID
		itemID uuid.UUID
	}
}

func (s *stubCirculationService) Borrow(ctx context.Context, actor circulation.Actor, userID, itemID uuid.UUID) (*models.Loan, error) {
	s.borrowed.actor = actor
	s.borrowed.userID = userID
	s.borrowed.itemID = itemID
	return s.loan, s.err
}

func (s *stubCirculationService) Return(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCirculationService) Renew(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCirculationService) RequestReturn(ctx context.Context, requesterID, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCirculationService) ConfirmReturn(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCirculationService) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return s.loan, s.err
}

func (s *stubCirculationService) ListUserLoans(ctx context.Context, userID uuid.UUID, openOnly bool) ([]models.Loan, error) {
	return s.loans, s.err
}

func (s *stubCirculationService) ListOpenLoans(ctx context.Context) ([]models.Loan, error) {
	return s.loans, s.err
}

func (s *stubCirculationService) ListOverdueLoans(ctx context.Context) ([]models.Loan, error) {
	return s.loans, s.err
}

func authedRequest(method, target string, body []byte, userID uuid.UUID, role enums.UserRole) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestBorrowLoanForSelf(t *testing.T) {
	memberID := uuid.New()
	itemID := uuid.New()
	svc := &stubCirculationService{loan: &models.Loan{ID: uuid.New(), UserID: memberID, ItemID: itemID}}
	handler := BorrowLoan(svc, nil)

	body, _ := json.Marshal(map[string]string{"itemId": itemID.String()})
	req := authedRequest(http.MethodPost, "/api/v1/loans", body, memberID, enums.UserRoleMember)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.borrowed.userID != memberID {
		t.Fatalf("expected borrow for the caller, got %s", svc.borrowed.userID)
	}
	if svc.borrowed.itemID != itemID {
		t.Fatalf("unexpected item %s", svc.borrowed.itemID)
	}
}

func TestBorrowLoanOnBehalfRequiresDesk(t *testing.T) {
	memberID := uuid.New()
	otherID := uuid.New()
	svc := &stubCirculationService{loan: &models.Loan{}}
	handler := BorrowLoan(svc, nil)

	body, _ := json.Marshal(map[string]string{
		"itemId": uuid.NewString(),
		"userId": otherID.String(),
	})
	req := authedRequest(http.MethodPost, "/api/v1/loans", body, memberID, enums.UserRoleMember)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestBorrowLoanStaffOnBehalf(t *testing.T) {
	staffID := uuid.New()
	memberID := uuid.New()
	svc := &stubCirculationService{loan: &models.Loan{}}
	handler := BorrowLoan(svc, nil)

	body, _ := json.Marshal(map[string]string{
		"itemId": uuid.NewString(),
		"userId": memberID.String(),
	})
	req := authedRequest(http.MethodPost, "/api/v1/loans", body, staffID, enums.UserRoleStaff)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.borrowed.userID != memberID {
		t.Fatalf("expected borrow for the member, got %s", svc.borrowed.userID)
	}
	if svc.borrowed.actor.UserID != staffID {
		t.Fatalf("expected staff actor, got %s", svc.borrowed.actor.UserID)
	}
}

func TestBorrowLoanMissingBody(t *testing.T) {
	handler := BorrowLoan(&stubCirculationService{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/loans", []byte("{}"), uuid.New(), enums.UserRoleMember)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestBorrowLoanUnauthenticated(t *testing.T) {
	handler := BorrowLoan(&stubCirculationService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestRenewLoanMemberOwnLoan(t *testing.T) {
	memberID := uuid.New()
	loanID := uuid.New()
	svc := &stubCirculationService{loan: &models.Loan{ID: loanID, UserID: memberID, DueDate: time.Now().Add(48 * time.Hour)}}
	handler := RenewLoan(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/renew", nil, memberID, enums.UserRoleMember)
	req = withURLParam(req, "loanId", loanID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRenewLoanMemberForeignLoan(t *testing.T) {
	loanID := uuid.New()
	svc := &stubCirculationService{loan: &models.Loan{ID: loanID, UserID: uuid.New()}}
	handler := RenewLoan(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/renew", nil, uuid.New(), enums.UserRoleMember)
	req = withURLParam(req, "loanId", loanID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestReturnLoanMapsStateConflict(t *testing.T) {
	loanID := uuid.New()
	svc := &stubCirculationService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "loan is already closed")}
	handler := ReturnLoan(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/return", nil, uuid.New(), enums.UserRoleStaff)
	req = withURLParam(req, "loanId", loanID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestReturnLoanInvalidID(t *testing.T) {
	handler := ReturnLoan(&stubCirculationService{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/loans/nope/return", nil, uuid.New(), enums.UserRoleStaff)
	req = withURLParam(req, "loanId", "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListUserLoansMemberCannotSpyOnOthers(t *testing.T) {
	handler := ListUserLoans(&stubCirculationService{}, nil)

	otherID := uuid.New()
	req := authedRequest(http.MethodGet, "/api/v1/users/"+otherID.String()+"/loans", nil, uuid.New(), enums.UserRoleMember)
	req = withURLParam(req, "userId", otherID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestListUserLoansStaffViewsAnyUser(t *testing.T) {
	memberID := uuid.New()
	svc := &stubCirculationService{loans: []models.Loan{{ID: uuid.New(), UserID: memberID}}}
	handler := ListUserLoans(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/users/"+memberID.String()+"/loans", nil, uuid.New(), enums.UserRoleStaff)
	req = withURLParam(req, "userId", memberID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
