package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// LoansHandler handles circulation endpoints.
type LoansHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type borrowRequest struct {
	CopyID int64 `json:"copyId" validate:"required,gt=0"`
	// UserID lets an admin lend on behalf of a member.
	UserID int64 `json:"userId" validate:"omitempty,gt=0"`
}

type countResponse struct {
	Count int `json:"count"`
}

// Borrow handles POST /api/loans/borrow.
func (h *LoansHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	userID := claims.UserID
	if req.UserID != 0 && req.UserID != claims.UserID {
		if !claims.IsAdmin() {
			jsonError(w, http.StatusForbidden, "only admins can lend on behalf of another user")
			return
		}
		userID = req.UserID
	}

	loan, err := h.Ledger.Borrow(r.Context(), ledger.BorrowInput{UserID: userID, CopyID: req.CopyID})
	if err != nil {
		writeLedgerError(w, err, "borrow")
		return
	}

	slog.Info("book borrowed", "actor_id", claims.UserID, "user_id", userID,
		"loan_id", loan.ID, "copy_id", loan.CopyID, "due", loan.DueDate)
	jsonResponse(w, http.StatusCreated, loan)
}

// Return handles POST /api/loans/{id}/return.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "loan")
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	loan, err := h.Ledger.Return(r.Context(), ledger.ReturnInput{
		LoanID:  id,
		ActorID: claims.UserID,
		IsAdmin: claims.IsAdmin(),
	})
	if err != nil {
		writeLedgerError(w, err, "return loan")
		return
	}

	var fine int64
	if loan.Fine != nil {
		fine = loan.Fine.AmountTotal
	}
	slog.Info("book returned", "actor_id", claims.UserID, "loan_id", id, "fine", fine)
	jsonResponse(w, http.StatusOK, loan)
}

// Renew handles POST /api/loans/{id}/renew.
func (h *LoansHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "loan")
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	loan, err := h.Ledger.Renew(r.Context(), ledger.RenewInput{
		LoanID:  id,
		ActorID: claims.UserID,
		IsAdmin: claims.IsAdmin(),
	})
	if err != nil {
		writeLedgerError(w, err, "renew loan")
		return
	}

	slog.Info("loan renewed", "actor_id", claims.UserID, "loan_id", id, "due", loan.DueDate)
	jsonResponse(w, http.StatusOK, loan)
}

// Mine handles GET /api/loans/mine.
func (h *LoansHandler) Mine(w http.ResponseWriter, r *http.Request) {
	status := model.LoanStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	filter := store.LoanFilter{Status: status, UserID: GetClaims(r.Context()).UserID}
	h.list(w, r, filter)
}

// List handles GET /api/loans (admin).
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.LoanStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	filter := store.LoanFilter{Status: status, UserID: userID}
	if r.URL.Query().Get("overdue") == "true" {
		filter.OverdueAt = h.Ledger.Now()
	}
	h.list(w, r, filter)
}

func (h *LoansHandler) list(w http.ResponseWriter, r *http.Request, filter store.LoanFilter) {
	loans, page, err := store.ListLoans(r.Context(), h.DB, filter, queryPage(r))
	if err != nil {
		slog.Error("failed to list loans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list loans")
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	jsonResponse(w, http.StatusOK, listResponse{Data: loans, Pagination: page})
}

// Get handles GET /api/loans/{id}. Members can only see their own loans.
func (h *LoansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "loan")
	if !ok {
		return
	}

	loan, err := store.GetLoan(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get loan", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get loan")
		return
	}
	if loan == nil {
		jsonError(w, http.StatusNotFound, "loan not found")
		return
	}

	claims := GetClaims(r.Context())
	if loan.UserID != claims.UserID && !claims.IsAdmin() {
		jsonError(w, http.StatusForbidden, ledger.ErrNotLoanOwner.Message)
		return
	}

	loan.Fine, err = store.GetFineByLoan(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get loan fine", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get loan")
		return
	}
	jsonResponse(w, http.StatusOK, loan)
}

// MarkOverdue handles POST /api/loans/mark-overdue (admin).
func (h *LoansHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.SweepOverdue(r.Context())
	if err != nil {
		writeLedgerError(w, err, "mark overdue loans")
		return
	}

	slog.Info("overdue sweep", "admin_id", GetClaims(r.Context()).UserID, "count", n)
	jsonResponse(w, http.StatusOK, countResponse{Count: n})
}

// RemindDue handles POST /api/loans/remind-due (admin).
func (h *LoansHandler) RemindDue(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.RemindDueSoon(r.Context())
	if err != nil {
		writeLedgerError(w, err, "send due reminders")
		return
	}

	slog.Info("due reminders sent", "admin_id", GetClaims(r.Context()).UserID, "count", n)
	jsonResponse(w, http.StatusOK, countResponse{Count: n})
}

// MarkLost handles POST /api/loans/{id}/mark-lost (admin).
func (h *LoansHandler) MarkLost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "loan")
	if !ok {
		return
	}

	loan, err := h.Ledger.MarkLost(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err, "mark loan lost")
		return
	}

	slog.Info("loan marked lost", "admin_id", GetClaims(r.Context()).UserID, "loan_id", id, "copy_id", loan.CopyID)
	jsonResponse(w, http.StatusOK, loan)
}
