package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// FinesHandler handles fine endpoints, including paying a fine.
type FinesHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type createFineRequest struct {
	LoanID int64            `json:"loan_id" validate:"required,gt=0"`
	Amount int64            `json:"amount" validate:"required,gt=0"`
	Reason model.FineReason `json:"reason" validate:"required,oneof=late damage lost other"`
	Notes  string           `json:"notes" validate:"omitempty,max=1000"`
}

type updateFineRequest struct {
	AmountTotal int64            `json:"amount_total" validate:"omitempty,gt=0"`
	Reason      model.FineReason `json:"reason" validate:"omitempty,oneof=late damage lost other"`
	Notes       *string          `json:"notes" validate:"omitempty,max=1000"`
}

type waiveFineRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=1000"`
}

type payFineRequest struct {
	Amount int64               `json:"amount" validate:"required,gt=0"`
	Method model.PaymentMethod `json:"method" validate:"omitempty,oneof=cash credit_card debit_card transfer e_wallet"`
	Notes  string              `json:"notes" validate:"omitempty,max=1000"`
}

// Mine handles GET /api/fines/mine.
func (h *FinesHandler) Mine(w http.ResponseWriter, r *http.Request) {
	status := model.FineStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	h.list(w, r, store.FineFilter{Status: status, UserID: GetClaims(r.Context()).UserID})
}

// List handles GET /api/fines (admin).
func (h *FinesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.FineStatus(q.Get("status"))
	reason := model.FineReason(q.Get("reason"))
	if (status != "" && !status.Valid()) || (reason != "" && !reason.Valid()) {
		jsonError(w, http.StatusBadRequest, "invalid status or reason filter")
		return
	}
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	h.list(w, r, store.FineFilter{Status: status, UserID: userID, Reason: reason})
}

func (h *FinesHandler) list(w http.ResponseWriter, r *http.Request, filter store.FineFilter) {
	fines, page, err := store.ListFines(r.Context(), h.DB, filter, queryPage(r))
	if err != nil {
		slog.Error("failed to list fines", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list fines")
		return
	}
	if fines == nil {
		fines = []model.Fine{}
	}
	jsonResponse(w, http.StatusOK, listResponse{Data: fines, Pagination: page})
}

// Get handles GET /api/fines/{id}, including the fine's payments.
func (h *FinesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "fine")
	if !ok {
		return
	}

	fine, err := store.GetFine(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get fine", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get fine")
		return
	}
	if fine == nil {
		jsonError(w, http.StatusNotFound, "fine not found")
		return
	}

	claims := GetClaims(r.Context())
	if fine.UserID != claims.UserID && !claims.IsAdmin() {
		jsonError(w, http.StatusForbidden, "you can only view your own fines")
		return
	}

	fine.Payments, err = store.ListPaymentsForFine(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list fine payments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get fine")
		return
	}
	jsonResponse(w, http.StatusOK, fine)
}

// Pay handles POST /api/fines/{id}/pay.
func (h *FinesHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "fine")
	if !ok {
		return
	}

	var req payFineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	result, err := h.Ledger.PayFine(r.Context(), ledger.PayInput{
		FineID:  id,
		PayerID: claims.UserID,
		IsAdmin: claims.IsAdmin(),
		Amount:  req.Amount,
		Method:  req.Method,
		Notes:   req.Notes,
	})
	if err != nil {
		writeLedgerError(w, err, "pay fine")
		return
	}

	slog.Info("fine payment", "actor_id", claims.UserID, "fine_id", id,
		"payment_id", result.Payment.ID, "amount", req.Amount, "remaining", result.Remaining)
	jsonResponse(w, http.StatusOK, result)
}

// Create handles POST /api/fines (admin).
func (h *FinesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	fine, err := h.Ledger.CreateFine(r.Context(), ledger.CreateFineInput{
		LoanID: req.LoanID,
		Amount: req.Amount,
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		writeLedgerError(w, err, "create fine")
		return
	}

	slog.Info("fine created", "admin_id", GetClaims(r.Context()).UserID, "fine_id", fine.ID,
		"loan_id", req.LoanID, "amount", req.Amount, "reason", req.Reason)
	jsonResponse(w, http.StatusCreated, fine)
}

// Calculate handles POST /api/loans/{id}/fine (admin). It answers 201
// when a fine was issued and 200 when the loan already had one.
func (h *FinesHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id", "loan")
	if !ok {
		return
	}

	fine, created, err := h.Ledger.CalculateFine(r.Context(), loanID)
	if err != nil {
		writeLedgerError(w, err, "calculate fine")
		return
	}
	if fine == nil {
		jsonMessage(w, http.StatusOK, "loan is not late, no fine due")
		return
	}
	if !created {
		jsonResponse(w, http.StatusOK, fine)
		return
	}

	slog.Info("late fine calculated", "admin_id", GetClaims(r.Context()).UserID, "fine_id", fine.ID,
		"loan_id", loanID, "amount", fine.AmountTotal)
	jsonResponse(w, http.StatusCreated, fine)
}

// Update handles PUT /api/fines/{id} (admin).
func (h *FinesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "fine")
	if !ok {
		return
	}

	var req updateFineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	fine, err := h.Ledger.UpdateFine(r.Context(), ledger.UpdateFineInput{
		FineID:      id,
		AmountTotal: req.AmountTotal,
		Reason:      req.Reason,
		Notes:       req.Notes,
	})
	if err != nil {
		writeLedgerError(w, err, "update fine")
		return
	}

	slog.Info("fine updated", "admin_id", GetClaims(r.Context()).UserID, "fine_id", id,
		"amount_total", fine.AmountTotal, "status", fine.Status)
	jsonResponse(w, http.StatusOK, fine)
}

// Waive handles POST /api/fines/{id}/waive (admin).
func (h *FinesHandler) Waive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "fine")
	if !ok {
		return
	}

	var req waiveFineRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
	}

	fine, err := h.Ledger.WaiveFine(r.Context(), id, req.Notes)
	if err != nil {
		writeLedgerError(w, err, "waive fine")
		return
	}

	slog.Info("fine waived", "admin_id", GetClaims(r.Context()).UserID, "fine_id", id)
	jsonResponse(w, http.StatusOK, fine)
}

// Stats handles GET /api/fines/stats (admin).
func (h *FinesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.FineStatistics(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to compute fine statistics", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to compute fine statistics")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}
