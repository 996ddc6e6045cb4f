package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// PaymentsHandler handles payment history endpoints. Payments are recorded
// through FinesHandler.Pay.
type PaymentsHandler struct {
	DB *sql.DB
}

// Mine handles GET /api/payments/mine.
func (h *PaymentsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.PaymentFilter{UserID: GetClaims(r.Context()).UserID})
}

// List handles GET /api/payments (admin).
func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := paymentFilter(w, r)
	if !ok {
		return
	}
	h.list(w, r, filter)
}

func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request, filter store.PaymentFilter) {
	payments, page, err := store.ListPayments(r.Context(), h.DB, filter, queryPage(r))
	if err != nil {
		slog.Error("failed to list payments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	jsonResponse(w, http.StatusOK, listResponse{Data: payments, Pagination: page})
}

// Get handles GET /api/payments/{id}.
func (h *PaymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "payment")
	if !ok {
		return
	}

	payment, err := store.GetPayment(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get payment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if payment == nil {
		jsonError(w, http.StatusNotFound, "payment not found")
		return
	}

	claims := GetClaims(r.Context())
	if payment.UserID != claims.UserID && !claims.IsAdmin() {
		jsonError(w, http.StatusForbidden, "you can only view your own payments")
		return
	}
	jsonResponse(w, http.StatusOK, payment)
}

// Stats handles GET /api/payments/stats (admin).
func (h *PaymentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, ok := paymentFilter(w, r)
	if !ok {
		return
	}

	stats, err := store.PaymentStatistics(r.Context(), h.DB, filter)
	if err != nil {
		slog.Error("failed to compute payment statistics", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to compute payment statistics")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// paymentFilter reads the admin payment filters from the query string.
func paymentFilter(w http.ResponseWriter, r *http.Request) (store.PaymentFilter, bool) {
	var f store.PaymentFilter

	f.Method = model.PaymentMethod(r.URL.Query().Get("method"))
	if f.Method != "" && !f.Method.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid method filter")
		return f, false
	}

	var err error
	if f.FineID, err = queryInt64(r, "fine_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid fine_id")
		return f, false
	}
	if f.UserID, err = queryInt64(r, "user_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user_id")
		return f, false
	}
	if f.From, err = queryTime(r, "from", false); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid from date")
		return f, false
	}
	if f.To, err = queryTime(r, "to", true); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid to date")
		return f, false
	}
	return f, true
}
