package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/notify"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, l *ledger.Ledger, hub *notify.Hub) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	booksHandler := &BooksHandler{DB: db}
	loansHandler := &LoansHandler{DB: db, Ledger: l}
	finesHandler := &FinesHandler{DB: db, Ledger: l}
	paymentsHandler := &PaymentsHandler{DB: db}
	notificationsHandler := &NotificationsHandler{DB: db, Hub: hub}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)

	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonMessage(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/books", booksHandler.List)
	mux.HandleFunc("GET /api/books/{id}", booksHandler.Get)
	mux.HandleFunc("GET /api/books/{id}/cover", booksHandler.GetCover)
	mux.HandleFunc("GET /api/books/{id}/copies/available", booksHandler.ListAvailableCopies)

	// Account.
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /api/profile", authed(authHandler.GetProfile))
	mux.Handle("PUT /api/profile", authed(authHandler.UpdateProfile))
	mux.Handle("PUT /api/profile/password", authed(authHandler.ChangePassword))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))

	// Catalog management (admin only).
	mux.Handle("POST /api/books", admin(booksHandler.Create))
	mux.Handle("PUT /api/books/{id}", admin(booksHandler.Update))
	mux.Handle("DELETE /api/books/{id}", admin(booksHandler.Delete))
	mux.Handle("PUT /api/books/{id}/cover", admin(booksHandler.UploadCover))
	mux.Handle("GET /api/books/{id}/copies", admin(booksHandler.ListCopies))
	mux.Handle("POST /api/books/{id}/copies", admin(booksHandler.CreateCopy))
	mux.Handle("PUT /api/copies/{id}", admin(booksHandler.UpdateCopy))
	mux.Handle("DELETE /api/copies/{id}", admin(booksHandler.DeleteCopy))

	// Loans: members act on their own, admins on any.
	mux.Handle("POST /api/loans/borrow", authed(loansHandler.Borrow))
	mux.Handle("GET /api/loans/mine", authed(loansHandler.Mine))
	mux.Handle("GET /api/loans/{id}", authed(loansHandler.Get))
	mux.Handle("POST /api/loans/{id}/return", authed(loansHandler.Return))
	mux.Handle("POST /api/loans/{id}/renew", authed(loansHandler.Renew))
	mux.Handle("GET /api/loans", admin(loansHandler.List))
	mux.Handle("POST /api/loans/mark-overdue", admin(loansHandler.MarkOverdue))
	mux.Handle("POST /api/loans/remind-due", admin(loansHandler.RemindDue))
	mux.Handle("POST /api/loans/{id}/mark-lost", admin(loansHandler.MarkLost))
	mux.Handle("POST /api/loans/{id}/fine", admin(finesHandler.Calculate))

	// Fines.
	mux.Handle("GET /api/fines/mine", authed(finesHandler.Mine))
	mux.Handle("GET /api/fines/{id}", authed(finesHandler.Get))
	mux.Handle("POST /api/fines/{id}/pay", authed(finesHandler.Pay))
	mux.Handle("GET /api/fines", admin(finesHandler.List))
	mux.Handle("POST /api/fines", admin(finesHandler.Create))
	mux.Handle("GET /api/fines/stats", admin(finesHandler.Stats))
	mux.Handle("PUT /api/fines/{id}", admin(finesHandler.Update))
	mux.Handle("POST /api/fines/{id}/waive", admin(finesHandler.Waive))

	// Payments.
	mux.Handle("GET /api/payments/mine", authed(paymentsHandler.Mine))
	mux.Handle("GET /api/payments/{id}", authed(paymentsHandler.Get))
	mux.Handle("GET /api/payments", admin(paymentsHandler.List))
	mux.Handle("GET /api/payments/stats", admin(paymentsHandler.Stats))

	// Notifications (owner only).
	mux.Handle("GET /api/notifications", authed(notificationsHandler.List))
	mux.Handle("GET /api/notifications/unread-count", authed(notificationsHandler.UnreadCount))
	mux.Handle("PUT /api/notifications/read-all", authed(notificationsHandler.ReadAll))
	mux.Handle("GET /api/notifications/{id}", authed(notificationsHandler.Get))
	mux.Handle("PUT /api/notifications/{id}/read", authed(notificationsHandler.Read))
	mux.Handle("DELETE /api/notifications/{id}", authed(notificationsHandler.Delete))
	mux.Handle("GET /api/ws", authed(notificationsHandler.Socket))

	return mux
}
