package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/notify"
	"github.com/erazemk/knjiznica/internal/store"
)

// NotificationsHandler serves a user's own notifications and the live socket.
type NotificationsHandler struct {
	DB  *sql.DB
	Hub *notify.Hub
}

type unreadCountResponse struct {
	Unread int `json:"unread"`
}

type readAllResponse struct {
	Updated int64 `json:"updated"`
}

// List handles GET /api/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.NotificationFilter
	if v := q.Get("is_read"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid is_read filter")
			return
		}
		filter.IsRead = &isRead
	}
	filter.Type = model.NotificationType(q.Get("type"))
	if filter.Type != "" && !filter.Type.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid type filter")
		return
	}

	notifications, err := store.ListNotifications(r.Context(), h.DB, GetClaims(r.Context()).UserID, filter)
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	jsonResponse(w, http.StatusOK, notifications)
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := store.CountUnreadNotifications(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		slog.Error("failed to count notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	jsonResponse(w, http.StatusOK, unreadCountResponse{Unread: n})
}

// ReadAll handles PUT /api/notifications/read-all.
func (h *NotificationsHandler) ReadAll(w http.ResponseWriter, r *http.Request) {
	userID := GetClaims(r.Context()).UserID
	n, err := store.MarkAllNotificationsRead(r.Context(), h.DB, userID)
	if err != nil {
		slog.Error("failed to mark notifications read", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	jsonResponse(w, http.StatusOK, readAllResponse{Updated: n})
}

// Get handles GET /api/notifications/{id}.
func (h *NotificationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, ok := h.own(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, n)
}

// Read handles PUT /api/notifications/{id}/read.
func (h *NotificationsHandler) Read(w http.ResponseWriter, r *http.Request) {
	n, ok := h.own(w, r)
	if !ok {
		return
	}

	if err := store.MarkNotificationRead(r.Context(), h.DB, n.ID); err != nil {
		slog.Error("failed to mark notification read", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	n.IsRead = true
	jsonResponse(w, http.StatusOK, n)
}

// Delete handles DELETE /api/notifications/{id}.
func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	n, ok := h.own(w, r)
	if !ok {
		return
	}

	if err := store.DeleteNotification(r.Context(), h.DB, n.ID); err != nil {
		slog.Error("failed to delete notification", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	jsonMessage(w, http.StatusOK, "notification deleted")
}

// own loads the notification named by the path and checks the caller owns it.
// Other users' notifications are reported as missing.
func (h *NotificationsHandler) own(w http.ResponseWriter, r *http.Request) (*model.Notification, bool) {
	id, ok := pathID(w, r, "id", "notification")
	if !ok {
		return nil, false
	}

	n, err := store.GetNotification(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get notification", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get notification")
		return nil, false
	}
	if n == nil || n.UserID != GetClaims(r.Context()).UserID {
		jsonError(w, http.StatusNotFound, "notification not found")
		return nil, false
	}
	return n, true
}

// Socket handles GET /api/ws. The connection stays open until the client
// leaves or the hub closes.
func (h *NotificationsHandler) Socket(w http.ResponseWriter, r *http.Request) {
	userID := GetClaims(r.Context()).UserID
	if err := h.Hub.Serve(w, r, userID); err != nil {
		// The upgrader has already written the error response.
		slog.Warn("websocket upgrade failed", "user_id", userID, "error", err)
	}
}
