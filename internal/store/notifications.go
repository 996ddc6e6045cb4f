package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/erazemk/knjiznica/internal/model"
)

// NotificationListLimit caps how many notifications ListNotifications returns.
const NotificationListLimit = 50

const notificationColumns = `id, user_id, type, title, message, payload, is_read, created_at`

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	IsRead *bool
	Type   model.NotificationType
}

// CreateNotification stores a notification for a user.
func CreateNotification(ctx context.Context, q Querier, n *model.Notification) (*model.Notification, error) {
	var payload sql.NullString
	if len(n.Payload) > 0 {
		payload = sql.NullString{String: string(n.Payload), Valid: true}
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, payload, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.UserID, n.Type, n.Title, n.Message, payload, createdAt.UTC().Truncate(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting notification id: %w", err)
	}

	return GetNotification(ctx, q, id)
}

// GetNotification returns a notification by ID.
func GetNotification(ctx context.Context, q Querier, id int64) (*model.Notification, error) {
	n, err := scanNotification(q.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's most recent notifications.
func ListNotifications(ctx context.Context, q Querier, userID int64, f NotificationFilter) ([]model.Notification, error) {
	ds := dialect.From("notifications").Prepared(true).
		Where(goqu.C("user_id").Eq(userID))
	if f.IsRead != nil {
		ds = ds.Where(goqu.C("is_read").Eq(*f.IsRead))
	}
	if f.Type != "" {
		ds = ds.Where(goqu.C("type").Eq(f.Type))
	}

	query, args, err := ds.Select(goqu.L(notificationColumns)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(NotificationListLimit).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building notification list: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications returns how many unread notifications a user has.
func CountUnreadNotifications(ctx context.Context, q Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one notification read.
func MarkNotificationRead(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of a user read and
// returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, q Querier, userID int64) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification deletes a notification.
func DeleteNotification(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return nil
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	var payload sql.NullString
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &payload,
		&n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	if payload.Valid {
		n.Payload = []byte(payload.String)
	}
	return n, nil
}
