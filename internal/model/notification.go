package model

import (
	"encoding/json"
	"time"
)

// Notification is a user-facing event record.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationType enumerates the events users are told about.
type NotificationType string

// Notification types.
const (
	NotifyLoanCreated      NotificationType = "loan_created"
	NotifyLoanDueSoon      NotificationType = "loan_due_soon"
	NotifyLoanOverdue      NotificationType = "loan_overdue"
	NotifyLoanReturned     NotificationType = "loan_returned"
	NotifyFineIssued       NotificationType = "fine_issued"
	NotifyPaymentReceived  NotificationType = "payment_received"
	NotifyReservationReady NotificationType = "reservation_ready"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyLoanCreated, NotifyLoanDueSoon, NotifyLoanOverdue, NotifyLoanReturned,
		NotifyFineIssued, NotifyPaymentReceived, NotifyReservationReady:
		return true
	}
	return false
}
