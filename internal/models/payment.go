package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentAbandoned PaymentStatus = "abandoned"
)

// Payment is the typed read model of a payments row.
type Payment struct {
	ID          int64
	UserID      int64
	EventID     int64
	TicketID    *int64
	Reference   string
	AccessCode  string
	Email       string
	AmountMinor int64
	Currency    string
	Status      PaymentStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type NewPayment struct {
	UserID      int64
	EventID     int64
	Reference   string
	AccessCode  string
	Email       string
	AmountMinor int64
	Currency    string
}

// PaymentInitialization is returned to the buyer after the provider accepted the
// transaction and the pending payment row was written.
type PaymentInitialization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaymentStateEvent is published on every payment status change.
type PaymentStateEvent struct {
	Reference     string    `json:"reference"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Timestamp     time.Time `json:"timestamp"`
}

// VerificationRequest asks for asynchronous verification of a reference.
type VerificationRequest struct {
	Reference string `json:"reference"`
}
