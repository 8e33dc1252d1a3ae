package models

import "time"

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

type Ticket struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	EventID          int64        `json:"event_id"`
	PaymentReference string       `json:"payment_reference"`
	Code             string       `json:"ticket_code"`
	Status           TicketStatus `json:"status"`
	AmountPaidMinor  int64        `json:"amount_paid_minor"`
	ArtifactPath     string       `json:"qr_code_path,omitempty"`
	PurchasedAt      time.Time    `json:"purchase_date"`
}

// IssueTicket carries everything needed to create a ticket, mark its payment
// successful and count the sale in a single transaction.
type IssueTicket struct {
	UserID           int64
	EventID          int64
	PaymentReference string
	Code             string
	AmountPaidMinor  int64
}

// TicketIssuedEvent is published once a ticket has been committed.
type TicketIssuedEvent struct {
	TicketCode string    `json:"ticket_code"`
	Reference  string    `json:"reference"`
	EventID    int64     `json:"event_id"`
	UserID     int64     `json:"user_id"`
	IssuedAt   time.Time `json:"issued_at"`
}
