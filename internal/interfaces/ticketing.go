package interfaces

import (
	"context"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/gateway"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

// TicketingStore defines the contract for events, payments and tickets data access.
// Lookups return models.ErrNotFound when the row does not exist.
type TicketingStore interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	CreatePayment(ctx context.Context, p models.NewPayment) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	// UpdatePaymentStatus moves a pending payment to a terminal status and
	// returns models.ErrPaymentNotPending if it already left pending.
	UpdatePaymentStatus(ctx context.Context, reference string, status models.PaymentStatus) error
	// IssueTicket creates the ticket, marks the payment successful and counts
	// the sale atomically. It returns models.ErrCapacityExceeded when the event
	// is full, models.ErrDuplicateReference when the payment was already
	// fulfilled and models.ErrTicketCodeConflict when the code is taken.
	IssueTicket(ctx context.Context, req models.IssueTicket) (*models.Ticket, error)
	SetTicketArtifact(ctx context.Context, ticketID int64, path string) error
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	// ListTicketsByUser returns the user's tickets, newest first.
	ListTicketsByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
}

// PaymentGateway is the circuit-protected payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error)
	Snapshot() gateway.Snapshot
}

// ArtifactGenerator renders a scannable image for a ticket code and returns its path.
type ArtifactGenerator interface {
	Generate(ctx context.Context, ticketCode string) (string, error)
}

// NotificationSender reports delivery as a boolean and never returns an error.
type NotificationSender interface {
	Send(ctx context.Context, n models.TicketNotification) bool
}

type EventPublisher interface {
	PaymentStateChanged(ctx context.Context, e models.PaymentStateEvent) error
	TicketIssued(ctx context.Context, e models.TicketIssuedEvent) error
}

// Locker serializes work on a single key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
