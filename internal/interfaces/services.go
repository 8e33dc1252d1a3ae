package interfaces

import (
	"context"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/gateway"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

// PaymentService is what the HTTP layer needs from the payment flow.
type PaymentService interface {
	InitializePayment(ctx context.Context, buyer models.Buyer, eventID int64) (*models.PaymentInitialization, error)
	VerifyPayment(ctx context.Context, buyer models.Buyer, reference string) (*models.FulfillmentOutcome, error)
	GetPayment(ctx context.Context, buyer models.Buyer, reference string) (*models.Payment, error)
	GatewayStatus() gateway.Snapshot
}

type TicketService interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetTicket(ctx context.Context, buyer models.Buyer, code string) (*models.Ticket, error)
	ListTickets(ctx context.Context, buyer models.Buyer) ([]models.Ticket, error)
}
