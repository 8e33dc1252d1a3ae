package service

import (
	"context"
	"fmt"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

type TicketService struct {
	store interfaces.TicketingStore
}

func NewTicketService(store interfaces.TicketingStore) *TicketService {
	return &TicketService{store: store}
}

func (s *TicketService) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// GetTicket returns models.ErrNotFound for tickets owned by another user.
func (s *TicketService) GetTicket(ctx context.Context, buyer models.Buyer, code string) (*models.Ticket, error) {
	ticket, err := s.store.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != buyer.ID {
		return nil, fmt.Errorf("ticket %s: %w", code, models.ErrNotFound)
	}
	return ticket, nil
}

// ListTickets returns the buyer's own tickets, newest first.
func (s *TicketService) ListTickets(ctx context.Context, buyer models.Buyer) ([]models.Ticket, error) {
	return s.store.ListTicketsByUser(ctx, buyer.ID)
}
