package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

// MemoryStore keeps events, payments and tickets in process memory with the
// same guarantees as TicketingRepository. It backs local runs without
// DATABASE_URL and the service tests.
type MemoryStore struct {
	mu       sync.Mutex
	events   map[int64]*models.Event
	payments map[string]*models.Payment
	tickets  map[int64]*models.Ticket
	codes    map[string]int64
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[int64]*models.Event),
		payments: make(map[string]*models.Payment),
		tickets:  make(map[int64]*models.Ticket),
		codes:    make(map[string]int64),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddEvent stores a copy of e and returns its id.
func (s *MemoryStore) AddEvent(e models.Event) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.id()
	}
	s.events[e.ID] = &e
	return e.ID
}

// TicketCount is the number of tickets ever issued.
func (s *MemoryStore) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *MemoryStore) GetEvent(_ context.Context, id int64) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || !e.IsActive {
		return nil, fmt.Errorf("event %d: %w", id, models.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, p models.NewPayment) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.Reference]; exists {
		return nil, fmt.Errorf("payment %s: %w", p.Reference, models.ErrDuplicateReference)
	}
	now := time.Now()
	payment := &models.Payment{
		ID:          s.id(),
		UserID:      p.UserID,
		EventID:     p.EventID,
		Reference:   p.Reference,
		AccessCode:  p.AccessCode,
		Email:       p.Email,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
		Status:      models.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.payments[p.Reference] = payment
	cp := *payment
	return &cp, nil
}

func (s *MemoryStore) GetPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePaymentStatus(_ context.Context, reference string, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok || p.Status != models.PaymentPending {
		return fmt.Errorf("payment %s: %w", reference, models.ErrPaymentNotPending)
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IssueTicket(_ context.Context, req models.IssueTicket) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[req.PaymentReference]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", req.PaymentReference, models.ErrNotFound)
	}
	switch p.Status {
	case models.PaymentPending:
	case models.PaymentSuccess:
		return nil, fmt.Errorf("payment %s: %w", req.PaymentReference, models.ErrDuplicateReference)
	default:
		return nil, fmt.Errorf("payment %s is %s: %w", req.PaymentReference, p.Status, models.ErrPaymentNotPending)
	}

	e, ok := s.events[req.EventID]
	if !ok || !e.IsActive || e.TicketsSold >= e.Capacity {
		return nil, fmt.Errorf("event %d: %w", req.EventID, models.ErrCapacityExceeded)
	}
	if _, taken := s.codes[req.Code]; taken {
		return nil, fmt.Errorf("ticket %s: %w", req.Code, models.ErrTicketCodeConflict)
	}

	now := time.Now()
	ticket := &models.Ticket{
		ID:               s.id(),
		UserID:           req.UserID,
		EventID:          req.EventID,
		PaymentReference: req.PaymentReference,
		Code:             req.Code,
		Status:           models.TicketActive,
		AmountPaidMinor:  req.AmountPaidMinor,
		PurchasedAt:      now,
	}
	s.tickets[ticket.ID] = ticket
	s.codes[ticket.Code] = ticket.ID
	e.TicketsSold++
	p.Status = models.PaymentSuccess
	p.TicketID = &ticket.ID
	p.PaidAt = &now
	p.UpdatedAt = now

	cp := *ticket
	return &cp, nil
}

func (s *MemoryStore) SetTicketArtifact(_ context.Context, ticketID int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %d: %w", ticketID, models.ErrNotFound)
	}
	t.ArtifactPath = path
	return nil
}

func (s *MemoryStore) GetTicketByID(_ context.Context, id int64) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %d: %w", id, models.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTicketByCode(_ context.Context, code string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", code, models.ErrNotFound)
	}
	cp := *s.tickets[id]
	return &cp, nil
}

func (s *MemoryStore) ListTicketsByUser(_ context.Context, userID int64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets := []models.Ticket{}
	for _, t := range s.tickets {
		if t.UserID == userID {
			tickets = append(tickets, *t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].PurchasedAt.Equal(tickets[j].PurchasedAt) {
			return tickets[i].PurchasedAt.After(tickets[j].PurchasedAt)
		}
		return tickets[i].ID > tickets[j].ID
	})
	return tickets, nil
}
