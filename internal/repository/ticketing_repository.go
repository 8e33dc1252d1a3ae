package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

const (
	uniqueViolation = "23505"

	constraintPaymentReference = "payments_reference_key"
	constraintTicketReference  = "tickets_payment_reference_key"
	constraintTicketCode       = "tickets_ticket_code_key"
)

type TicketingRepository struct {
	db *sql.DB
}

func NewTicketingRepository(db *sql.DB) *TicketingRepository {
	return &TicketingRepository{db: db}
}

func (r *TicketingRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			location VARCHAR(255) NOT NULL,
			event_date TIMESTAMPTZ NOT NULL,
			price_minor BIGINT NOT NULL CHECK (price_minor >= 0),
			currency VARCHAR(3) NOT NULL DEFAULT 'NGN',
			capacity INTEGER NOT NULL CHECK (capacity > 0),
			tickets_sold INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT events_sold_within_capacity CHECK (tickets_sold >= 0 AND tickets_sold <= capacity)
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL REFERENCES events(id),
			payment_reference VARCHAR(100) NOT NULL,
			ticket_code VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			amount_paid_minor BIGINT NOT NULL,
			qr_code_path VARCHAR(255),
			purchase_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT tickets_payment_reference_key UNIQUE (payment_reference),
			CONSTRAINT tickets_ticket_code_key UNIQUE (ticket_code)
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL REFERENCES events(id),
			ticket_id BIGINT REFERENCES tickets(id),
			reference VARCHAR(100) NOT NULL,
			access_code VARCHAR(100),
			email VARCHAR(255) NOT NULL,
			amount_minor BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'NGN',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			paid_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT payments_reference_key UNIQUE (reference)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *TicketingRepository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var e models.Event
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, location, event_date, price_minor, currency, capacity, tickets_sold, is_active
		FROM events WHERE id = $1 AND is_active = TRUE
	`, id).Scan(&e.ID, &e.Title, &e.Location, &e.EventDate, &e.PriceMinor, &e.Currency, &e.Capacity, &e.TicketsSold, &e.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *TicketingRepository) CreatePayment(ctx context.Context, p models.NewPayment) (*models.Payment, error) {
	payment := models.Payment{
		UserID:      p.UserID,
		EventID:     p.EventID,
		Reference:   p.Reference,
		AccessCode:  p.AccessCode,
		Email:       p.Email,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, event_id, reference, access_code, email, amount_minor, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, created_at, updated_at
	`, p.UserID, p.EventID, p.Reference, p.AccessCode, p.Email, p.AmountMinor, p.Currency, models.PaymentPending,
	).Scan(&payment.ID, &payment.Status, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &payment, nil
}

func (r *TicketingRepository) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var (
		p        models.Payment
		ticketID sql.NullInt64
		access   sql.NullString
		paidAt   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_id, ticket_id, reference, access_code, email, amount_minor, currency, status, paid_at, created_at, updated_at
		FROM payments WHERE reference = $1
	`, reference).Scan(&p.ID, &p.UserID, &p.EventID, &ticketID, &p.Reference, &access, &p.Email,
		&p.AmountMinor, &p.Currency, &p.Status, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if ticketID.Valid {
		p.TicketID = &ticketID.Int64
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	p.AccessCode = access.String
	return &p, nil
}

func (r *TicketingRepository) UpdatePaymentStatus(ctx context.Context, reference string, status models.PaymentStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW()
		WHERE reference = $2 AND status = $3
	`, status, reference, models.PaymentPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment %s: %w", reference, models.ErrPaymentNotPending)
	}
	return nil
}

func (r *TicketingRepository) IssueTicket(ctx context.Context, req models.IssueTicket) (*models.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := claimPendingPayment(ctx, tx, req.PaymentReference); err != nil {
		return nil, err
	}
	if err := incrementSold(ctx, tx, req.EventID); err != nil {
		return nil, err
	}
	ticket, err := createTicket(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := markPaymentSucceeded(ctx, tx, req.PaymentReference, ticket.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ticket, nil
}

// claimPendingPayment locks the payment row for the rest of the transaction.
func claimPendingPayment(ctx context.Context, tx *sql.Tx, reference string) error {
	var status models.PaymentStatus
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM payments WHERE reference = $1 FOR UPDATE`, reference).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	if err != nil {
		return err
	}
	switch status {
	case models.PaymentPending:
		return nil
	case models.PaymentSuccess:
		return fmt.Errorf("payment %s: %w", reference, models.ErrDuplicateReference)
	default:
		return fmt.Errorf("payment %s is %s: %w", reference, status, models.ErrPaymentNotPending)
	}
}

// incrementSold is a compare-and-swap on the sold counter; it never lets
// tickets_sold pass capacity.
func incrementSold(ctx context.Context, tx *sql.Tx, eventID int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE events SET tickets_sold = tickets_sold + 1, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE AND tickets_sold < capacity
	`, eventID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("event %d: %w", eventID, models.ErrCapacityExceeded)
	}
	return nil
}

func createTicket(ctx context.Context, tx *sql.Tx, req models.IssueTicket) (*models.Ticket, error) {
	ticket := models.Ticket{
		UserID:           req.UserID,
		EventID:          req.EventID,
		PaymentReference: req.PaymentReference,
		Code:             req.Code,
		AmountPaidMinor:  req.AmountPaidMinor,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO tickets (user_id, event_id, payment_reference, ticket_code, status, amount_paid_minor)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, purchase_date
	`, req.UserID, req.EventID, req.PaymentReference, req.Code, models.TicketActive, req.AmountPaidMinor,
	).Scan(&ticket.ID, &ticket.Status, &ticket.PurchasedAt)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &ticket, nil
}

func markPaymentSucceeded(ctx context.Context, tx *sql.Tx, reference string, ticketID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = $1, ticket_id = $2, paid_at = NOW(), updated_at = NOW()
		WHERE reference = $3
	`, models.PaymentSuccess, ticketID, reference)
	return err
}

func (r *TicketingRepository) SetTicketArtifact(ctx context.Context, ticketID int64, path string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET qr_code_path = $1 WHERE id = $2`, path, ticketID)
	return err
}

const ticketColumns = `id, user_id, event_id, payment_reference, ticket_code, status, amount_paid_minor, qr_code_path, purchase_date`

func (r *TicketingRepository) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %d: %w", id, models.ErrNotFound)
	}
	return ticket, err
}

func (r *TicketingRepository) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_code = $1`, code)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", code, models.ErrNotFound)
	}
	return ticket, err
}

func (r *TicketingRepository) ListTicketsByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE user_id = $1 ORDER BY purchase_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets for user %d: %w", userID, err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		t    models.Ticket
		path sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.EventID, &t.PaymentReference, &t.Code, &t.Status,
		&t.AmountPaidMinor, &path, &t.PurchasedAt)
	if err != nil {
		return nil, err
	}
	t.ArtifactPath = path.String
	return &t, nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintTicketCode:
		return fmt.Errorf("%s: %w", pqErr.Detail, models.ErrTicketCodeConflict)
	case constraintPaymentReference, constraintTicketReference:
		return fmt.Errorf("%s: %w", pqErr.Detail, models.ErrDuplicateReference)
	default:
		return err
	}
}
