package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

func newMockRepo(t *testing.T) (*TicketingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTicketingRepository(db), mock
}

func issueRequest() models.IssueTicket {
	return models.IssueTicket{
		UserID:           7,
		EventID:          3,
		PaymentReference: "TXN-1",
		Code:             "TKT-AAAA",
		AmountPaidMinor:  500000,
	}
}

func TestIssueTicket_CommitsAllSteps(t *testing.T) {
	repo, mock := newMockRepo(t)
	purchased := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments WHERE reference = \$1 FOR UPDATE`).
		WithArgs("TXN-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE events SET tickets_sold = tickets_sold \+ 1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO tickets`).
		WithArgs(int64(7), int64(3), "TXN-1", "TKT-AAAA", models.TicketActive, int64(500000)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "purchase_date"}).AddRow(11, "active", purchased))
	mock.ExpectExec(`UPDATE payments SET status = \$1, ticket_id = \$2`).
		WithArgs(models.PaymentSuccess, int64(11), "TXN-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ticket, err := repo.IssueTicket(context.Background(), issueRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(11), ticket.ID)
	assert.Equal(t, models.TicketActive, ticket.Status)
	assert.Equal(t, "TKT-AAAA", ticket.Code)
	assert.Equal(t, purchased, ticket.PurchasedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueTicket_SoldOutRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.IssueTicket(context.Background(), issueRequest())
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueTicket_AlreadyFulfilled(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("success"))
	mock.ExpectRollback()

	_, err := repo.IssueTicket(context.Background(), issueRequest())
	assert.ErrorIs(t, err, models.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueTicket_FailedPaymentIsNotPending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))
	mock.ExpectRollback()

	_, err := repo.IssueTicket(context.Background(), issueRequest())
	assert.ErrorIs(t, err, models.ErrPaymentNotPending)
}

func TestIssueTicket_CodeConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO tickets`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tickets_ticket_code_key"})
	mock.ExpectRollback()

	_, err := repo.IssueTicket(context.Background(), issueRequest())
	assert.ErrorIs(t, err, models.ErrTicketCodeConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueTicket_DuplicateTicketForReference(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE events SET tickets_sold`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO tickets`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tickets_payment_reference_key"})
	mock.ExpectRollback()

	_, err := repo.IssueTicket(context.Background(), issueRequest())
	assert.ErrorIs(t, err, models.ErrDuplicateReference)
}

func TestUpdatePaymentStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE payments SET status = \$1`).
		WithArgs(models.PaymentFailed, "TXN-1", models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdatePaymentStatus(context.Background(), "TXN-1", models.PaymentFailed))

	mock.ExpectExec(`UPDATE payments SET status = \$1`).
		WithArgs(models.PaymentFailed, "TXN-2", models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdatePaymentStatus(context.Background(), "TXN-2", models.PaymentFailed)
	assert.ErrorIs(t, err, models.ErrPaymentNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentByReference(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM payments WHERE reference = \$1`).
		WithArgs("TXN-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "event_id", "ticket_id", "reference", "access_code", "email",
			"amount_minor", "currency", "status", "paid_at", "created_at", "updated_at",
		}).AddRow(1, 7, 3, 11, "TXN-1", nil, "buyer@example.com", 500000, "NGN", "success", created, created, created))

	p, err := repo.GetPaymentByReference(context.Background(), "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, p.Status)
	require.NotNil(t, p.TicketID)
	assert.Equal(t, int64(11), *p.TicketID)
	assert.Empty(t, p.AccessCode)
	require.NotNil(t, p.PaidAt)

	mock.ExpectQuery(`FROM payments WHERE reference = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetPaymentByReference(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreatePayment_DuplicateReference(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_reference_key"})

	_, err := repo.CreatePayment(context.Background(), models.NewPayment{Reference: "TXN-1"})
	assert.ErrorIs(t, err, models.ErrDuplicateReference)
}

func TestGetEvent_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM events WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetEvent(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetTicketByCode(t *testing.T) {
	repo, mock := newMockRepo(t)
	purchased := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tickets WHERE ticket_code = \$1`).
		WithArgs("TKT-AAAA").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "event_id", "payment_reference", "ticket_code", "status",
			"amount_paid_minor", "qr_code_path", "purchase_date",
		}).AddRow(11, 7, 3, "TXN-1", "TKT-AAAA", "active", 500000, "qr_codes/TKT-AAAA.png", purchased))

	ticket, err := repo.GetTicketByCode(context.Background(), "TKT-AAAA")
	require.NoError(t, err)
	assert.Equal(t, "qr_codes/TKT-AAAA.png", ticket.ArtifactPath)
	assert.Equal(t, int64(7), ticket.UserID)
}

func TestListTicketsByUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	newer := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	older := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{
		"id", "user_id", "event_id", "payment_reference", "ticket_code", "status",
		"amount_paid_minor", "qr_code_path", "purchase_date",
	}

	mock.ExpectQuery(`FROM tickets\s+WHERE user_id = \$1 ORDER BY purchase_date DESC`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(12, 7, 3, "TXN-2", "TKT-BBBB", "active", 500000, nil, newer).
			AddRow(11, 7, 3, "TXN-1", "TKT-AAAA", "active", 500000, "qr_codes/TKT-AAAA.png", older))

	tickets, err := repo.ListTicketsByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "TKT-BBBB", tickets[0].Code)
	assert.Empty(t, tickets[0].ArtifactPath)
	assert.Equal(t, "qr_codes/TKT-AAAA.png", tickets[1].ArtifactPath)

	mock.ExpectQuery(`FROM tickets`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(columns))
	tickets, err = repo.ListTicketsByUser(context.Background(), 8)
	require.NoError(t, err)
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)
	assert.NoError(t, mock.ExpectationsWereMet())
}
