package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

const (
	maxTicketCodeAttempts = 3
	defaultLockWait       = 15 * time.Second
)

// Orchestrator turns a provider-confirmed payment into a ticket. Issuing the
// ticket is the only step that can fail the purchase; the QR artifact and the
// confirmation notification are best-effort and only show up as flags.
type Orchestrator struct {
	store     interfaces.TicketingStore
	artifacts interfaces.ArtifactGenerator
	notifier  interfaces.NotificationSender
	publisher interfaces.EventPublisher
	locker    interfaces.Locker
	newCode   func() (string, error)
	lockWait  time.Duration
}

func NewOrchestrator(
	store interfaces.TicketingStore,
	artifacts interfaces.ArtifactGenerator,
	notifier interfaces.NotificationSender,
	publisher interfaces.EventPublisher,
	locker interfaces.Locker,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		artifacts: artifacts,
		notifier:  notifier,
		publisher: publisher,
		locker:    locker,
		newCode:   NewTicketCode,
		lockWait:  defaultLockWait,
	}
}

// NewTicketCode returns TKT- followed by 16 upper-case hex characters.
func NewTicketCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "TKT-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// issued is what the locked section hands to the best-effort steps.
type issued struct {
	payment          *models.Payment
	ticket           *models.Ticket
	alreadyFulfilled bool
}

// Fulfill issues the ticket for a payment the provider reported as successful.
// Calling it again for a fulfilled reference returns the existing ticket.
func (o *Orchestrator) Fulfill(ctx context.Context, reference string) (*models.FulfillmentOutcome, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "fulfillment.fulfill")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	logger := telemetry.Logger.With(zap.String("reference", reference))

	res, err := o.issueLocked(ctx, reference)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.Fulfillments.WithLabelValues(failureLabel(err)).Inc()
		logger.Error("Fulfillment failed", zap.Error(err))
		return &models.FulfillmentOutcome{
			Reference:     reference,
			FailureReason: err.Error(),
		}, err
	}

	outcome := &models.FulfillmentOutcome{
		Success:          true,
		Reference:        reference,
		TicketCode:       res.ticket.Code,
		ArtifactPath:     res.ticket.ArtifactPath,
		AlreadyFulfilled: res.alreadyFulfilled,
	}
	span.SetAttributes(attribute.String("ticket.code", res.ticket.Code))

	if res.alreadyFulfilled {
		outcome.CodeArtifactGenerated = res.ticket.ArtifactPath != ""
		telemetry.Fulfillments.WithLabelValues("already_fulfilled").Inc()
		logger.Info("Payment already fulfilled", zap.String("ticket_code", res.ticket.Code))
		return outcome, nil
	}

	o.publishStateChange(ctx, reference, models.PaymentPending, models.PaymentSuccess)

	path, artifact := o.generateArtifact(ctx, res.ticket)
	outcome.ArtifactPath = path

	notification := o.notify(ctx, res.payment, res.ticket, path)
	outcome.Apply(artifact, notification)

	o.publishTicketIssued(ctx, res.ticket)

	telemetry.Fulfillments.WithLabelValues("issued").Inc()
	logger.Info("Ticket issued",
		zap.String("ticket_code", res.ticket.Code),
		zap.Bool("code_artifact_generated", outcome.CodeArtifactGenerated),
		zap.Bool("notification_sent", outcome.NotificationSent),
	)
	return outcome, nil
}

// issueLocked holds the reference lock only while the ticket is written.
func (o *Orchestrator) issueLocked(ctx context.Context, reference string) (*issued, error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.lockWait)
	defer cancel()

	release, err := o.locker.Acquire(lockCtx, reference)
	if err != nil {
		return nil, err
	}
	defer release()

	payment, err := o.store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.PaymentSuccess:
		return o.existing(ctx, payment)
	case models.PaymentPending:
	default:
		return nil, fmt.Errorf("payment %s is %s: %w", reference, payment.Status, models.ErrPaymentNotPending)
	}

	ticket, err := o.createTicket(ctx, payment)
	if errors.Is(err, models.ErrDuplicateReference) {
		payment, err = o.store.GetPaymentByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		return o.existing(ctx, payment)
	}
	if err != nil {
		return nil, err
	}

	return &issued{payment: payment, ticket: ticket}, nil
}

func (o *Orchestrator) existing(ctx context.Context, payment *models.Payment) (*issued, error) {
	if payment.TicketID == nil {
		return nil, fmt.Errorf("payment %s succeeded without a ticket", payment.Reference)
	}
	ticket, err := o.store.GetTicketByID(ctx, *payment.TicketID)
	if err != nil {
		return nil, err
	}
	return &issued{payment: payment, ticket: ticket, alreadyFulfilled: true}, nil
}

func (o *Orchestrator) createTicket(ctx context.Context, payment *models.Payment) (*models.Ticket, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "fulfillment.create_ticket")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < maxTicketCodeAttempts; attempt++ {
		code, err := o.newCode()
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to generate ticket code: %w", err)
		}

		ticket, err := o.store.IssueTicket(ctx, models.IssueTicket{
			UserID:           payment.UserID,
			EventID:          payment.EventID,
			PaymentReference: payment.Reference,
			Code:             code,
			AmountPaidMinor:  payment.AmountMinor,
		})
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, models.ErrTicketCodeConflict) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		lastErr = err
	}

	telemetry.RecordError(span, lastErr)
	return nil, fmt.Errorf("gave up after %d ticket code collisions: %w", maxTicketCodeAttempts, lastErr)
}

func (o *Orchestrator) generateArtifact(ctx context.Context, ticket *models.Ticket) (string, models.StepResult) {
	ctx, span := telemetry.Tracer.Start(ctx, "fulfillment.code_artifact")
	defer span.End()

	path, err := o.artifacts.Generate(ctx, ticket.Code)
	if err == nil {
		err = o.store.SetTicketArtifact(ctx, ticket.ID, path)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		o.stepFailed("code_artifact", ticket, err)
		return "", models.StepFailed(err)
	}

	ticket.ArtifactPath = path
	return path, models.StepOK()
}

func (o *Orchestrator) notify(ctx context.Context, payment *models.Payment, ticket *models.Ticket, artifactPath string) models.StepResult {
	ctx, span := telemetry.Tracer.Start(ctx, "fulfillment.notify")
	defer span.End()

	n := models.TicketNotification{
		Recipient:    payment.Email,
		TicketCode:   ticket.Code,
		ArtifactPath: artifactPath,
	}

	if event, err := o.store.GetEvent(ctx, ticket.EventID); err == nil {
		n.EventTitle = event.Title
		n.EventDate = event.EventDate.Format(time.RFC1123)
		n.EventLocation = event.Location
	} else {
		telemetry.Logger.Warn("Sending notification without event details",
			zap.Int64("event_id", ticket.EventID),
			zap.Error(err),
		)
	}

	if !o.notifier.Send(ctx, n) {
		err := errors.New("notification not delivered")
		telemetry.RecordError(span, err)
		o.stepFailed("notification", ticket, err)
		return models.StepFailed(err)
	}
	return models.StepOK()
}

func (o *Orchestrator) publishStateChange(ctx context.Context, reference string, from, to models.PaymentStatus) {
	err := o.publisher.PaymentStateChanged(ctx, models.PaymentStateEvent{
		Reference:     reference,
		State:         string(to),
		PreviousState: string(from),
		Timestamp:     time.Now(),
	})
	if err != nil {
		telemetry.FulfillmentStepFailures.WithLabelValues("event_publish").Inc()
		telemetry.Logger.Warn("Failed to publish payment state change",
			zap.String("reference", reference),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publishTicketIssued(ctx context.Context, ticket *models.Ticket) {
	err := o.publisher.TicketIssued(ctx, models.TicketIssuedEvent{
		TicketCode: ticket.Code,
		Reference:  ticket.PaymentReference,
		EventID:    ticket.EventID,
		UserID:     ticket.UserID,
		IssuedAt:   ticket.PurchasedAt,
	})
	if err != nil {
		telemetry.FulfillmentStepFailures.WithLabelValues("event_publish").Inc()
		telemetry.Logger.Warn("Failed to publish ticket issued event",
			zap.String("ticket_code", ticket.Code),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) stepFailed(step string, ticket *models.Ticket, err error) {
	telemetry.FulfillmentStepFailures.WithLabelValues(step).Inc()
	telemetry.Logger.Warn("Best-effort fulfillment step failed",
		zap.String("step", step),
		zap.String("reference", ticket.PaymentReference),
		zap.String("ticket_code", ticket.Code),
		zap.Error(err),
	)
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, models.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
