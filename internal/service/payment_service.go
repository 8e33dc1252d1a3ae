package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/gateway"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

// Provider statuses reported by verify.
const (
	providerSuccess   = "success"
	providerFailed    = "failed"
	providerReversed  = "reversed"
	providerAbandoned = "abandoned"
)

// MessageReader is the subset of *kafka.Reader the verification consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type PaymentService struct {
	store        interfaces.TicketingStore
	gateway      interfaces.PaymentGateway
	orchestrator *Orchestrator
	publisher    interfaces.EventPublisher
	newReference func() string
}

func NewPaymentService(
	store interfaces.TicketingStore,
	gw interfaces.PaymentGateway,
	orchestrator *Orchestrator,
	publisher interfaces.EventPublisher,
) *PaymentService {
	return &PaymentService{
		store:        store,
		gateway:      gw,
		orchestrator: orchestrator,
		publisher:    publisher,
		newReference: NewReference,
	}
}

// NewReference returns TXN- followed by 32 upper-case hex characters.
func NewReference() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// InitializePayment opens a provider transaction for one ticket. Sold-out
// events are rejected before the provider is contacted.
func (s *PaymentService) InitializePayment(ctx context.Context, buyer models.Buyer, eventID int64) (*models.PaymentInitialization, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "payment.initialize")
	defer span.End()
	span.SetAttributes(attribute.Int64("event.id", eventID))

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if event.SoldOut() {
		err := fmt.Errorf("event %d: %w", eventID, models.ErrCapacityExceeded)
		telemetry.RecordError(span, err)
		return nil, err
	}

	reference := s.newReference()
	span.SetAttributes(attribute.String("payment.reference", reference))

	res, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       buyer.Email,
		AmountMinor: event.PriceMinor,
		Reference:   reference,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	_, err = s.store.CreatePayment(ctx, models.NewPayment{
		UserID:      buyer.ID,
		EventID:     event.ID,
		Reference:   reference,
		AccessCode:  res.AccessCode,
		Email:       buyer.Email,
		AmountMinor: event.PriceMinor,
		Currency:    event.Currency,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to record payment %s: %w", reference, err)
	}

	s.publishStateChange(ctx, reference, "", models.PaymentPending)

	telemetry.Logger.Info("Payment initialized",
		zap.String("reference", reference),
		zap.Int64("event_id", event.ID),
		zap.Int64("amount_minor", event.PriceMinor),
	)

	return &models.PaymentInitialization{
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		Reference:        reference,
	}, nil
}

// VerifyPayment verifies a payment owned by buyer and fulfills it on success.
func (s *PaymentService) VerifyPayment(ctx context.Context, buyer models.Buyer, reference string) (*models.FulfillmentOutcome, error) {
	payment, err := s.GetPayment(ctx, buyer, reference)
	if err != nil {
		return failedOutcome(reference, err), err
	}
	return s.verify(ctx, payment)
}

// VerifyReference is VerifyPayment without the ownership check, for
// asynchronous verification requests.
func (s *PaymentService) VerifyReference(ctx context.Context, reference string) (*models.FulfillmentOutcome, error) {
	payment, err := s.store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return failedOutcome(reference, err), err
	}
	return s.verify(ctx, payment)
}

// GetPayment hides payments owned by someone else behind models.ErrNotFound.
func (s *PaymentService) GetPayment(ctx context.Context, buyer models.Buyer, reference string) (*models.Payment, error) {
	payment, err := s.store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.UserID != buyer.ID {
		return nil, fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	return payment, nil
}

func (s *PaymentService) GatewayStatus() gateway.Snapshot {
	return s.gateway.Snapshot()
}

func (s *PaymentService) verify(ctx context.Context, payment *models.Payment) (*models.FulfillmentOutcome, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "payment.verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", payment.Reference))

	reference := payment.Reference

	switch payment.Status {
	case models.PaymentSuccess:
		return s.orchestrator.Fulfill(ctx, reference)
	case models.PaymentPending:
	default:
		err := fmt.Errorf("payment %s is %s: %w", reference, payment.Status, models.ErrPaymentNotPending)
		return failedOutcome(reference, err), err
	}

	res, err := s.gateway.Verify(ctx, reference)
	if errors.Is(err, models.ErrProviderRejected) {
		s.markStatus(ctx, reference, models.PaymentFailed)
		return failedOutcome(reference, err), err
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return failedOutcome(reference, err), err
	}

	switch res.Status {
	case providerSuccess:
		if res.AmountMinor < payment.AmountMinor {
			err := fmt.Errorf("%w: paid %d of %d", models.ErrProviderRejected, res.AmountMinor, payment.AmountMinor)
			s.markStatus(ctx, reference, models.PaymentFailed)
			return failedOutcome(reference, err), err
		}
		outcome, err := s.orchestrator.Fulfill(ctx, reference)
		if errors.Is(err, models.ErrCapacityExceeded) {
			telemetry.Logger.Warn("Paid reference could not get a seat; refund required",
				zap.String("reference", reference),
				zap.Int64("event_id", payment.EventID),
			)
			s.markStatus(ctx, reference, models.PaymentFailed)
		}
		return outcome, err

	case providerFailed, providerReversed:
		s.markStatus(ctx, reference, models.PaymentFailed)
	case providerAbandoned:
		s.markStatus(ctx, reference, models.PaymentAbandoned)
	default:
		err := fmt.Errorf("payment %s is %s: %w", reference, res.Status, models.ErrPaymentNotSettled)
		return failedOutcome(reference, err), err
	}

	err = fmt.Errorf("%w: provider reported %s", models.ErrProviderRejected, res.Status)
	telemetry.RecordError(span, err)
	return failedOutcome(reference, err), err
}

func (s *PaymentService) markStatus(ctx context.Context, reference string, status models.PaymentStatus) {
	if err := s.store.UpdatePaymentStatus(ctx, reference, status); err != nil {
		telemetry.Logger.Warn("Failed to update payment status",
			zap.String("reference", reference),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	s.publishStateChange(ctx, reference, models.PaymentPending, status)
}

func (s *PaymentService) publishStateChange(ctx context.Context, reference string, from, to models.PaymentStatus) {
	err := s.publisher.PaymentStateChanged(ctx, models.PaymentStateEvent{
		Reference:     reference,
		State:         string(to),
		PreviousState: string(from),
		Timestamp:     time.Now(),
	})
	if err != nil {
		telemetry.Logger.Warn("Failed to publish payment state change",
			zap.String("reference", reference),
			zap.Error(err),
		)
	}
}

// ConsumeVerificationRequests verifies references published on
// payment.verification.requested until ctx is cancelled.
func (s *PaymentService) ConsumeVerificationRequests(ctx context.Context, reader MessageReader) {
	telemetry.Logger.Info("Started consuming payment.verification.requested events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		var req models.VerificationRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil || req.Reference == "" {
			telemetry.Logger.Error("Error unmarshaling verification request",
				zap.ByteString("value", msg.Value),
				zap.Error(err),
			)
			continue
		}

		outcome, err := s.VerifyReference(ctx, req.Reference)
		if err != nil {
			telemetry.Logger.Error("Error verifying payment",
				zap.String("reference", req.Reference),
				zap.Error(err),
			)
			continue
		}

		telemetry.Logger.Info("Payment verified",
			zap.String("reference", req.Reference),
			zap.String("ticket_code", outcome.TicketCode),
		)
	}
}

func failedOutcome(reference string, err error) *models.FulfillmentOutcome {
	return &models.FulfillmentOutcome{Reference: reference, FailureReason: err.Error()}
}
