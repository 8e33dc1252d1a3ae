package notification

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

const DefaultTimeout = 5 * time.Second

// Requester is the subset of *nats.Conn the sender uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type deliveryReply struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// NatsSender hands ticket confirmations to the mailer service over NATS
// request/reply. Every failure ends as false.
type NatsSender struct {
	conn    Requester
	subject string
	timeout time.Duration
}

func NewNatsSender(conn Requester, subject string, timeout time.Duration) *NatsSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NatsSender{conn: conn, subject: subject, timeout: timeout}
}

func (s *NatsSender) Send(ctx context.Context, n models.TicketNotification) bool {
	logger := telemetry.Logger.With(
		zap.String("ticket_code", n.TicketCode),
		zap.String("subject", s.subject),
	)

	if n.ArtifactPath != "" && n.Attachment == nil {
		data, err := os.ReadFile(n.ArtifactPath)
		if err != nil {
			logger.Warn("Sending notification without qr attachment", zap.Error(err))
		} else {
			n.Attachment = data
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		logger.Error("Failed to encode notification", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.conn.RequestWithContext(ctx, s.subject, payload)
	if err != nil {
		logger.Warn("Notification request failed", zap.Error(err))
		return false
	}

	var reply deliveryReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		logger.Warn("Invalid notification reply", zap.Error(err))
		return false
	}
	if !reply.Sent {
		logger.Warn("Notification not delivered", zap.String("reason", reply.Error))
	}
	return reply.Sent
}
