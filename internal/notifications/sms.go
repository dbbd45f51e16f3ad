// Package notifications hands outgoing SMS messages to the outbox queue
// consumed by the SMS gateway service, and records job metrics in
// CloudWatch.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"agriweather/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SMSMessage is the outbox payload. The gateway delivers Body to To.
type SMSMessage struct {
	ID        string             `json:"id"`
	To        string             `json:"to"`
	Body      string             `json:"body"`
	Kind      types.AdvisoryKind `json:"kind"`
	UserID    string             `json:"user_id"`
	FarmID    string             `json:"farm_id,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Outbox publishes SMS messages to an SQS queue. On a FIFO queue messages
// are grouped per user and deduplicated by message ID.
type Outbox struct {
	client   SQSSender
	queueURL string
	fifo     bool
	clock    types.Clock
	logger   *slog.Logger
}

// NewOutbox creates an Outbox targeting queueURL.
func NewOutbox(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *Outbox {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		clock:    clock,
		logger:   logger,
	}
}

// Publish fills in the message ID and timestamp when absent and sends the
// message. It returns the message ID. An empty destination or body is a
// validation error; SQS failures are upstream_queue_unavailable.
func (o *Outbox) Publish(ctx context.Context, msg SMSMessage) (string, error) {
	if msg.To == "" {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"sms destination is required", nil, map[string]any{"field": "to"})
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"sms body is required", nil, map[string]any{"field": "body"})
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = o.clock.Now().UTC()
	}
	if msg.RequestID == "" {
		msg.RequestID = types.GetRequestID(ctx)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode sms message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(o.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if o.fifo {
		input.MessageGroupId = aws.String(msg.UserID)
		input.MessageDeduplicationId = aws.String(msg.ID)
	}

	if _, err := o.client.SendMessage(ctx, input); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamQueue,
			"failed to publish sms message", err, map[string]any{"message_id": msg.ID})
	}

	o.logger.InfoContext(ctx, "sms message published",
		"message_id", msg.ID,
		"kind", string(msg.Kind),
		"user_id", msg.UserID,
		"farm_id", msg.FarmID,
	)
	return msg.ID, nil
}
