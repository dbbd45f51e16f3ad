package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"agriweather/internal/types"
)

// mockSQSSender records all SendMessage calls for verification.
type mockSQSSender struct {
	mu        sync.Mutex
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

var fixedNow = time.Date(2024, 1, 5, 17, 30, 0, 0, time.UTC)

func TestOutbox_Publish(t *testing.T) {
	sender := &mockSQSSender{}
	outbox := NewOutbox(sender, "https://sqs.me-south-1.amazonaws.com/123/sms-outbox", types.FixedClock{T: fixedNow}, nil)

	ctx := types.WithRequestID(context.Background(), "req-1")
	id, err := outbox.Publish(ctx, SMSMessage{
		To:     "+989121111111",
		Body:   "There is a high risk of frost.",
		Kind:   types.AdvisoryFrost,
		UserID: "user_1",
		FarmID: "farm_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated message id")
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(sender.calls))
	}

	call := sender.calls[0]
	if call.MessageGroupId != nil || call.MessageDeduplicationId != nil {
		t.Error("standard queues must not carry FIFO attributes")
	}

	var sent SMSMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &sent); err != nil {
		t.Fatalf("failed to unmarshal sent body: %v", err)
	}
	if sent.ID != id {
		t.Errorf("body id %q does not match returned id %q", sent.ID, id)
	}
	if !sent.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected created_at %v, got %v", fixedNow, sent.CreatedAt)
	}
	if sent.RequestID != "req-1" {
		t.Errorf("expected request id to propagate, got %q", sent.RequestID)
	}
	if sent.Kind != types.AdvisoryFrost || sent.FarmID != "farm_1" {
		t.Errorf("unexpected payload: %+v", sent)
	}
}

func TestOutbox_FIFOAttributes(t *testing.T) {
	sender := &mockSQSSender{}
	outbox := NewOutbox(sender, "https://sqs.me-south-1.amazonaws.com/123/sms-outbox.fifo", nil, nil)

	_, err := outbox.Publish(context.Background(), SMSMessage{ID: "msg-1", To: "+98912", Body: "hi", UserID: "user_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := sender.calls[0]
	if call.MessageGroupId == nil || *call.MessageGroupId != "user_1" {
		t.Errorf("expected group id user_1, got %v", call.MessageGroupId)
	}
	if call.MessageDeduplicationId == nil || *call.MessageDeduplicationId != "msg-1" {
		t.Errorf("expected dedupe id msg-1, got %v", call.MessageDeduplicationId)
	}
}

func TestOutbox_Validation(t *testing.T) {
	sender := &mockSQSSender{}
	outbox := NewOutbox(sender, "q", nil, nil)

	for _, msg := range []SMSMessage{{Body: "hi"}, {To: "+98912", Body: "  "}} {
		_, err := outbox.Publish(context.Background(), msg)
		if types.CodeOf(err) != types.ErrCodeValidationMissingField {
			t.Errorf("expected missing field error for %+v, got %v", msg, err)
		}
	}
	if len(sender.calls) != 0 {
		t.Errorf("invalid messages must not be sent, got %d calls", len(sender.calls))
	}
}

func TestOutbox_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("throttled")}
	outbox := NewOutbox(sender, "q", nil, nil)

	_, err := outbox.Publish(context.Background(), SMSMessage{To: "+98912", Body: "hi"})
	if types.CodeOf(err) != types.ErrCodeUpstreamQueue {
		t.Errorf("expected %s, got %v", types.ErrCodeUpstreamQueue, err)
	}
}
