package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echocast/internal/textutil"
)

// Gateway is the broker's view of a durable queue service: one queue per
// channel, at-least-once delivery, visibility timeouts on receive.
// Implementations translate protocol only; they never touch channel state.
type Gateway interface {
	// CreateQueue provisions a queue for the named channel and returns its handle.
	CreateQueue(ctx context.Context, channelName string) (Handle, error)
	DeleteQueue(ctx context.Context, h Handle) error
	PurgeQueue(ctx context.Context, h Handle) error

	// Send enqueues payload and returns the provider's message id.
	Send(ctx context.Context, h Handle, payload Payload) (string, error)

	// Receive returns up to max deliveries, waiting up to wait for the first
	// one. Received messages become invisible for the queue's visibility
	// timeout but stay in the queue until acknowledged. A receive cut short
	// by a context deadline returns no deliveries and no error.
	Receive(ctx context.Context, h Handle, max int, wait time.Duration) ([]Delivery, error)

	// Ack deletes the delivery identified by receiptHandle.
	Ack(ctx context.Context, h Handle, receiptHandle string) error

	Describe(ctx context.Context, h Handle) (Depth, error)

	// Ping checks that the queue service is reachable.
	Ping(ctx context.Context) error
}

// Handle is an opaque queue reference (a queue URL for SQS).
type Handle string

// Delivery is one received queue message.
type Delivery struct {
	ProviderID    string `json:"provider_id"`
	Body          string `json:"body"`
	ReceiptHandle string `json:"receipt_handle"`
}

// Depth is the approximate state of a queue.
type Depth struct {
	Available int64 `json:"available"`
	InFlight  int64 `json:"in_flight"`
}

// Payload types.
const (
	TypeMessage   = "message"
	TypeBroadcast = "broadcast"
)

// Payload is the JSON body written to the queue for every published message.
// ID is the broker's message id, not the provider's.
type Payload struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
}

var (
	ErrQueueNotFound     = errors.New("queue does not exist")
	ErrAccessDenied      = errors.New("queue access denied")
	ErrUnavailable       = errors.New("queue service unavailable")
	ErrOperationTimeout  = errors.New("queue operation timed out")
	ErrOperationCanceled = errors.New("queue operation canceled")
	ErrInvalidReceipt    = errors.New("invalid receipt handle")
	ErrMalformedPayload  = errors.New("malformed queue payload")
)

func EncodePayload(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses a queue body. Bodies that are not JSON, or that lack
// an id or channel id, are reported as ErrMalformedPayload.
func DecodePayload(body string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ID == "" || p.ChannelID == "" {
		return Payload{}, fmt.Errorf("%w: missing id or channelId", ErrMalformedPayload)
	}
	return p, nil
}

// QueueName builds a provider-safe queue name for a channel:
// "channel-<slug, at most 30 chars>-<unix millis>-<8 random hex>".
// SQS CreateQueue is idempotent by name, so two channels whose slugs match
// in the same millisecond would otherwise get the same queue. The result
// stays well under the 80 character limit.
func QueueName(channelName string, now time.Time) string {
	slug := textutil.Slug(channelName, 30)
	if slug == "" {
		slug = "unnamed"
	}
	return fmt.Sprintf("channel-%s-%d-%s", slug, now.UnixMilli(), uuid.NewString()[:8])
}
