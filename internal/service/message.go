package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository"
	"go.uber.org/zap"
)

const (
	maxContentBytes     = 4096
	defaultMessageLimit = 50
)

// Notifier is the fan-out sink. Calls must return without waiting for
// delivery.
type Notifier interface {
	Notify(channelID string, msg models.Message)
	NotifyBroadcast(channelID string, msg models.Message, subscriberCount int)
}

// MessageConfig tunes the queue reads.
type MessageConfig struct {
	ReconcileWait  time.Duration // long-poll wait for reconciliation pulls
	ReconcileBatch int           // max messages per pull
	PollWait       time.Duration // long-poll wait for the consume path
}

// BroadcastResult is what a broadcast returns. SubscriberCount is read
// before the send and may already be stale when the caller sees it.
type BroadcastResult struct {
	Message           models.Message `json:"message"`
	SubscriberCount   int            `json:"subscriber_count"`
	ProviderMessageID string         `json:"provider_message_id"`
}

type MessageStats struct {
	TotalChannels      int `json:"total_channels"`
	TotalSubscriptions int `json:"total_subscriptions"`
	TotalMessages      int `json:"total_messages"`
}

// MessageService is the message store and reconciler.
//
// Every path that puts a message into the cache (publish, reconcile, poll)
// goes through MessageRepository.Ingest, which drops ids it has already
// seen. Reconcile never acknowledges: the queue acts as a replay log and
// repeated pulls may see the same messages again.
type MessageService struct {
	channels repository.ChannelRepository
	subs     repository.SubscriptionRepository
	messages repository.MessageRepository
	gateway  queue.Gateway
	names    NameResolver
	notifier Notifier
	cfg      MessageConfig
	now      func() time.Time
	logger   *zap.Logger
}

var _ Reconciler = (*MessageService)(nil)

func NewMessageService(
	channels repository.ChannelRepository,
	subs repository.SubscriptionRepository,
	messages repository.MessageRepository,
	gateway queue.Gateway,
	names NameResolver,
	notifier Notifier,
	cfg MessageConfig,
	logger *zap.Logger,
) *MessageService {
	if cfg.ReconcileWait < 0 {
		cfg.ReconcileWait = 0
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 10
	}
	if cfg.PollWait < 0 {
		cfg.PollWait = 0
	}
	return &MessageService{
		channels: channels,
		subs:     subs,
		messages: messages,
		gateway:  gateway,
		names:    names,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Publish enqueues a message, caches it and pushes it to the channel's
// room. Nothing is cached unless the queue accepted the message.
func (s *MessageService) Publish(ctx context.Context, channelID, content, senderID string) (*models.Message, error) {
	msg, _, _, err := s.publish(ctx, channelID, content, senderID, queue.TypeMessage)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(channelID, *msg)
	return msg, nil
}

func (s *MessageService) Broadcast(ctx context.Context, channelID, content, senderID string) (*BroadcastResult, error) {
	msg, count, providerID, err := s.publish(ctx, channelID, content, senderID, queue.TypeBroadcast)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyBroadcast(channelID, *msg, count)
	return &BroadcastResult{
		Message:           *msg,
		SubscriberCount:   count,
		ProviderMessageID: providerID,
	}, nil
}

func (s *MessageService) publish(ctx context.Context, channelID, content, senderID, kind string) (*models.Message, int, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, 0, "", apperr.Validation("content", "content is required")
	}
	if len(content) > maxContentBytes {
		return nil, 0, "", apperr.Validation("content", "content must be at most 4096 bytes")
	}
	if strings.TrimSpace(senderID) == "" {
		return nil, 0, "", apperr.Validation("sender_id", "sender id is required")
	}

	ch, err := s.activeChannel(ctx, channelID)
	if err != nil {
		return nil, 0, "", err
	}
	subscriberCount := ch.SubscriberCount

	msg := &models.Message{
		ID:        uuid.NewString(),
		ChannelID: ch.ID,
		Content:   content,
		SenderID:  senderID,
		Timestamp: s.now(),
		Delivered: true,
	}
	providerID, err := s.gateway.Send(ctx, queue.Handle(ch.QueueRef), queue.Payload{
		ID:        msg.ID,
		Content:   msg.Content,
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Timestamp: msg.Timestamp,
		Type:      kind,
	})
	if err != nil {
		s.logger.Error("queue send failed",
			zap.String("channel_id", ch.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil, 0, "", apperr.Dependency("failed to send message", err)
	}

	if _, err := s.messages.Ingest(ctx, msg); err != nil {
		return nil, 0, "", apperr.Internal("failed to cache message", err)
	}
	msg.SenderName = s.names.ResolveName(ctx, senderID)

	s.logger.Info("message published",
		zap.String("channel_id", ch.ID),
		zap.String("message_id", msg.ID),
		zap.String("provider_id", providerID),
		zap.String("type", kind),
	)
	return msg, subscriberCount, providerID, nil
}

// Reconcile pulls one batch from the channel's queue and caches the
// messages not seen before, returning only those. A receive that times out
// loads nothing and is not an error. Malformed or foreign payloads are
// logged and skipped.
func (s *MessageService) Reconcile(ctx context.Context, channelID string) ([]models.Message, error) {
	ch, err := s.activeChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	deliveries, err := s.receive(ctx, ch, s.cfg.ReconcileWait)
	if err != nil {
		return nil, err
	}

	loaded := make([]models.Message, 0)
	for _, d := range deliveries {
		msg, ok := s.parseDelivery(ch.ID, d)
		if !ok {
			continue
		}
		inserted, err := s.messages.Ingest(ctx, &msg)
		if err != nil {
			return nil, apperr.Internal("failed to cache message", err)
		}
		if inserted {
			msg.SenderName = s.names.ResolveName(ctx, msg.SenderID)
			loaded = append(loaded, msg)
		}
	}

	if len(loaded) > 0 {
		s.logger.Info("reconciled messages",
			zap.String("channel_id", ch.ID),
			zap.Int("received", len(deliveries)),
			zap.Int("loaded", len(loaded)),
		)
	}
	return loaded, nil
}

// GetChannelMessages returns up to limit cached messages, newest first.
// A limit of zero or less means the default of 50.
func (s *MessageService) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	if _, err := s.activeChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	msgs, err := s.messages.ListByChannel(ctx, channelID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list messages", err)
	}
	for i := range msgs {
		msgs[i].SenderName = s.names.ResolveName(ctx, msgs[i].SenderID)
	}
	return msgs, nil
}

// Poll is the explicit consume path: it receives a batch for a subscribed
// user and hands back receipt handles for Acknowledge. Polled messages are
// cached like reconciled ones.
func (s *MessageService) Poll(ctx context.Context, channelID, userID string) ([]models.PolledMessage, error) {
	ch, err := s.activeChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	sub, err := s.subs.Get(ctx, userID, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to get subscription", err)
	}
	if sub == nil || !sub.IsActive {
		return nil, apperr.Forbidden("not subscribed to this channel")
	}

	deliveries, err := s.receive(ctx, ch, s.cfg.PollWait)
	if err != nil {
		return nil, err
	}

	polled := make([]models.PolledMessage, 0, len(deliveries))
	for _, d := range deliveries {
		msg, ok := s.parseDelivery(ch.ID, d)
		if !ok {
			continue
		}
		if _, err := s.messages.Ingest(ctx, &msg); err != nil {
			return nil, apperr.Internal("failed to cache message", err)
		}
		msg.SenderName = s.names.ResolveName(ctx, msg.SenderID)
		polled = append(polled, models.PolledMessage{Message: msg, ReceiptHandle: d.ReceiptHandle})
	}
	return polled, nil
}

// Acknowledge deletes a polled message from the channel's queue.
func (s *MessageService) Acknowledge(ctx context.Context, channelID, receiptHandle string) error {
	if strings.TrimSpace(receiptHandle) == "" {
		return apperr.Validation("receipt_handle", "receipt handle is required")
	}
	ch, err := s.activeChannel(ctx, channelID)
	if err != nil {
		return err
	}

	if err := s.gateway.Ack(ctx, queue.Handle(ch.QueueRef), receiptHandle); err != nil {
		if errors.Is(err, queue.ErrInvalidReceipt) {
			return apperr.Validation("receipt_handle", "receipt handle is invalid or expired")
		}
		return apperr.Dependency("failed to acknowledge message", err)
	}
	return nil
}

func (s *MessageService) Statistics(ctx context.Context) (*MessageStats, error) {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}
	subs, err := s.subs.CountActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to count subscriptions", err)
	}
	msgs, err := s.messages.Count(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to count messages", err)
	}
	return &MessageStats{
		TotalChannels:      len(channels),
		TotalSubscriptions: subs,
		TotalMessages:      msgs,
	}, nil
}

// activeChannel returns the channel, NotFound when it is missing or
// deleted, and a dependency error when it has no queue.
func (s *MessageService) activeChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to get channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, apperr.NotFound("channel not found")
	}
	if ch.QueueRef == "" {
		return nil, apperr.Dependency("no_queue: channel has no queue", nil)
	}
	return ch, nil
}

func (s *MessageService) receive(ctx context.Context, ch *models.Channel, wait time.Duration) ([]queue.Delivery, error) {
	// The receive itself is bounded by wait; the extra time covers the
	// round trip.
	ctx, cancel := context.WithTimeout(ctx, wait+5*time.Second)
	defer cancel()

	deliveries, err := s.gateway.Receive(ctx, queue.Handle(ch.QueueRef), s.cfg.ReconcileBatch, wait)
	if err != nil {
		if errors.Is(err, queue.ErrOperationTimeout) {
			return nil, nil
		}
		s.logger.Warn("queue receive failed",
			zap.String("channel_id", ch.ID),
			zap.Error(err),
		)
		return nil, apperr.Dependency("failed to receive messages", err)
	}
	return deliveries, nil
}

func (s *MessageService) parseDelivery(channelID string, d queue.Delivery) (models.Message, bool) {
	p, err := queue.DecodePayload(d.Body)
	if err != nil {
		s.logger.Warn("skipping malformed queue message",
			zap.String("channel_id", channelID),
			zap.String("provider_id", d.ProviderID),
			zap.Error(err),
		)
		return models.Message{}, false
	}
	if p.ChannelID != channelID {
		s.logger.Warn("skipping queue message for another channel",
			zap.String("channel_id", channelID),
			zap.String("payload_channel_id", p.ChannelID),
			zap.String("message_id", p.ID),
		)
		return models.Message{}, false
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	return models.Message{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		Content:   p.Content,
		SenderID:  p.SenderID,
		Timestamp: ts.UTC(),
		Delivered: true,
	}, true
}
