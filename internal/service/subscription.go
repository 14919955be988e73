package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
	"go.uber.org/zap"
)

const topChannelsLimit = 5

// Reconciler pulls a channel's queued messages into the local cache.
type Reconciler interface {
	Reconcile(ctx context.Context, channelID string) ([]models.Message, error)
}

type ChannelCount struct {
	ChannelID       string `json:"channel_id"`
	Name            string `json:"name"`
	SubscriberCount int    `json:"subscriber_count"`
}

type SubscriptionStats struct {
	ActiveSubscriptions int            `json:"active_subscriptions"`
	ActiveChannels      int            `json:"active_channels"`
	TopChannels         []ChannelCount `json:"top_channels"`
}

// SubscriptionService is the subscription ledger. It is the only writer of
// Channel.SubscriberCount.
//
// Every mutation for a channel runs under that channel's lock, so the
// record change and the count change land together and the count always
// matches the number of active records.
type SubscriptionService struct {
	subs       repository.SubscriptionRepository
	channels   repository.ChannelRepository
	users      repository.UserRepository
	reconciler Reconciler
	locks      *keyedMutex
	strict     bool
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewSubscriptionService builds the ledger. In strict mode a subscriber
// count that would go negative panics; otherwise it is clamped to zero and
// logged. reconcileTimeout bounds the backfill started by Subscribe.
func NewSubscriptionService(
	subs repository.SubscriptionRepository,
	channels repository.ChannelRepository,
	users repository.UserRepository,
	reconciler Reconciler,
	strict bool,
	reconcileTimeout time.Duration,
	logger *zap.Logger,
) *SubscriptionService {
	if reconcileTimeout <= 0 {
		reconcileTimeout = 10 * time.Second
	}
	return &SubscriptionService{
		subs:       subs,
		channels:   channels,
		users:      users,
		reconciler: reconciler,
		locks:      newKeyedMutex(),
		strict:     strict,
		timeout:    reconcileTimeout,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Subscribe records userID as a subscriber of channelID. A user whose
// earlier subscription was cancelled gets the same record back, reactivated.
// Once committed, a reconciliation pull for the channel starts in the
// background; its outcome never affects the result.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, channelID string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id", "user id is required")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, apperr.Validation("channel_id", "channel id is required")
	}

	sub, err := s.subscribe(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}

	s.backfill(ctx, channelID)
	return sub, nil
}

func (s *SubscriptionService) subscribe(ctx context.Context, userID, channelID string) (*models.Subscription, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to get channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, apperr.NotFound("channel not found")
	}

	sub, err := s.subs.Get(ctx, userID, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to get subscription", err)
	}
	if sub != nil && sub.IsActive {
		return nil, apperr.Conflict("already subscribed to this channel")
	}

	now := s.now()
	if sub == nil {
		sub = &models.Subscription{
			ID:        uuid.NewString(),
			UserID:    userID,
			ChannelID: channelID,
		}
	}
	sub.SubscribedAt = now
	sub.IsActive = true

	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, apperr.Internal("failed to save subscription", err)
	}
	if _, err := s.channels.AdjustSubscriberCount(ctx, channelID, 1); err != nil {
		sub.IsActive = false
		if rbErr := s.subs.Upsert(ctx, sub); rbErr != nil {
			s.logger.Error("failed to roll back subscription",
				zap.String("subscription_id", sub.ID),
				zap.Error(rbErr),
			)
		}
		return nil, apperr.Internal("failed to update subscriber count", err)
	}

	s.logger.Info("subscribed",
		zap.String("user_id", userID),
		zap.String("channel_id", channelID),
		zap.String("subscription_id", sub.ID),
	)
	return sub, nil
}

// backfill runs a reconciliation pull detached from the request so the
// caller's cancellation does not abort it.
func (s *SubscriptionService) backfill(ctx context.Context, channelID string) {
	if s.reconciler == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		loaded, err := s.reconciler.Reconcile(ctx, channelID)
		if err != nil {
			s.logger.Warn("reconcile after subscribe failed",
				zap.String("channel_id", channelID),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("reconcile after subscribe",
			zap.String("channel_id", channelID),
			zap.Int("loaded", len(loaded)),
		)
	}()
}

// Unsubscribe deactivates the user's subscription. It reports false when
// the subscription was already inactive and NotFound when there was never one.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, channelID string) (bool, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	sub, err := s.subs.Get(ctx, userID, channelID)
	if err != nil {
		return false, apperr.Internal("failed to get subscription", err)
	}
	if sub == nil {
		return false, apperr.NotFound("subscription not found")
	}
	if !sub.IsActive {
		return false, nil
	}

	sub.IsActive = false
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return false, apperr.Internal("failed to save subscription", err)
	}

	count, err := s.channels.AdjustSubscriberCount(ctx, channelID, -1)
	if err != nil {
		return false, apperr.Internal("failed to update subscriber count", err)
	}
	if count < 0 {
		s.clampCount(ctx, channelID, count)
	}

	s.logger.Info("unsubscribed",
		zap.String("user_id", userID),
		zap.String("channel_id", channelID),
	)
	return true, nil
}

func (s *SubscriptionService) clampCount(ctx context.Context, channelID string, count int) {
	if s.strict {
		panic(fmt.Sprintf("subscriber count for channel %s went negative: %d", channelID, count))
	}
	s.logger.Error("subscriber count went negative, clamping to zero",
		zap.String("channel_id", channelID),
		zap.Int("count", count),
	)
	if _, err := s.channels.AdjustSubscriberCount(ctx, channelID, -count); err != nil {
		s.logger.Error("failed to clamp subscriber count",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

func (s *SubscriptionService) IsSubscribed(ctx context.Context, userID, channelID string) (bool, error) {
	sub, err := s.subs.Get(ctx, userID, channelID)
	if err != nil {
		return false, apperr.Internal("failed to get subscription", err)
	}
	return sub != nil && sub.IsActive, nil
}

// GetUserSubscriptions returns the user's active subscriptions to channels
// that still exist, newest first.
func (s *SubscriptionService) GetUserSubscriptions(ctx context.Context, userID string) ([]models.SubscriptionWithChannel, error) {
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to list subscriptions", err)
	}

	out := make([]models.SubscriptionWithChannel, 0, len(subs))
	for _, sub := range subs {
		ch, err := s.channels.GetByID(ctx, sub.ChannelID)
		if err != nil {
			return nil, apperr.Internal("failed to get channel", err)
		}
		if ch == nil || !ch.IsActive {
			continue
		}
		out = append(out, models.SubscriptionWithChannel{Subscription: sub, Channel: ch})
	}
	return out, nil
}

// GetChannelSubscribers returns the channel's active subscribers, oldest
// first. User is nil for ids the identity store does not know.
func (s *SubscriptionService) GetChannelSubscribers(ctx context.Context, channelID string) ([]models.SubscriptionWithUser, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to get channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, apperr.NotFound("channel not found")
	}

	subs, err := s.subs.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, apperr.Internal("failed to list subscribers", err)
	}

	out := make([]models.SubscriptionWithUser, 0, len(subs))
	for _, sub := range subs {
		user, err := s.users.GetByID(ctx, sub.UserID)
		if err != nil {
			return nil, apperr.Internal("failed to get user", err)
		}
		out = append(out, models.SubscriptionWithUser{Subscription: sub, User: user})
	}
	return out, nil
}

// VerifyCount reports whether the channel's cached subscriber count equals
// its number of active subscriptions.
func (s *SubscriptionService) VerifyCount(ctx context.Context, channelID string) (bool, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return false, apperr.Internal("failed to get channel", err)
	}
	if ch == nil {
		return false, apperr.NotFound("channel not found")
	}
	subs, err := s.subs.ListByChannel(ctx, channelID)
	if err != nil {
		return false, apperr.Internal("failed to list subscribers", err)
	}
	return ch.SubscriberCount == len(subs), nil
}

func (s *SubscriptionService) Stats(ctx context.Context) (*SubscriptionStats, error) {
	total, err := s.subs.CountActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to count subscriptions", err)
	}
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}

	counts := make([]ChannelCount, 0, len(channels))
	for _, ch := range channels {
		counts = append(counts, ChannelCount{
			ChannelID:       ch.ID,
			Name:            ch.Name,
			SubscriberCount: ch.SubscriberCount,
		})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].SubscriberCount > counts[j].SubscriberCount
	})
	if len(counts) > topChannelsLimit {
		counts = counts[:topChannelsLimit]
	}

	return &SubscriptionStats{
		ActiveSubscriptions: total,
		ActiveChannels:      len(channels),
		TopChannels:         counts,
	}, nil
}
