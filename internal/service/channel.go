package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository"
	"github.com/lalith-99/echocast/internal/textutil"
	"go.uber.org/zap"
)

const (
	minChannelNameLen = 3
	maxChannelNameLen = 50
	minDescriptionLen = 10
	maxDescriptionLen = 200
	recentMessageSpan = 10
	maxIDAttempts     = 3
)

var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ChannelStats is the detail view of one channel.
// QueueError is set instead of QueueDepth when the queue could not be described.
type ChannelStats struct {
	Channel           models.Channel `json:"channel"`
	ActiveSubscribers int            `json:"active_subscribers"`
	RecentMessages    int            `json:"recent_messages"`
	QueueDepth        *queue.Depth   `json:"queue_depth,omitempty"`
	QueueError        string         `json:"queue_error,omitempty"`
}

// ChannelService is the channel registry. It owns channel records and the
// lifecycle of each channel's queue.
type ChannelService struct {
	channels repository.ChannelRepository
	subs     repository.SubscriptionRepository
	messages repository.MessageRepository
	gateway  queue.Gateway
	names    NameResolver
	locks    *keyedMutex
	now      func() time.Time
	logger   *zap.Logger
}

func NewChannelService(
	channels repository.ChannelRepository,
	subs repository.SubscriptionRepository,
	messages repository.MessageRepository,
	gateway queue.Gateway,
	names NameResolver,
	logger *zap.Logger,
) *ChannelService {
	return &ChannelService{
		channels: channels,
		subs:     subs,
		messages: messages,
		gateway:  gateway,
		names:    names,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Create validates the input, provisions the channel's queue and only then
// writes the channel. If provisioning fails nothing is stored.
func (s *ChannelService) Create(ctx context.Context, name, description, publisherID string) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if err := validateChannelName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	if strings.TrimSpace(publisherID) == "" {
		return nil, apperr.Validation("created_by", "publisher id is required")
	}

	// Held across the duplicate check and the insert so two concurrent
	// creates of the same name by one publisher cannot both pass the check.
	unlock := s.locks.Lock(publisherID)
	defer unlock()

	if err := s.checkDuplicateName(ctx, publisherID, name, ""); err != nil {
		return nil, err
	}

	handle, err := s.gateway.CreateQueue(ctx, name)
	if err != nil {
		s.logger.Error("queue provisioning failed",
			zap.String("channel_name", name),
			zap.String("publisher_id", publisherID),
			zap.Error(err),
		)
		return nil, apperr.Dependency("failed to create queue", err)
	}

	now := s.now()
	ch := &models.Channel{
		Name:        name,
		Description: description,
		CreatedBy:   publisherID,
		CreatedAt:   now,
		QueueRef:    string(handle),
		IsActive:    true,
	}
	if err := s.insertChannel(ctx, ch, now); err != nil {
		s.releaseQueue(ctx, handle)
		return nil, err
	}

	s.logger.Info("channel created",
		zap.String("channel_id", ch.ID),
		zap.String("publisher_id", publisherID),
		zap.String("queue_ref", ch.QueueRef),
	)
	return ch, nil
}

// Get returns an active channel.
func (s *ChannelService) Get(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := s.channels.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to get channel", err)
	}
	if ch == nil || !ch.IsActive {
		return nil, apperr.NotFound("channel not found")
	}
	return ch, nil
}

func (s *ChannelService) ListByPublisher(ctx context.Context, publisherID string) ([]models.Channel, error) {
	channels, err := s.channels.ListByPublisher(ctx, publisherID)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}
	return channels, nil
}

// ListPublic returns every active channel with its publisher's display name.
func (s *ChannelService) ListPublic(ctx context.Context) ([]models.PublicChannel, error) {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}

	public := make([]models.PublicChannel, 0, len(channels))
	for _, ch := range channels {
		public = append(public, models.PublicChannel{
			Channel:       ch,
			PublisherName: s.names.ResolveName(ctx, ch.CreatedBy),
		})
	}
	return public, nil
}

func (s *ChannelService) ListAll(ctx context.Context) ([]models.Channel, error) {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}
	return channels, nil
}

// Update applies patch to the channel's name and description.
func (s *ChannelService) Update(ctx context.Context, id string, patch models.ChannelPatch) (*models.Channel, error) {
	ch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(ch.CreatedBy)
	defer unlock()

	// Re-read under the publisher lock; a concurrent delete may have won.
	ch, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateChannelName(name); err != nil {
			return nil, err
		}
		if err := s.checkDuplicateName(ctx, ch.CreatedBy, name, ch.ID); err != nil {
			return nil, err
		}
		ch.Name = name
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if err := validateDescription(description); err != nil {
			return nil, err
		}
		ch.Description = description
	}

	if err := s.channels.Update(ctx, ch); err != nil {
		return nil, apperr.Internal("failed to update channel", err)
	}
	return s.Get(ctx, id)
}

// Delete tears down the channel's queue and soft-deletes the channel.
// A failed teardown is logged and does not stop the delete. Deleting a
// missing or already deleted channel is NotFound.
func (s *ChannelService) Delete(ctx context.Context, id string) (bool, error) {
	ch, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	unlock := s.locks.Lock(ch.CreatedBy)
	defer unlock()

	ch, err = s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if ch.QueueRef != "" {
		if err := s.gateway.DeleteQueue(ctx, queue.Handle(ch.QueueRef)); err != nil {
			s.logger.Warn("queue teardown failed, deleting channel anyway",
				zap.String("channel_id", ch.ID),
				zap.String("queue_ref", ch.QueueRef),
				zap.Error(err),
			)
		}
	}

	ch.IsActive = false
	if err := s.channels.Update(ctx, ch); err != nil {
		return false, apperr.Internal("failed to delete channel", err)
	}

	s.logger.Info("channel deleted", zap.String("channel_id", ch.ID))
	return true, nil
}

func (s *ChannelService) Stats(ctx context.Context, id string) (*ChannelStats, error) {
	ch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	subs, err := s.subs.ListByChannel(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to list subscribers", err)
	}
	recent, err := s.messages.ListByChannel(ctx, id, recentMessageSpan)
	if err != nil {
		return nil, apperr.Internal("failed to list messages", err)
	}

	stats := &ChannelStats{
		Channel:           *ch,
		ActiveSubscribers: len(subs),
		RecentMessages:    len(recent),
	}
	depth, err := s.gateway.Describe(ctx, queue.Handle(ch.QueueRef))
	if err != nil {
		stats.QueueError = err.Error()
	} else {
		stats.QueueDepth = &depth
	}
	return stats, nil
}

// checkDuplicateName reports a conflict when the publisher already has an
// active channel whose trimmed name matches case-insensitively. excludeID
// skips the channel being renamed.
func (s *ChannelService) checkDuplicateName(ctx context.Context, publisherID, name, excludeID string) error {
	existing, err := s.channels.ListByPublisher(ctx, publisherID)
	if err != nil {
		return apperr.Internal("failed to list channels", err)
	}
	for _, ch := range existing {
		if ch.ID != excludeID && strings.EqualFold(strings.TrimSpace(ch.Name), name) {
			return apperr.Conflict("a channel with this name already exists")
		}
	}
	return nil
}

// insertChannel stores ch under "<slug>-<unix ms>". When that id is taken
// (same slug, same millisecond, any publisher) it retries with a random
// suffix; the store's create is the only check.
func (s *ChannelService) insertChannel(ctx context.Context, ch *models.Channel, now time.Time) error {
	slug := textutil.Slug(ch.Name, 0)
	if slug == "" {
		slug = "channel"
	}
	base := fmt.Sprintf("%s-%d", slug, now.UnixMilli())

	ch.ID = base
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		err := s.channels.Create(ctx, ch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateID) {
			return apperr.Internal("failed to create channel", err)
		}
		ch.ID = base + "-" + uuid.NewString()[:8]
	}
	return apperr.Internal("failed to create channel", fmt.Errorf("no free id for %q", base))
}

func (s *ChannelService) releaseQueue(ctx context.Context, h queue.Handle) {
	if err := s.gateway.DeleteQueue(ctx, h); err != nil {
		s.logger.Warn("failed to release queue after aborted create",
			zap.String("queue_ref", string(h)),
			zap.Error(err),
		)
	}
}

func validateChannelName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minChannelNameLen || n > maxChannelNameLen {
		return apperr.Validation("name", "name must be between 3 and 50 characters")
	}
	if !channelNamePattern.MatchString(name) {
		return apperr.Validation("name", "name may only contain letters, numbers, spaces, hyphens and underscores")
	}
	return nil
}

func validateDescription(description string) error {
	n := utf8.RuneCountInString(description)
	if n < minDescriptionLen || n > maxDescriptionLen {
		return apperr.Validation("description", "description must be between 10 and 200 characters")
	}
	return nil
}
