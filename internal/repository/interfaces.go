package repository

import (
	"context"
	"errors"

	"github.com/lalith-99/echocast/internal/models"
)

// Why interfaces here and not the memory structs directly?
//
//   - Users, channels and subscriptions live in process memory, but nothing
//     above this package should know that. Swapping in a persistent store
//     (the message cache already has a Postgres implementation) must not
//     touch the services.
//   - Tests for the services run against the memory implementations; tests
//     for failure paths wrap them.
//
// Conventions shared by every implementation:
//   - Get* returns nil, nil when the record does not exist. The service
//     layer decides whether that is a NotFound error.
//   - List* returns an empty slice (never nil) so JSON serializes to [].
//   - Returned structs are copies. Mutating them does not change the store;
//     write back with Update/Upsert.

// ErrDuplicateID is returned by Create when the id is already taken.
var ErrDuplicateID = errors.New("id already exists")

// UserRepository stores identity profiles.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error

	// GetByID returns the user whether active or not.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByUsername finds the active user with the given normalized username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	Update(ctx context.Context, user *models.User) error

	// List returns active users, oldest first.
	List(ctx context.Context) ([]models.User, error)

	Reset(ctx context.Context) error
}

// ChannelRepository stores channel records.
type ChannelRepository interface {
	// Create inserts ch, or fails with ErrDuplicateID if ch.ID is taken.
	Create(ctx context.Context, ch *models.Channel) error

	// GetByID returns the channel whether active or not.
	GetByID(ctx context.Context, id string) (*models.Channel, error)

	// ListActive returns active channels, newest first.
	ListActive(ctx context.Context) ([]models.Channel, error)

	// ListByPublisher returns the publisher's active channels, newest first.
	ListByPublisher(ctx context.Context, publisherID string) ([]models.Channel, error)

	Update(ctx context.Context, ch *models.Channel) error

	// AdjustSubscriberCount adds delta to the channel's subscriber count
	// atomically and returns the new value. It does not clamp; callers own
	// the non-negative invariant.
	AdjustSubscriberCount(ctx context.Context, id string, delta int) (int, error)

	Reset(ctx context.Context) error
}

// SubscriptionRepository stores subscriptions keyed by (userID, channelID).
type SubscriptionRepository interface {
	// Get returns the record for the pair whether active or not.
	Get(ctx context.Context, userID, channelID string) (*models.Subscription, error)

	// Upsert writes the record under its (UserID, ChannelID) key.
	Upsert(ctx context.Context, sub *models.Subscription) error

	// ListByUser returns the user's active subscriptions, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Subscription, error)

	// ListByChannel returns the channel's active subscriptions, oldest first.
	ListByChannel(ctx context.Context, channelID string) ([]models.Subscription, error)

	// CountByUser returns the number of records for the user, active or not.
	CountByUser(ctx context.Context, userID string) (int, error)

	// CountActive returns the number of active subscriptions across channels.
	CountActive(ctx context.Context) (int, error)

	Reset(ctx context.Context) error
}

// MessageRepository is the local message cache.
type MessageRepository interface {
	// Ingest stores msg unless a message with the same ID is already cached.
	// It reports whether msg was inserted and, when it was, sets msg.Seq.
	// The check and the insert are atomic: concurrent ingests of one ID
	// insert it exactly once.
	Ingest(ctx context.Context, msg *models.Message) (bool, error)

	// ListByChannel returns up to limit messages, newest first. Messages with
	// equal timestamps are ordered by Seq, highest first.
	ListByChannel(ctx context.Context, channelID string, limit int) ([]models.Message, error)

	CountByChannel(ctx context.Context, channelID string) (int, error)
	CountBySender(ctx context.Context, senderID string) (int, error)
	Count(ctx context.Context) (int, error)

	Reset(ctx context.Context) error
}
