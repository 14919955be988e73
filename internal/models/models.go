package models

import (
	"time"
)

// Role decides which half of the product a user sees: publishers own
// channels and broadcast into them, subscribers discover and follow them.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleSubscriber
}

// User is a profile in the identity store.
//
// Username is the normalized (trimmed, case-folded) login name and is
// unique among active users. Users are never removed; Deactivate flips
// IsActive so messages that reference them still resolve to an id.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
	IsActive  bool      `json:"is_active"`
}

// Channel is a named broadcast topic owned by one publisher.
//
// QueueRef is the handle of the channel's durable queue. A channel is never
// stored without one: the queue is provisioned before the channel record is
// written and torn down when the channel is deleted.
//
// SubscriberCount is a cached value owned by the subscription ledger. It must
// equal the number of active subscriptions referencing the channel.
type Channel struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	QueueRef        string    `json:"queue_ref"`
	SubscriberCount int       `json:"subscriber_count"`
	IsActive        bool      `json:"is_active"`
}

// PublicChannel is a channel as shown in discovery, joined with its
// publisher's display name at read time.
type PublicChannel struct {
	Channel
	PublisherName string `json:"publisher_name"`
}

// ChannelPatch carries the mutable fields of a channel. Nil means "leave as is".
type ChannelPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Subscription is the join record between a user and a channel.
// There is exactly one record per (UserID, ChannelID) pair, ever:
// resubscribing reactivates it instead of creating another.
type Subscription struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ChannelID    string    `json:"channel_id"`
	SubscribedAt time.Time `json:"subscribed_at"`
	IsActive     bool      `json:"is_active"`
}

// SubscriptionWithChannel is a user's subscription joined with its channel.
type SubscriptionWithChannel struct {
	Subscription
	Channel *Channel `json:"channel"`
}

// SubscriptionWithUser is a channel's subscriber joined with the profile.
// User is nil when the identity store has no record for UserID.
type SubscriptionWithUser struct {
	Subscription
	User *User `json:"user"`
}

// Message is a single broadcast in a channel.
//
// ID is assigned before the queue send and travels inside the queue
// payload, so the cached record and the queued copy share identity.
// Seq is the cache's arrival sequence number; it breaks timestamp ties
// when listing.
//
// SenderName is not stored. It is resolved against the identity store
// every time messages are read.
type Message struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	Content    string    `json:"content"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
	Delivered  bool      `json:"delivered"`
	Seq        int64     `json:"seq"`
}

// PolledMessage is a message consumed through the explicit poll path.
// The receipt handle must be passed back to acknowledge it.
type PolledMessage struct {
	Message
	ReceiptHandle string `json:"receipt_handle"`
}
