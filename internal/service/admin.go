package service

import (
	"context"
	"time"

	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository"
	"go.uber.org/zap"
)

// Pinger is anything whose reachability can be checked (a pgx pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStatus is one row of the queue diagnostics listing. Error is set
// instead of the depth fields when the queue could not be described.
type QueueStatus struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	QueueRef    string `json:"queue_ref"`
	Available   int64  `json:"available"`
	InFlight    int64  `json:"in_flight"`
	Error       string `json:"error,omitempty"`
}

type HealthReport struct {
	Status   string `json:"status"`
	Queue    string `json:"queue"`
	Database string `json:"database,omitempty"`
}

// AdminService backs the operator endpoints. Reset wipes all state and is
// meant for demo and test deployments.
type AdminService struct {
	users    repository.UserRepository
	channels repository.ChannelRepository
	subs     repository.SubscriptionRepository
	messages repository.MessageRepository
	gateway  queue.Gateway
	db       Pinger
	logger   *zap.Logger
}

// NewAdminService builds the admin service. db may be nil when no database
// is configured.
func NewAdminService(
	users repository.UserRepository,
	channels repository.ChannelRepository,
	subs repository.SubscriptionRepository,
	messages repository.MessageRepository,
	gateway queue.Gateway,
	db Pinger,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		channels: channels,
		subs:     subs,
		messages: messages,
		gateway:  gateway,
		db:       db,
		logger:   logger,
	}
}

// Reset purges and tears down every active channel's queue (best effort)
// and clears all stores.
func (s *AdminService) Reset(ctx context.Context) error {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return apperr.Internal("failed to list channels", err)
	}
	for _, ch := range channels {
		h := queue.Handle(ch.QueueRef)
		// Purged first so a queue that survives a failed delete holds nothing.
		if err := s.gateway.PurgeQueue(ctx, h); err != nil {
			s.logger.Warn("queue purge failed during reset",
				zap.String("channel_id", ch.ID),
				zap.Error(err),
			)
		}
		if err := s.gateway.DeleteQueue(ctx, h); err != nil {
			s.logger.Warn("queue teardown failed during reset",
				zap.String("channel_id", ch.ID),
				zap.Error(err),
			)
		}
	}

	resets := []struct {
		name  string
		reset func(context.Context) error
	}{
		{"messages", s.messages.Reset},
		{"subscriptions", s.subs.Reset},
		{"channels", s.channels.Reset},
		{"users", s.users.Reset},
	}
	for _, r := range resets {
		if err := r.reset(ctx); err != nil {
			return apperr.Internal("failed to reset "+r.name, err)
		}
	}

	s.logger.Warn("all state reset", zap.Int("queues_removed", len(channels)))
	return nil
}

// QueueDepths describes the queue of every active channel. A failure for
// one queue is reported on its row and does not stop the listing.
func (s *AdminService) QueueDepths(ctx context.Context) ([]QueueStatus, error) {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list channels", err)
	}

	out := make([]QueueStatus, 0, len(channels))
	for _, ch := range channels {
		row := QueueStatus{ChannelID: ch.ID, ChannelName: ch.Name, QueueRef: ch.QueueRef}
		depth, err := s.gateway.Describe(ctx, queue.Handle(ch.QueueRef))
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Available = depth.Available
			row.InFlight = depth.InFlight
		}
		out = append(out, row)
	}
	return out, nil
}

// Health pings the queue service and, when configured, the database.
func (s *AdminService) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := HealthReport{Status: "ok", Queue: "ok"}
	if err := s.gateway.Ping(ctx); err != nil {
		report.Status = "degraded"
		report.Queue = err.Error()
	}
	if s.db != nil {
		report.Database = "ok"
		if err := s.db.Ping(ctx); err != nil {
			report.Status = "degraded"
			report.Database = err.Error()
		}
	}
	return report
}
