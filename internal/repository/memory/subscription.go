package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionStore)(nil)

type subscriptionKey struct {
	userID    string
	channelID string
}

type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[subscriptionKey]*models.Subscription
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[subscriptionKey]*models.Subscription)}
}

func (s *SubscriptionStore) Get(ctx context.Context, userID, channelID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[subscriptionKey{userID, channelID}]
	if !ok {
		return nil, nil
	}
	out := *sub
	return &out, nil
}

func (s *SubscriptionStore) Upsert(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := *sub
	s.subs[subscriptionKey{sub.UserID, sub.ChannelID}] = &v
	return nil
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	subs := s.active(func(sub *models.Subscription) bool { return sub.UserID == userID })
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubscribedAt.After(subs[j].SubscribedAt) })
	return subs, nil
}

func (s *SubscriptionStore) ListByChannel(ctx context.Context, channelID string) ([]models.Subscription, error) {
	subs := s.active(func(sub *models.Subscription) bool { return sub.ChannelID == channelID })
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubscribedAt.Before(subs[j].SubscribedAt) })
	return subs, nil
}

func (s *SubscriptionStore) CountActive(ctx context.Context) (int, error) {
	return len(s.active(func(*models.Subscription) bool { return true })), nil
}

// CountByUser counts every record the user ever created, active or not.
func (s *SubscriptionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.subs {
		if key.userID == userID {
			n++
		}
	}
	return n, nil
}

func (s *SubscriptionStore) active(match func(*models.Subscription) bool) []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]models.Subscription, 0)
	for _, sub := range s.subs {
		if sub.IsActive && match(sub) {
			subs = append(subs, *sub)
		}
	}
	return subs
}

func (s *SubscriptionStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[subscriptionKey]*models.Subscription)
	return nil
}
