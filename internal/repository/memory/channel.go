package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
)

var _ repository.ChannelRepository = (*ChannelStore)(nil)

type ChannelStore struct {
	mu       sync.RWMutex
	channels map[string]*models.Channel
}

func NewChannelStore() *ChannelStore {
	return &ChannelStore{channels: make(map[string]*models.Channel)}
}

func (s *ChannelStore) Create(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[ch.ID]; exists {
		return fmt.Errorf("insert channel %q: %w", ch.ID, repository.ErrDuplicateID)
	}
	c := *ch
	s.channels[c.ID] = &c
	return nil
}

func (s *ChannelStore) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	out := *ch
	return &out, nil
}

func (s *ChannelStore) ListActive(ctx context.Context) ([]models.Channel, error) {
	return s.list(func(ch *models.Channel) bool { return true }), nil
}

func (s *ChannelStore) ListByPublisher(ctx context.Context, publisherID string) ([]models.Channel, error) {
	return s.list(func(ch *models.Channel) bool { return ch.CreatedBy == publisherID }), nil
}

func (s *ChannelStore) list(match func(*models.Channel) bool) []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]models.Channel, 0)
	for _, ch := range s.channels {
		if ch.IsActive && match(ch) {
			channels = append(channels, *ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].CreatedAt.Equal(channels[j].CreatedAt) {
			return channels[i].ID > channels[j].ID
		}
		return channels[i].CreatedAt.After(channels[j].CreatedAt)
	})
	return channels
}

// Update replaces the stored record but keeps the stored subscriber count:
// the count only moves through AdjustSubscriberCount.
func (s *ChannelStore) Update(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.channels[ch.ID]
	if !ok {
		return fmt.Errorf("update channel: id %q does not exist", ch.ID)
	}
	c := *ch
	c.SubscriberCount = cur.SubscriberCount
	s.channels[c.ID] = &c
	return nil
}

func (s *ChannelStore) AdjustSubscriberCount(ctx context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return 0, fmt.Errorf("adjust subscriber count: channel %q does not exist", id)
	}
	ch.SubscriberCount += delta
	return ch.SubscriberCount, nil
}

func (s *ChannelStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*models.Channel)
	return nil
}
