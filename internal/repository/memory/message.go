package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
)

var _ repository.MessageRepository = (*MessageStore)(nil)

// MessageStore is the in-process message cache. One mutex guards both the
// id index and the sequence counter, so the dedup check, the insert and
// the Seq assignment happen as one step.
type MessageStore struct {
	mu        sync.RWMutex
	byID      map[string]*models.Message
	byChannel map[string][]*models.Message
	seq       int64
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID:      make(map[string]*models.Message),
		byChannel: make(map[string][]*models.Message),
	}
}

func (s *MessageStore) Ingest(ctx context.Context, msg *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[msg.ID]; exists {
		return false, nil
	}
	s.seq++
	msg.Seq = s.seq

	m := *msg
	m.SenderName = ""
	s.byID[m.ID] = &m
	s.byChannel[m.ChannelID] = append(s.byChannel[m.ChannelID], &m)
	return true, nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	stored := s.byChannel[channelID]
	messages := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, *m)
	}
	s.mu.RUnlock()

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].Seq > messages[j].Seq
		}
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *MessageStore) CountByChannel(ctx context.Context, channelID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byChannel[channelID]), nil
}

func (s *MessageStore) CountBySender(ctx context.Context, senderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.byID {
		if m.SenderID == senderID {
			n++
		}
	}
	return n, nil
}

func (s *MessageStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Reset drops every cached message. The sequence counter keeps running so
// Seq stays monotonic for the life of the process.
func (s *MessageStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*models.Message)
	s.byChannel = make(map[string][]*models.Message)
	return nil
}
