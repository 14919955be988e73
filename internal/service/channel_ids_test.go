package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/lalith-99/echocast/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// takenChannelStore reports the first n creates as id collisions.
type takenChannelStore struct {
	*memory.ChannelStore
	collisions atomic.Int32
	ids        []string
	mu         sync.Mutex
}

func (s *takenChannelStore) Create(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	s.ids = append(s.ids, ch.ID)
	s.mu.Unlock()
	if s.collisions.Add(-1) >= 0 {
		return fmt.Errorf("insert channel %q: %w", ch.ID, repository.ErrDuplicateID)
	}
	return s.ChannelStore.Create(ctx, ch)
}

func TestCreateChannelRetriesTakenID(t *testing.T) {
	store := &takenChannelStore{ChannelStore: memory.NewChannelStore()}
	store.collisions.Store(1)
	registry := service.NewChannelService(store, memory.NewSubscriptionStore(), memory.NewMessageStore(),
		queue.NewMemoryGateway(), nil, zap.NewNop())

	ch, err := registry.Create(context.Background(), "Tech News", "Daily tech updates and news", "pub1")
	require.NoError(t, err)

	require.Len(t, store.ids, 2)
	assert.True(t, strings.HasPrefix(ch.ID, store.ids[0]+"-"))
	assert.Equal(t, ch.ID, store.ids[1])
}

func TestCreateChannelGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := &takenChannelStore{ChannelStore: memory.NewChannelStore()}
	store.collisions.Store(100)
	gateway := &stubGateway{Gateway: queue.NewMemoryGateway()}
	registry := service.NewChannelService(store, memory.NewSubscriptionStore(), memory.NewMessageStore(),
		gateway, nil, zap.NewNop())

	_, err := registry.Create(context.Background(), "Tech News", "Daily tech updates and news", "pub1")
	require.Error(t, err)
	assert.Equal(t, int32(1), gateway.createCalls.Load())
	assert.Equal(t, int32(1), gateway.deleteCalls.Load(), "provisioned queue is released")
}

func TestConcurrentSameNameAcrossPublishers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	const publishers = 20
	var wg sync.WaitGroup
	results := make([]*models.Channel, publishers)
	errs := make([]error, publishers)
	for i := range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.registry.Create(ctx, "Tech News", "Daily tech updates and news", fmt.Sprintf("pub%d", i))
		}()
	}
	wg.Wait()

	ids := make(map[string]bool)
	queues := make(map[string]bool)
	for i := range publishers {
		require.NoError(t, errs[i])
		assert.False(t, ids[results[i].ID], "duplicate channel id %s", results[i].ID)
		assert.False(t, queues[results[i].QueueRef], "duplicate queue %s", results[i].QueueRef)
		ids[results[i].ID] = true
		queues[results[i].QueueRef] = true
	}
}
