package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIngestDeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	now := time.Now()

	first := &models.Message{ID: "m1", ChannelID: "c1", Content: "hello", Timestamp: now}
	inserted, err := store.Ingest(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(1), first.Seq)

	again := &models.Message{ID: "m1", ChannelID: "c1", Content: "hello", Timestamp: now}
	inserted, err = store.Ingest(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, again.Seq)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMessageIngestConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Ingest(ctx, &models.Message{ID: "same", ChannelID: "c1", Timestamp: time.Now()})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, insertedCount)
	n, _ := store.CountByChannel(ctx, "c1")
	assert.Equal(t, 1, n)
}

func TestMessageListOrdering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	// m2 and m3 share a timestamp; m3 arrives later so it sorts first.
	for _, m := range []*models.Message{
		{ID: "m1", ChannelID: "c1", Timestamp: base},
		{ID: "m2", ChannelID: "c1", Timestamp: base.Add(time.Second)},
		{ID: "m3", ChannelID: "c1", Timestamp: base.Add(time.Second)},
		{ID: "other", ChannelID: "c2", Timestamp: base.Add(time.Hour)},
	} {
		_, err := store.Ingest(ctx, m)
		require.NoError(t, err)
	}

	msgs, err := store.ListByChannel(ctx, "c1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m3", "m2", "m1"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	limited, err := store.ListByChannel(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMessageListEmptyChannel(t *testing.T) {
	store := memory.NewMessageStore()
	msgs, err := store.ListByChannel(context.Background(), "nope", 10)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMessageCountBySenderAndReset(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	for i := 0; i < 3; i++ {
		_, err := store.Ingest(ctx, &models.Message{ID: fmt.Sprintf("m%d", i), ChannelID: "c1", SenderID: "pub1", Timestamp: time.Now()})
		require.NoError(t, err)
	}

	n, err := store.CountBySender(ctx, "pub1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, store.Reset(ctx))
	n, _ = store.Count(ctx)
	assert.Zero(t, n)

	m := &models.Message{ID: "after-reset", ChannelID: "c1", Timestamp: time.Now()}
	_, err = store.Ingest(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Seq)
}
