package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStoreListsOnlyActive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChannelStore()
	now := time.Now()

	require.NoError(t, store.Create(ctx, &models.Channel{ID: "a", CreatedBy: "pub1", CreatedAt: now, IsActive: true}))
	require.NoError(t, store.Create(ctx, &models.Channel{ID: "b", CreatedBy: "pub1", CreatedAt: now.Add(time.Second), IsActive: true}))
	require.NoError(t, store.Create(ctx, &models.Channel{ID: "c", CreatedBy: "pub2", CreatedAt: now, IsActive: false}))

	all, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	mine, err := store.ListByPublisher(ctx, "pub2")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestChannelStoreCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChannelStore()
	require.NoError(t, store.Create(ctx, &models.Channel{ID: "a", IsActive: true}))
	assert.ErrorIs(t, store.Create(ctx, &models.Channel{ID: "a", IsActive: true}), repository.ErrDuplicateID)
}

func TestChannelStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChannelStore()
	require.NoError(t, store.Create(ctx, &models.Channel{ID: "a", Name: "orig", IsActive: true}))

	ch, err := store.GetByID(ctx, "a")
	require.NoError(t, err)
	ch.Name = "changed"

	again, _ := store.GetByID(ctx, "a")
	assert.Equal(t, "orig", again.Name)

	missing, err := store.GetByID(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestChannelStoreUpdateKeepsSubscriberCount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChannelStore()
	require.NoError(t, store.Create(ctx, &models.Channel{ID: "a", IsActive: true}))

	n, err := store.AdjustSubscriberCount(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Update(ctx, &models.Channel{ID: "a", Name: "renamed", SubscriberCount: 99, IsActive: true}))
	ch, _ := store.GetByID(ctx, "a")
	assert.Equal(t, "renamed", ch.Name)
	assert.Equal(t, 2, ch.SubscriberCount)

	_, err = store.AdjustSubscriberCount(ctx, "missing", 1)
	assert.Error(t, err)
}
