package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionUpsertIsKeyedByPair(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSubscriptionStore()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, &models.Subscription{ID: "s1", UserID: "u1", ChannelID: "c1", SubscribedAt: now, IsActive: true}))
	require.NoError(t, store.Upsert(ctx, &models.Subscription{ID: "s1", UserID: "u1", ChannelID: "c1", SubscribedAt: now, IsActive: false}))

	sub, err := store.Get(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.False(t, sub.IsActive)

	n, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscriptionListsFilterInactive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSubscriptionStore()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, &models.Subscription{ID: "s1", UserID: "u1", ChannelID: "c1", SubscribedAt: now, IsActive: true}))
	require.NoError(t, store.Upsert(ctx, &models.Subscription{ID: "s2", UserID: "u1", ChannelID: "c2", SubscribedAt: now.Add(time.Second), IsActive: true}))
	require.NoError(t, store.Upsert(ctx, &models.Subscription{ID: "s3", UserID: "u2", ChannelID: "c1", SubscribedAt: now, IsActive: false}))

	byUser, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "s2", byUser[0].ID)

	byChannel, err := store.ListByChannel(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byChannel, 1)
	assert.Equal(t, "u1", byChannel[0].UserID)

	missing, err := store.Get(ctx, "u9", "c9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
