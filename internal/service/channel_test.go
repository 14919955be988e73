package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannelPublishAndRead(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	ch, err := e.registry.Create(ctx, "Tech News", "Daily tech updates and news", "pub1")
	require.NoError(t, err)
	assert.Equal(t, 0, ch.SubscriberCount)
	assert.True(t, ch.IsActive)
	assert.NotEmpty(t, ch.QueueRef)
	assert.True(t, strings.HasPrefix(ch.ID, "tech-news-"))

	mine, err := e.registry.ListByPublisher(ctx, "pub1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ch.ID, mine[0].ID)

	public, err := e.registry.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, ch.ID, public[0].ID)
	assert.Equal(t, 0, public[0].SubscriberCount)

	_, err = e.msgs.Publish(ctx, ch.ID, "Hello world", "pub1")
	require.NoError(t, err)

	msgs, err := e.msgs.GetChannelMessages(ctx, ch.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello world", msgs[0].Content)
	assert.Equal(t, "pub1", msgs[0].SenderID)
}

func TestCreateChannelValidationHappensBeforeProvisioning(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		chName      string
		description string
		publisher   string
		field       string
	}{
		{"name too short", "ab", "short", "pub1", "name"},
		{"name too long", strings.Repeat("a", 51), "Daily tech updates", "pub1", "name"},
		{"name charset", "Tech/News!", "Daily tech updates", "pub1", "name"},
		{"description too short", "Tech News", "short", "pub1", "description"},
		{"description too long", "Tech News", strings.Repeat("d", 201), "pub1", "description"},
		{"missing publisher", "Tech News", "Daily tech updates", " ", "created_by"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.registry.Create(ctx, tt.chName, tt.description, tt.publisher)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.field, apperr.FieldOf(err))
		})
	}
	assert.Equal(t, int32(0), e.gateway.createCalls.Load())
}

func TestCreateChannelProvisioningFailureStoresNothing(t *testing.T) {
	e := newTestEnv(t)
	e.gateway.createErr = queue.ErrUnavailable
	ctx := context.Background()

	_, err := e.registry.Create(ctx, "Tech News", "Daily tech updates and news", "pub1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependency, apperr.KindOf(err))
	assert.ErrorIs(t, err, queue.ErrUnavailable)

	mine, err := e.registry.ListByPublisher(ctx, "pub1")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreateChannelDuplicateNamePerPublisher(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createChannel(t, "Tech News", "pub1")

	_, err := e.registry.Create(ctx, "  tech NEWS ", "Another description", "pub1")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = e.registry.Create(ctx, "Tech News", "Another description", "pub2")
	assert.NoError(t, err)
}

func TestCreateChannelAfterDeleteReusesName(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ch := e.createChannel(t, "Tech News", "pub1")

	_, err := e.registry.Delete(ctx, ch.ID)
	require.NoError(t, err)

	_, err = e.registry.Create(ctx, "Tech News", "Daily tech updates and news", "pub1")
	assert.NoError(t, err)
}

func TestListPublicResolvesPublisherName(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	alice, err := e.identity.Login(ctx, "Alice", models.RolePublisher)
	require.NoError(t, err)
	e.createChannel(t, "Alice Daily", alice.ID)
	e.createChannel(t, "Ghost Channel", "user_ghost_1")

	public, err := e.registry.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 2)

	names := map[string]string{}
	for _, ch := range public {
		names[ch.Name] = ch.PublisherName
	}
	assert.Equal(t, "Alice", names["Alice Daily"])
	assert.Equal(t, "user_ghost_1", names["Ghost Channel"])
}

func TestUpdateChannel(t *testing.T) {
	e := newTestEnv(t, withReconciler(&recordingReconciler{}))
	ctx := context.Background()
	ch := e.createChannel(t, "Tech News", "pub1")
	e.createChannel(t, "Sports", "pub1")

	_, err := e.ledger.Subscribe(ctx, "sub1", ch.ID)
	require.NoError(t, err)

	name := "Tech Weekly"
	updated, err := e.registry.Update(ctx, ch.ID, models.ChannelPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Tech Weekly", updated.Name)
	assert.Equal(t, ch.Description, updated.Description)
	assert.Equal(t, 1, updated.SubscriberCount)
	assert.Equal(t, ch.QueueRef, updated.QueueRef)

	taken := "sports"
	_, err = e.registry.Update(ctx, ch.ID, models.ChannelPatch{Name: &taken})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	bad := "tiny"
	_, err = e.registry.Update(ctx, ch.ID, models.ChannelPatch{Description: &bad})
	assert.Equal(t, "description", apperr.FieldOf(err))

	_, err = e.registry.Update(ctx, "missing", models.ChannelPatch{Name: &name})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteChannel(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ch := e.createChannel(t, "Tech News", "pub1")

	ok, err := e.registry.Delete(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.registry.Get(ctx, ch.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.gateway.Describe(ctx, queue.Handle(ch.QueueRef))
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	ok, err = e.registry.Delete(ctx, ch.ID)
	assert.False(t, ok)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	all, err := e.registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteChannelSurvivesQueueTeardownFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ch := e.createChannel(t, "Tech News", "pub1")
	e.gateway.deleteErr = errors.New("access denied")

	ok, err := e.registry.Delete(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.registry.Get(ctx, ch.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestChannelStats(t *testing.T) {
	e := newTestEnv(t, withReconciler(&recordingReconciler{}))
	ctx := context.Background()
	ch := e.createChannel(t, "Tech News", "pub1")

	_, err := e.ledger.Subscribe(ctx, "sub1", ch.ID)
	require.NoError(t, err)
	_, err = e.msgs.Publish(ctx, ch.ID, "first", "pub1")
	require.NoError(t, err)

	stats, err := e.registry.Stats(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveSubscribers)
	assert.Equal(t, 1, stats.RecentMessages)
	require.NotNil(t, stats.QueueDepth)
	assert.Equal(t, int64(1), stats.QueueDepth.Available)
	assert.Empty(t, stats.QueueError)
}
