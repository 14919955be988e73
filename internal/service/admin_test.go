package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/lalith-99/echocast/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdminReset(t *testing.T) {
	e := newTestEnv(t, withReconciler(&recordingReconciler{}))
	ctx := context.Background()

	u, err := e.identity.Login(ctx, "alice", "")
	require.NoError(t, err)
	ch := e.createChannel(t, "Tech News", u.ID)
	_, err = e.ledger.Subscribe(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	_, err = e.msgs.Publish(ctx, ch.ID, "hello", u.ID)
	require.NoError(t, err)

	require.NoError(t, e.admin.Reset(ctx))

	channels, err := e.registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)

	users, err := e.identity.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	stats, err := e.msgs.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
	assert.Zero(t, stats.TotalSubscriptions)

	_, err = e.gateway.Describe(ctx, queueHandle(ch))
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestAdminResetPurgesQueueItCannotDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	ch := e.createChannel(t, "Tech News", "pub1")
	_, err := e.msgs.Publish(ctx, ch.ID, "hello", "pub1")
	require.NoError(t, err)
	e.gateway.deleteErr = errors.New("access denied")

	require.NoError(t, e.admin.Reset(ctx))

	depth, err := e.gateway.Describe(ctx, queueHandle(ch))
	require.NoError(t, err)
	assert.Zero(t, depth.Available)
	assert.Zero(t, depth.InFlight)
}

func TestAdminQueueDepthsReportsErrorsInline(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	healthy := e.createChannel(t, "Healthy", "pub1")
	broken := e.createChannel(t, "Broken", "pub1")
	_, err := e.msgs.Publish(ctx, healthy.ID, "hello", "pub1")
	require.NoError(t, err)
	// Remove the queue out from under the channel.
	require.NoError(t, e.gateway.Gateway.DeleteQueue(ctx, queueHandle(broken)))

	rows, err := e.admin.QueueDepths(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]service.QueueStatus{}
	for _, r := range rows {
		byID[r.ChannelID] = r
	}
	assert.Equal(t, int64(1), byID[healthy.ID].Available)
	assert.Empty(t, byID[healthy.ID].Error)
	assert.NotEmpty(t, byID[broken.ID].Error)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestAdminHealth(t *testing.T) {
	logger := zap.NewNop()
	gw := queue.NewMemoryGateway()
	newAdmin := func(db service.Pinger) *service.AdminService {
		return service.NewAdminService(memory.NewUserStore(), memory.NewChannelStore(),
			memory.NewSubscriptionStore(), memory.NewMessageStore(), gw, db, logger)
	}

	report := newAdmin(nil).Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Empty(t, report.Database)

	report = newAdmin(fakePinger{err: errors.New("connection refused")}).Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "ok", report.Queue)
	assert.Equal(t, "connection refused", report.Database)
}
