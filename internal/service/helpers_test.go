package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

// stubGateway wraps a real gateway and lets a test fail or fake
// individual operations.
type stubGateway struct {
	queue.Gateway

	createCalls atomic.Int32
	deleteCalls atomic.Int32
	createErr   error
	sendErr     error
	deleteErr   error
	receiveErr  error
	extra       []queue.Delivery
}

func (g *stubGateway) CreateQueue(ctx context.Context, name string) (queue.Handle, error) {
	g.createCalls.Add(1)
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.Gateway.CreateQueue(ctx, name)
}

func (g *stubGateway) Send(ctx context.Context, h queue.Handle, p queue.Payload) (string, error) {
	if g.sendErr != nil {
		return "", g.sendErr
	}
	return g.Gateway.Send(ctx, h, p)
}

func (g *stubGateway) DeleteQueue(ctx context.Context, h queue.Handle) error {
	g.deleteCalls.Add(1)
	if g.deleteErr != nil {
		return g.deleteErr
	}
	return g.Gateway.DeleteQueue(ctx, h)
}

func (g *stubGateway) Receive(ctx context.Context, h queue.Handle, max int, wait time.Duration) ([]queue.Delivery, error) {
	if g.receiveErr != nil {
		return nil, g.receiveErr
	}
	got, err := g.Gateway.Receive(ctx, h, max, wait)
	if err != nil {
		return nil, err
	}
	return append(got, g.extra...), nil
}

type notification struct {
	channelID string
	message   models.Message
	broadcast bool
	count     int
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) Notify(channelID string, msg models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{channelID: channelID, message: msg})
}

func (n *recordingNotifier) NotifyBroadcast(channelID string, msg models.Message, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{channelID: channelID, message: msg, broadcast: true, count: count})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

type recordingReconciler struct {
	mu       sync.Mutex
	channels []string
}

func (r *recordingReconciler) Reconcile(ctx context.Context, channelID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channelID)
	return nil, nil
}

func (r *recordingReconciler) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.channels...)
}

type testEnv struct {
	users    *memory.UserStore
	channels *memory.ChannelStore
	subs     *memory.SubscriptionStore
	messages *memory.MessageStore
	gateway  *stubGateway
	notifier *recordingNotifier

	identity *service.IdentityService
	registry *service.ChannelService
	ledger   *service.SubscriptionService
	msgs     *service.MessageService
	admin    *service.AdminService
}

type envOption func(*envConfig)

type envConfig struct {
	gatewayOpts []queue.MemoryOption
	reconciler  service.Reconciler
	strict      bool
}

func withGatewayOptions(opts ...queue.MemoryOption) envOption {
	return func(c *envConfig) { c.gatewayOpts = append(c.gatewayOpts, opts...) }
}

func withReconciler(r service.Reconciler) envOption {
	return func(c *envConfig) { c.reconciler = r }
}

func withStrict() envOption {
	return func(c *envConfig) { c.strict = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	e := &testEnv{
		users:    memory.NewUserStore(),
		channels: memory.NewChannelStore(),
		subs:     memory.NewSubscriptionStore(),
		messages: memory.NewMessageStore(),
		gateway:  &stubGateway{Gateway: queue.NewMemoryGateway(cfg.gatewayOpts...)},
		notifier: &recordingNotifier{},
	}

	e.identity = service.NewIdentityService(e.users, e.subs, e.messages, logger)
	e.registry = service.NewChannelService(e.channels, e.subs, e.messages, e.gateway, e.identity, logger)
	e.msgs = service.NewMessageService(e.channels, e.subs, e.messages, e.gateway, e.identity, e.notifier,
		service.MessageConfig{
			ReconcileWait:  50 * time.Millisecond,
			ReconcileBatch: 10,
			PollWait:       50 * time.Millisecond,
		}, logger)

	reconciler := cfg.reconciler
	if reconciler == nil {
		reconciler = e.msgs
	}
	e.ledger = service.NewSubscriptionService(e.subs, e.channels, e.users, reconciler, cfg.strict, time.Second, logger)
	e.admin = service.NewAdminService(e.users, e.channels, e.subs, e.messages, e.gateway, nil, logger)
	return e
}

func (e *testEnv) createChannel(t *testing.T, name, publisherID string) *models.Channel {
	t.Helper()
	ch, err := e.registry.Create(context.Background(), name, "A channel used by the tests", publisherID)
	if err != nil {
		t.Fatalf("create channel %q: %v", name, err)
	}
	return ch
}
