package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/api"
	"github.com/lalith-99/echocast/internal/config"
	"github.com/lalith-99/echocast/internal/db"
	"github.com/lalith-99/echocast/internal/fanout"
	"github.com/lalith-99/echocast/internal/observ"
	"github.com/lalith-99/echocast/internal/queue"
	"github.com/lalith-99/echocast/internal/repository"
	"github.com/lalith-99/echocast/internal/repository/memory"
	"github.com/lalith-99/echocast/internal/repository/postgres"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Cancelled on SIGINT/SIGTERM. Everything long-running hangs off it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Queue gateway
	// ---------------------------------------------------------------
	gateway, err := newGateway(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("create queue gateway: %w", err)
	}
	logger.Info("queue gateway ready", zap.String("driver", cfg.Queue.Driver))

	// ---------------------------------------------------------------
	// 4. Repositories
	//
	// Users, channels and subscriptions are process-local. The message
	// cache goes to Postgres when DATABASE_URL is set.
	// ---------------------------------------------------------------
	var (
		messageRepo repository.MessageRepository = memory.NewMessageStore()
		pinger      service.Pinger
	)
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		messageRepo = postgres.NewMessageStore(database.Pool())
		pinger = database
	}
	userRepo := memory.NewUserStore()
	channelRepo := memory.NewChannelStore()
	subscriptionRepo := memory.NewSubscriptionStore()

	// ---------------------------------------------------------------
	// 5. Fan-out
	//
	// With REDIS_URL every instance publishes through Redis and delivers
	// what it receives to its own sockets; without it the hub emits
	// directly.
	// ---------------------------------------------------------------
	hub := fanout.NewHub(cfg.FanoutBuffer, logger)
	var emitter fanout.Emitter = hub
	// Stays nil without Redis; a nil channel never fires in waitForExit.
	var relayErr chan error
	if cfg.RedisURL != "" {
		client, err := fanout.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()

		relay := fanout.NewRedisRelay(client, hub, logger)
		relayErr = make(chan error, 1)
		go func() {
			// The hub is only fed through the relay, so a dead relay means
			// this instance stops delivering. Shut down and let it restart.
			if err := relay.Run(ctx); err != nil {
				relayErr <- err
			}
		}()
		emitter = relay
	}
	notifier := fanout.NewNotifier(emitter, logger)

	// ---------------------------------------------------------------
	// 6. Services
	// ---------------------------------------------------------------
	identity := service.NewIdentityService(userRepo, subscriptionRepo, messageRepo, logger)
	channels := service.NewChannelService(channelRepo, subscriptionRepo, messageRepo, gateway, identity, logger)
	messages := service.NewMessageService(channelRepo, subscriptionRepo, messageRepo, gateway, identity, notifier,
		service.MessageConfig{
			ReconcileWait:  cfg.Queue.ReconcileWait,
			ReconcileBatch: cfg.Queue.ReconcileBatch,
			PollWait:       cfg.Queue.PollWait,
		}, logger)
	// Strict accounting panics on a negative subscriber count; production
	// clamps and logs instead.
	subscriptions := service.NewSubscriptionService(subscriptionRepo, channelRepo, userRepo, messages,
		!cfg.IsProduction(), cfg.Queue.ReconcileWait+cfg.Queue.ReceiveWait, logger)
	admin := service.NewAdminService(userRepo, channelRepo, subscriptionRepo, messageRepo, gateway, pinger, logger)

	// ---------------------------------------------------------------
	// 7. HTTP server
	// ---------------------------------------------------------------
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Handlers{
		Users:         api.NewUserHandler(identity, cfg.JWTSecret, cfg.JWTTTL, logger),
		Channels:      api.NewChannelHandler(channels, logger),
		Subscriptions: api.NewSubscriptionHandler(subscriptions, logger),
		Messages:      api.NewMessageHandler(messages, channels, logger),
		Admin:         api.NewAdminHandler(admin, logger),
		WS:            api.NewWSHandler(hub, channels, cfg.JWTSecret, cfg.WSAllowedOrigins, logger),
	}, api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AdminTokenHash: cfg.AdminTokenHash,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting EchoCast",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	runErr := waitForExit(ctx, errCh, relayErr)
	if runErr != nil {
		logger.Error("stopping after failure", zap.Error(runErr))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown http: %w", err))
	}
	return runErr
}

// waitForExit blocks until a signal cancels ctx, the HTTP server fails or
// the fan-out relay dies. Only the last two are errors.
func waitForExit(ctx context.Context, serveErr, relayErr <-chan error) error {
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case err := <-relayErr:
		return fmt.Errorf("fan-out relay: %w", err)
	case <-ctx.Done():
		return nil
	}
}

func newGateway(ctx context.Context, cfg config.QueueConfig) (queue.Gateway, error) {
	if cfg.Driver == config.QueueDriverMemory {
		return queue.NewMemoryGateway(queue.WithVisibilityTimeout(cfg.VisibilityTimeout)), nil
	}
	return queue.NewSQS(ctx, queue.SQSConfig{
		Region:      cfg.AWSRegion,
		AccessKeyID: cfg.AWSAccessKeyID,
		SecretKey:   cfg.AWSSecretKey,
		Endpoint:    cfg.SQSEndpoint,
		Retention:   cfg.Retention,
		Visibility:  cfg.VisibilityTimeout,
		ReceiveWait: cfg.ReceiveWait,
	})
}
