package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRelayChannel = "echocast:fanout"

var _ Emitter = (*RedisRelay)(nil)

// relayEnvelope is what travels over Redis: the target room plus the frame
// exactly as connections will receive it.
type relayEnvelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// RedisRelay spreads room events across instances. Emit publishes to a
// Redis channel; Run, on every instance, delivers what arrives to the local
// hub. With the relay in place the local hub is fed only through Run, so
// each connection sees an event once.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: defaultRelayChannel, hub: hub, logger: logger}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisRelay) Emit(ctx context.Context, room, event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	b, err := encodeEnvelope(room, frame)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and feeds the local hub until ctx is
// done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	r.logger.Info("fan-out relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("relay subscription closed")
			}
			room, frame, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("skipping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Deliver(room, frame)
		}
	}
}

func encodeEnvelope(room string, frame []byte) ([]byte, error) {
	b, err := json.Marshal(relayEnvelope{Room: room, Frame: frame})
	if err != nil {
		return nil, fmt.Errorf("encode relay envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (string, []byte, error) {
	var env relayEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("decode relay envelope: %w", err)
	}
	if env.Room == "" || len(env.Frame) == 0 {
		return "", nil, fmt.Errorf("decode relay envelope: missing room or frame")
	}
	return env.Room, env.Frame, nil
}
