package fanout

import (
	"context"
	"time"

	"github.com/lalith-99/echocast/internal/models"
	"go.uber.org/zap"
)

// NewMessageEvent is the payload of a "new-message" event.
type NewMessageEvent struct {
	ChannelID string         `json:"channel_id"`
	Message   models.Message `json:"message"`
}

// BroadcastEvent is the payload of a "broadcast-message" event.
// SubscriberCount is a snapshot taken before the send and is for display only.
type BroadcastEvent struct {
	ChannelID       string         `json:"channel_id"`
	Message         models.Message `json:"message"`
	SubscriberCount int            `json:"subscriber_count"`
}

// Notifier turns published messages into room events. Rooms are keyed by
// channel id. Calls return immediately; the emit runs in its own goroutine
// so a slow transport never holds up a publish.
type Notifier struct {
	emitter Emitter
	timeout time.Duration
	logger  *zap.Logger
}

func NewNotifier(emitter Emitter, logger *zap.Logger) *Notifier {
	return &Notifier{emitter: emitter, timeout: 5 * time.Second, logger: logger}
}

func (n *Notifier) Notify(channelID string, msg models.Message) {
	n.emit(channelID, EventNewMessage, NewMessageEvent{ChannelID: channelID, Message: msg})
}

func (n *Notifier) NotifyBroadcast(channelID string, msg models.Message, subscriberCount int) {
	n.emit(channelID, EventBroadcastMessage, BroadcastEvent{
		ChannelID:       channelID,
		Message:         msg,
		SubscriberCount: subscriberCount,
	})
}

func (n *Notifier) emit(room, event string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.emitter.Emit(ctx, room, event, payload); err != nil {
			n.logger.Warn("fan-out emit failed",
				zap.String("room", room),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}()
}
