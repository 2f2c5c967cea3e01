package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository/redisrepo"
	"go.uber.org/zap"
)

type envelope struct {
	Origin string            `json:"origin"`
	Event  model.ChangeEvent `json:"event"`
}

// Bridge relays events between service instances over Redis pub/sub so a
// recipient connected to another instance still receives them.
type Bridge struct {
	hub    *Hub
	rdb    *redis.Client
	logger *zap.Logger
	origin string
	ready  chan struct{}
}

func NewBridge(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Bridge {
	return &Bridge{
		hub:    hub,
		rdb:    rdb,
		logger: logger,
		origin: uuid.NewString(),
		ready:  make(chan struct{}),
	}
}

func (b *Bridge) Publish(event model.ChangeEvent) {
	b.hub.Publish(event)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		b.logger.Sugar().Errorf("failed to encode %s event for notification(%s): %s", event.Kind, event.NotificationID.String(), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, redisrepo.NOTIFICATION_EVENTS, payload).Err(); err != nil {
		b.logger.Sugar().Errorf("failed to relay %s event for notification(%s) to redis: %s", event.Kind, event.NotificationID.String(), err.Error())
	}
}

// Ready is closed once the subscription is active.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Run forwards events published by other instances to the local hub until
// ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, redisrepo.NOTIFICATION_EVENTS)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(b.ready)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Sugar().Errorf("failed to decode relayed event: %s", err.Error())
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.Publish(env.Event)
		}
	}
}
