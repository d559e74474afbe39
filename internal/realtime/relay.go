package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type relayEnvelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// RedisRelay fans emits out through a Redis channel so every replica's hub
// sees them. While the subscription is down it delivers to the local hub
// only.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  *zap.Logger

	subscribed atomic.Bool
	ready      chan struct{}
}

// NewRedisRelay creates a relay for the hub.
func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Emit publishes the frame. Publish failures fall back to local delivery.
func (r *RedisRelay) Emit(ctx context.Context, room, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		r.logger.Error("encode realtime frame", zap.String("event", event), zap.Error(err))
		return
	}
	if !r.subscribed.Load() {
		r.hub.Deliver(room, frame)
		return
	}

	payload, err := json.Marshal(relayEnvelope{Room: room, Frame: frame})
	if err != nil {
		r.hub.Deliver(room, frame)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("realtime relay publish failed, delivering locally", zap.String("room", room), zap.Error(err))
		r.hub.Deliver(room, frame)
	}
}

// Run subscribes to the channel and delivers relayed frames to the local hub
// until ctx is cancelled. A dropped subscription is retried with backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	for {
		err := r.consume(ctx)
		r.subscribed.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("realtime relay subscription lost", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
	r.logger.Info("realtime relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("subscription channel closed")
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("discarding malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Deliver(env.Room, env.Frame)
		}
	}
}
