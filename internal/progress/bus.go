// Package progress implements the in-process and cross-process fan-out of
// ProgressEvent notifications for a running research session.
package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/channel"
	"github.com/researchflow/researchflow/types"
)

// subscriberChannelConfig sizes a subscriber's buffer between 8 and 256
// events, growing when a burst of stage updates would otherwise be dropped.
func subscriberChannelConfig() channel.TunableConfig {
	cfg := channel.DefaultTunableConfig()
	cfg.InitialSize = 32
	cfg.MinSize = 8
	cfg.MaxSize = 256
	return cfg
}

// Subscription is a handle a caller uses to receive ProgressEvents for one
// session and later unsubscribe.
type Subscription struct {
	sessionID string
	ch        *channel.TunableChannel[types.ProgressEvent]
}

// Events returns the channel this subscription receives on. The channel is
// closed by Unsubscribe.
func (s *Subscription) Events() <-chan types.ProgressEvent {
	return s.ch.Chan()
}

// Bus fans a session's progress events out to local subscribers and,
// optionally, to a Redis pub/sub channel for cross-process subscribers.
//
// Local delivery is best-effort and non-blocking: a subscriber whose buffer
// is full has this event dropped for it alone — the bus never blocks the
// publisher on a slow reader, per the documented backpressure policy.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	redis  *redis.Client
	logger *zap.Logger
}

// NewBus creates a Bus. rdb may be nil, in which case the bus operates
// local-only (no cross-process fan-out) — this is a supported degraded
// mode, not an error.
func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]*Subscription),
		redis:  rdb,
		logger: logger.With(zap.String("component", "progress_bus")),
	}
}

// Subscribe registers a new local listener for sessionID's events.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{sessionID: sessionID, ch: channel.NewTunableChannel[types.ProgressEvent](subscriberChannelConfig())}

	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub from the bus and closes its channel. Safe to call
// once per subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	list := b.subs[sub.sessionID]
	for i, s := range list {
		if s == sub {
			b.subs[sub.sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.sessionID]) == 0 {
		delete(b.subs, sub.sessionID)
	}
	b.mu.Unlock()

	sub.ch.Close()
}

// Publish delivers event to every local subscriber of its session and, if
// configured, to the cross-process Redis channel. Redis publish failures
// are logged and swallowed: cross-process delivery degrading never blocks
// or fails local delivery.
func (b *Bus) Publish(ctx context.Context, event types.ProgressEvent) {
	b.mu.Lock()
	subs := append([]*Subscription(nil), b.subs[event.SessionID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.ch.Tune()
		if !sub.ch.TrySend(event) {
			b.logger.Debug("dropping progress event for slow subscriber",
				zap.String("session_id", event.SessionID))
		}
	}

	if b.redis == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to marshal progress event", zap.Error(err))
		return
	}
	channel := channelName(event.SessionID)
	if err := b.redis.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Warn("cross-process progress publish failed",
			zap.String("channel", channel), zap.Error(err))
	}
}

func channelName(sessionID string) string {
	return "progress:" + sessionID
}

// SubscribeRemote opens a Redis pub/sub subscription for sessionID and
// streams decoded events into the returned channel until ctx is cancelled.
// It is the cross-process counterpart to Subscribe, used by listeners
// running in a different process than the orchestrator.
func (b *Bus) SubscribeRemote(ctx context.Context, sessionID string) (<-chan types.ProgressEvent, func(), error) {
	if b.redis == nil {
		return nil, func() {}, redis.Nil
	}

	pubsub := b.redis.Subscribe(ctx, channelName(sessionID))
	out := make(chan types.ProgressEvent, 32)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event types.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("failed to decode remote progress event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()

	cleanup := func() { _ = pubsub.Close() }
	return out, cleanup, nil
}
