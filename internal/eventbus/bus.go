package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// Handler is the callback signature for received events.
//
// Handlers are invoked sequentially on the bus's dispatch goroutine. A
// returned error is logged and does not affect delivery to other handlers.
type Handler func(channel string, payload []byte) error

// Bus is a Redis pub/sub facade with pattern subscriptions and automatic
// re-subscribe on transport failure.
//
// Delivery is at-most-once and best-effort: events published while the
// transport is down are lost. Subscribers that need a current view must
// pair the bus with a snapshot read (e.g. the device state store).
//
// Thread Safety:
//   - Publish and Subscribe are safe for concurrent use.
//   - Handlers run one at a time on the internal dispatch loop.
type Bus struct {
	rdb     *goredis.Client
	logger  *logging.Logger
	backoff time.Duration

	mu     sync.RWMutex
	subs   map[string][]Handler
	pubsub *goredis.PubSub

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// New creates an event bus over the given Redis client.
//
// Parameters:
//   - rdb: Shared Redis client (see infrastructure/redis)
//   - logger: Structured logger for dispatch/reconnect diagnostics
//   - backoff: Fixed delay before re-subscribing after a transport failure
func New(rdb *goredis.Client, logger *logging.Logger, backoff time.Duration) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		rdb:     rdb,
		logger:  logger,
		backoff: backoff,
		subs:    make(map[string][]Handler),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Publish sends a payload to a channel. Fire-and-forget: the number of
// receivers is not reported to the caller.
//
// Returns:
//   - error: ErrPublishFailed if the transport rejected the publish
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: channel %s: %v", ErrPublishFailed, channel, err)
	}
	return nil
}

// Subscribe registers a handler for a channel pattern.
//
// Patterns ending in '*' match channels by prefix (e.g. "alert:*" matches
// "alert:project-7"); other patterns require an exact channel match.
// Multiple handlers may be registered for the same pattern; they are
// invoked in registration order.
//
// The first subscription starts the internal dispatch loop. Subscriptions
// survive transport failures: after the configured backoff the bus
// re-subscribes to every registered pattern.
func (b *Bus) Subscribe(pattern string, handler Handler) error {
	if pattern == "" {
		return ErrInvalidPattern
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrInvalidPattern)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return ErrStopped
	}

	_, known := b.subs[pattern]
	b.subs[pattern] = append(b.subs[pattern], handler)

	if !b.started {
		b.pubsub = b.rdb.PSubscribe(b.ctx, pattern)
		b.started = true
		go b.listen()
		return nil
	}

	if !known {
		if err := b.pubsub.PSubscribe(b.ctx, pattern); err != nil {
			// Keep the registration; the next re-subscribe cycle picks it up.
			b.logger.Warn("event bus subscribe deferred to reconnect",
				"pattern", pattern, "error", err)
		}
	}

	return nil
}

// Stop tears down the bus: the dispatch loop exits, the pub/sub connection
// is released, and further Subscribe calls fail with ErrStopped.
// The shared Redis client is not closed. Safe to call more than once.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		started := b.started
		b.cancel()
		if b.pubsub != nil {
			_ = b.pubsub.Close()
		}
		b.mu.Unlock()

		if started {
			<-b.done
		} else {
			close(b.done)
		}
	})
}

// listen is the dispatch loop. It drains the pub/sub connection and invokes
// matching handlers; on transport failure it waits the configured backoff
// and re-subscribes to all registered patterns.
func (b *Bus) listen() {
	defer close(b.done)

	for {
		b.mu.RLock()
		ps := b.pubsub
		b.mu.RUnlock()

		msg, err := ps.ReceiveMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}

			b.logger.Warn("event bus receive failed, re-subscribing",
				"backoff", b.backoff.String(), "error", err)
			_ = ps.Close()

			select {
			case <-b.ctx.Done():
				return
			case <-time.After(b.backoff):
			}

			b.resubscribe()
			continue
		}

		b.dispatch(msg.Channel, []byte(msg.Payload))
	}
}

// resubscribe replaces the pub/sub connection with a fresh one covering
// every registered pattern.
func (b *Bus) resubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return
	}

	patterns := make([]string, 0, len(b.subs))
	for pattern := range b.subs {
		patterns = append(patterns, pattern)
	}

	b.pubsub = b.rdb.PSubscribe(b.ctx, patterns...)
}

// dispatch invokes every handler whose pattern matches the channel.
// Handler panics and errors are isolated so one bad subscriber cannot
// break delivery to the rest.
func (b *Bus) dispatch(channel string, payload []byte) {
	b.mu.RLock()
	var handlers []Handler
	for pattern, hs := range b.subs {
		if matchPattern(pattern, channel) {
			handlers = append(handlers, hs...)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(handler, channel, payload)
	}
}

// invoke runs one handler with panic recovery.
func (b *Bus) invoke(handler Handler, channel string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event bus handler panic recovered",
				"channel", channel, "panic", r)
		}
	}()

	if err := handler(channel, payload); err != nil {
		b.logger.Warn("event bus handler returned error",
			"channel", channel, "error", err)
	}
}
