package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/semptify/backend/internal/core"
	"github.com/semptify/backend/internal/metrics"
)

// ErrBusClosed is returned by Publish after shutdown has begun.
var ErrBusClosed = errors.New("event bus is closed")

// ErrUnknownType is returned when publishing a type outside the taxonomy.
var ErrUnknownType = errors.New("unknown event type")

// Handler processes events delivered to a subscription. A handler error is
// logged and isolated; it never affects other subscribers or the publisher.
type Handler func(ctx context.Context, event *Event) error

// Options configures a Bus. Zero values fall back to the documented defaults.
type Options struct {
	QueueHighWater   int // central delivery queue capacity (default 10000)
	HistoryPerType   int // ring size per event type (default 1000)
	HistoryPerUser   int // ring size per user (default 500)
	SubscriberBuffer int // per-subscription channel capacity (default 256)
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

type subscription struct {
	id      int
	typ     Type
	handler Handler
	ch      chan *Event
}

// Bus is the process-local typed pub/sub fabric. Publishing is
// enqueue-only and never blocks on subscribers: a dispatcher goroutine
// drains the central queue, records history, and hands each event to
// per-subscription channels, each drained by its own worker so that
// per-subscription FIFO order holds.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]*subscription
	nextID int

	historyByType map[Type]*ring
	historyByUser map[string]*ring
	historyAll    *ring

	queue    chan *Event
	closed   atomic.Bool
	workers  sync.WaitGroup // subscription workers
	dispatch sync.WaitGroup // dispatcher goroutine
	inflight sync.WaitGroup // handler invocations in progress

	sockets *SocketSet
	dropped atomic.Int64

	opts   Options
	logger *slog.Logger
}

// NewBus creates and starts a Bus.
func NewBus(opts Options) *Bus {
	if opts.QueueHighWater <= 0 {
		opts.QueueHighWater = 10000
	}
	if opts.HistoryPerType <= 0 {
		opts.HistoryPerType = 1000
	}
	if opts.HistoryPerUser <= 0 {
		opts.HistoryPerUser = 500
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		subs:          make(map[Type][]*subscription),
		historyByType: make(map[Type]*ring),
		historyByUser: make(map[string]*ring),
		historyAll:    newRing(opts.HistoryPerType),
		queue:         make(chan *Event, opts.QueueHighWater),
		sockets:       NewSocketSet(opts.Metrics, logger),
		opts:          opts,
		logger:        logger.With("component", "event_bus"),
	}

	b.dispatch.Add(1)
	go b.run()
	return b
}

// Publish enqueues an event for asynchronous delivery and returns the
// canonicalized Event. It never blocks: when the delivery queue is already
// at its high-water mark the event is dropped with a warning and a metric,
// and the canonical event is still returned so callers can log it.
func (b *Bus) Publish(typ Type, userID, source string, payload Payload) (*Event, error) {
	return b.publish(typ, userID, source, payload, 0, "")
}

// PublishScored is Publish with a pre-computed intensity and severity; the
// context loop uses it so listeners and websocket clients see scored events.
func (b *Bus) PublishScored(typ Type, userID, source string, payload Payload, intensity float64, severity core.Severity) (*Event, error) {
	return b.publish(typ, userID, source, payload, intensity, severity)
}

func (b *Bus) publish(typ Type, userID, source string, payload Payload, intensity float64, severity core.Severity) (*Event, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if !Known(typ) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if payload != nil && payload.Kind() != typ {
		return nil, fmt.Errorf("%w: payload kind %q does not match %q", ErrUnknownType, payload.Kind(), typ)
	}

	e := &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Source:    source,
		Payload:   payload,
		Intensity: intensity,
		Severity:  severity,
	}

	select {
	case b.queue <- e:
		if b.opts.Metrics != nil {
			b.opts.Metrics.EventsPublished.WithLabelValues(string(typ)).Inc()
		}
	default:
		b.dropped.Add(1)
		if b.opts.Metrics != nil {
			b.opts.Metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		}
		b.logger.Warn("delivery queue full, dropping event", "type", typ, "user_id", userID)
	}
	return e, nil
}

// Emit is the fire-and-forget form of Publish for call sites that cannot
// usefully handle a shutdown sentinel.
func (b *Bus) Emit(typ Type, userID, source string, payload Payload) {
	if _, err := b.Publish(typ, userID, source, payload); err != nil && !errors.Is(err, ErrBusClosed) {
		b.logger.Warn("emit failed", "type", typ, "error", err)
	}
}

// Subscribe registers a handler for one event type. Delivery order within
// the subscription equals publish order. The returned function removes the
// subscription; the worker drains whatever is already buffered, so a
// subscriber sees every event delivered before unsubscribe returns.
func (b *Bus) Subscribe(typ Type, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		typ:     typ,
		handler: handler,
		ch:      make(chan *Event, b.opts.SubscriberBuffer),
	}
	b.subs[typ] = append(b.subs[typ], sub)
	b.mu.Unlock()

	b.workers.Add(1)
	go b.subWorker(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			if b.closed.Load() {
				return // Close already tore the subscription down
			}
			b.mu.Lock()
			subs := b.subs[typ]
			for i, s := range subs {
				if s.id == sub.id {
					b.subs[typ] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

func (b *Bus) subWorker(sub *subscription) {
	defer b.workers.Done()
	for e := range sub.ch {
		b.invoke(sub, e)
	}
}

func (b *Bus) invoke(sub *subscription, e *Event) {
	b.inflight.Add(1)
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic", "type", sub.typ, "panic", r)
		}
	}()
	if err := sub.handler(context.Background(), e); err != nil {
		b.logger.Warn("subscriber error", "type", sub.typ, "error", err)
	}
}

// run is the dispatcher: history first, then in-process fan-out, then the
// single-serialization websocket fan-out.
func (b *Bus) run() {
	defer b.dispatch.Done()
	for e := range b.queue {
		b.record(e)

		// Fan-out happens under the read lock so an unsubscribe (which
		// closes the channel under the write lock) cannot interleave
		// with a send. Sends are non-blocking, so the lock is brief.
		b.mu.RLock()
		for _, sub := range b.subs[e.Type] {
			select {
			case sub.ch <- e:
			default:
				b.dropped.Add(1)
				if b.opts.Metrics != nil {
					b.opts.Metrics.EventsDropped.WithLabelValues("subscriber_slow").Inc()
				}
				b.logger.Warn("subscriber channel full, dropping event", "type", e.Type)
			}
		}
		b.mu.RUnlock()

		b.sockets.Send(e)
	}
}

func (b *Bus) record(e *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.historyByType[e.Type]
	if !ok {
		r = newRing(b.opts.HistoryPerType)
		b.historyByType[e.Type] = r
	}
	r.append(e)
	b.historyAll.append(e)

	if e.UserID != "" {
		ur, ok := b.historyByUser[e.UserID]
		if !ok {
			ur = newRing(b.opts.HistoryPerUser)
			b.historyByUser[e.UserID] = ur
		}
		ur.append(e)
	}
}

// History returns the most recent events matching the filters, newest
// first. Empty typ or userID means "any"; limit<=0 means 50.
func (b *Bus) History(typ Type, userID string, limit int) []*Event {
	if limit <= 0 {
		limit = 50
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch {
	case userID != "" && typ != "":
		ur := b.historyByUser[userID]
		if ur == nil {
			return nil
		}
		out := make([]*Event, 0, limit)
		for _, e := range ur.newestFirst(0) {
			if e.Type == typ {
				out = append(out, e)
				if len(out) == limit {
					break
				}
			}
		}
		return out
	case userID != "":
		ur := b.historyByUser[userID]
		if ur == nil {
			return nil
		}
		return ur.newestFirst(limit)
	case typ != "":
		r := b.historyByType[typ]
		if r == nil {
			return nil
		}
		return r.newestFirst(limit)
	default:
		return b.historyAll.newestFirst(limit)
	}
}

// RegisterWebsocket adds conn to the fan-out set for userID; empty userID
// registers it for broadcast traffic only.
func (b *Bus) RegisterWebsocket(conn Conn, userID string) {
	b.sockets.Register(conn, userID)
}

// UnregisterWebsocket removes conn from the fan-out set.
func (b *Bus) UnregisterWebsocket(conn Conn, userID string) {
	b.sockets.Unregister(conn, userID)
}

// Dropped reports how many events backpressure has discarded.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// QueueDepth reports the current delivery queue length.
func (b *Bus) QueueDepth() int { return len(b.queue) }

// Close refuses new publishes, drains the delivery queue and waits up to
// the context deadline for in-flight handlers. Events still buffered on a
// subscription when the deadline hits are dropped.
func (b *Bus) Close(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.queue)
	b.dispatch.Wait()

	b.mu.Lock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[Type][]*subscription)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("shutdown deadline reached with handlers in flight")
		return ctx.Err()
	}
}

// Statistics returns operational counters for status endpoints.
func (b *Bus) Statistics() map[string]interface{} {
	b.mu.RLock()
	subCount := 0
	for _, s := range b.subs {
		subCount += len(s)
	}
	b.mu.RUnlock()
	return map[string]interface{}{
		"subscribers":    subCount,
		"queue_depth":    len(b.queue),
		"dropped_events": b.dropped.Load(),
		"websockets":     b.sockets.Count(),
	}
}
