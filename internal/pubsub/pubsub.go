package pubsub

import (
	"log"
	"sync"
	"sync/atomic"
)

// EventType identifies a kind of event. Packages publishing events declare their own constants of this type.
type EventType int

// Event is delivered to subscribers of its Type
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewEvent creates an event of the given type
func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{Type: eventType, Payload: payload}
}

// SubscriptionOptions configures how events are delivered to one subscriber
type SubscriptionOptions struct {
	// Blocking subscribers never miss an event, but a slow one stalls delivery to everyone else.
	// Non-blocking subscribers drop events while their channel is full.
	IsBlocking bool
}

// SubscriberID is returned by Subscribe and is required to unsubscribe
type SubscriberID uint64

type delivery int

const (
	delivered delivery = iota
	// dropped means the channel of a non-blocking subscriber was full
	dropped
	// mismatched means the payload was not of the subscriber's type
	mismatched
)

type subscriber struct {
	opts    SubscriptionOptions
	dropped atomic.Uint64
	// deliver converts the payload back to the subscriber's type and sends it
	deliver func(eventType EventType, payload any) delivery
	close   func()
}

type message struct {
	eventType EventType
	payload   any
}

// Broker fans events out to subscribers from a single goroutine, so subscribers of one type see events in
// publish order
type Broker struct {
	mu     sync.RWMutex
	wg     sync.WaitGroup
	nextID atomic.Uint64

	registry map[EventType]map[SubscriberID]*subscriber
	queue    chan message
	stopped  atomic.Bool
	logger   *log.Logger
}

// Option configures a Broker
type Option func(*Broker)

// WithLogger sets the logger dropped events are reported to
func WithLogger(logger *log.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithQueueSize sets how many published events may wait for delivery before Publish blocks
func WithQueueSize(size int) Option {
	return func(b *Broker) {
		b.queue = make(chan message, size)
	}
}

// New starts a broker
func New(opts ...Option) *Broker {
	b := &Broker{
		registry: make(map[EventType]map[SubscriberID]*subscriber),
		queue:    make(chan message, 100),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.run()
	return b
}

// Subscribe registers ch for events of eventType. The caller owns the buffer size of ch, the broker closes it
// on Unsubscribe or shutdown. Go methods cannot declare type parameters, hence the free function.
func Subscribe[T any](b *Broker, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SubscriberID(b.nextID.Add(1))
	sub := &subscriber{
		opts: opts,
		deliver: func(evType EventType, payload any) delivery {
			typed, ok := payload.(T)
			if !ok {
				b.logger.Printf("[PubSub] Event %v carries %T, subscriber %d expects %T", evType, payload, id, *new(T))
				return mismatched
			}
			event := &Event[T]{Type: evType, Payload: typed}
			if opts.IsBlocking {
				ch <- event
				return delivered
			}
			select {
			case ch <- event:
				return delivered
			default:
				return dropped
			}
		},
		close: func() { close(ch) },
	}

	if b.stopped.Load() {
		// Nothing will ever be delivered
		sub.close()
		return id
	}

	if _, ok := b.registry[eventType]; !ok {
		b.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	b.registry[eventType][id] = sub
	return id
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Broker) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.registry[eventType]
	if !ok {
		return
	}
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		sub.close()
		if len(subs) == 0 {
			delete(b.registry, eventType)
		}
	}
}

// Publish queues an event for delivery. Events published after shutdown are dropped.
func Publish[T any](b *Broker, event *Event[T]) {
	// The read lock keeps shutdown from closing the queue between the check and the send
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped.Load() {
		b.logger.Printf("[PubSub] Dropping event %v, broker is shut down", event.Type)
		return
	}
	b.queue <- message{eventType: event.Type, payload: event.Payload}
}

// Dropped returns how many events a non-blocking subscriber missed because its channel was full
func (b *Broker) Dropped(eventType EventType, id SubscriberID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if sub, ok := b.registry[eventType][id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// GracefulShutdown delivers the queued events, closes every subscriber channel and waits for the broker to exit.
// It is idempotent.
func (b *Broker) GracefulShutdown() {
	b.mu.Lock()
	if !b.stopped.Swap(true) {
		close(b.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broker) run() {
	defer b.wg.Done()

	for msg := range b.queue {
		b.mu.RLock()
		for id, sub := range b.registry[msg.eventType] {
			if sub.deliver(msg.eventType, msg.payload) == dropped {
				n := sub.dropped.Add(1)
				b.logger.Printf("[PubSub] Dropped event %v for subscriber %d (%d dropped)", msg.eventType, id, n)
			}
		}
		b.mu.RUnlock()
	}

	b.mu.Lock()
	for eventType, subs := range b.registry {
		for _, sub := range subs {
			sub.close()
		}
		delete(b.registry, eventType)
	}
	b.mu.Unlock()
}
