// CLAUDE:SUMMARY In-process event bus: typed events, channel and callback subscribers, async worker pool, prometheus delivery metrics
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	EventQueueSize      = 20
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type SubscriberID int

type HandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type busMetrics struct {
	published      *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

// Bus fans events out to subscribers of each type. Publish delivers
// synchronously; PublishAsync hands the event to a fixed worker pool.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[SubscriberID]*subscriber
	lastID      SubscriberID
	metrics     *busMetrics
	logger      *slog.Logger

	queue    chan Event
	workerWg sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	stopMu   sync.RWMutex
	stopped  bool
}

// NewBus starts the async worker pool. reg may be nil to disable metrics.
func NewBus(reg prometheus.Registerer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]*subscriber),
		logger:      logger,
		queue:       make(chan Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if reg != nil {
		f := promauto.With(reg)
		b.metrics = &busMetrics{
			published: f.NewCounterVec(prometheus.CounterOpts{
				Name: "debatehub_events_published_total",
				Help: "Events delivered to subscribers, by type.",
			}, []string{"type"}),
			deliveryErrors: f.NewCounterVec(prometheus.CounterOpts{
				Name: "debatehub_event_delivery_errors_total",
				Help: "Events that could not be delivered, by type and reason.",
			}, []string{"type", "reason"}),
			subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "debatehub_event_subscribers",
				Help: "Active subscribers, by type.",
			}, []string{"type"}),
		}
	}
	for range AsyncWorkerPoolSize {
		b.workerWg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.workerWg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case evt := <-b.queue:
			b.Publish(evt)
		}
	}
}

// subscriber owns ch. A send never holds mu, so a consumer that stops
// reading cannot wedge close; in-flight sends are drained through done
// before ch is closed.
type subscriber struct {
	mu       sync.RWMutex
	ch       chan Event
	done     chan struct{}
	inflight sync.WaitGroup
	closed   bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Event, EventQueueSize), done: make(chan struct{})}
}

// deliver blocks until evt is buffered, the subscriber closes, or stop
// fires. It reports whether evt was handed over.
func (s *subscriber) deliver(evt Event, stop <-chan struct{}) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.inflight.Add(1)
	s.mu.RUnlock()
	defer s.inflight.Done()

	select {
	case s.ch <- evt:
		return true
	case <-s.done:
		return false
	case <-stop:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.ch)
}

// Subscribe returns a channel receiving events of eventType. The channel is
// closed on Unsubscribe or Stop.
func (b *Bus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := newSubscriber()
	b.lastID++
	id := b.lastID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[eventType][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc runs fn for each event of eventType on a dedicated goroutine.
func (b *Bus) SubscribeFunc(eventType EventType, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(eventType)
	go func() {
		for evt := range ch {
			fn(evt)
		}
	}()
	return id
}

func (b *Bus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	var sub *subscriber
	if subs, ok := b.subscribers[eventType]; ok {
		sub = subs[id]
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, eventType)
		}
	}
	b.mu.Unlock()

	if sub != nil {
		sub.close()
		if b.metrics != nil {
			b.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
		}
	}
}

// Publish delivers evt to every current subscriber of its type, blocking on
// full subscriber buffers until the subscriber is removed or the bus stops.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	subs := make(map[SubscriberID]*subscriber, len(b.subscribers[evt.Type]))
	for id, s := range b.subscribers[evt.Type] {
		subs[id] = s
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.deliver(evt, b.stopCh) {
			if b.metrics != nil {
				b.metrics.deliveryErrors.WithLabelValues(string(evt.Type), "undelivered").Inc()
			}
			b.logger.Debug("event not delivered", "type", evt.Type)
		}
	}
	if b.metrics != nil {
		b.metrics.published.WithLabelValues(string(evt.Type)).Inc()
	}
}

// PublishAsync queues evt for the worker pool. It returns false when the
// bus is stopped or the queue is full.
func (b *Bus) PublishAsync(evt Event) bool {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return false
	}
	select {
	case b.queue <- evt:
		return true
	default:
		b.logger.Warn("event queue full, dropping event", "type", evt.Type)
		if b.metrics != nil {
			b.metrics.deliveryErrors.WithLabelValues(string(evt.Type), "dropped").Inc()
		}
		return false
	}
}

// Stop halts the worker pool and closes every subscriber channel, which
// ends SubscribeFunc goroutines. Events still queued are discarded.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		close(b.stopCh)
		b.workerWg.Wait()

		b.mu.Lock()
		subs := b.subscribers
		b.subscribers = make(map[EventType]map[SubscriberID]*subscriber)
		b.mu.Unlock()

		for _, byID := range subs {
			for _, s := range byID {
				s.close()
			}
		}
		if b.metrics != nil {
			b.metrics.subscribers.Reset()
		}
	})
}
