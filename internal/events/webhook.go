package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Subscriber receives every published event. Subscribers run under their
// own circuit breaker, so once an external call (a webhook, a dashboard
// push) has failed repeatedly it is rejected without being made. A call
// that never returns is not cut off: Publish waits for it.
type Subscriber interface {
	Name() string
	Notify(ctx context.Context, eventName string, payload interface{}) error
}

// Metrics are the counters exposed alongside GET /system/status.
type Metrics struct {
	Published        *prometheus.CounterVec
	SubscriberErrors *prometheus.CounterVec
}

// NewMetrics registers the engine's event-publication counters against reg.
// Grounded on tomtom215-cartographus's per-domain CounterVec registration
// pattern.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaengine_events_published_total",
			Help: "Count of events published by name.",
		}, []string{"event"}),
		SubscriberErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaengine_event_subscriber_errors_total",
			Help: "Count of subscriber notification failures by subscriber name.",
		}, []string{"subscriber"}),
	}
	reg.MustRegister(m.Published, m.SubscriberErrors)
	return m
}

// WebhookPublisher fans a published event out to every registered
// Subscriber concurrently, each call wrapped in its own gobreaker circuit
// breaker (grounded on tomtom215-cartographus's
// internal/eventprocessor/circuitbreaker.go) so one tripped subscriber
// never slows or blocks the others.
type WebhookPublisher struct {
	metrics *Metrics

	mu          sync.RWMutex
	subscribers []Subscriber
	breakers    map[string]*gobreaker.CircuitBreaker[interface{}]
}

// NewWebhookPublisher builds a publisher with no subscribers; call
// Subscribe to add them.
func NewWebhookPublisher(metrics *Metrics) *WebhookPublisher {
	return &WebhookPublisher{
		metrics:  metrics,
		breakers: make(map[string]*gobreaker.CircuitBreaker[interface{}]),
	}
}

// Subscribe registers s and gives it its own circuit breaker, tripping
// after 5 consecutive failures and staying open for 30s before a half-open
// trial request.
func (p *WebhookPublisher) Subscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, s)
	p.breakers[s.Name()] = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:    s.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Publish notifies every subscriber concurrently and returns once every
// subscriber call has returned. Per spec §4.10 it never returns an error —
// a tripped breaker or a notify error is counted in SubscriberErrors, not
// propagated or logged.
func (p *WebhookPublisher) Publish(ctx context.Context, eventName string, payload interface{}) {
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(eventName).Inc()
	}

	p.mu.RLock()
	subscribers := make([]Subscriber, len(p.subscribers))
	copy(subscribers, p.subscribers)
	breakers := p.breakers
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range subscribers {
		s := s
		breaker := breakers[s.Name()]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := breaker.Execute(func() (interface{}, error) {
				return nil, s.Notify(ctx, eventName, payload)
			})
			if err != nil && p.metrics != nil {
				p.metrics.SubscriberErrors.WithLabelValues(s.Name()).Inc()
			}
		}()
	}
	wg.Wait()
}

// FuncSubscriber adapts a plain function into a Subscriber, for simple
// in-process hooks that don't need their own type.
type FuncSubscriber struct {
	SubscriberName string
	Fn             func(ctx context.Context, eventName string, payload interface{}) error
}

func (f FuncSubscriber) Name() string { return f.SubscriberName }

func (f FuncSubscriber) Notify(ctx context.Context, eventName string, payload interface{}) error {
	if f.Fn == nil {
		return fmt.Errorf("subscriber %s has no handler", f.SubscriberName)
	}
	return f.Fn(ctx, eventName, payload)
}
