// Package events provides the in-process domain event bus. Services publish
// events only after their transaction has committed; a rolled-back operation
// must never be observable through the bus. The bus is the seam where an
// external notifier (SMS, display boards) plugs in.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the domain services.
const (
	TokenCreated        = "token.created"
	TokenCalled         = "token.called"
	OrderPaid           = "order.paid"
	OrderCompleted      = "order.completed"
	BillPaid            = "bill.paid"
	StockLow            = "stock.low"
	AdmissionAdmitted   = "admission.admitted"
	AdmissionDischarged = "admission.discharged"
)

// Event is a domain fact that already happened. Payload keys are plain
// strings so listeners need no knowledge of domain types.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TenantID  string            `json:"tenant_id"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Listener receives published events. Listeners must not block; slow
// consumers should buffer internally.
type Listener func(Event)

// Bus fans published events out to listeners on a single dispatch
// goroutine. Publish never blocks the caller beyond the channel buffer.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

const defaultBuffer = 256

// NewBus creates and starts an event bus. An audit listener logging every
// event is always attached.
func NewBus(logger zerolog.Logger) *Bus {
	b := &Bus{
		ch:     make(chan Event, defaultBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	b.Subscribe(func(e Event) {
		logger.Info().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Str("tenant_id", e.TenantID).
			Msg("domain event")
	})
	go b.dispatch()
	return b
}

// Subscribe registers a listener for all subsequent events.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish queues an event for delivery. Events published after Close, or
// when the buffer is full, are dropped with a warning; the bus carries
// notifications, not state.
func (b *Bus) Publish(eventType, tenantID string, payload map[string]string) {
	e := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	select {
	case <-b.done:
		b.logger.Warn().Str("event_type", eventType).Msg("event dropped: bus closed")
	case b.ch <- e:
	default:
		b.logger.Warn().Str("event_type", eventType).Msg("event dropped: buffer full")
	}
}

func (b *Bus) dispatch() {
	for {
		select {
		case <-b.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case e := <-b.ch:
					b.deliver(e)
				default:
					return
				}
			}
		case e := <-b.ch:
			b.deliver(e)
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}

// Close stops accepting events and drains the queue.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
