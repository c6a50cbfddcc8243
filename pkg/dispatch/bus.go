// Package dispatch is the in-process publish/subscribe registry that delivers
// decoded inbound events to host-registered callbacks.
package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind identifies one of the closed set of events a host can subscribe to.
type Kind string

const (
	EventAudioOut       Kind = "audio.out"
	EventCallStarted    Kind = "call.started"
	EventCallEnded      Kind = "call.ended"
	EventAudioCancelled Kind = "call.audio.cancelled"
	EventError          Kind = "error"
)

// Event is one dispatched unit. Data carries the base64 audio payload for
// audio.out and is empty otherwise. Err is set only on error events so
// callers can distinguish decode, dial, and send failures by reason code.
type Event struct {
	Kind Kind
	Data string
	Err  error
}

// Handler consumes one dispatched event.
type Handler func(Event)

type subscriber struct {
	handler Handler
	removed atomic.Bool
}

// Bus delivers events synchronously, in registration order, to every
// subscriber of the matching kind. Events with no subscribers are dropped.
type Bus struct {
	mu   sync.Mutex
	subs map[Kind][]*subscriber
	log  *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		subs: make(map[Kind][]*subscriber),
		log:  log,
	}
}

// On registers a handler for kind and returns its unsubscribe function.
// The returned function is idempotent and safe to call after the owning
// session has ended.
func (b *Bus) On(kind Kind, h Handler) func() {
	sub := &subscriber{handler: h}
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	return func() {
		if !sub.removed.CompareAndSwap(false, true) {
			return
		}
		b.mu.Lock()
		current := b.subs[kind]
		for i, s := range current {
			if s == sub {
				b.subs[kind] = append(current[:i:i], current[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}
}

// Emit invokes every currently registered handler for the event's kind.
// Delivery iterates a snapshot taken under the lock, and each subscriber is
// re-checked for liveness before its callback runs, so a handler that
// unsubscribes itself or another handler mid-delivery stays well defined.
func (b *Bus) Emit(evt Event) {
	b.mu.Lock()
	snapshot := append([]*subscriber(nil), b.subs[evt.Kind]...)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		b.log.Debug("event_dropped", "kind", string(evt.Kind))
		return
	}
	b.log.Debug("event_dispatched", "kind", string(evt.Kind), "subscribers", len(snapshot))
	for _, sub := range snapshot {
		if sub.removed.Load() {
			continue
		}
		sub.handler(evt)
	}
}
