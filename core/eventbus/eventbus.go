// Package eventbus provides the in-process event bus used to decouple game modules.
//
// Publishers and subscribers only share an event.Key; the key's type parameter binds
// each event name to its payload type, so a mismatched handler or payload does not compile.
// Delivery is synchronous on the emitting goroutine over a snapshot of the subscribers
// registered when Emit was called. A panicking handler is recovered and reported, and
// delivery continues with the remaining handlers.
package eventbus

import (
	"log/slog"

	"tradequest-go/core/event"
)

// Handler receives payloads for one event.
type Handler[P event.Event] func(payload P)

// Unsubscribe removes the subscription it was returned for.
// Calling it more than once is a no-op.
type Unsubscribe func()

// Subscribe registers h for every future emission of key.
func Subscribe[P event.Event](b *Bus, key event.Key[P], h Handler[P]) Unsubscribe {
	return b.add(key.Name(), false, func(payload any) {
		h(payload.(P))
	})
}

// SubscribeOnce registers h for the next emission of key only.
// The subscription is removed before h runs, so h may emit key again without
// being invoked a second time.
func SubscribeOnce[P event.Event](b *Bus, key event.Key[P], h Handler[P]) Unsubscribe {
	return b.add(key.Name(), true, func(payload any) {
		h(payload.(P))
	})
}

// Emit delivers payload to every handler subscribed to key.
func Emit[P event.Event](b *Bus, key event.Key[P], payload P) {
	b.emit(key.Name(), payload)
}

// Observer is notified about bus activity. Implementations must not call back into the bus.
type Observer interface {
	// EventEmitted is called after an emission with the number of handlers that returned normally
	EventEmitted(name event.Name, delivered int)
	// SubscriberFault is called once per recovered handler panic
	SubscriberFault(name event.Name)
	// SubscribersChanged is called with the new subscriber count for name
	SubscribersChanged(name event.Name, count int)
}

type nopObserver struct{}

func (nopObserver) EventEmitted(event.Name, int) {}
func (nopObserver) SubscriberFault(event.Name) {}
func (nopObserver) SubscribersChanged(event.Name, int) {}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report subscriber faults.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver sets the observer notified about emissions, faults and subscriber counts.
func WithObserver(observer Observer) Option {
	return func(b *Bus) {
		if observer != nil {
			b.observer = observer
		}
	}
}

// WithFaultHandler sets a hook called for every recovered handler panic, after it is logged.
func WithFaultHandler(fn func(Fault)) Option {
	return func(b *Bus) {
		b.onFault = fn
	}
}
