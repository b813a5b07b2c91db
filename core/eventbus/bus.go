package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"tradequest-go/core/event"
)

// ErrSubscriberPanic is wrapped by Fault.Err.
var ErrSubscriberPanic = errors.New("subscriber panicked")

// Fault describes a handler panic recovered during Emit.
type Fault struct {
	Event     event.Name
	Recovered any
	Err       error
	Stack     []byte
}

// subscription is a single registered handler.
type subscription struct {
	id     uint64
	name   event.Name
	invoke func(payload any)
	once   bool
	// fired is claimed by the first delivery of a once subscription
	fired atomic.Bool
}

// Bus routes payloads from publishers to subscribers by event name.
// The zero value is not usable; create buses with New.
type Bus struct {
	// registry slices are copy-on-write: Emit iterates a slice that is never mutated
	registry map[event.Name][]*subscription
	mu       sync.Mutex
	nextID   uint64

	// notifyMu orders SubscribersChanged calls the same way as the registry writes
	notifyMu sync.Mutex

	logger   *slog.Logger
	observer Observer
	onFault  func(Fault)
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		registry: make(map[event.Name][]*subscription),
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UnsubscribeAll removes every subscription for name.
func (b *Bus) UnsubscribeAll(name event.Name) {
	b.mu.Lock()
	_, ok := b.registry[name]
	delete(b.registry, name)
	b.unlockAndNotify(func() {
		if ok {
			b.observer.SubscribersChanged(name, 0)
		}
	})
}

// Clear removes every subscription for every event.
func (b *Bus) Clear() {
	b.mu.Lock()
	names := make([]event.Name, 0, len(b.registry))
	for name := range b.registry {
		names = append(names, name)
	}
	b.registry = make(map[event.Name][]*subscription)
	b.unlockAndNotify(func() {
		for _, name := range names {
			b.observer.SubscribersChanged(name, 0)
		}
	})
}

// SubscriberCount returns the number of live subscriptions for name.
func (b *Bus) SubscriberCount(name event.Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registry[name])
}

// Names returns the events that currently have subscribers, sorted.
func (b *Bus) Names() []event.Name {
	b.mu.Lock()
	names := make([]event.Name, 0, len(b.registry))
	for name := range b.registry {
		names = append(names, name)
	}
	b.mu.Unlock()

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (b *Bus) add(name event.Name, once bool, invoke func(any)) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:     b.nextID,
		name:   name,
		invoke: invoke,
		once:   once,
	}
	current := b.registry[name]
	next := make([]*subscription, len(current), len(current)+1)
	copy(next, current)
	b.registry[name] = append(next, sub)
	count := len(next) + 1
	b.unlockAndNotify(func() {
		b.observer.SubscribersChanged(name, count)
	})

	return func() {
		b.remove(sub)
	}
}

// remove drops sub from the registry. It is a no-op if sub is already gone.
func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	current := b.registry[sub.name]
	idx := -1
	for i, s := range current {
		if s.id == sub.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return
	}

	count := len(current) - 1
	if count == 0 {
		delete(b.registry, sub.name)
	} else {
		next := make([]*subscription, 0, count)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		b.registry[sub.name] = next
	}
	b.unlockAndNotify(func() {
		b.observer.SubscribersChanged(sub.name, count)
	})
}

// unlockAndNotify releases b.mu and runs notify before any later registry change can notify.
// Handlers never run while either lock is held.
func (b *Bus) unlockAndNotify(notify func()) {
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()
	notify()
}

func (b *Bus) emit(name event.Name, payload any) {
	b.mu.Lock()
	snapshot := b.registry[name]
	b.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(sub)
		}
		if b.deliver(sub, payload) {
			delivered++
		}
	}

	b.observer.EventEmitted(name, delivered)
}

// deliver calls the handler, recovering a panic so that the remaining handlers still run.
func (b *Bus) deliver(sub *subscription, payload any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.reportFault(sub.name, r, debug.Stack())
		}
	}()

	sub.invoke(payload)
	return true
}

func (b *Bus) reportFault(name event.Name, recovered any, stack []byte) {
	var err error
	if e, isErr := recovered.(error); isErr {
		err = fmt.Errorf("%w: %w", ErrSubscriberPanic, e)
	} else {
		err = fmt.Errorf("%w: %v", ErrSubscriberPanic, recovered)
	}

	b.logger.Error("Subscriber panicked", "event", name, "error", err)
	b.observer.SubscriberFault(name)

	if b.onFault != nil {
		b.onFault(Fault{
			Event:     name,
			Recovered: recovered,
			Err:       err,
			Stack:     stack,
		})
	}
}
