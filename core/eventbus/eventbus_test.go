package eventbus

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"tradequest-go/core/event"
)

func newTestBus(opts ...Option) *Bus {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

// recordingObserver records observer callbacks for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	emitted   map[event.Name]int
	delivered map[event.Name]int
	faults    map[event.Name]int
	counts    map[event.Name]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		emitted:   make(map[event.Name]int),
		delivered: make(map[event.Name]int),
		faults:    make(map[event.Name]int),
		counts:    make(map[event.Name]int),
	}
}

func (o *recordingObserver) EventEmitted(name event.Name, delivered int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitted[name]++
	o.delivered[name] += delivered
}

func (o *recordingObserver) SubscriberFault(name event.Name) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faults[name]++
}

func (o *recordingObserver) SubscribersChanged(name event.Name, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[name] = count
}

func TestBus_OrderFilledFanOutInRegistrationOrder(t *testing.T) {
	bus := newTestBus()

	want := event.OrderFilled{OrderID: "1", Ticker: "ZAP", Price: 150, Shares: 10}
	var calls []string
	var got []event.OrderFilled

	Subscribe(bus, event.OrderFilledKey, func(e event.OrderFilled) {
		calls = append(calls, "L1")
		got = append(got, e)
	})
	Subscribe(bus, event.OrderFilledKey, func(e event.OrderFilled) {
		calls = append(calls, "L2")
		got = append(got, e)
	})

	Emit(bus, event.OrderFilledKey, want)

	if !reflect.DeepEqual(calls, []string{"L1", "L2"}) {
		t.Errorf("calls = %v, want [L1 L2]", calls)
	}
	for i, e := range got {
		if e != want {
			t.Errorf("payload %d = %+v, want %+v", i, e, want)
		}
	}
}

func TestBus_EmitOnlyReachesMatchingEvent(t *testing.T) {
	bus := newTestBus()

	var ticks, fills int
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { ticks++ })
	Subscribe(bus, event.OrderFilledKey, func(event.OrderFilled) { fills++ })

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 1})

	if ticks != 1 {
		t.Errorf("ticks = %d, want 1", ticks)
	}
	if fills != 0 {
		t.Errorf("fills = %d, want 0", fills)
	}
}

func TestBus_EmitWithoutSubscribers(t *testing.T) {
	bus := newTestBus()

	// Must not panic
	Emit(bus, event.GameOverKey, event.GameOver{GameID: "g1"})

	if n := bus.SubscriberCount(event.NameGameOver); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestBus_SubscribeOnce(t *testing.T) {
	bus := newTestBus()

	var got []string
	SubscribeOnce(bus, event.AchievementKey, func(e event.Achievement) {
		got = append(got, e.ID)
	})

	Emit(bus, event.AchievementKey, event.Achievement{ID: "A"})
	Emit(bus, event.AchievementKey, event.Achievement{ID: "B"})

	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("got = %v, want [A]", got)
	}
	if n := bus.SubscriberCount(event.NameAchievement); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestBus_SubscribeOnceRecursiveEmit(t *testing.T) {
	bus := newTestBus()

	calls := 0
	SubscribeOnce(bus, event.AchievementKey, func(e event.Achievement) {
		calls++
		if n := bus.SubscriberCount(event.NameAchievement); n != 0 {
			t.Errorf("subscription still registered during delivery: count = %d", n)
		}
		Emit(bus, event.AchievementKey, event.Achievement{ID: "nested"})
	})

	Emit(bus, event.AchievementKey, event.Achievement{ID: "outer"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_SubscribeOnceReachedByNestedEmitFiresOnce(t *testing.T) {
	bus := newTestBus()

	onceCalls := 0
	nested := false
	Subscribe(bus, event.TurnAdvancedKey, func(e event.TurnAdvanced) {
		if !nested {
			nested = true
			Emit(bus, event.TurnAdvancedKey, event.TurnAdvanced{Turn: 2})
		}
	})
	SubscribeOnce(bus, event.TurnAdvancedKey, func(e event.TurnAdvanced) {
		onceCalls++
	})

	// The outer snapshot still contains the once subscription after the nested emit consumed it.
	Emit(bus, event.TurnAdvancedKey, event.TurnAdvanced{Turn: 1})

	if onceCalls != 1 {
		t.Errorf("onceCalls = %d, want 1", onceCalls)
	}
}

func TestBus_SubscribeOnceCancelBeforeFiring(t *testing.T) {
	bus := newTestBus()

	calls := 0
	unsubscribe := SubscribeOnce(bus, event.GameOverKey, func(event.GameOver) { calls++ })
	unsubscribe()

	Emit(bus, event.GameOverKey, event.GameOver{})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus()

	calls := 0
	unsubscribe := Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { calls++ })
	unsubscribe()

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 1, Prices: map[string]float64{}})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}

	// Second call is a no-op
	unsubscribe()

	if n := bus.SubscriberCount(event.NameMarketTick); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestBus_UnsubscribeOnlyRemovesOwnSubscription(t *testing.T) {
	bus := newTestBus()

	var a, b int
	unsubscribeA := Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { a++ })
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { b++ })

	unsubscribeA()
	unsubscribeA()
	Emit(bus, event.MarketTickKey, event.MarketTick{})

	if a != 0 || b != 1 {
		t.Errorf("a, b = %d, %d, want 0, 1", a, b)
	}
	if n := bus.SubscriberCount(event.NameMarketTick); n != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", n)
	}
}

func TestBus_DuplicateHandlerIsIndependent(t *testing.T) {
	bus := newTestBus()

	calls := 0
	h := func(event.MarketTick) { calls++ }
	unsubscribe := Subscribe(bus, event.MarketTickKey, h)
	Subscribe(bus, event.MarketTickKey, h)

	if n := bus.SubscriberCount(event.NameMarketTick); n != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", n)
	}

	Emit(bus, event.MarketTickKey, event.MarketTick{})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	unsubscribe()
	Emit(bus, event.MarketTickKey, event.MarketTick{})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBus_HandlerPanic(t *testing.T) {
	observer := newRecordingObserver()
	var faults []Fault
	bus := newTestBus(WithObserver(observer), WithFaultHandler(func(f Fault) {
		faults = append(faults, f)
	}))

	counter := 0
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		panic("test panic")
	})
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		counter++
	})

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Emit propagated panic: %v", r)
			}
		}()
		Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 1})
	}()

	if counter != 1 {
		t.Errorf("counter = %d, want 1", counter)
	}
	if len(faults) != 1 {
		t.Fatalf("faults = %d, want 1", len(faults))
	}
	if faults[0].Event != event.NameMarketTick {
		t.Errorf("Fault.Event = %v, want %v", faults[0].Event, event.NameMarketTick)
	}
	if !errors.Is(faults[0].Err, ErrSubscriberPanic) {
		t.Errorf("Fault.Err = %v, want ErrSubscriberPanic", faults[0].Err)
	}
	if len(faults[0].Stack) == 0 {
		t.Error("Fault.Stack is empty")
	}
	if observer.faults[event.NameMarketTick] != 1 {
		t.Errorf("observer faults = %d, want 1", observer.faults[event.NameMarketTick])
	}
	if observer.delivered[event.NameMarketTick] != 1 {
		t.Errorf("observer delivered = %d, want 1", observer.delivered[event.NameMarketTick])
	}
}

func TestBus_HandlerPanicWithError(t *testing.T) {
	sentinel := errors.New("boom")
	var fault Fault
	bus := newTestBus(WithFaultHandler(func(f Fault) { fault = f }))

	Subscribe(bus, event.GameOverKey, func(event.GameOver) { panic(sentinel) })
	Emit(bus, event.GameOverKey, event.GameOver{})

	if !errors.Is(fault.Err, sentinel) {
		t.Errorf("Fault.Err = %v, want wrapping %v", fault.Err, sentinel)
	}
	if fault.Recovered != sentinel {
		t.Errorf("Fault.Recovered = %v, want %v", fault.Recovered, sentinel)
	}
}

func TestBus_FailingSubscriberKeepsFailing(t *testing.T) {
	bus := newTestBus()

	counter := 0
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { panic("always") })
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { counter++ })

	for i := 0; i < 3; i++ {
		Emit(bus, event.MarketTickKey, event.MarketTick{Turn: i})
	}

	if counter != 3 {
		t.Errorf("counter = %d, want 3", counter)
	}
	if n := bus.SubscriberCount(event.NameMarketTick); n != 2 {
		t.Errorf("SubscriberCount() = %d, want 2", n)
	}
}

func TestBus_UnsubscribeAll(t *testing.T) {
	bus := newTestBus()

	calls := 0
	unsubscribe := Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { calls++ })
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { calls++ })
	Subscribe(bus, event.OrderFilledKey, func(event.OrderFilled) {})

	bus.UnsubscribeAll(event.NameMarketTick)
	Emit(bus, event.MarketTickKey, event.MarketTick{})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if n := bus.SubscriberCount(event.NameMarketTick); n != 0 {
		t.Errorf("SubscriberCount(market:tick) = %d, want 0", n)
	}
	if n := bus.SubscriberCount(event.NameOrderFilled); n != 1 {
		t.Errorf("SubscriberCount(order:filled) = %d, want 1", n)
	}

	// Handle from before UnsubscribeAll is a safe no-op
	unsubscribe()

	// No-op when nothing is registered
	bus.UnsubscribeAll(event.NameGameOver)
}

func TestBus_Clear(t *testing.T) {
	bus := newTestBus()

	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {})
	Subscribe(bus, event.OrderFilledKey, func(event.OrderFilled) {})
	unsubscribe := SubscribeOnce(bus, event.AchievementKey, func(event.Achievement) {})

	bus.Clear()

	for _, name := range []event.Name{event.NameMarketTick, event.NameOrderFilled, event.NameAchievement} {
		if n := bus.SubscriberCount(name); n != 0 {
			t.Errorf("SubscriberCount(%v) = %d, want 0", name, n)
		}
	}
	if names := bus.Names(); len(names) != 0 {
		t.Errorf("Names() = %v, want empty", names)
	}

	unsubscribe()
}

func TestBus_SnapshotIgnoresSubscribeDuringEmit(t *testing.T) {
	bus := newTestBus()

	lateCalls := 0
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { lateCalls++ })
	})

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 1})
	if lateCalls != 0 {
		t.Errorf("lateCalls after first emit = %d, want 0", lateCalls)
	}

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 2})
	if lateCalls != 1 {
		t.Errorf("lateCalls after second emit = %d, want 1", lateCalls)
	}
}

func TestBus_SnapshotIgnoresRemovalDuringEmit(t *testing.T) {
	bus := newTestBus()

	secondCalls := 0
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		bus.UnsubscribeAll(event.NameMarketTick)
	})
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) { secondCalls++ })

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 1})
	if secondCalls != 1 {
		t.Errorf("secondCalls = %d, want 1", secondCalls)
	}

	Emit(bus, event.MarketTickKey, event.MarketTick{Turn: 2})
	if secondCalls != 1 {
		t.Errorf("secondCalls after UnsubscribeAll = %d, want 1", secondCalls)
	}
}

func TestBus_SnapshotIgnoresCancelDuringEmit(t *testing.T) {
	bus := newTestBus()

	var plainCalls, onceCalls int
	var cancelPlain, cancelOnce Unsubscribe
	Subscribe(bus, event.GameOverKey, func(event.GameOver) {
		cancelPlain()
		cancelOnce()
	})
	cancelPlain = Subscribe(bus, event.GameOverKey, func(event.GameOver) { plainCalls++ })
	cancelOnce = SubscribeOnce(bus, event.GameOverKey, func(event.GameOver) { onceCalls++ })

	Emit(bus, event.GameOverKey, event.GameOver{Turn: 1})
	if plainCalls != 1 || onceCalls != 1 {
		t.Errorf("calls during cancelling emit = %d plain, %d once, want 1, 1", plainCalls, onceCalls)
	}

	Emit(bus, event.GameOverKey, event.GameOver{Turn: 2})
	if plainCalls != 1 || onceCalls != 1 {
		t.Errorf("calls after cancel = %d plain, %d once, want 1, 1", plainCalls, onceCalls)
	}
	if n := bus.SubscriberCount(event.NameGameOver); n != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", n)
	}
}

func TestBus_NestedEmitRunsToCompletion(t *testing.T) {
	bus := newTestBus()

	var trace []string
	Subscribe(bus, event.TurnAdvancedKey, func(e event.TurnAdvanced) {
		trace = append(trace, "turn")
		Emit(bus, event.MarketTickKey, event.MarketTick{Turn: e.Turn})
		trace = append(trace, "turn-done")
	})
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		trace = append(trace, "tick")
	})

	Emit(bus, event.TurnAdvancedKey, event.TurnAdvanced{Turn: 1})

	want := []string{"turn", "tick", "turn-done"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestBus_IndependentInstances(t *testing.T) {
	a := newTestBus()
	b := newTestBus()

	calls := 0
	Subscribe(a, event.MarketTickKey, func(event.MarketTick) { calls++ })
	Emit(b, event.MarketTickKey, event.MarketTick{})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if n := b.SubscriberCount(event.NameMarketTick); n != 0 {
		t.Errorf("b.SubscriberCount() = %d, want 0", n)
	}
}

func TestBus_ObserverCounts(t *testing.T) {
	observer := newRecordingObserver()
	bus := newTestBus(WithObserver(observer))

	unsubscribe := Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {})
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {})
	if observer.counts[event.NameMarketTick] != 2 {
		t.Errorf("count after subscribe = %d, want 2", observer.counts[event.NameMarketTick])
	}

	unsubscribe()
	if observer.counts[event.NameMarketTick] != 1 {
		t.Errorf("count after unsubscribe = %d, want 1", observer.counts[event.NameMarketTick])
	}

	Emit(bus, event.MarketTickKey, event.MarketTick{})
	if observer.emitted[event.NameMarketTick] != 1 || observer.delivered[event.NameMarketTick] != 1 {
		t.Errorf("emitted, delivered = %d, %d, want 1, 1",
			observer.emitted[event.NameMarketTick], observer.delivered[event.NameMarketTick])
	}

	bus.Clear()
	if observer.counts[event.NameMarketTick] != 0 {
		t.Errorf("count after Clear = %d, want 0", observer.counts[event.NameMarketTick])
	}
}

func TestBus_ObserverCountFollowsConcurrentChanges(t *testing.T) {
	observer := newRecordingObserver()
	bus := newTestBus(WithObserver(observer))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				unsubscribe := Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {})
				if i%2 == 0 {
					unsubscribe()
				}
			}
		}()
	}
	wg.Wait()

	observer.mu.Lock()
	got := observer.counts[event.NameMarketTick]
	observer.mu.Unlock()

	if want := bus.SubscriberCount(event.NameMarketTick); got != want || want != 400 {
		t.Errorf("observed count = %d, SubscriberCount() = %d, want both 400", got, want)
	}
}

func TestBus_Names(t *testing.T) {
	bus := newTestBus()

	Subscribe(bus, event.OrderFilledKey, func(event.OrderFilled) {})
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {})

	want := []event.Name{event.NameMarketTick, event.NameOrderFilled}
	if got := bus.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := newTestBus()

	var received atomic.Int32
	Subscribe(bus, event.MarketTickKey, func(event.MarketTick) {
		received.Add(1)
	})

	const numEvents = 100
	var wg sync.WaitGroup
	wg.Add(numEvents)
	for i := 0; i < numEvents; i++ {
		go func(i int) {
			defer wg.Done()
			Emit(bus, event.MarketTickKey, event.MarketTick{Turn: i})
		}(i)
	}
	wg.Wait()

	if received.Load() != numEvents {
		t.Errorf("received = %d, want %d", received.Load(), numEvents)
	}
}
