package market

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"testing/fstest"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

const testMarketYAML = `
tickers:
  - symbol: ZAP
    name: Zap Energy
    price: 150
    volatility: 0.05
    drift: 0.01
  - symbol: BLOOP
    name: Bloop Foods
    price: 20
    volatility: 0.02
`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	if err := NewLoader(registry).LoadFromBytes([]byte(testMarketYAML)); err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}
	return registry
}

func newTestBus() *eventbus.Bus {
	return eventbus.New(eventbus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestLoader_LoadFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"market/tickers.yaml": {Data: []byte(testMarketYAML)},
		"market/README.md":    {Data: []byte("ignored")},
	}

	registry := NewRegistry()
	if err := NewLoader(registry).LoadFromFS(fsys); err != nil {
		t.Fatalf("LoadFromFS() error = %v", err)
	}

	if registry.Count() != 2 {
		t.Errorf("Count() = %d, want 2", registry.Count())
	}
	if want := []string{"BLOOP", "ZAP"}; !reflect.DeepEqual(registry.List(), want) {
		t.Errorf("List() = %v, want %v", registry.List(), want)
	}

	zap := registry.Get("ZAP")
	if zap == nil || zap.Name != "Zap Energy" || zap.Price != 150 || zap.Drift != 0.01 {
		t.Errorf("Get(ZAP) = %+v", zap)
	}
}

func TestLoader_MissingDirectory(t *testing.T) {
	if err := NewLoader(NewRegistry()).LoadFromFS(fstest.MapFS{}); err == nil {
		t.Error("LoadFromFS() without market directory should fail")
	}
}

func TestLoader_InvalidTicker(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty symbol", "tickers:\n  - price: 10\n"},
		{"zero price", "tickers:\n  - symbol: X\n    price: 0\n"},
		{"negative volatility", "tickers:\n  - symbol: X\n    price: 1\n    volatility: -0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := NewLoader(registry).LoadFromBytes([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidTicker) {
				t.Errorf("LoadFromBytes() error = %v, want ErrInvalidTicker", err)
			}
			if registry.Count() != 0 {
				t.Errorf("Count() = %d, want 0", registry.Count())
			}
		})
	}
}

func TestLoader_MalformedYAML(t *testing.T) {
	if err := NewLoader(NewRegistry()).LoadFromBytes([]byte("tickers: [")); err == nil {
		t.Error("LoadFromBytes() should fail on malformed YAML")
	}
}

func TestSimulator_AdvanceEmitsTick(t *testing.T) {
	bus := newTestBus()
	sim := NewSimulator(bus, newTestRegistry(t), 7)

	var ticks []event.MarketTick
	eventbus.Subscribe(bus, event.MarketTickKey, func(e event.MarketTick) {
		ticks = append(ticks, e)
	})

	prices := sim.Advance(1)

	if len(ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(ticks))
	}
	if ticks[0].Turn != 1 {
		t.Errorf("Turn = %d, want 1", ticks[0].Turn)
	}
	if !reflect.DeepEqual(ticks[0].Prices, prices) {
		t.Errorf("tick prices = %v, want %v", ticks[0].Prices, prices)
	}

	// Subscribers own their copy
	ticks[0].Prices["ZAP"] = -1
	if p, _ := sim.Price("ZAP"); p == -1 {
		t.Error("subscriber mutation leaked into simulator")
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	registry := newTestRegistry(t)
	a := NewSimulator(newTestBus(), registry, 42)
	b := NewSimulator(newTestBus(), registry, 42)

	for turn := 1; turn <= 10; turn++ {
		pa, pb := a.Advance(turn), b.Advance(turn)
		if !reflect.DeepEqual(pa, pb) {
			t.Fatalf("turn %d: %v != %v", turn, pa, pb)
		}
	}
}

func TestSimulator_BoundedMoves(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Ticker{Symbol: "WILD", Price: 2, Volatility: 5})
	sim := NewSimulator(newTestBus(), registry, 1)

	prev := 2.0
	for turn := 1; turn <= 200; turn++ {
		price := sim.Advance(turn)["WILD"]
		if price < MinPrice {
			t.Fatalf("turn %d: price %v below MinPrice", turn, price)
		}
		if price > roundCents(prev*(1+MaxMove))+0.01 {
			t.Fatalf("turn %d: price %v moved more than MaxMove from %v", turn, price, prev)
		}
		prev = price
	}
}

func TestSimulator_RestoreAndReset(t *testing.T) {
	sim := NewSimulator(newTestBus(), newTestRegistry(t), 3)

	sim.Restore(map[string]float64{"ZAP": 99.5, "UNKNOWN": 5})
	if p, _ := sim.Price("ZAP"); p != 99.5 {
		t.Errorf("Price(ZAP) = %v, want 99.5", p)
	}
	if p, _ := sim.Price("BLOOP"); p != 20 {
		t.Errorf("Price(BLOOP) = %v, want 20", p)
	}
	if _, ok := sim.Price("UNKNOWN"); ok {
		t.Error("Restore should ignore unknown symbols")
	}

	sim.Reset()
	if p, _ := sim.Price("ZAP"); p != 150 {
		t.Errorf("Price(ZAP) after Reset = %v, want 150", p)
	}
}
