package market

import (
	"math"
	"math/rand/v2"
	"sync"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

const (
	// MinPrice is the floor a simulated price cannot drop below.
	MinPrice = 1.0
	// MaxMove bounds the absolute per-turn return.
	MaxMove = 0.25
)

// Simulator moves prices once per turn and publishes market:tick.
type Simulator struct {
	bus     *eventbus.Bus
	tickers []*Ticker
	rng     *rand.Rand

	prices map[string]float64
	mu     sync.RWMutex
}

// NewSimulator creates a simulator over every ticker in registry, at opening prices.
// The same seed always produces the same price path.
func NewSimulator(bus *eventbus.Bus, registry *Registry, seed uint64) *Simulator {
	s := &Simulator{
		bus:     bus,
		tickers: registry.All(),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	s.Reset()
	return s
}

// Reset restores opening prices.
func (s *Simulator) Reset() {
	prices := make(map[string]float64, len(s.tickers))
	for _, t := range s.tickers {
		prices[t.Symbol] = t.Price
	}

	s.mu.Lock()
	s.prices = prices
	s.mu.Unlock()
}

// Advance moves every price for turn and emits market:tick.
func (s *Simulator) Advance(turn int) map[string]float64 {
	s.mu.Lock()
	for _, t := range s.tickers {
		move := t.Drift + t.Volatility*s.rng.NormFloat64()
		move = math.Max(-MaxMove, math.Min(MaxMove, move))
		s.prices[t.Symbol] = roundCents(math.Max(MinPrice, s.prices[t.Symbol]*(1+move)))
	}
	s.mu.Unlock()

	eventbus.Emit(s.bus, event.MarketTickKey, event.MarketTick{
		Turn:   turn,
		Prices: s.Prices(),
	})
	return s.Prices()
}

// Prices returns a copy of the current prices.
func (s *Simulator) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make(map[string]float64, len(s.prices))
	for symbol, price := range s.prices {
		prices[symbol] = price
	}
	return prices
}

// Price returns the current price of symbol.
func (s *Simulator) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}

// Restore replaces current prices with a saved snapshot.
// Symbols not in the snapshot keep their opening price.
func (s *Simulator) Restore(prices map[string]float64) {
	s.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, price := range prices {
		if _, ok := s.prices[symbol]; ok {
			s.prices[symbol] = price
		}
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
