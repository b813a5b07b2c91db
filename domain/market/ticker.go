// Package market defines tradable tickers and the turn-based price simulator.
package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidTicker is returned for ticker definitions that cannot be simulated.
var ErrInvalidTicker = errors.New("invalid ticker")

// Ticker is a tradable company.
type Ticker struct {
	Symbol string
	Name   string
	// Price is the opening price for a new game
	Price float64
	// Volatility is the standard deviation of the per-turn return
	Volatility float64
	// Drift is the mean per-turn return
	Drift float64
}

// Validate checks the definition.
func (t *Ticker) Validate() error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidTicker)
	case t.Price <= 0:
		return fmt.Errorf("%w: %s has non-positive price %v", ErrInvalidTicker, t.Symbol, t.Price)
	case t.Volatility < 0:
		return fmt.Errorf("%w: %s has negative volatility %v", ErrInvalidTicker, t.Symbol, t.Volatility)
	}
	return nil
}

// Registry manages ticker definitions.
type Registry struct {
	tickers map[string]*Ticker
	mu      sync.RWMutex
}

// NewRegistry creates a new empty ticker registry.
func NewRegistry() *Registry {
	return &Registry{
		tickers: make(map[string]*Ticker),
	}
}

// Register adds a ticker, replacing any ticker with the same symbol.
func (r *Registry) Register(t *Ticker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickers[t.Symbol] = t
}

// Get retrieves a ticker by symbol. Returns nil if not found.
func (r *Registry) Get(symbol string) *Ticker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tickers[symbol]
}

// List returns all registered symbols, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.tickers))
	for symbol := range r.tickers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// All returns all tickers sorted by symbol.
func (r *Registry) All() []*Ticker {
	symbols := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	tickers := make([]*Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		tickers = append(tickers, r.tickers[symbol])
	}
	return tickers
}

// Count returns the number of registered tickers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickers)
}
