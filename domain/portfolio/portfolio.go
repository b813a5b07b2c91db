// Package portfolio tracks the player's cash and holdings from order fills.
package portfolio

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

// Snapshot is the persisted form of a portfolio.
type Snapshot struct {
	Cash     float64
	Holdings map[string]int
}

// Service applies fills to the portfolio and publishes portfolio:updated.
// It implements order.Ledger.
type Service struct {
	bus    *eventbus.Bus
	logger *slog.Logger

	cash     float64
	holdings map[string]int
	prices   map[string]float64
	mu       sync.RWMutex

	unsubscribes []eventbus.Unsubscribe
}

// NewService creates a portfolio holding startingCash.
func NewService(bus *eventbus.Bus, startingCash float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		bus:      bus,
		logger:   logger,
		cash:     startingCash,
		holdings: make(map[string]int),
		prices:   make(map[string]float64),
	}
	s.unsubscribes = []eventbus.Unsubscribe{
		eventbus.Subscribe(bus, event.OrderFilledKey, s.handleFill),
		eventbus.Subscribe(bus, event.MarketTickKey, s.handleTick),
	}
	return s
}

// Close unsubscribes from the bus.
func (s *Service) Close() {
	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
}

// Cash returns the available cash.
func (s *Service) Cash() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cash
}

// Holding returns the shares held for ticker.
func (s *Service) Holding(ticker string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdings[ticker]
}

// Tickers returns the symbols with a non-zero holding, sorted.
func (s *Service) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickers := make([]string, 0, len(s.holdings))
	for ticker := range s.holdings {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// NetWorth returns cash plus holdings valued at the latest prices.
func (s *Service) NetWorth() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.netWorthLocked()
}

// Snapshot returns a copy of the portfolio.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Cash:     s.cash,
		Holdings: copyHoldings(s.holdings),
	}
}

// Reset replaces the portfolio with startingCash and no holdings.
func (s *Service) Reset(startingCash float64) {
	s.Restore(Snapshot{Cash: startingCash}, nil)
}

// Restore replaces the portfolio with snap valued at prices and publishes portfolio:updated.
func (s *Service) Restore(snap Snapshot, prices map[string]float64) {
	s.mu.Lock()
	s.cash = snap.Cash
	s.holdings = copyHoldings(snap.Holdings)
	s.prices = make(map[string]float64, len(prices))
	for symbol, price := range prices {
		s.prices[symbol] = price
	}
	update := s.updateLocked()
	s.mu.Unlock()

	eventbus.Emit(s.bus, event.PortfolioUpdatedKey, update)
}

func (s *Service) handleFill(e event.OrderFilled) {
	s.mu.Lock()
	switch e.Side {
	case event.SideBuy:
		s.cash = roundCents(s.cash - e.Total())
		s.holdings[e.Ticker] += e.Shares
	case event.SideSell:
		s.cash = roundCents(s.cash + e.Total())
		s.holdings[e.Ticker] -= e.Shares
		if s.holdings[e.Ticker] <= 0 {
			delete(s.holdings, e.Ticker)
		}
	}
	s.prices[e.Ticker] = e.Price
	update := s.updateLocked()
	s.mu.Unlock()

	s.logger.Debug("Portfolio updated", "order_id", e.OrderID, "cash", update.Cash, "net_worth", update.NetWorth)
	eventbus.Emit(s.bus, event.PortfolioUpdatedKey, update)
}

func (s *Service) handleTick(e event.MarketTick) {
	s.mu.Lock()
	for symbol, price := range e.Prices {
		s.prices[symbol] = price
	}
	update := s.updateLocked()
	s.mu.Unlock()

	eventbus.Emit(s.bus, event.PortfolioUpdatedKey, update)
}

func (s *Service) updateLocked() event.PortfolioUpdated {
	return event.PortfolioUpdated{
		Cash:     s.cash,
		Holdings: copyHoldings(s.holdings),
		NetWorth: s.netWorthLocked(),
	}
}

func (s *Service) netWorthLocked() float64 {
	total := s.cash
	for ticker, shares := range s.holdings {
		total += s.prices[ticker] * float64(shares)
	}
	return roundCents(total)
}

func copyHoldings(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for ticker, shares := range src {
		if shares > 0 {
			dst[ticker] = shares
		}
	}
	return dst
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
