// Package order validates and executes player orders at the latest market price.
package order

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

// ErrRejected is wrapped by every error returned for a rejected order.
var ErrRejected = errors.New("order rejected")

// Order is a market order for a number of shares.
type Order struct {
	ID     string
	Ticker string
	Side   event.Side
	Shares int
}

// Ledger answers whether an order can be covered. The portfolio implements it.
type Ledger interface {
	// Cash returns the available cash
	Cash() float64
	// Holding returns the number of shares held for ticker
	Holding(ticker string) int
}

// Service executes orders and publishes order:placed, order:filled and order:rejected.
type Service struct {
	bus    *eventbus.Bus
	ledger Ledger
	logger *slog.Logger

	prices map[string]float64
	mu     sync.RWMutex

	unsubscribe eventbus.Unsubscribe
}

// NewService creates an order service tracking prices from market:tick.
func NewService(bus *eventbus.Bus, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		bus:    bus,
		ledger: ledger,
		logger: logger,
		prices: make(map[string]float64),
	}
	s.unsubscribe = eventbus.Subscribe(bus, event.MarketTickKey, s.handleTick)
	return s
}

// Close stops tracking prices.
func (s *Service) Close() {
	s.unsubscribe()
}

// SetPrices replaces the quoted prices, e.g. after a game is loaded.
func (s *Service) SetPrices(prices map[string]float64) {
	next := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		next[symbol] = price
	}

	s.mu.Lock()
	s.prices = next
	s.mu.Unlock()
}

// Quote returns the latest price for ticker.
func (s *Service) Quote(ticker string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[ticker]
	return price, ok
}

// Place validates o and executes it at the latest price.
func (s *Service) Place(o Order) (event.OrderFilled, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	eventbus.Emit(s.bus, event.OrderPlacedKey, event.OrderPlaced{
		OrderID: o.ID,
		Ticker:  o.Ticker,
		Side:    o.Side,
		Shares:  o.Shares,
	})

	price, reason := s.validate(o)
	if reason != "" {
		s.logger.Info("Order rejected", "order_id", o.ID, "ticker", o.Ticker, "reason", reason)
		eventbus.Emit(s.bus, event.OrderRejectedKey, event.OrderRejected{
			OrderID: o.ID,
			Ticker:  o.Ticker,
			Reason:  reason,
		})
		return event.OrderFilled{}, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	fill := event.OrderFilled{
		OrderID: o.ID,
		Ticker:  o.Ticker,
		Side:    o.Side,
		Price:   price,
		Shares:  o.Shares,
	}
	s.logger.Debug("Order filled", "order_id", o.ID, "ticker", o.Ticker, "side", o.Side, "shares", o.Shares, "price", price)
	eventbus.Emit(s.bus, event.OrderFilledKey, fill)
	return fill, nil
}

// validate returns the execution price, or a rejection reason.
func (s *Service) validate(o Order) (float64, string) {
	if !o.Side.Valid() {
		return 0, fmt.Sprintf("unknown side %q", o.Side)
	}
	if o.Shares <= 0 {
		return 0, "shares must be positive"
	}

	price, ok := s.Quote(o.Ticker)
	if !ok {
		return 0, fmt.Sprintf("no quote for %s", o.Ticker)
	}

	switch o.Side {
	case event.SideBuy:
		if cost := price * float64(o.Shares); cost > s.ledger.Cash() {
			return 0, fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost, s.ledger.Cash())
		}
	case event.SideSell:
		if held := s.ledger.Holding(o.Ticker); held < o.Shares {
			return 0, fmt.Sprintf("insufficient shares: need %d, have %d", o.Shares, held)
		}
	}
	return price, ""
}

func (s *Service) handleTick(e event.MarketTick) {
	s.SetPrices(e.Prices)
}
