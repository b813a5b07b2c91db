package application

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"

	"tradequest-go/core/command"
	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
	"tradequest-go/domain/order"
)

// AutopilotConfig holds the trading thresholds used by Autopilot.
type AutopilotConfig struct {
	// OpeningAllocation is the share of cash spread across all tickers on the first tick
	OpeningAllocation float64
	// DipBuy buys when a price falls by at least this fraction in one turn
	DipBuy float64
	// DipAllocation is the share of cash spent on one dip
	DipAllocation float64
	// TakeProfit sells a whole position when its price rises by at least this fraction in one turn
	TakeProfit float64
}

// DefaultAutopilotConfig returns a cautious mean-reversion strategy.
func DefaultAutopilotConfig() AutopilotConfig {
	return AutopilotConfig{
		OpeningAllocation: 0.3,
		DipBuy:            0.03,
		DipAllocation:     0.2,
		TakeProfit:        0.04,
	}
}

// Autopilot is a scripted player that trades on every market:tick.
// It places orders from inside its tick handler, so each trade is a nested emission.
type Autopilot struct {
	coordinator *Coordinator
	cfg         AutopilotConfig
	logger      *slog.Logger

	previous map[string]float64
	trades   int
	mu       sync.Mutex

	unsubscribes []eventbus.Unsubscribe
}

// NewAutopilot subscribes a scripted player to the coordinator's bus.
func NewAutopilot(coordinator *Coordinator, cfg AutopilotConfig, logger *slog.Logger) *Autopilot {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Autopilot{
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger,
	}
	a.unsubscribes = []eventbus.Unsubscribe{
		eventbus.Subscribe(coordinator.bus, event.MarketTickKey, a.handleTick),
		eventbus.Subscribe(coordinator.bus, event.GameStartedKey, func(event.GameStarted) { a.reset() }),
		eventbus.Subscribe(coordinator.bus, event.GameLoadedKey, func(event.GameLoaded) { a.reset() }),
	}
	return a
}

// Close unsubscribes the autopilot.
func (a *Autopilot) Close() {
	for _, unsubscribe := range a.unsubscribes {
		unsubscribe()
	}
}

// Trades returns the number of orders filled by the autopilot.
func (a *Autopilot) Trades() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trades
}

func (a *Autopilot) reset() {
	a.mu.Lock()
	a.previous = nil
	a.mu.Unlock()
}

func (a *Autopilot) handleTick(e event.MarketTick) {
	a.mu.Lock()
	previous := a.previous
	a.previous = e.Prices
	a.mu.Unlock()

	symbols := make([]string, 0, len(e.Prices))
	for symbol := range e.Prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	pf := a.coordinator.Portfolio()

	if previous == nil {
		budget := pf.Cash() * a.cfg.OpeningAllocation / float64(len(symbols))
		for _, symbol := range symbols {
			a.place(command.NewBuy(symbol, sharesFor(budget, e.Prices[symbol])))
		}
		return
	}

	for _, symbol := range symbols {
		before, ok := previous[symbol]
		if !ok || before <= 0 {
			continue
		}
		change := (e.Prices[symbol] - before) / before

		switch {
		case change >= a.cfg.TakeProfit && pf.Holding(symbol) > 0:
			a.place(command.NewSell(symbol, pf.Holding(symbol)))
		case change <= -a.cfg.DipBuy:
			budget := pf.Cash() * a.cfg.DipAllocation
			a.place(command.NewBuy(symbol, sharesFor(budget, e.Prices[symbol])))
		}
	}
}

func (a *Autopilot) place(cmd *command.PlaceOrder) {
	if cmd.Shares <= 0 {
		return
	}

	if _, err := a.coordinator.PlaceOrder(cmd); err != nil {
		if !errors.Is(err, order.ErrRejected) && !errors.Is(err, ErrGameNotRunning) {
			a.logger.Warn("Autopilot order failed", "ticker", cmd.Ticker, "error", err)
		}
		return
	}

	a.mu.Lock()
	a.trades++
	a.mu.Unlock()
}

func sharesFor(budget, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(budget / price))
}
