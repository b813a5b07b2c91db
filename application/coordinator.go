// Package application composes the game modules over one event bus and one store.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradequest-go/core/command"
	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
	"tradequest-go/core/state"
	"tradequest-go/domain/achievement"
	"tradequest-go/domain/market"
	"tradequest-go/domain/order"
	"tradequest-go/domain/portfolio"
	"tradequest-go/domain/storage"
	"tradequest-go/infrastructure/logging"
)

// Errors returned by the coordinator.
var (
	ErrGameNotRunning = errors.New("game is not running")
	ErrSaveNotFound   = errors.New("saved game not found")
	ErrUnknownCommand = errors.New("unknown command")
)

// savePrefix is the store key prefix for saved games.
const savePrefix = "games/"

// Snapshot is the persisted form of a game.
type Snapshot struct {
	CatalogVersion int
	GameID         string
	Turn           int
	MaxTurns       int
	StartingCash   float64
	Prices         map[string]float64
	Portfolio      portfolio.Snapshot
	Achievements   []string
	SavedAt        time.Time
}

// Coordinator owns one game at a time and routes commands to the domain services.
type Coordinator struct {
	// Dependencies
	bus          *eventbus.Bus
	store        storage.Store
	simulator    *market.Simulator
	orders       *order.Service
	portfolio    *portfolio.Service
	achievements *achievement.Tracker
	logger       *slog.Logger

	// Game
	state        state.GameState
	gameID       string
	turn         int
	maxTurns     int
	startingCash float64
	mu           sync.Mutex

	now func() time.Time
}

// CoordinatorConfig holds configuration for the Coordinator.
type CoordinatorConfig struct {
	EventBus     *eventbus.Bus
	Store        storage.Store
	Market       *market.Registry
	Seed         uint64
	MaxTurns     int
	StartingCash float64
	Logger       *slog.Logger
}

// NewCoordinator wires the domain services to the bus. No game is running until NewGame or Load.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.EventBus == nil:
		return nil, errors.New("event bus is required")
	case cfg.Store == nil:
		return nil, errors.New("store is required")
	case cfg.Market == nil || cfg.Market.Count() == 0:
		return nil, errors.New("market has no tickers")
	case cfg.MaxTurns <= 0:
		return nil, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	case cfg.StartingCash <= 0:
		return nil, fmt.Errorf("starting cash must be positive, got %v", cfg.StartingCash)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pf := portfolio.NewService(cfg.EventBus, cfg.StartingCash, cfg.Logger)

	return &Coordinator{
		bus:          cfg.EventBus,
		store:        cfg.Store,
		simulator:    market.NewSimulator(cfg.EventBus, cfg.Market, cfg.Seed),
		orders:       order.NewService(cfg.EventBus, pf, cfg.Logger),
		portfolio:    pf,
		achievements: achievement.NewTracker(cfg.EventBus, cfg.Logger),
		logger:       cfg.Logger,
		state:        state.StateIdle,
		maxTurns:     cfg.MaxTurns,
		startingCash: cfg.StartingCash,
		now:          time.Now,
	}, nil
}

// Close unsubscribes every domain service from the bus.
func (c *Coordinator) Close() {
	c.achievements.Close()
	c.orders.Close()
	c.portfolio.Close()
}

// Dispatch sends a command to the appropriate handler.
func (c *Coordinator) Dispatch(ctx context.Context, cmd command.Command) error {
	ctx = logging.WithAttrs(logging.With(ctx, c.logger), "command", cmd.CommandName(), "game_id", c.GameID())
	logging.From(ctx).Debug("Dispatching command")

	err := c.dispatch(ctx, cmd)
	if err != nil {
		logging.From(ctx).Debug("Command failed", "error", err)
	}
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, cmd command.Command) error {
	switch cmd := cmd.(type) {
	case *command.NewGame:
		_, err := c.NewGame(cmd.MaxTurns)
		return err
	case *command.AdvanceTurn:
		_, err := c.AdvanceTurn()
		return err
	case *command.PlaceOrder:
		_, err := c.PlaceOrder(cmd)
		return err
	case *command.SaveGame:
		_, err := c.Save(ctx)
		return err
	case *command.LoadGame:
		return c.Load(ctx, cmd.GameID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.CommandName())
	}
}

// NewGame starts a fresh game and returns its ID.
// maxTurns overrides the configured length when positive.
func (c *Coordinator) NewGame(maxTurns int) (string, error) {
	c.mu.Lock()
	if !c.state.CanTransitionTo(state.StateRunning) {
		from := c.state
		c.mu.Unlock()
		return "", state.NewTransitionError(from, state.StateRunning, "cannot start a new game")
	}
	if maxTurns > 0 {
		c.maxTurns = maxTurns
	}
	c.gameID = uuid.NewString()
	c.turn = 0
	c.state = state.StateRunning
	started := event.GameStarted{
		GameID:       c.gameID,
		Turn:         0,
		MaxTurns:     c.maxTurns,
		StartingCash: c.startingCash,
	}
	c.mu.Unlock()

	c.simulator.Reset()
	c.orders.SetPrices(c.simulator.Prices())
	c.achievements.Start(started.StartingCash, nil)
	c.portfolio.Reset(started.StartingCash)

	c.logger.Info("Game started", "game_id", started.GameID, "max_turns", started.MaxTurns)
	eventbus.Emit(c.bus, event.GameStartedKey, started)
	return started.GameID, nil
}

// AdvanceTurn plays the next turn and returns its number.
// The final turn publishes game:over.
func (c *Coordinator) AdvanceTurn() (int, error) {
	c.mu.Lock()
	if !c.state.CanTrade() {
		c.mu.Unlock()
		return 0, ErrGameNotRunning
	}
	c.turn++
	turn := c.turn
	over := c.turn >= c.maxTurns
	if over {
		c.state = state.StateOver
	}
	gameID := c.gameID
	c.mu.Unlock()

	c.achievements.SetTurn(turn)
	eventbus.Emit(c.bus, event.TurnAdvancedKey, event.TurnAdvanced{Turn: turn})
	c.simulator.Advance(turn)

	if over {
		netWorth := c.portfolio.NetWorth()
		c.logger.Info("Game over", "game_id", gameID, "turn", turn, "net_worth", netWorth)
		eventbus.Emit(c.bus, event.GameOverKey, event.GameOver{
			GameID:   gameID,
			Turn:     turn,
			NetWorth: netWorth,
		})
	}
	return turn, nil
}

// PlaceOrder executes an order at the latest price.
func (c *Coordinator) PlaceOrder(cmd *command.PlaceOrder) (event.OrderFilled, error) {
	if !c.State().CanTrade() {
		return event.OrderFilled{}, ErrGameNotRunning
	}
	return c.orders.Place(order.Order{
		Ticker: strings.ToUpper(cmd.Ticker),
		Side:   cmd.Side,
		Shares: cmd.Shares,
	})
}

// Save writes the current game to the store and returns its key.
func (c *Coordinator) Save(ctx context.Context) (string, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return "", err
	}

	key := savePrefix + snap.GameID
	if err := c.store.Save(ctx, key, snap); err != nil {
		return "", fmt.Errorf("failed to save game: %w", err)
	}

	c.logger.Info("Game saved", "game_id", snap.GameID, "key", key, "turn", snap.Turn)
	eventbus.Emit(c.bus, event.GameSavedKey, event.GameSaved{GameID: snap.GameID, Key: key})
	return key, nil
}

// Load restores a saved game.
func (c *Coordinator) Load(ctx context.Context, gameID string) error {
	var snap Snapshot
	found, err := c.store.Load(ctx, savePrefix+gameID, &snap)
	if err != nil {
		return fmt.Errorf("failed to load game: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSaveNotFound, gameID)
	}

	if snap.CatalogVersion != event.CatalogVersion {
		c.logger.Warn("Save was written with a different event catalog",
			"game_id", snap.GameID, "saved", snap.CatalogVersion, "current", event.CatalogVersion)
	}

	target := state.StateRunning
	if snap.Turn >= snap.MaxTurns {
		target = state.StateOver
	}

	c.mu.Lock()
	if !c.state.CanTransitionTo(state.StateRunning) {
		from := c.state
		c.mu.Unlock()
		return state.NewTransitionError(from, state.StateRunning, "cannot load a game")
	}
	c.state = target
	c.gameID = snap.GameID
	c.turn = snap.Turn
	c.maxTurns = snap.MaxTurns
	c.startingCash = snap.StartingCash
	c.mu.Unlock()

	c.simulator.Restore(snap.Prices)
	prices := c.simulator.Prices()
	c.orders.SetPrices(prices)
	c.achievements.Start(snap.StartingCash, snap.Achievements)
	c.achievements.SetTurn(snap.Turn)
	c.portfolio.Restore(snap.Portfolio, prices)

	c.logger.Info("Game loaded", "game_id", snap.GameID, "turn", snap.Turn)
	eventbus.Emit(c.bus, event.GameLoadedKey, event.GameLoaded{GameID: snap.GameID, Turn: snap.Turn})
	return nil
}

// ListSaves returns the IDs of saved games, sorted.
func (c *Coordinator) ListSaves(ctx context.Context) ([]string, error) {
	keys, err := c.store.ListKeys(ctx, savePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list saves: %w", err)
	}

	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = strings.TrimPrefix(key, savePrefix)
	}
	return ids, nil
}

// DeleteSave removes a saved game. Returns true if it existed.
func (c *Coordinator) DeleteSave(ctx context.Context, gameID string) (bool, error) {
	return c.store.Delete(ctx, savePrefix+gameID)
}

// Snapshot captures the current game.
func (c *Coordinator) Snapshot() (Snapshot, error) {
	c.mu.Lock()
	if c.state == state.StateIdle {
		c.mu.Unlock()
		return Snapshot{}, ErrGameNotRunning
	}
	snap := Snapshot{
		CatalogVersion: event.CatalogVersion,
		GameID:         c.gameID,
		Turn:           c.turn,
		MaxTurns:       c.maxTurns,
		StartingCash:   c.startingCash,
	}
	c.mu.Unlock()

	snap.Prices = c.simulator.Prices()
	snap.Portfolio = c.portfolio.Snapshot()
	snap.Achievements = c.achievements.Unlocked()
	snap.SavedAt = c.now().UTC()
	return snap, nil
}

// State returns the game lifecycle state.
func (c *Coordinator) State() state.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Turn returns the last played turn.
func (c *Coordinator) Turn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// MaxTurns returns the length of the current game.
func (c *Coordinator) MaxTurns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxTurns
}

// GameID returns the current game ID, or "" before the first game.
func (c *Coordinator) GameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

// Prices returns the current market prices.
func (c *Coordinator) Prices() map[string]float64 {
	return c.simulator.Prices()
}

// Price returns the current market price of symbol.
func (c *Coordinator) Price(symbol string) (float64, bool) {
	return c.simulator.Price(symbol)
}

// Achievements returns the unlocked achievement IDs, sorted.
func (c *Coordinator) Achievements() []string {
	return c.achievements.Unlocked()
}

// Portfolio returns the player's portfolio.
func (c *Coordinator) Portfolio() *portfolio.Service {
	return c.portfolio
}
