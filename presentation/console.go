// Package presentation provides the console UI with event bridging to the application layer.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"tradequest-go/application"
	"tradequest-go/core/command"
	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
	"tradequest-go/domain/achievement"
)

// ErrUsage is returned by Execute for a malformed command line.
var ErrUsage = errors.New("invalid command")

// Console prints one line per game event and turns text commands into coordinator commands.
type Console struct {
	coordinator *application.Coordinator
	eventBus    *eventbus.Bus
	logger      *slog.Logger

	out   io.Writer
	outMu sync.Mutex

	// Subscription management
	unsubscribes []eventbus.Unsubscribe
}

// ConsoleConfig holds configuration for Console.
type ConsoleConfig struct {
	Coordinator *application.Coordinator
	EventBus    *eventbus.Bus
	Out         io.Writer
	Logger      *slog.Logger
}

// NewConsole creates a console and subscribes it to every event in the catalog.
func NewConsole(cfg *ConsoleConfig) *Console {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	c := &Console{
		coordinator: cfg.Coordinator,
		eventBus:    cfg.EventBus,
		logger:      cfg.Logger,
		out:         cfg.Out,
	}

	if c.eventBus != nil {
		c.subscribe()
	}

	return c
}

// Close unsubscribes from the event bus.
func (c *Console) Close() {
	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.unsubscribes = nil
}

func (c *Console) subscribe() {
	b := c.eventBus
	c.unsubscribes = []eventbus.Unsubscribe{
		eventbus.Subscribe(b, event.GameStartedKey, func(e event.GameStarted) {
			c.printf("New game %s: %d turns, $%.2f cash", e.GameID, e.MaxTurns, e.StartingCash)
		}),
		eventbus.Subscribe(b, event.TurnAdvancedKey, func(e event.TurnAdvanced) {
			c.printf("--- Turn %d ---", e.Turn)
		}),
		eventbus.Subscribe(b, event.MarketTickKey, func(e event.MarketTick) {
			c.printf("Market: %s", formatPrices(e.Prices))
		}),
		eventbus.Subscribe(b, event.OrderPlacedKey, func(e event.OrderPlaced) {
			c.printf("Order %s: %s %d %s", shortID(e.OrderID), e.Side, e.Shares, e.Ticker)
		}),
		eventbus.Subscribe(b, event.OrderFilledKey, func(e event.OrderFilled) {
			c.printf("Filled %s: %s %d %s @ $%.2f ($%.2f)", shortID(e.OrderID), e.Side, e.Shares, e.Ticker, e.Price, e.Total())
		}),
		eventbus.Subscribe(b, event.OrderRejectedKey, func(e event.OrderRejected) {
			c.printf("Rejected %s: %s", shortID(e.OrderID), e.Reason)
		}),
		eventbus.Subscribe(b, event.PortfolioUpdatedKey, func(e event.PortfolioUpdated) {
			c.printf("Portfolio: cash $%.2f, net worth $%.2f%s", e.Cash, e.NetWorth, formatHoldings(e.Holdings))
		}),
		eventbus.Subscribe(b, event.AchievementKey, func(e event.Achievement) {
			c.printf("Achievement unlocked: %s (%s)", e.Title, e.Description)
		}),
		eventbus.Subscribe(b, event.GameOverKey, func(e event.GameOver) {
			c.printf("Game over after %d turns. Final net worth $%.2f", e.Turn, e.NetWorth)
		}),
		eventbus.Subscribe(b, event.GameSavedKey, func(e event.GameSaved) {
			c.printf("Saved %s", e.GameID)
		}),
		eventbus.Subscribe(b, event.GameLoadedKey, func(e event.GameLoaded) {
			c.printf("Loaded %s at turn %d", e.GameID, e.Turn)
		}),
	}
}

// Execute parses and runs one command line.
//
//	new [turns] | next | buy TICKER SHARES | sell TICKER SHARES | save | load ID
//	saves | delete ID | status | events [NAME] | help
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, err := parseCommand(fields)
	if err != nil {
		return err
	}

	if cmd == nil {
		return c.handleLocal(ctx, strings.ToLower(fields[0]), fields[1:])
	}
	return c.coordinator.Dispatch(ctx, cmd)
}

// handleLocal runs commands that manage saves or inspect state.
func (c *Console) handleLocal(ctx context.Context, name string, args []string) error {
	switch name {
	case "delete":
		deleted, err := c.coordinator.DeleteSave(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			c.printf("No saved game %s", args[0])
			return nil
		}
		c.printf("Deleted %s", args[0])
	case "status":
		c.printStatus()
	case "events":
		return c.printEvents(args)
	case "saves":
		ids, err := c.coordinator.ListSaves(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			c.printf("No saved games")
			return nil
		}
		for _, id := range ids {
			c.printf("  %s", id)
		}
	case "help":
		c.printf("Commands: new [turns], next, buy TICKER SHARES, sell TICKER SHARES, save, load ID, saves, delete ID, status, events [NAME], help")
	}
	return nil
}

// parseCommand maps command words to coordinator commands.
// A nil command with nil error means the word is handled by the console itself.
func parseCommand(fields []string) (command.Command, error) {
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "new":
		if len(args) == 0 {
			return &command.NewGame{}, nil
		}
		turns, err := strconv.Atoi(args[0])
		if err != nil || turns <= 0 {
			return nil, fmt.Errorf("%w: turns must be a positive number", ErrUsage)
		}
		return &command.NewGame{MaxTurns: turns}, nil
	case "next":
		return &command.AdvanceTurn{}, nil
	case "buy", "sell":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: usage %s TICKER SHARES", ErrUsage, fields[0])
		}
		shares, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: shares must be a number", ErrUsage)
		}
		if strings.ToLower(fields[0]) == "buy" {
			return command.NewBuy(args[0], shares), nil
		}
		return command.NewSell(args[0], shares), nil
	case "save":
		return &command.SaveGame{}, nil
	case "load":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: usage load ID", ErrUsage)
		}
		return &command.LoadGame{GameID: args[0]}, nil
	case "delete":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: usage delete ID", ErrUsage)
		}
		return nil, nil
	case "events":
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: usage events [NAME]", ErrUsage)
		}
		return nil, nil
	case "saves", "status", "help":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUsage, fields[0])
	}
}

func (c *Console) printStatus() {
	snap, err := c.coordinator.Snapshot()
	if err != nil {
		c.printf("No game in progress")
		return
	}

	pf := c.coordinator.Portfolio()
	c.printf("Game %s: turn %d/%d, cash $%.2f, net worth $%.2f",
		snap.GameID, snap.Turn, snap.MaxTurns, pf.Cash(), pf.NetWorth())
	for _, ticker := range pf.Tickers() {
		price, _ := c.coordinator.Price(ticker)
		c.printf("  %s x%d @ $%.2f", ticker, pf.Holding(ticker), price)
	}
	for _, id := range c.coordinator.Achievements() {
		if def, ok := achievement.Lookup(id); ok {
			c.printf("  * %s", def.Title)
		}
	}
}

// printEvents lists subscriber counts for every event with subscribers, or for one named event.
func (c *Console) printEvents(args []string) error {
	if len(args) == 1 {
		name, ok := event.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: unknown event %q", ErrUsage, args[0])
		}
		c.printf("%s: %d subscribers", name, c.eventBus.SubscriberCount(name))
		return nil
	}

	c.printf("Event catalog v%d", event.CatalogVersion)
	for _, name := range c.eventBus.Names() {
		c.printf("  %s: %d subscribers", name, c.eventBus.SubscriberCount(name))
	}
	return nil
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if _, err := fmt.Fprintf(c.out, format+"\n", args...); err != nil {
		c.logger.Warn("Failed to write console output", "error", err)
	}
}

func formatPrices(prices map[string]float64) string {
	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, len(symbols))
	for i, symbol := range symbols {
		parts[i] = fmt.Sprintf("%s $%.2f", symbol, prices[symbol])
	}
	return strings.Join(parts, ", ")
}

func formatHoldings(holdings map[string]int) string {
	if len(holdings) == 0 {
		return ""
	}

	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, len(symbols))
	for i, symbol := range symbols {
		parts[i] = fmt.Sprintf("%s x%d", symbol, holdings[symbol])
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

// shortID trims UUIDs to their first group for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
