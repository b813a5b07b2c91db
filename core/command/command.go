// Package command defines the commands a player can send to the game.
// Commands represent player intentions and are processed by the application layer.
package command

import "tradequest-go/core/event"

// Command is the base interface for all commands.
type Command interface {
	// CommandName returns the name of the command for logging/debugging
	CommandName() string
}

// NewGame starts a fresh game, replacing any game in progress.
type NewGame struct {
	// MaxTurns overrides the configured game length when positive
	MaxTurns int
}

func (c *NewGame) CommandName() string {
	return "NewGame"
}

// AdvanceTurn plays the next market turn.
type AdvanceTurn struct{}

func (c *AdvanceTurn) CommandName() string {
	return "AdvanceTurn"
}

// PlaceOrder submits a market order at the latest price.
type PlaceOrder struct {
	Ticker string
	Side   event.Side
	Shares int
}

// NewBuy creates a buy order command.
func NewBuy(ticker string, shares int) *PlaceOrder {
	return &PlaceOrder{Ticker: ticker, Side: event.SideBuy, Shares: shares}
}

// NewSell creates a sell order command.
func NewSell(ticker string, shares int) *PlaceOrder {
	return &PlaceOrder{Ticker: ticker, Side: event.SideSell, Shares: shares}
}

func (c *PlaceOrder) CommandName() string {
	return "PlaceOrder"
}

// SaveGame writes the current game to the store.
type SaveGame struct{}

func (c *SaveGame) CommandName() string {
	return "SaveGame"
}

// LoadGame restores a saved game by its ID.
type LoadGame struct {
	GameID string
}

func (c *LoadGame) CommandName() string {
	return "LoadGame"
}
