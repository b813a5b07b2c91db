package application

import (
	"io"
	"log/slog"
	"testing"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

func TestAutopilot_OpensPositionsOnFirstTick(t *testing.T) {
	g := newTestGame(t, 5)
	pilot := NewAutopilot(g.coord, DefaultAutopilotConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer pilot.Close()

	_, _ = g.coord.NewGame(0)
	if _, err := g.coord.AdvanceTurn(); err != nil {
		t.Fatalf("AdvanceTurn() error = %v", err)
	}

	pf := g.coord.Portfolio()
	if pf.Holding("ZAP") == 0 || pf.Holding("BLOOP") == 0 {
		t.Errorf("holdings after first tick: ZAP %d, BLOOP %d, want both > 0", pf.Holding("ZAP"), pf.Holding("BLOOP"))
	}
	if pilot.Trades() != 2 {
		t.Errorf("Trades() = %d, want 2", pilot.Trades())
	}
	if pf.Cash() < 10000*(1-DefaultAutopilotConfig().OpeningAllocation) {
		t.Errorf("Cash() = %v, spent more than the opening allocation", pf.Cash())
	}
}

func TestAutopilot_PlaysFullGame(t *testing.T) {
	g := newTestGame(t, 30)
	pilot := NewAutopilot(g.coord, DefaultAutopilotConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	var over []event.GameOver
	eventbus.Subscribe(g.bus, event.GameOverKey, func(e event.GameOver) { over = append(over, e) })

	_, _ = g.coord.NewGame(0)
	for i := 0; i < 30; i++ {
		if _, err := g.coord.AdvanceTurn(); err != nil {
			t.Fatalf("AdvanceTurn() error = %v", err)
		}
	}

	if len(over) != 1 {
		t.Fatalf("game:over emitted %d times, want 1", len(over))
	}
	if over[0].NetWorth <= 0 {
		t.Errorf("NetWorth = %v, want positive", over[0].NetWorth)
	}
	if g.coord.Portfolio().Cash() < 0 {
		t.Errorf("Cash() = %v, want non-negative", g.coord.Portfolio().Cash())
	}

	pilot.Close()
	if n := g.bus.SubscriberCount(event.NameGameStarted); n != 0 {
		t.Errorf("SubscriberCount(game:started) = %d, want 0", n)
	}
}
