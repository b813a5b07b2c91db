// Package achievement unlocks achievements from game events.
package achievement

import (
	"log/slog"
	"sort"
	"sync"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

// Achievement identifiers.
const (
	FirstTrade  = "first-trade"
	Diversified = "diversified"
	Up10        = "up-10"
	Up50        = "up-50"
	Doubled     = "doubled"
	Finisher    = "finisher"
)

// Definition describes an achievement.
type Definition struct {
	ID          string
	Title       string
	Description string
}

var definitions = map[string]Definition{
	FirstTrade:  {FirstTrade, "First Trade", "Complete your first trade"},
	Diversified: {Diversified, "Diversified", "Hold shares in three different companies"},
	Up10:        {Up10, "In the Green", "Grow net worth by 10%"},
	Up50:        {Up50, "Bull Run", "Grow net worth by 50%"},
	Doubled:     {Doubled, "Doubled Up", "Double your starting net worth"},
	Finisher:    {Finisher, "Finisher", "Play a game to the final turn"},
}

// netWorthMilestones maps growth multipliers to achievement ids, smallest first.
var netWorthMilestones = []struct {
	multiple float64
	id       string
}{
	{1.1, Up10},
	{1.5, Up50},
	{2.0, Doubled},
}

// DiversifiedCount is the number of distinct holdings needed for Diversified.
const DiversifiedCount = 3

// Lookup returns the definition for id.
func Lookup(id string) (Definition, bool) {
	d, ok := definitions[id]
	return d, ok
}

// Tracker listens to the bus and publishes game:achievement for each new unlock.
type Tracker struct {
	bus    *eventbus.Bus
	logger *slog.Logger

	startingCash float64
	turn         int
	unlocked     map[string]bool
	mu           sync.Mutex

	unsubscribes []eventbus.Unsubscribe
}

// NewTracker creates a tracker. Call Start to begin listening.
func NewTracker(bus *eventbus.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		bus:      bus,
		logger:   logger,
		unlocked: make(map[string]bool),
	}
}

// Start (re)arms every rule for a game with startingCash.
// Achievements in unlocked are restored and will not fire again.
func (t *Tracker) Start(startingCash float64, unlocked []string) {
	t.Close()

	t.mu.Lock()
	t.startingCash = startingCash
	t.turn = 0
	t.unlocked = make(map[string]bool, len(unlocked))
	for _, id := range unlocked {
		t.unlocked[id] = true
	}
	firstTradeDone := t.unlocked[FirstTrade]
	finished := t.unlocked[Finisher]
	t.mu.Unlock()

	t.unsubscribes = []eventbus.Unsubscribe{
		eventbus.Subscribe(t.bus, event.TurnAdvancedKey, t.handleTurn),
		eventbus.Subscribe(t.bus, event.PortfolioUpdatedKey, t.handlePortfolio),
	}
	if !firstTradeDone {
		t.unsubscribes = append(t.unsubscribes,
			eventbus.SubscribeOnce(t.bus, event.OrderFilledKey, func(event.OrderFilled) {
				t.unlock(FirstTrade)
			}))
	}
	if !finished {
		t.unsubscribes = append(t.unsubscribes,
			eventbus.SubscribeOnce(t.bus, event.GameOverKey, func(event.GameOver) {
				t.unlock(Finisher)
			}))
	}
}

// SetTurn sets the turn reported in achievement payloads.
func (t *Tracker) SetTurn(turn int) {
	t.mu.Lock()
	t.turn = turn
	t.mu.Unlock()
}

// Close stops listening.
func (t *Tracker) Close() {
	for _, unsubscribe := range t.unsubscribes {
		unsubscribe()
	}
	t.unsubscribes = nil
}

// Unlocked returns unlocked achievement ids, sorted.
func (t *Tracker) Unlocked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.unlocked))
	for id := range t.unlocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) handleTurn(e event.TurnAdvanced) {
	t.SetTurn(e.Turn)
}

func (t *Tracker) handlePortfolio(e event.PortfolioUpdated) {
	t.mu.Lock()
	base := t.startingCash
	t.mu.Unlock()

	if len(e.Holdings) >= DiversifiedCount {
		t.unlock(Diversified)
	}
	if base <= 0 {
		return
	}
	for _, m := range netWorthMilestones {
		if e.NetWorth >= base*m.multiple {
			t.unlock(m.id)
		}
	}
}

// unlock publishes game:achievement unless id is already unlocked.
func (t *Tracker) unlock(id string) {
	def, ok := definitions[id]
	if !ok {
		return
	}

	t.mu.Lock()
	if t.unlocked[id] {
		t.mu.Unlock()
		return
	}
	t.unlocked[id] = true
	turn := t.turn
	t.mu.Unlock()

	t.logger.Info("Achievement unlocked", "id", id, "turn", turn)
	eventbus.Emit(t.bus, event.AchievementKey, event.Achievement{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		Turn:        turn,
	})
}
