package event

const (
	NameMarketTick       Name = "market:tick"
	NameOrderPlaced      Name = "order:placed"
	NameOrderFilled      Name = "order:filled"
	NameOrderRejected    Name = "order:rejected"
	NamePortfolioUpdated Name = "portfolio:updated"
)

var (
	MarketTickKey       = newKey[MarketTick](NameMarketTick)
	OrderPlacedKey      = newKey[OrderPlaced](NameOrderPlaced)
	OrderFilledKey      = newKey[OrderFilled](NameOrderFilled)
	OrderRejectedKey    = newKey[OrderRejected](NameOrderRejected)
	PortfolioUpdatedKey = newKey[PortfolioUpdated](NamePortfolioUpdated)
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// MarketTick is published after prices have moved for a turn.
// Prices maps ticker symbol to price and is owned by the subscriber.
type MarketTick struct {
	Turn   int
	Prices map[string]float64
}

func (MarketTick) EventName() Name {
	return NameMarketTick
}

// OrderPlaced is published when an order enters validation.
type OrderPlaced struct {
	OrderID string
	Ticker  string
	Side    Side
	Shares  int
}

func (OrderPlaced) EventName() Name {
	return NameOrderPlaced
}

// OrderFilled is published when an order executes.
type OrderFilled struct {
	OrderID string
	Ticker  string
	Side    Side
	Price   float64
	Shares  int
}

func (OrderFilled) EventName() Name {
	return NameOrderFilled
}

// Total returns price times shares.
func (e OrderFilled) Total() float64 {
	return e.Price * float64(e.Shares)
}

// OrderRejected is published when an order fails validation.
type OrderRejected struct {
	OrderID string
	Ticker  string
	Reason  string
}

func (OrderRejected) EventName() Name {
	return NameOrderRejected
}

// PortfolioUpdated is published whenever cash, holdings or valuation change.
type PortfolioUpdated struct {
	Cash     float64
	Holdings map[string]int
	NetWorth float64
}

func (PortfolioUpdated) EventName() Name {
	return NamePortfolioUpdated
}
