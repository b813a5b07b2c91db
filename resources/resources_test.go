package resources

import (
	"testing"

	"tradequest-go/domain/market"
)

func TestMarketFiles_Load(t *testing.T) {
	registry := market.NewRegistry()
	if err := market.NewLoader(registry).LoadFromFS(MarketFiles); err != nil {
		t.Fatalf("LoadFromFS() error = %v", err)
	}

	if registry.Count() < 3 {
		t.Errorf("Count() = %d, want at least 3 tickers", registry.Count())
	}
	if registry.Get("ZAP") == nil {
		t.Error("ZAP should be registered")
	}
}
