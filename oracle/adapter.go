package oracle

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	// PricePrecision is the engine-internal fixed point: USD values and
	// health factors are scaled to 18 decimals.
	PricePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// feedScaleFactor lifts an 8-decimal feed answer to PricePrecision.
	feedScaleFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)
)

// Adapter binds one collateral asset to its price feed and converts feed
// answers into USD values at the engine's internal precision.
//
// The adapter performs no staleness or sanity check on the returned answer:
// whatever the feed reports is trusted as-is.
type Adapter struct {
	asset string
	feed  PriceFeed
}

// NewAdapter constructs an adapter for the given asset symbol.
func NewAdapter(asset string, feed PriceFeed) (*Adapter, error) {
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if symbol == "" {
		return nil, fmt.Errorf("oracle: asset symbol required")
	}
	if feed == nil {
		return nil, fmt.Errorf("oracle: price feed required for %s", symbol)
	}
	return &Adapter{asset: symbol, feed: feed}, nil
}

// Asset returns the collateral symbol this adapter prices.
func (a *Adapter) Asset() string {
	if a == nil {
		return ""
	}
	return a.asset
}

// ValueInUSD converts an asset amount (in 18-decimal ledger units) to its
// USD value at PricePrecision:
//
//	answer * feedScaleFactor * amount / PricePrecision
//
// A nil amount values as zero. Feed read failures propagate unchanged.
func (a *Adapter) ValueInUSD(amount *big.Int) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("oracle: adapter not configured")
	}
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	round, err := a.feed.LatestRound()
	if err != nil {
		return nil, fmt.Errorf("oracle: read feed for %s: %w", a.asset, err)
	}
	if round.Answer == nil {
		return nil, fmt.Errorf("oracle: feed for %s returned no answer", a.asset)
	}
	value := new(big.Int).Mul(round.Answer, feedScaleFactor)
	value.Mul(value, amount)
	value.Quo(value, PricePrecision)
	return value, nil
}
