// Package sizing converts an admitted signal into a target contract
// quantity via fractional Kelly.
package sizing

import (
	"math"

	"github.com/courtsidehq/courtside/internal/core/signal"
)

type Limits struct {
	KellyFraction        float64
	MaxPositionPerGame   int
	MaxPortfolioExposure float64
}

// Existing describes the position already held on the signal's side, so the
// sizer targets a combined cost basis instead of stacking independent
// tranches.
type Existing struct {
	Quantity      int
	AvgPriceCents int
}

// Kelly returns the full-Kelly bankroll fraction for buying one contract at
// price cents with win probability p. Non-positive when there is no edge.
func Kelly(p float64, priceCents int) float64 {
	if priceCents <= 0 || priceCents >= 100 {
		return 0
	}
	b := float64(100-priceCents) / float64(priceCents)
	q := 1 - p
	return (p*b - q) / b
}

// Quantity sizes a buy signal. The target is a total cost basis of
// fraction*Kelly of bankroll; what is already held counts against it, so
// adds at the same average cost converge instead of compounding. Clamped to
// the per-game position cap and the portfolio exposure ceiling. Zero means
// no trade.
func Quantity(sig *signal.Signal, bankrollCents, exposureCents int64, lim Limits, existing *Existing) int {
	f := Kelly(sig.ModelProbability, sig.MarketPrice)
	if f <= 0 {
		return 0
	}
	f *= lim.KellyFraction

	targetCost := f * float64(bankrollCents)
	var heldQty int
	if existing != nil {
		heldQty = existing.Quantity
		targetCost -= float64(existing.Quantity * existing.AvgPriceCents)
	}
	if targetCost <= 0 {
		return 0
	}

	qty := int(math.Floor(targetCost / float64(sig.MarketPrice)))

	if gameRoom := lim.MaxPositionPerGame - heldQty; qty > gameRoom {
		qty = gameRoom
	}

	// Remaining room under the portfolio exposure ceiling, in contracts at
	// this price.
	room := lim.MaxPortfolioExposure*float64(bankrollCents) - float64(exposureCents)
	if room <= 0 {
		return 0
	}
	if maxQty := int(math.Floor(room / float64(sig.MarketPrice))); qty > maxQty {
		qty = maxQty
	}

	if qty < 0 {
		return 0
	}
	return qty
}
