package risk

// Position is the net holding on one (game, side). Mutated only by the
// risk manager, only on fill and settlement events.
type Position struct {
	GameID        string
	Side          string // "yes" or "no"
	Quantity      int
	AvgPriceCents int

	RealizedPnLCents   int64
	UnrealizedPnLCents int64
}

// applyBuy folds a buy fill into the average cost basis.
func (p *Position) applyBuy(priceCents, count int) {
	totalCost := p.Quantity*p.AvgPriceCents + count*priceCents
	p.Quantity += count
	p.AvgPriceCents = totalCost / p.Quantity
}

// applySell realizes P&L against the average cost and reduces the holding.
// Selling more than held is clamped; the exchange is authoritative on
// quantity and reconciliation corrects drift.
func (p *Position) applySell(priceCents, count int) int64 {
	if count > p.Quantity {
		count = p.Quantity
	}
	realized := int64(count) * int64(priceCents-p.AvgPriceCents)
	p.RealizedPnLCents += realized
	p.Quantity -= count
	if p.Quantity == 0 {
		p.UnrealizedPnLCents = 0
	}
	return realized
}

// markToMarket recomputes unrealized P&L at the given mark for the
// position's side.
func (p *Position) markToMarket(markCents int) {
	if p.Quantity == 0 {
		p.UnrealizedPnLCents = 0
		return
	}
	p.UnrealizedPnLCents = int64(p.Quantity) * int64(markCents-p.AvgPriceCents)
}

// CostCents is the capital deployed in this position.
func (p *Position) CostCents() int64 {
	return int64(p.Quantity) * int64(p.AvgPriceCents)
}
