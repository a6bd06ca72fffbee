package engine

import (
	"context"
	"time"

	"github.com/courtsidehq/courtside/internal/adapters/outbound/exchange"
	"github.com/courtsidehq/courtside/internal/core/orders"
	"github.com/courtsidehq/courtside/internal/core/risk"
	"github.com/courtsidehq/courtside/internal/persist"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// reconcile resolves local state against the exchange after a disconnect or
// an unexplained fill. The exchange is authoritative: local orders it does
// not know are forgotten, orders it knows that we do not are adopted, and
// positions are overwritten wholesale. Order admission is refused for the
// duration; no trading resumes mid-reconciliation.
//
// Runs synchronously on the engine loop. Everything queued behind it sees
// the reconciled state.
func (e *Engine) reconcile(ctx context.Context, reason string) {
	if e.gateway == nil {
		return
	}
	telemetry.Warnf("engine: reconciling (%s)", reason)
	e.risk.SetReconciling(true)
	defer e.risk.SetReconciling(false)

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// All open orders are presumed at risk: cancel exchange-side through
	// the REST fallback before reading the authoritative view.
	for _, o := range e.orders.OpenOrders() {
		if o.ExchangeID == "" {
			continue
		}
		if err := e.gateway.CancelOrder(callCtx, o.ExchangeID); err != nil {
			telemetry.Warnf("engine: reconcile cancel %s: %v", o.ExchangeID, err)
		}
	}

	exPositions, err := e.gateway.FetchPositions(callCtx)
	if err != nil {
		e.executeAction(ctx, e.risk.TripSystem("reconciliation failed: "+err.Error()))
		return
	}
	exOrders, err := e.gateway.FetchOpenOrders(callCtx)
	if err != nil {
		e.executeAction(ctx, e.risk.TripSystem("reconciliation failed: "+err.Error()))
		return
	}

	e.reconcileOrders(exOrders)
	e.reconcilePositions(exPositions)

	telemetry.Plainf("engine: reconciled orders=%d positions=%d", len(exOrders), len(exPositions))
}

// reconcileOrders diffs open orders in favor of the exchange: locally-known
// orders the exchange no longer has are forgotten, exchange orders with no
// local record are adopted.
func (e *Engine) reconcileOrders(exOrders []exchange.ExchangeOrder) {
	byExchangeID := make(map[string]exchange.ExchangeOrder, len(exOrders))
	byClientID := make(map[string]exchange.ExchangeOrder, len(exOrders))
	for _, eo := range exOrders {
		byExchangeID[eo.ExchangeID] = eo
		if eo.ClientID != "" {
			byClientID[eo.ClientID] = eo
		}
	}

	seen := make(map[string]bool)
	for _, o := range e.orders.OpenOrders() {
		eo, ok := byExchangeID[o.ExchangeID]
		if !ok {
			eo, ok = byClientID[o.ID]
		}
		if !ok {
			telemetry.Infof("engine: reconcile forget order %s (%s)", o.ID, o.State)
			e.orders.Forget(o.ID)
			e.recordTerminal(o.ID)
			continue
		}
		seen[eo.ExchangeID] = true
		o.ExchangeID = eo.ExchangeID
		o.FilledQty = eo.FilledQty
	}

	for _, eo := range exOrders {
		if seen[eo.ExchangeID] {
			continue
		}
		telemetry.Infof("engine: reconcile adopt order %s market=%s", eo.ExchangeID, eo.GameID)
		e.orders.Adopt(&orders.Order{
			ID:         eo.ClientID,
			ExchangeID: eo.ExchangeID,
			GameID:     eo.GameID,
			Side:       eo.Side,
			PriceCents: eo.PriceCents,
			Quantity:   eo.Quantity,
			FilledQty:  eo.FilledQty,
		})
	}
}

// reconcilePositions overwrites local positions with the exchange's view.
// A locally-held position the exchange does not report is zeroed: the fill
// that built it either never happened or was already closed out.
func (e *Engine) reconcilePositions(exPositions []exchange.ExchangePosition) {
	reported := make(map[[2]string]bool, len(exPositions))
	for _, ep := range exPositions {
		reported[[2]string{ep.GameID, ep.Side}] = true
		e.risk.RestorePosition(&risk.Position{
			GameID:        ep.GameID,
			Side:          ep.Side,
			Quantity:      ep.Quantity,
			AvgPriceCents: ep.AvgPriceCents,
		})
		e.persistPosition(ep.GameID, ep.Side)
	}

	for _, p := range e.risk.Positions() {
		if reported[[2]string{p.GameID, p.Side}] {
			continue
		}
		telemetry.Infof("engine: reconcile zero position %s/%s (local %d)", p.GameID, p.Side, p.Quantity)
		e.risk.RestorePosition(&risk.Position{GameID: p.GameID, Side: p.Side})
		if e.store != nil {
			e.store.UpsertPosition(persist.PositionRecord{GameID: p.GameID, Side: p.Side})
		}
	}
}
