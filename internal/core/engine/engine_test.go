package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidehq/courtside/internal/adapters/outbound/exchange"
	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/core/orders"
	"github.com/courtsidehq/courtside/internal/core/risk"
	"github.com/courtsidehq/courtside/internal/events"
)

// fakeGateway records calls and serves canned portfolio state.
type fakeGateway struct {
	mu        sync.Mutex
	submitted []exchange.OrderRequest
	cancelled []string
	positions []exchange.ExchangePosition
	openOrds  []exchange.ExchangeOrder

	submitCh chan exchange.OrderRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{submitCh: make(chan exchange.OrderRequest, 16)}
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req exchange.OrderRequest) (exchange.Ack, error) {
	g.mu.Lock()
	g.submitted = append(g.submitted, req)
	g.mu.Unlock()
	g.submitCh <- req
	return exchange.Ack{ExchangeID: "ex-" + req.ClientID, Status: "open"}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, exchangeID string) error {
	g.mu.Lock()
	g.cancelled = append(g.cancelled, exchangeID)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) FetchPositions(_ context.Context) ([]exchange.ExchangePosition, error) {
	return g.positions, nil
}

func (g *fakeGateway) FetchOpenOrders(_ context.Context) ([]exchange.ExchangeOrder, error) {
	return g.openOrds, nil
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submitted)
}

func testConfig() *config.Config {
	return &config.Config{
		DebounceSeconds:  12,
		RunThresholds:    []int{8, 10, 15},
		StalenessTimeout: 90 * time.Second,
		LatencyCeiling:   time.Second,
		WatchdogTimeout:  30 * time.Second,
	}
}

func testEngine(gw Gateway) *Engine {
	limits := config.RiskLimits{
		MaxLossPerGameCents:  5000,
		MaxLossPerDayCents:   20000,
		MaxPositionPerGame:   250,
		MaxConcurrentGames:   6,
		MaxPortfolioExposure: 0.60,
		MinEdgeThreshold:     0.02,
		MaxEdgeThreshold:     0.15,
		KellyFraction:        0.25,
	}
	return New(Options{
		Config:   testConfig(),
		Limits:   limits,
		Queue:    events.NewQueue(64),
		Bus:      events.NewBus(),
		Gateway:  gw,
		Bankroll: 500000,
	})
}

func scoreEvent(home, away, period, clock int) events.Event {
	return events.Event{
		Type:   events.EventScoreUpdate,
		GameID: "g1",
		Payload: events.ScoreUpdate{
			GameID:       "g1",
			HomeTeam:     "HOME",
			AwayTeam:     "AWAY",
			HomeScore:    home,
			AwayScore:    away,
			PeriodIndex:  period,
			ClockSeconds: clock,
			ReceivedAt:   time.Now(),
		},
	}
}

func quoteEvent(bid, ask int) events.Event {
	return events.Event{
		Type:    events.EventMarketData,
		GameID:  "g1",
		Payload: events.MarketData{GameID: "g1", YesBid: bid, YesAsk: ask},
	}
}

func TestDecisionCycleSubmitsOrder(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	// Home up 2 in the second half; model is near 0.60 against a 51c ask.
	e.handle(ctx, scoreEvent(52, 50, 2, 600))
	e.handle(ctx, quoteEvent(49, 51))

	select {
	case req := <-gw.submitCh:
		assert.Equal(t, "g1", req.GameID)
		assert.Equal(t, "buy", req.Action)
		assert.Equal(t, "yes", req.Side)
		assert.Equal(t, 51, req.PriceCents)
		assert.Positive(t, req.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("no order submitted")
	}
}

func TestNoOrderWithoutQuote(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)

	e.handle(context.Background(), scoreEvent(52, 50, 2, 600))
	assert.Zero(t, gw.submitCount())
}

func TestKillSwitchBlocksNewOrders(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	e.handle(ctx, events.Event{Type: events.EventKillSwitch})
	require.True(t, e.risk.Tripped(risk.BreakerKill))

	e.handle(ctx, scoreEvent(52, 50, 2, 600))
	e.handle(ctx, quoteEvent(49, 51))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, gw.submitCount())
}

func TestStaleFeedTripsSystemBreaker(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	e.handle(ctx, scoreEvent(52, 50, 2, 600))

	// Feed goes quiet past the staleness timeout.
	e.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	e.handle(ctx, events.Event{
		Type:    events.EventTimer,
		Payload: events.TimerFired{Kind: events.TimerStalenessSweep},
	})

	assert.True(t, e.risk.Tripped(risk.BreakerSystem))
}

func TestRunDetectedCancelsGameOrders(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	e.handle(ctx, scoreEvent(40, 38, 2, 900))
	e.handle(ctx, quoteEvent(52, 54))

	// Wait for the entry to reach the exchange, then ack it locally.
	var req exchange.OrderRequest
	select {
	case req = <-gw.submitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no order submitted")
	}
	e.handle(ctx, events.Event{
		Type:    events.EventOrderAck,
		Payload: events.OrderAck{OrderID: req.ClientID, ExchangeID: "ex-1", Seq: 1},
	})

	// An 8-0 run: the resting order must be pulled.
	e.handle(ctx, scoreEvent(48, 38, 2, 800))

	o, ok := e.orders.Get(req.ClientID)
	require.True(t, ok)
	assert.Equal(t, orders.StateCancelRequested, o.State)
}

func TestReconciliationAdoptsExchangeState(t *testing.T) {
	// Restart scenario: the exchange knows a fill we never saw. After
	// reconciliation local positions match the exchange exactly and no
	// duplicate order goes out for the already-filled quantity.
	gw := newFakeGateway()
	gw.positions = []exchange.ExchangePosition{
		{GameID: "g1", Side: "yes", Quantity: 250, AvgPriceCents: 55},
	}
	e := testEngine(gw)
	ctx := context.Background()

	// Local state thinks there is a resting order and no position.
	intents := e.orders.Submit(orders.Request{
		GameID: "g1", Side: "yes", Action: "buy", PriceCents: 55, Quantity: 250, Mark: 54,
	})
	require.Len(t, intents, 1)
	require.NoError(t, e.orders.HandleAck(events.OrderAck{
		OrderID: intents[0].OrderID, ExchangeID: "ex-stale", Seq: intents[0].Seq,
	}))

	e.reconcile(ctx, "restart")

	// Position adopted from the exchange.
	p, ok := e.risk.PositionFor("g1", "yes")
	require.True(t, ok)
	assert.Equal(t, 250, p.Quantity)
	assert.Equal(t, 55, p.AvgPriceCents)

	// The stale local order is gone and the filled quantity is not re-sent.
	assert.Empty(t, e.orders.OpenOrders())
	before := gw.submitCount()

	e.handle(ctx, scoreEvent(52, 50, 2, 600))
	e.handle(ctx, quoteEvent(54, 56))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, gw.submitCount(),
		"position already at target, no duplicate order")
}

func TestReconciliationBlocksAdmissionWhileRunning(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)

	e.risk.SetReconciling(true)
	d := e.risk.Admit(risk.AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "reconciliation")
}

func TestLateAckOnTrippedGameCancelsAndFlattens(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	// Open position, plus a second entry still in flight: submitted, no
	// ack yet, so it cannot be cancelled and it occupies the side.
	e.risk.RestorePosition(&risk.Position{GameID: "g1", Side: "yes", Quantity: 100, AvgPriceCents: 60})
	intents := e.orders.Submit(orders.Request{
		GameID: "g1", Side: "yes", Action: "buy", PriceCents: 58, Quantity: 50, Mark: 57,
	})
	require.Len(t, intents, 1)

	// The mark collapses and the game breaker trips while the ack is
	// outstanding; the breaker's cancel pass cannot reach the order and
	// its flatten finds the side occupied.
	e.handle(ctx, quoteEvent(3, 5))
	require.True(t, e.risk.Blacklisted("g1"))

	// The late ack lands: the order must come off the book.
	e.handle(ctx, events.Event{
		Type:    events.EventOrderAck,
		Payload: events.OrderAck{OrderID: intents[0].OrderID, ExchangeID: "ex-1", Seq: intents[0].Seq},
	})
	o, ok := e.orders.Get(intents[0].OrderID)
	require.True(t, ok)
	require.Equal(t, orders.StateCancelRequested, o.State)

	// The cancel ack releases the re-issued flatten.
	e.handle(ctx, events.Event{
		Type:    events.EventCancelAck,
		Payload: events.CancelAck{OrderID: o.ID, Seq: o.Seq},
	})
	select {
	case req := <-gw.submitCh:
		assert.Equal(t, "sell", req.Action)
		assert.Equal(t, "yes", req.Side)
		assert.Equal(t, 100, req.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("flatten not submitted after cancel ack")
	}

	// The only order left in flight is the flatten itself.
	open := e.orders.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, "sell", open[0].Action)
}

func TestFillUpdatesPositionAndPersists(t *testing.T) {
	gw := newFakeGateway()
	e := testEngine(gw)
	ctx := context.Background()

	e.handle(ctx, scoreEvent(52, 50, 2, 600))
	e.handle(ctx, quoteEvent(49, 51))

	var req exchange.OrderRequest
	select {
	case req = <-gw.submitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no order submitted")
	}
	e.handle(ctx, events.Event{
		Type:    events.EventOrderAck,
		Payload: events.OrderAck{OrderID: req.ClientID, ExchangeID: "ex-1", Seq: 1},
	})
	e.handle(ctx, events.Event{
		Type: events.EventFill,
		Payload: events.Fill{
			OrderID: req.ClientID, ExchangeID: "ex-1", GameID: "g1",
			Side: "yes", PriceCents: req.PriceCents, Count: req.Count,
		},
	})

	p, ok := e.risk.PositionFor("g1", "yes")
	require.True(t, ok)
	assert.Equal(t, req.Count, p.Quantity)
	assert.Equal(t, req.PriceCents, p.AvgPriceCents)
}
