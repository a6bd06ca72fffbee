package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidehq/courtside/internal/core/gamestate"
	"github.com/courtsidehq/courtside/internal/events"
)

func midGame(lead int) *gamestate.GameState {
	return &gamestate.GameState{
		GameID:       "g1",
		HomeScore:    50 + lead,
		AwayScore:    50,
		PeriodIndex:  2,
		ClockSeconds: 600,
	}
}

func quote(bid, ask int) events.MarketData {
	return events.MarketData{GameID: "g1", YesBid: bid, YesAsk: ask}
}

func fixedClock(g *Generator, at time.Time) {
	g.now = func() time.Time { return at }
}

func TestBuyYesOnEdgeInBand(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	sig, err := g.Evaluate(midGame(2), 0.60, quote(54, 56), nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SideYes, sig.Side)
	assert.Equal(t, DirectionBuy, sig.Direction)
	assert.Equal(t, 56, sig.MarketPrice)
	assert.InDelta(t, 0.04, sig.Edge, 1e-9)
	assert.Equal(t, "edge_entry", sig.Reason)
}

func TestBuyNoWhenComplementIsCheap(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// Yes side has no edge; no side costs 46c against a 60% no probability.
	sig, err := g.Evaluate(midGame(-2), 0.40, quote(54, 56), nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SideNo, sig.Side)
	assert.Equal(t, 46, sig.MarketPrice)
	assert.InDelta(t, 0.14, sig.Edge, 1e-9)
}

func TestNoSignalBelowMinEdge(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	sig, err := g.Evaluate(midGame(1), 0.57, quote(54, 56), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSuspiciousEdgeSuppressed(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	sig, err := g.Evaluate(midGame(2), 0.80, quote(54, 56), nil)
	assert.ErrorIs(t, err, ErrSuspiciousEdge)
	assert.Nil(t, sig)
}

func TestPriceBandSuppressesEntry(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// Real edge, but an 85c contract sits outside the entry band.
	sig, err := g.Evaluate(midGame(4), 0.90, quote(83, 85), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestOpeningWindowSuppressesEntry(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	gs := &gamestate.GameState{
		GameID:       "g1",
		HomeScore:    10,
		AwayScore:    6,
		PeriodIndex:  1,
		ClockSeconds: 1150, // 2350s total, market not developed yet
	}
	sig, err := g.Evaluate(gs, 0.62, quote(54, 56), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDebounceWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debounce = 15 * time.Second
	g := NewGenerator(cfg)

	t0 := time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC)
	g.NoteRun("g1", t0)

	// t=5s: inside the window, suppressed.
	fixedClock(g, t0.Add(5*time.Second))
	sig, err := g.Evaluate(midGame(2), 0.60, quote(54, 56), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	// t=16s: window expired, admitted.
	fixedClock(g, t0.Add(16*time.Second))
	sig, err = g.Evaluate(midGame(2), 0.60, quote(54, 56), nil)
	require.NoError(t, err)
	assert.NotNil(t, sig)
}

func TestStopLossFlattens(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	pos := &PositionView{Side: SideYes, Quantity: 10, AvgPriceCents: 60}
	sig, err := g.Evaluate(midGame(1), 0.55, quote(57, 59), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, DirectionFlatten, sig.Direction)
	assert.Equal(t, "stop_loss", sig.Reason)
	assert.Equal(t, 57, sig.MarketPrice)
}

func TestStopLossBypassesDebounce(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	t0 := time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC)
	g.NoteRun("g1", t0)
	fixedClock(g, t0.Add(2*time.Second))

	pos := &PositionView{Side: SideYes, Quantity: 10, AvgPriceCents: 60}
	sig, err := g.Evaluate(midGame(1), 0.55, quote(57, 59), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, DirectionFlatten, sig.Direction)
}

func TestGarbageTimeFlattens(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	gs := &gamestate.GameState{
		GameID:       "g1",
		HomeScore:    85,
		AwayScore:    60,
		PeriodIndex:  2,
		ClockSeconds: 120,
	}
	pos := &PositionView{Side: SideYes, Quantity: 10, AvgPriceCents: 50}
	sig, err := g.Evaluate(gs, 0.999, quote(95, 97), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, DirectionFlatten, sig.Direction)
	assert.Equal(t, "garbage_time", sig.Reason)
}

func TestGarbageTimeBlocksNewEntries(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	gs := &gamestate.GameState{
		GameID:       "g1",
		HomeScore:    85,
		AwayScore:    60,
		PeriodIndex:  2,
		ClockSeconds: 120,
	}
	// Even a within-band edge is ignored once the game is decided.
	sig, err := g.Evaluate(gs, 0.80, quote(73, 75), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestModelExitSells(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	pos := &PositionView{Side: SideYes, Quantity: 10, AvgPriceCents: 50}
	sig, err := g.Evaluate(midGame(0), 0.48, quote(52, 54), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, DirectionSell, sig.Direction)
	assert.Equal(t, "model_exit", sig.Reason)
}

func TestFinishedGameIsInert(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	gs := midGame(5)
	gs.Finished = true
	sig, err := g.Evaluate(gs, 0.99, quote(54, 56), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}
