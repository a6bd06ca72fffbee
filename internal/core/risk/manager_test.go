package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/events"
)

func testLimits() config.RiskLimits {
	return config.RiskLimits{
		MaxLossPerGameCents:  5000,  // $50
		MaxLossPerDayCents:   20000, // $200
		MaxPositionPerGame:   250,
		MaxConcurrentGames:   2,
		MaxPortfolioExposure: 0.60,
		MinEdgeThreshold:     0.02,
		MaxEdgeThreshold:     0.15,
		KellyFraction:        0.25,
	}
}

func newTestManager() *Manager {
	return NewManager(testLimits(), 500000) // $5000 bankroll
}

func buyFill(gameID string, price, count int) events.Fill {
	return events.Fill{GameID: gameID, Side: "yes", PriceCents: price, Count: count}
}

func sellFill(gameID string, price, count int) events.Fill {
	return events.Fill{GameID: gameID, Side: "yes", PriceCents: price, Count: count}
}

func TestAdmitAllowsWithinLimits(t *testing.T) {
	m := newTestManager()
	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 56, Quantity: 100})
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestAdmitDeniesOverPositionCap(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 56, 200), false))

	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 56, Quantity: 100})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "position cap")
}

func TestAdmitDeniesOverExposureCeiling(t *testing.T) {
	lim := testLimits()
	lim.MaxPositionPerGame = 10000
	m := NewManager(lim, 500000)

	// Ceiling 0.60 * $5000 = $3000. Request alone would cost $3080.
	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 56, Quantity: 5500})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "exposure")
}

func TestAdmitDeniesOverConcurrentGames(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 56, 10), false))
	require.Nil(t, m.ApplyFill(buyFill("g2", 40, 10), false))

	d := m.Admit(AdmitRequest{GameID: "g3", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "concurrent game limit")

	// Adding to an already-held game is still fine.
	assert.True(t, m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 56, Quantity: 10}).Allowed)
}

func TestGameBreakerScenario(t *testing.T) {
	// $5000 bankroll, maxLossPerGame $50. Realized losses of $30 then $25
	// on the same game: the second loss (cumulative $55) trips the game
	// breaker and blacklists the game.
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 60, 300), false))

	// Sell 100 at 30c against a 60c basis: -$30.
	a := m.ApplyFill(sellFill("g1", 30, 100), true)
	assert.Nil(t, a, "first loss is under the limit")
	assert.False(t, m.Blacklisted("g1"))

	// Sell 100 at 35c: -$25, cumulative -$55.
	a = m.ApplyFill(sellFill("g1", 35, 100), true)
	require.NotNil(t, a)
	assert.Equal(t, BreakerGame, a.Level)
	assert.Equal(t, "g1", a.GameID)
	assert.True(t, m.Tripped(BreakerGame))
	assert.True(t, m.Blacklisted("g1"))

	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "blacklisted")
}

func TestGameBreakerCountsUnrealized(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 60, 300), false))

	// Mark drops to 42c: unrealized -18c * 300 = -$54.
	a := m.MarkToMarket(events.MarketData{GameID: "g1", YesBid: 42, YesAsk: 44})
	require.NotNil(t, a)
	assert.Equal(t, BreakerGame, a.Level)
}

func TestSessionBreakerOnDayLoss(t *testing.T) {
	m := newTestManager()

	// Four games each settle for a ~$51 loss; the one that pushes day P&L
	// past -$200 trips the session breaker.
	var tripped *Action
	for i, g := range []string{"g1", "g2", "g3", "g4"} {
		require.Nil(t, m.ApplyFill(buyFill(g, 51, 100), false))
		a := m.ApplySettlement(events.Settlement{GameID: g, HomeWon: false})
		if i < 3 {
			require.Nil(t, a, "game %s", g)
		} else {
			tripped = a
		}
	}
	require.NotNil(t, tripped)
	assert.Equal(t, BreakerSession, tripped.Level)

	d := m.Admit(AdmitRequest{GameID: "g9", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "halted")
}

func TestSystemBreakerIsReadOnly(t *testing.T) {
	m := newTestManager()

	a := m.TripSystem("feed stale for g1 beyond 90s")
	require.NotNil(t, a)
	assert.Equal(t, BreakerSystem, a.Level)
	assert.Nil(t, m.TripSystem("second trigger"), "already read-only")

	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "read-only")

	m.ResetBreaker(BreakerSystem)
	assert.True(t, m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10}).Allowed)
}

func TestKillSwitchOverridesEverything(t *testing.T) {
	m := newTestManager()

	a := m.Kill("operator")
	require.NotNil(t, a)
	assert.Equal(t, BreakerKill, a.Level)

	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "kill switch")
}

func TestSettlementRealizesOutcome(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 56, 100), false))

	a := m.ApplySettlement(events.Settlement{GameID: "g1", HomeWon: true})
	assert.Nil(t, a)
	// 100 contracts bought at 56c settle at 100c: +$44.
	assert.Equal(t, int64(4400), m.DayPnLCents())
	assert.Empty(t, m.Positions())
}

func TestAverageCostAcrossFills(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.ApplyFill(buyFill("g1", 50, 100), false))
	require.Nil(t, m.ApplyFill(buyFill("g1", 60, 100), false))

	p, ok := m.PositionFor("g1", "yes")
	require.True(t, ok)
	assert.Equal(t, 200, p.Quantity)
	assert.Equal(t, 55, p.AvgPriceCents)
	assert.Equal(t, int64(11000), m.ExposureCents())
}

func TestCooldownBlocksReentry(t *testing.T) {
	m := newTestManager()
	t0 := time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return t0 }

	m.StartCooldown("g1", 5*time.Minute)

	d := m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "cooldown")

	m.now = func() time.Time { return t0.Add(6 * time.Minute) }
	assert.True(t, m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10}).Allowed)
}

func TestReconciliationBlocksAdmission(t *testing.T) {
	m := newTestManager()
	m.SetReconciling(true)
	assert.False(t, m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10}).Allowed)
	m.SetReconciling(false)
	assert.True(t, m.Admit(AdmitRequest{GameID: "g1", Side: "yes", PriceCents: 50, Quantity: 10}).Allowed)
}

func TestRestoreAfterRestart(t *testing.T) {
	m := newTestManager()
	m.RestorePosition(&Position{GameID: "g1", Side: "yes", Quantity: 80, AvgPriceCents: 55})
	m.RestoreBreaker(BreakerSystem, []string{"g7"})

	p, ok := m.PositionFor("g1", "yes")
	require.True(t, ok)
	assert.Equal(t, 80, p.Quantity)

	assert.True(t, m.Tripped(BreakerSystem))
	assert.True(t, m.Blacklisted("g7"))
	assert.False(t, m.Admit(AdmitRequest{GameID: "g2", Side: "yes", PriceCents: 50, Quantity: 10}).Allowed)
}
