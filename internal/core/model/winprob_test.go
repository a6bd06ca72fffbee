package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courtsidehq/courtside/internal/core/gamestate"
)

func state(lead, period, clock int, spread float64) *gamestate.GameState {
	home, away := 50, 50
	if lead > 0 {
		home += lead
	} else {
		away -= lead
	}
	return &gamestate.GameState{
		HomeScore:    home,
		AwayScore:    away,
		PeriodIndex:  period,
		ClockSeconds: clock,
		Spread:       spread,
	}
}

func TestTiedEvenGameIsFiftyFifty(t *testing.T) {
	gs := state(0, 1, 1200, 0)
	assert.InDelta(t, 0.5, WinProbability(gs), 1e-9)
}

func TestKnownProbabilities(t *testing.T) {
	cases := []struct {
		name   string
		lead   int
		period int
		clock  int
		spread float64
		want   float64
		tol    float64
	}{
		// lead 5, halftime (1200s left), no prior:
		// sigma = 11*sqrt(0.5) ~ 7.778, z ~ 0.6428, phi ~ 0.7398
		{"five up at half", 5, 2, 1200, 0, 0.7398, 0.002},
		// lead 10 with 300s left: sigma = 11*sqrt(0.125) ~ 3.889,
		// z ~ 2.5712, phi ~ 0.99493
		{"ten up five minutes left", 10, 2, 300, 0, 0.9949, 0.001},
		// tied with 600s left, home favored by 4:
		// effective lead = 4*0.25 = 1, sigma = 5.5, z ~ 0.18182
		{"tied but favored", 0, 2, 600, 4, 0.5721, 0.002},
		// trailing mirror of the leading case
		{"five down at half", -5, 2, 1200, 0, 0.2602, 0.002},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WinProbability(state(tc.lead, tc.period, tc.clock, tc.spread))
			assert.InDelta(t, tc.want, got, tc.tol)
		})
	}
}

func TestMonotonicInLead(t *testing.T) {
	// Lead ranges stay inside the clamp band for each clock; beyond it the
	// output saturates at the epsilon bounds.
	cases := []struct{ clock, maxLead int }{
		{1200, 30},
		{600, 25},
		{120, 10},
		{30, 5},
		{5, 2},
	}
	for _, tc := range cases {
		prev := 0.0
		for lead := -tc.maxLead; lead <= tc.maxLead; lead++ {
			p := WinProbability(state(lead, 2, tc.clock, 0))
			assert.Greater(t, p, prev, "lead %d clock %d", lead, tc.clock)
			prev = p
		}
	}
}

func TestSensitivityGrowsLateInGame(t *testing.T) {
	// A one-point lead keeps the CDF near the coin-flip center at every
	// clock; larger leads saturate it late and flatten the derivative.
	early := DeltaPerPoint(state(1, 1, 1200, 0))
	late := DeltaPerPoint(state(1, 2, 60, 0))
	assert.Greater(t, late, early,
		"a point with a minute left must matter more than one in the first half")
}

func TestTerminalState(t *testing.T) {
	finished := state(7, 2, 0, 0)
	finished.Finished = true
	assert.InDelta(t, 1.0, WinProbability(finished), 1e-5)

	lost := state(-7, 2, 0, 0)
	lost.Finished = true
	assert.InDelta(t, 0.0, WinProbability(lost), 1e-5)

	tied := state(0, 2, 0, 0)
	assert.InDelta(t, 0.5, WinProbability(tied), 1e-9)
}

func TestOutputStaysInOpenInterval(t *testing.T) {
	blowout := state(60, 2, 10, 0)
	p := WinProbability(blowout)
	assert.Less(t, p, 1.0)
	assert.Greater(t, p, 0.0)
}

func TestEfficiencyMarginFallback(t *testing.T) {
	withSpread := state(0, 1, 1200, 4)
	noSpread := state(0, 1, 1200, 0)
	noSpread.EfficiencyMargin = 4
	assert.InDelta(t, WinProbability(withSpread), WinProbability(noSpread), 1e-12)
}

func TestBucketEdges(t *testing.T) {
	cases := []struct{ in, want int }{
		{2400, 2280},
		{721, 720},
		{600, 600},
		{599, 570},
		{121, 120},
		{120, 120},
		{119, 115},
		{31, 30},
		{30, 30},
		{7, 7},
		{1, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bucket(tc.in), "bucket(%d)", tc.in)
	}
}

func TestBucketConstantWithinBucket(t *testing.T) {
	// 470s and 450s land in the same 30s bucket.
	a := probability(6, 470, 0)
	b := probability(6, 450, 0)
	assert.Equal(t, a, b)
}

func TestSafeLead(t *testing.T) {
	// Full game: 2.576*11 ~ 28.3 points.
	assert.InDelta(t, 28.3, SafeLead(2400), 0.2)

	// Shrinks with the clock.
	assert.Less(t, SafeLead(300), SafeLead(1200))
	assert.Zero(t, SafeLead(0))

	// A 20-point lead with 2 minutes left is beyond any comeback:
	// 2.576*11*sqrt(120/2400) ~ 6.3.
	assert.Less(t, SafeLead(120), 20.0)
}

func TestPhi(t *testing.T) {
	assert.InDelta(t, 0.5, phi(0), 1e-12)
	assert.InDelta(t, 0.8413, phi(1), 1e-4)
	assert.True(t, math.Abs(phi(1)+phi(-1)-1) < 1e-12)
}
