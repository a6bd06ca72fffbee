// Package model implements the win probability engine: a family of
// Brownian-motion models indexed by time remaining. The lead diffuses with
// a historical final-margin deviation of ~11 points over a full game; the
// pre-game spread contributes drift over the remaining fraction.
//
// The family is realized as a bucketed clock: coarse buckets early, down to
// one-second buckets in the final 30 seconds, where per-possession
// sensitivity grows fastest. Within a bucket the output is constant for a
// fixed score, which keeps the model deterministic and cheap to test
// against known (score, time, probability) triples.
package model

import (
	"math"

	"github.com/courtsidehq/courtside/internal/core/gamestate"
)

const (
	fullGameSeconds = gamestate.RegulationPeriods * gamestate.PeriodSeconds
	gameSeconds     = float64(fullGameSeconds)

	// Standard deviation of the final margin for an even matchup.
	sigmaPoints = 11.0

	// Output is clamped strictly inside (0,1); a settled-looking game is
	// never certain until the feed says it is over.
	pEpsilon = 1e-6
)

// bucket quantizes seconds remaining to the lower edge of its model bucket.
//
//	> 600s : 120s buckets
//	120–600: 30s buckets
//	 30–120: 5s buckets
//	  <= 30: 1s buckets
//
// A full clock is clamped into the last pre-tip bucket, so the opening
// snapshot prices off the same bucket as the first minutes of play.
func bucket(secs int) int {
	switch {
	case secs <= 30:
		return secs
	case secs <= 120:
		return secs - secs%5
	case secs <= 600:
		return secs - secs%30
	default:
		b := secs - secs%120
		if b >= fullGameSeconds {
			b = fullGameSeconds - 120
		}
		return b
	}
}

// WinProbability returns the probability that the home team wins, strictly
// in (0,1). Pure function of the game state: no side effects, no clock
// reads.
func WinProbability(gs *gamestate.GameState) float64 {
	return probability(gs.Lead(), gs.TotalSecondsRemaining(), prior(gs))
}

// prior picks the pre-game drift source: the market spread when present,
// otherwise the rating-based efficiency margin.
func prior(gs *gamestate.GameState) float64 {
	if gs.Spread != 0 {
		return gs.Spread
	}
	return gs.EfficiencyMargin
}

func probability(lead, secondsRemaining int, spread float64) float64 {
	if secondsRemaining <= 0 {
		switch {
		case lead > 0:
			return 1 - pEpsilon
		case lead < 0:
			return pEpsilon
		default:
			return 0.5
		}
	}

	secs := float64(bucket(secondsRemaining))
	tFrac := secs / gameSeconds

	// Expected points still to come from the pre-game edge.
	effectiveLead := float64(lead) + spread*tFrac

	sigmaRemaining := sigmaPoints * math.Sqrt(tFrac)
	z := effectiveLead / sigmaRemaining

	return clamp(phi(z))
}

// DeltaPerPoint is the marginal win-probability change of the next home
// point at the current clock.
func DeltaPerPoint(gs *gamestate.GameState) float64 {
	p := prior(gs)
	secs := gs.TotalSecondsRemaining()
	return probability(gs.Lead()+1, secs, p) - probability(gs.Lead(), secs, p)
}

// SafeLead returns the lead magnitude beyond which a comeback is
// statistically negligible (trailing side below 0.5% to win) at the given
// clock. Used for the garbage-time flatten cutoff.
func SafeLead(secondsRemaining int) float64 {
	if secondsRemaining <= 0 {
		return 0
	}
	const z995 = 2.576 // Phi(2.576) ~ 0.995
	tFrac := float64(secondsRemaining) / gameSeconds
	if tFrac > 1 {
		tFrac = 1
	}
	return z995 * sigmaPoints * math.Sqrt(tFrac)
}

// phi is the standard normal CDF.
func phi(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func clamp(p float64) float64 {
	if p < pEpsilon {
		return pEpsilon
	}
	if p > 1-pEpsilon {
		return 1 - pEpsilon
	}
	return p
}
