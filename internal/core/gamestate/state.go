package gamestate

import "time"

// Game layout: two 20-minute halves, 5-minute overtimes.
const (
	PeriodSeconds     = 1200
	OvertimeSeconds   = 300
	RegulationPeriods = 2
)

type Possession string

const (
	PossessionHome    Possession = "home"
	PossessionAway    Possession = "away"
	PossessionUnknown Possession = "unknown"
)

// GameState is the canonical live state for one game. Owned exclusively by
// the Tracker; mutated only through Tracker.Apply with validated events.
type GameState struct {
	GameID   string
	HomeTeam string
	AwayTeam string

	HomeScore    int
	AwayScore    int
	PeriodIndex  int // 1, 2 = halves; 3+ = overtimes
	ClockSeconds int // time left in the current period

	Possession   Possession
	HomeFouls    int
	AwayFouls    int
	HomeTimeouts int
	AwayTimeouts int

	LastScoreAt time.Time

	// CurrentRun is the active unanswered-points run: positive while the
	// home team scores consecutively, negative for away.
	CurrentRun int
	runTier    int // highest threshold tier already emitted for this run

	// Pre-game prior.
	Spread           float64 // positive = home favored
	EfficiencyMargin float64

	Finished bool
}

func (gs *GameState) Lead() int { return gs.HomeScore - gs.AwayScore }

// TotalSecondsRemaining derives the whole-game clock from the period
// layout. Overtime contributes only its own clock; further overtimes are
// not guaranteed.
func (gs *GameState) TotalSecondsRemaining() int {
	if gs.Finished {
		return 0
	}
	if gs.PeriodIndex <= 0 {
		return RegulationPeriods * PeriodSeconds
	}
	if gs.PeriodIndex > RegulationPeriods {
		return gs.ClockSeconds
	}
	remainingFull := RegulationPeriods - gs.PeriodIndex
	return gs.ClockSeconds + remainingFull*PeriodSeconds
}
