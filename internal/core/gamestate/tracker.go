package gamestate

import (
	"errors"
	"fmt"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// Validation failures are entity-local: the event is dropped and reported,
// state is untouched, and nothing escalates beyond a log record.
var (
	ErrStaleEvent        = errors.New("stale event")
	ErrInvalidScoreDelta = errors.New("invalid score delta")
)

// Tracker normalizes raw score updates into canonical per-game state and
// derives scoring-run metadata. Apply must only be called from the engine
// loop; the tracker itself holds no locks.
type Tracker struct {
	store         *Store
	runThresholds []int // ascending, e.g. 8, 10, 15
}

func NewTracker(store *Store, runThresholds []int) *Tracker {
	if len(runThresholds) == 0 {
		runThresholds = []int{8, 10, 15}
	}
	return &Tracker{store: store, runThresholds: runThresholds}
}

// Apply validates a score update against the game's current state and, if
// accepted, mutates state and returns derived events (score_change, and
// run_detected when a run crosses a new threshold tier).
//
// Rejections return the untouched state alongside the sentinel error so
// callers can log context without re-fetching.
func (t *Tracker) Apply(su events.ScoreUpdate) (*GameState, []events.Event, error) {
	gs, ok := t.store.Get(su.GameID)
	if !ok {
		gs = &GameState{
			GameID:           su.GameID,
			HomeTeam:         su.HomeTeam,
			AwayTeam:         su.AwayTeam,
			PeriodIndex:      su.PeriodIndex,
			ClockSeconds:     su.ClockSeconds,
			Possession:       PossessionUnknown,
			Spread:           su.Spread,
			EfficiencyMargin: su.EfficiencyMargin,
		}
		t.store.Put(gs)
		telemetry.Metrics.ActiveGames.Inc()
	}

	if err := t.validate(gs, su); err != nil {
		return gs, nil, err
	}

	prevHome, prevAway := gs.HomeScore, gs.AwayScore
	deltaHome := su.HomeScore - prevHome
	deltaAway := su.AwayScore - prevAway

	gs.HomeScore = su.HomeScore
	gs.AwayScore = su.AwayScore
	gs.PeriodIndex = su.PeriodIndex
	gs.ClockSeconds = su.ClockSeconds
	gs.HomeFouls = su.HomeFouls
	gs.AwayFouls = su.AwayFouls
	gs.HomeTimeouts = su.HomeTimeouts
	gs.AwayTimeouts = su.AwayTimeouts
	if su.Possession != "" {
		gs.Possession = Possession(su.Possession)
	}

	if deltaHome == 0 && deltaAway == 0 {
		return gs, nil, nil
	}

	gs.LastScoreAt = su.ReceivedAt
	t.updateRun(gs, deltaHome, deltaAway)

	derived := []events.Event{{
		ID:        fmt.Sprintf("%s:%d-%d", gs.GameID, gs.HomeScore, gs.AwayScore),
		Type:      events.EventScoreChange,
		GameID:    gs.GameID,
		Timestamp: su.ReceivedAt,
		Payload:   su,
	}}

	if run := t.checkRunTier(gs); run != nil {
		telemetry.Metrics.RunsDetected.Inc()
		derived = append(derived, events.Event{
			ID:        fmt.Sprintf("%s:run%d", gs.GameID, run.Tier),
			Type:      events.EventRunDetected,
			GameID:    gs.GameID,
			Timestamp: su.ReceivedAt,
			Payload:   *run,
		})
	}

	return gs, derived, nil
}

// validate enforces the monotonic invariant: within a live period the clock
// never goes up and the period never goes back; scores never decrease.
func (t *Tracker) validate(gs *GameState, su events.ScoreUpdate) error {
	if su.PeriodIndex < gs.PeriodIndex {
		telemetry.Metrics.StaleEvents.Inc()
		return fmt.Errorf("%w: period %d behind current %d", ErrStaleEvent, su.PeriodIndex, gs.PeriodIndex)
	}
	if su.PeriodIndex == gs.PeriodIndex && su.ClockSeconds > gs.ClockSeconds {
		telemetry.Metrics.StaleEvents.Inc()
		return fmt.Errorf("%w: clock %ds after %ds in period %d", ErrStaleEvent, su.ClockSeconds, gs.ClockSeconds, su.PeriodIndex)
	}
	if su.HomeScore < gs.HomeScore || su.AwayScore < gs.AwayScore {
		telemetry.Metrics.InvalidDeltas.Inc()
		return fmt.Errorf("%w: %d-%d after %d-%d", ErrInvalidScoreDelta, su.HomeScore, su.AwayScore, gs.HomeScore, gs.AwayScore)
	}
	return nil
}

// updateRun extends or resets the unanswered-points run.
func (t *Tracker) updateRun(gs *GameState, deltaHome, deltaAway int) {
	switch {
	case deltaHome > 0 && deltaAway > 0:
		// Both teams scored in one snapshot: no unanswered run either way.
		gs.CurrentRun = 0
		gs.runTier = 0
	case deltaHome > 0:
		if gs.CurrentRun > 0 {
			gs.CurrentRun += deltaHome
		} else {
			gs.CurrentRun = deltaHome
			gs.runTier = 0
		}
	case deltaAway > 0:
		if gs.CurrentRun < 0 {
			gs.CurrentRun -= deltaAway
		} else {
			gs.CurrentRun = -deltaAway
			gs.runTier = 0
		}
	}
}

// checkRunTier emits at most one run_detected per threshold tier per run.
// A run that reaches 8, keeps going to 10, then 15 emits three times total.
// An update that jumps past several tiers at once emits only the lowest
// uncrossed one; the higher tiers follow on later updates.
func (t *Tracker) checkRunTier(gs *GameState) *events.RunDetected {
	magnitude := gs.CurrentRun
	team := "home"
	if magnitude < 0 {
		magnitude = -magnitude
		team = "away"
	}

	var crossed int
	for _, tier := range t.runThresholds {
		if magnitude >= tier && tier > gs.runTier {
			crossed = tier
			break
		}
	}
	if crossed == 0 {
		return nil
	}

	gs.runTier = crossed
	return &events.RunDetected{
		GameID: gs.GameID,
		Team:   team,
		Run:    magnitude,
		Tier:   crossed,
	}
}

// Settle marks a game finished and archives it out of the store.
func (t *Tracker) Settle(gameID string) {
	if gs, ok := t.store.Get(gameID); ok {
		gs.Finished = true
		t.store.Archive(gameID)
		telemetry.Metrics.ActiveGames.Dec()
	}
}

// Get returns the live state for a game, if tracked.
func (t *Tracker) Get(gameID string) (*GameState, bool) {
	return t.store.Get(gameID)
}
