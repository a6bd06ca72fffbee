// Package signal compares model fair value to the observed market and emits
// buy, sell, and flatten signals. One generator serves all games; it keeps
// only per-game debounce deadlines, no market or position state.
package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/courtsidehq/courtside/internal/core/gamestate"
	"github.com/courtsidehq/courtside/internal/core/model"
	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// ErrSuspiciousEdge flags an edge too large to be real. The signal is
// suppressed and the caller alerts: a 20-point edge means the feed or the
// book is wrong, not that we found free money.
var ErrSuspiciousEdge = errors.New("suspicious edge")

type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

type Direction string

const (
	DirectionBuy     Direction = "buy"
	DirectionSell    Direction = "sell"
	DirectionFlatten Direction = "flatten"
)

// Signal is consumed once by the risk gate and sizer, then discarded.
// ModelProbability and MarketPrice both refer to the purchased side.
type Signal struct {
	GameID           string
	Side             Side
	Direction        Direction
	ModelProbability float64
	MarketPrice      int // cents, cost of the purchased side
	Edge             float64
	Reason           string
	At               time.Time
}

// PositionView is the risk manager's immutable per-decision snapshot of an
// open position. The generator never touches live position state.
type PositionView struct {
	Side          Side
	Quantity      int
	AvgPriceCents int
}

type Config struct {
	MinEdge float64
	MaxEdge float64

	Debounce time.Duration

	// Per-trade stop: flatten once the mark is this many cents under the
	// average entry.
	StopLossCents int

	// Entry band. Contracts near 1c or 99c carry settlement-risk asymmetry
	// the model does not price.
	MinPriceCents int
	MaxPriceCents int

	// No entries while more than this remains; early markets are too thin
	// to trust the quote.
	MaxSecondsRemaining int
}

func DefaultConfig() Config {
	return Config{
		MinEdge:             0.02,
		MaxEdge:             0.15,
		Debounce:            12 * time.Second,
		StopLossCents:       3,
		MinPriceCents:       20,
		MaxPriceCents:       80,
		MaxSecondsRemaining: 2280,
	}
}

type Generator struct {
	cfg           Config
	debounceUntil map[string]time.Time
	now           func() time.Time
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:           cfg,
		debounceUntil: make(map[string]time.Time),
		now:           time.Now,
	}
}

// NoteRun opens the debounce window for a game. Called on every
// run_detected event; a later run simply pushes the deadline out.
func (g *Generator) NoteRun(gameID string, at time.Time) {
	g.debounceUntil[gameID] = at.Add(g.cfg.Debounce)
}

// Evaluate turns one decision cycle's inputs into at most one signal.
// pos is nil when no position is open for the game.
//
// Flatten signals bypass the debounce window: protective exits must not
// wait out an unsettled market.
func (g *Generator) Evaluate(gs *gamestate.GameState, fair float64, quote events.MarketData, pos *PositionView) (*Signal, error) {
	if gs.Finished {
		return nil, nil
	}
	now := g.now()
	secs := gs.TotalSecondsRemaining()

	if pos != nil && pos.Quantity > 0 {
		if sig := g.protectiveExit(gs, fair, quote, pos, secs, now); sig != nil {
			telemetry.Metrics.Signals.Inc()
			return sig, nil
		}
	}

	// Entry gates, cheapest first.
	if secs > g.cfg.MaxSecondsRemaining {
		return nil, nil
	}
	lead := gs.Lead()
	if lead < 0 {
		lead = -lead
	}
	if float64(lead) >= model.SafeLead(secs) {
		// Garbage time: the market is right, there is nothing to trade.
		return nil, nil
	}
	if until, ok := g.debounceUntil[gs.GameID]; ok && now.Before(until) {
		return nil, nil
	}

	side, price, prob := bestEntry(fair, quote)
	if price <= 0 {
		return nil, nil
	}
	edge := prob - float64(price)/100

	if edge < g.cfg.MinEdge {
		return nil, nil
	}
	if edge > g.cfg.MaxEdge {
		telemetry.Metrics.SuppressedEdges.Inc()
		return nil, fmt.Errorf("%w: %s %s edge %.3f at %dc", ErrSuspiciousEdge, gs.GameID, side, edge, price)
	}
	if price < g.cfg.MinPriceCents || price > g.cfg.MaxPriceCents {
		return nil, nil
	}

	telemetry.Metrics.Signals.Inc()
	return &Signal{
		GameID:           gs.GameID,
		Side:             side,
		Direction:        DirectionBuy,
		ModelProbability: prob,
		MarketPrice:      price,
		Edge:             edge,
		Reason:           "edge_entry",
		At:               now,
	}, nil
}

// protectiveExit checks stop-loss, garbage-time, and model-exit conditions
// against an open position.
func (g *Generator) protectiveExit(gs *gamestate.GameState, fair float64, quote events.MarketData, pos *PositionView, secs int, now time.Time) *Signal {
	mark, prob := markForSide(pos.Side, fair, quote)

	if mark > 0 && pos.AvgPriceCents-mark >= g.cfg.StopLossCents {
		return g.exit(gs.GameID, pos, DirectionFlatten, prob, mark, "stop_loss", now)
	}

	lead := gs.Lead()
	if lead < 0 {
		lead = -lead
	}
	if float64(lead) >= model.SafeLead(secs) {
		return g.exit(gs.GameID, pos, DirectionFlatten, prob, mark, "garbage_time", now)
	}

	// Model no longer supports the held side: exit at market rather than
	// wait for the stop.
	if mark > 0 && prob-float64(mark)/100 <= -g.cfg.MinEdge {
		return g.exit(gs.GameID, pos, DirectionSell, prob, mark, "model_exit", now)
	}
	return nil
}

func (g *Generator) exit(gameID string, pos *PositionView, dir Direction, prob float64, mark int, reason string, now time.Time) *Signal {
	return &Signal{
		GameID:           gameID,
		Side:             pos.Side,
		Direction:        dir,
		ModelProbability: prob,
		MarketPrice:      mark,
		Edge:             prob - float64(mark)/100,
		Reason:           reason,
		At:               now,
	}
}

// bestEntry picks the side with the larger positive edge. Buying no at
// price p is buying the complement: cost 100-bid, probability 1-fair.
func bestEntry(fair float64, quote events.MarketData) (Side, int, float64) {
	yesPrice := quote.YesAsk
	noPrice := 100 - quote.YesBid

	yesEdge := fair - float64(yesPrice)/100
	noEdge := (1 - fair) - float64(noPrice)/100

	if yesEdge >= noEdge {
		return SideYes, yesPrice, fair
	}
	return SideNo, noPrice, 1 - fair
}

// markForSide is the price the position could be closed at right now.
func markForSide(side Side, fair float64, quote events.MarketData) (int, float64) {
	if side == SideYes {
		return quote.YesBid, fair
	}
	return 100 - quote.YesAsk, 1 - fair
}
