// Package risk owns aggregate exposure, positions, and the circuit-breaker
// state machine. It is the sole authority for halting trading: every order
// intent passes its gate, and all risk/connectivity failures escalate here.
package risk

import (
	"fmt"
	"time"

	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/core/signal"
	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

type BreakerLevel int

const (
	BreakerNone    BreakerLevel = 0
	BreakerGame    BreakerLevel = 1
	BreakerSession BreakerLevel = 2
	BreakerSystem  BreakerLevel = 3
	BreakerKill    BreakerLevel = 4
)

func (l BreakerLevel) String() string {
	switch l {
	case BreakerGame:
		return "game"
	case BreakerSession:
		return "session"
	case BreakerSystem:
		return "system"
	case BreakerKill:
		return "kill"
	default:
		return "none"
	}
}

// Decision is the gate's answer. Denial is a normal result, never an error
// path, so cancellation bookkeeping can never be skipped by a panic or an
// early return.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Action tells the engine what a breaker trip demands. The engine executes
// cancellations and flattens; the manager only decides.
//
//	game    -> cancel + flatten + blacklist that game
//	session -> cancel all, flatten all, halt new signals
//	system  -> cancel all, read-only mode, operator alert
//	kill    -> same as session, operator-issued
type Action struct {
	Level  BreakerLevel
	GameID string // set only for the game breaker
	Reason string
}

// AdmitRequest is an order intent as seen by the gate.
type AdmitRequest struct {
	GameID     string
	Side       string
	PriceCents int
	Quantity   int
}

type posKey struct {
	gameID string
	side   string
}

// Manager is engine-loop only: one writer, no locks. Readers elsewhere get
// immutable snapshots via PositionView.
type Manager struct {
	limits        config.RiskLimits
	bankrollCents int64

	positions map[posKey]*Position

	// Realized P&L per game, survives position close.
	gamePnL map[string]int64
	dayPnL  int64

	blacklist     map[string]bool
	cooldownUntil map[string]time.Time

	tripped   map[BreakerLevel]bool
	readOnly  bool
	halted    bool
	reconcile bool

	now func() time.Time
}

func NewManager(limits config.RiskLimits, bankrollCents int64) *Manager {
	return &Manager{
		limits:        limits,
		bankrollCents: bankrollCents,
		positions:     make(map[posKey]*Position),
		gamePnL:       make(map[string]int64),
		blacklist:     make(map[string]bool),
		cooldownUntil: make(map[string]time.Time),
		tripped:       make(map[BreakerLevel]bool),
		now:           time.Now,
	}
}

// Admit gates an order intent. Checks run cheapest-first; the first
// failing check names the denial.
func (m *Manager) Admit(req AdmitRequest) Decision {
	switch {
	case m.tripped[BreakerKill]:
		return deny("kill switch engaged")
	case m.halted:
		return deny("session breaker: trading halted")
	case m.readOnly:
		return deny("system breaker: read-only mode")
	case m.reconcile:
		return deny("reconciliation in progress")
	case m.blacklist[req.GameID]:
		return deny("game blacklisted")
	}

	if until, ok := m.cooldownUntil[req.GameID]; ok && m.now().Before(until) {
		return deny("game in post-stop cooldown")
	}

	if !m.holdsPosition(req.GameID) && m.concurrentGames() >= m.limits.MaxConcurrentGames {
		return deny(fmt.Sprintf("concurrent game limit %d reached", m.limits.MaxConcurrentGames))
	}

	key := posKey{req.GameID, req.Side}
	held := 0
	if p, ok := m.positions[key]; ok {
		held = p.Quantity
	}
	if held+req.Quantity > m.limits.MaxPositionPerGame {
		return deny(fmt.Sprintf("position cap %d exceeded", m.limits.MaxPositionPerGame))
	}

	cost := int64(req.Quantity) * int64(req.PriceCents)
	ceiling := int64(m.limits.MaxPortfolioExposure * float64(m.bankrollCents))
	if m.ExposureCents()+cost > ceiling {
		return deny("portfolio exposure ceiling reached")
	}

	return allow()
}

// ApplyFill mutates the position for a fill. sell=true realizes P&L against
// the cost basis. Returns a game-breaker action when the game's combined
// loss crosses the limit.
func (m *Manager) ApplyFill(f events.Fill, sell bool) *Action {
	key := posKey{f.GameID, f.Side}
	p, ok := m.positions[key]
	if !ok {
		p = &Position{GameID: f.GameID, Side: f.Side}
		m.positions[key] = p
	}

	if sell {
		realized := p.applySell(f.PriceCents, f.Count)
		m.gamePnL[f.GameID] += realized
		m.dayPnL += realized
	} else {
		p.applyBuy(f.PriceCents, f.Count)
	}

	if a := m.checkGameBreaker(f.GameID); a != nil {
		return a
	}
	return m.checkSessionBreaker()
}

// MarkToMarket refreshes unrealized P&L for a game's positions from the
// latest quote and re-checks the game breaker.
func (m *Manager) MarkToMarket(md events.MarketData) *Action {
	for key, p := range m.positions {
		if key.gameID != md.GameID || p.Quantity == 0 {
			continue
		}
		if p.Side == "yes" {
			p.markToMarket(md.YesBid)
		} else {
			p.markToMarket(100 - md.YesAsk)
		}
	}
	return m.checkGameBreaker(md.GameID)
}

// ApplySettlement resolves a game's positions to 100 or 0 cents, realizes
// the outcome, and closes them. May trip the session breaker.
func (m *Manager) ApplySettlement(s events.Settlement) *Action {
	for key, p := range m.positions {
		if key.gameID != s.GameID || p.Quantity == 0 {
			continue
		}
		settle := 0
		if (p.Side == "yes") == s.HomeWon {
			settle = 100
		}
		realized := p.applySell(settle, p.Quantity)
		m.gamePnL[s.GameID] += realized
		m.dayPnL += realized
	}
	delete(m.positions, posKey{s.GameID, "yes"})
	delete(m.positions, posKey{s.GameID, "no"})
	delete(m.cooldownUntil, s.GameID)
	return m.checkSessionBreaker()
}

// checkGameBreaker trips level 1 when a game's realized+unrealized loss
// exceeds the per-game limit.
func (m *Manager) checkGameBreaker(gameID string) *Action {
	if m.blacklist[gameID] {
		return nil
	}
	loss := -(m.gamePnL[gameID] + m.unrealized(gameID))
	if loss <= m.limits.MaxLossPerGameCents {
		return nil
	}
	m.blacklist[gameID] = true
	return m.trip(BreakerGame, gameID,
		fmt.Sprintf("game loss %dc over limit %dc", loss, m.limits.MaxLossPerGameCents))
}

// checkSessionBreaker trips level 2 when aggregate day P&L falls below the
// daily loss limit.
func (m *Manager) checkSessionBreaker() *Action {
	if m.halted || m.dayPnL > -m.limits.MaxLossPerDayCents {
		return nil
	}
	m.halted = true
	return m.trip(BreakerSession, "",
		fmt.Sprintf("day pnl %dc below -%dc", m.dayPnL, m.limits.MaxLossPerDayCents))
}

// TripSystem enters read-only mode: signals still computed and logged, no
// orders placed. Fired on feed staleness, sustained exchange errors, or a
// decision-latency breach.
func (m *Manager) TripSystem(reason string) *Action {
	if m.readOnly {
		return nil
	}
	m.readOnly = true
	return m.trip(BreakerSystem, "", reason)
}

// Kill is the operator kill switch. Always fires, regardless of other
// breaker state.
func (m *Manager) Kill(reason string) *Action {
	m.halted = true
	return m.trip(BreakerKill, "", reason)
}

func (m *Manager) trip(level BreakerLevel, gameID, reason string) *Action {
	m.tripped[level] = true
	telemetry.Metrics.BreakerTrips.Inc()
	telemetry.Warnf("breaker trip level=%s game=%s: %s", level, gameID, reason)
	return &Action{Level: level, GameID: gameID, Reason: reason}
}

// ResetBreaker clears one level. Manual or session rollover only.
func (m *Manager) ResetBreaker(level BreakerLevel) {
	delete(m.tripped, level)
	switch level {
	case BreakerSession, BreakerKill:
		m.halted = m.tripped[BreakerSession] || m.tripped[BreakerKill]
	case BreakerSystem:
		m.readOnly = false
	}
}

// StartCooldown blocks new entries on a game after a protective exit.
func (m *Manager) StartCooldown(gameID string, d time.Duration) {
	m.cooldownUntil[gameID] = m.now().Add(d)
}

// SetReconciling blocks order admission while local state is being diffed
// against the exchange.
func (m *Manager) SetReconciling(v bool) { m.reconcile = v }

func (m *Manager) Tripped(level BreakerLevel) bool { return m.tripped[level] }
func (m *Manager) Blacklisted(gameID string) bool  { return m.blacklist[gameID] }
func (m *Manager) DayPnLCents() int64              { return m.dayPnL }
func (m *Manager) BankrollCents() int64            { return m.bankrollCents }

// ExposureCents is the capital deployed across all open positions.
func (m *Manager) ExposureCents() int64 {
	var total int64
	for _, p := range m.positions {
		total += p.CostCents()
	}
	return total
}

// PositionView returns an immutable snapshot for the signal generator, or
// nil when the game has no open position.
func (m *Manager) PositionView(gameID string) *signal.PositionView {
	for _, side := range []string{"yes", "no"} {
		if p, ok := m.positions[posKey{gameID, side}]; ok && p.Quantity > 0 {
			return &signal.PositionView{
				Side:          signal.Side(p.Side),
				Quantity:      p.Quantity,
				AvgPriceCents: p.AvgPriceCents,
			}
		}
	}
	return nil
}

// PositionFor returns the live position record, engine-loop use only.
func (m *Manager) PositionFor(gameID, side string) (*Position, bool) {
	p, ok := m.positions[posKey{gameID, side}]
	return p, ok
}

// Positions returns all open positions, for persistence and status.
func (m *Manager) Positions() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Quantity > 0 {
			out = append(out, p)
		}
	}
	return out
}

// RestorePosition seeds a position from the persistent store or from
// reconciliation. Overwrites any local record for the (game, side).
func (m *Manager) RestorePosition(p *Position) {
	m.positions[posKey{p.GameID, p.Side}] = p
}

// RestoreBreaker seeds breaker state after a restart.
func (m *Manager) RestoreBreaker(level BreakerLevel, blacklist []string) {
	if level != BreakerNone {
		m.tripped[level] = true
		switch level {
		case BreakerSession, BreakerKill:
			m.halted = true
		case BreakerSystem:
			m.readOnly = true
		}
	}
	for _, id := range blacklist {
		m.blacklist[id] = true
	}
}

// Blacklist returns the blacklisted game ids, for persistence.
func (m *Manager) Blacklist() []string {
	out := make([]string, 0, len(m.blacklist))
	for id := range m.blacklist {
		out = append(out, id)
	}
	return out
}

func (m *Manager) holdsPosition(gameID string) bool {
	for _, side := range []string{"yes", "no"} {
		if p, ok := m.positions[posKey{gameID, side}]; ok && p.Quantity > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) concurrentGames() int {
	seen := make(map[string]bool)
	for key, p := range m.positions {
		if p.Quantity > 0 {
			seen[key.gameID] = true
		}
	}
	return len(seen)
}

func (m *Manager) unrealized(gameID string) int64 {
	var total int64
	for key, p := range m.positions {
		if key.gameID == gameID {
			total += p.UnrealizedPnLCents
		}
	}
	return total
}
