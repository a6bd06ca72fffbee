package events

import "time"

// ScoreUpdate is the feed-facing score event. Immutable after creation:
// the tracker validates it and either applies it or rejects it whole.
type ScoreUpdate struct {
	GameID   string `json:"game_id"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`

	HomeScore    int `json:"home_score"`
	AwayScore    int `json:"away_score"`
	PeriodIndex  int `json:"period"`        // 1, 2 = halves; 3+ = overtimes
	ClockSeconds int `json:"clock_seconds"` // time left in the current period

	Possession   string `json:"possession,omitempty"` // "home", "away", ""
	HomeFouls    int    `json:"home_fouls,omitempty"`
	AwayFouls    int    `json:"away_fouls,omitempty"`
	HomeTimeouts int    `json:"home_timeouts,omitempty"`
	AwayTimeouts int    `json:"away_timeouts,omitempty"`

	// Pre-game prior, present on the first event for a game.
	Spread           float64 `json:"spread,omitempty"`            // positive = home favored
	EfficiencyMargin float64 `json:"efficiency_margin,omitempty"` // rating-based fallback prior

	ReceivedAt time.Time `json:"received_at"`
}

// MarketData is the latest quote for a game's yes contract, in cents.
type MarketData struct {
	GameID string `json:"game_id"`
	YesBid int    `json:"yes_bid"`
	YesAsk int    `json:"yes_ask"`
	Volume int64  `json:"volume,omitempty"`
}

// RunDetected is emitted by the tracker when a scoring run crosses a
// threshold tier. One emission per tier per run.
type RunDetected struct {
	GameID string `json:"game_id"`
	Team   string `json:"team"` // "home" or "away"
	Run    int    `json:"run"`  // unanswered points, always positive
	Tier   int    `json:"tier"` // threshold crossed (8, 10, 15)
}

// Settlement is pushed by the feed when a game resolves.
type Settlement struct {
	GameID    string `json:"game_id"`
	HomeWon   bool   `json:"home_won"`
	FinalHome int    `json:"final_home"`
	FinalAway int    `json:"final_away"`
}

// OrderAck is the exchange's acknowledgment of a submit intent.
// Seq echoes the intent's sequence number; stale acks are discarded.
type OrderAck struct {
	OrderID    string `json:"order_id"` // local id
	ExchangeID string `json:"exchange_id"`
	Seq        int    `json:"seq"`
}

// OrderReject is a terminal negative response to a submit intent.
type OrderReject struct {
	OrderID string `json:"order_id"`
	Seq     int    `json:"seq"`
	Reason  string `json:"reason"`
}

// CancelAck confirms an exchange-side cancellation.
type CancelAck struct {
	OrderID string `json:"order_id"`
	Seq     int    `json:"seq"`
}

// Fill reports contracts traded against one of our orders.
type Fill struct {
	OrderID    string `json:"order_id"` // local id; empty for unknown fills found in reconciliation
	ExchangeID string `json:"exchange_id"`
	GameID     string `json:"game_id"`
	Side       string `json:"side"` // "yes" or "no"
	PriceCents int    `json:"price_cents"`
	Count      int    `json:"count"`
}

// Disconnect signals loss of the exchange session. All open orders are
// presumed at risk until reconciliation completes.
type Disconnect struct {
	Reason string `json:"reason"`
}

// BreakerTrip announces a circuit breaker transition.
type BreakerTrip struct {
	Level  int    `json:"level"` // 1=game 2=session 3=system 4=kill
	GameID string `json:"game_id,omitempty"`
	Reason string `json:"reason"`
}

// TimerKind distinguishes scheduled timer events.
type TimerKind string

const (
	TimerStalenessSweep TimerKind = "staleness_sweep"
	TimerHeartbeat      TimerKind = "heartbeat"
)

// TimerFired is pushed into the queue when a scheduled timer expires.
type TimerFired struct {
	Kind TimerKind `json:"kind"`
}
