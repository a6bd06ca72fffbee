package events

import "time"

// Event is the envelope that flows through the engine's ordered stream.
// Every domain event (score update, signal, order intent, fill, breaker
// trip) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	GameID    string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Feed events
	EventScoreUpdate EventType = "score_update"
	EventMarketData  EventType = "market_data"
	EventSettlement  EventType = "settlement"

	// Derived game events
	EventScoreChange EventType = "score_change"
	EventRunDetected EventType = "run_detected"

	// Trading events
	EventSignal      EventType = "signal"
	EventOrderIntent EventType = "order_intent"
	EventOrderAck    EventType = "order_ack"
	EventOrderReject EventType = "order_reject"
	EventCancelAck   EventType = "cancel_ack"
	EventFill        EventType = "fill"

	// Connectivity and risk events
	EventDisconnect  EventType = "disconnect"
	EventBreakerTrip EventType = "breaker_trip"
	EventKillSwitch  EventType = "kill_switch"
	EventTimer       EventType = "timer"
)
