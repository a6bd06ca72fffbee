// Package orders owns the per-order state machine and the open-order index.
// It produces intents; the engine executes them against the exchange and
// feeds the resulting acks, rejects, fills, and cancel acks back in.
package orders

import (
	"fmt"
	"time"
)

type State string

const (
	StatePending         State = "PENDING"
	StateSubmitted       State = "SUBMITTED"
	StateOpen            State = "OPEN"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateCancelRequested State = "CANCEL_REQUESTED"
	StateFilled          State = "FILLED"
	StateCancelled       State = "CANCELLED"
	StateRejected        State = "REJECTED"
)

// transitions is the full legal edge set. A fill can race a cancel: the
// fill wins and the order still reaches FILLED from CANCEL_REQUESTED.
var transitions = map[State][]State{
	StatePending:         {StateSubmitted},
	StateSubmitted:       {StateOpen, StateRejected},
	StateOpen:            {StatePartiallyFilled, StateCancelRequested, StateFilled},
	StatePartiallyFilled: {StatePartiallyFilled, StateCancelRequested, StateFilled},
	StateCancelRequested: {StateCancelled, StateFilled},
}

func (s State) Terminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateRejected
}

// Live reports whether the order can still trade or be cancelled.
func (s State) Live() bool {
	return s == StateOpen || s == StatePartiallyFilled
}

type Order struct {
	ID         string // local uuid, assigned at creation
	ExchangeID string // attached on ack
	GameID     string
	Side       string // "yes" or "no"
	Action     string // "buy" or "sell"
	Reason     string // signal reason that produced the order
	PriceCents int
	Quantity   int
	FilledQty  int
	State      State
	Seq        int // intent sequence; out-of-order acks are discarded

	CreatedAt        time.Time
	LastTransitionAt time.Time

	// Auto-cancel bookkeeping: the side's best price when the order was
	// placed on the book.
	placedAt   time.Time
	placedMark int
}

// transition moves the order along a legal edge or reports the violation.
// Illegal transitions are bugs, not market conditions; the caller logs and
// drops the event.
func (o *Order) transition(to State, now time.Time) error {
	for _, next := range transitions[o.State] {
		if next == to {
			o.State = to
			o.LastTransitionAt = now
			return nil
		}
	}
	return fmt.Errorf("order %s: illegal transition %s -> %s", o.ID, o.State, to)
}
