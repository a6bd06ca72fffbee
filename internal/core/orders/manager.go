package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

type IntentKind string

const (
	IntentSubmit IntentKind = "submit"
	IntentCancel IntentKind = "cancel"
)

// Intent is an instruction for the engine to execute against the exchange.
// The manager never does I/O itself.
type Intent struct {
	Kind       IntentKind
	OrderID    string
	ExchangeID string // set on cancel intents
	GameID     string
	Side       string
	Action     string
	PriceCents int
	Quantity   int
	Seq        int
}

// Request carries everything needed to create an order.
type Request struct {
	GameID     string
	Side       string
	Action     string // "buy" or "sell"
	Reason     string
	PriceCents int
	Quantity   int
	Mark       int // side's best price at submission, for the adverse-move guard
}

type sideKey struct {
	gameID string
	side   string
}

// Manager owns all order state machines. Engine-loop only: no locks, no
// goroutines, no clock reads outside the injected now func.
type Manager struct {
	orders map[string]*Order

	// At most one non-terminal order per (game, side). Holds in-flight
	// (SUBMITTED) orders too, so a second signal cannot race the first ack.
	openBySide map[sideKey]string

	// Replacement orders queued behind a cancel, keyed by the order id
	// being cancelled. Submitted when the cancel ack lands.
	replacements map[string]*Order

	seq int
	now func() time.Time

	adverseMoveCents int
	adverseWindow    time.Duration
}

func NewManager() *Manager {
	return &Manager{
		orders:           make(map[string]*Order),
		openBySide:       make(map[sideKey]string),
		replacements:     make(map[string]*Order),
		now:              time.Now,
		adverseMoveCents: 2,
		adverseWindow:    5 * time.Second,
	}
}

func (m *Manager) nextSeq() int {
	m.seq++
	return m.seq
}

// Submit creates an order for (game, side) and returns the intents to
// execute. If an order is already resting on that side it is cancelled
// first and the new order queued behind the cancel ack. If the previous
// order is still in flight (no ack yet) the signal is dropped; the next
// decision cycle re-evaluates.
func (m *Manager) Submit(req Request) []Intent {
	key := sideKey{req.GameID, req.Side}
	if existingID, ok := m.openBySide[key]; ok {
		existing := m.orders[existingID]
		switch {
		case existing.State == StateSubmitted:
			// Still awaiting the first ack; nothing to cancel yet. Drop
			// the signal, the next cycle re-evaluates.
			return nil
		case existing.State == StateCancelRequested:
			// Cancel already in flight; queue behind it.
			m.replacements[existingID] = m.newOrder(req)
			return nil
		case existing.State.Live():
			m.replacements[existingID] = m.newOrder(req)
			if cancel := m.RequestCancel(existingID); cancel != nil {
				return []Intent{*cancel}
			}
			return nil
		}
	}

	o := m.newOrder(req)
	return []Intent{m.send(o)}
}

func (m *Manager) newOrder(req Request) *Order {
	action := req.Action
	if action == "" {
		action = "buy"
	}
	return &Order{
		ID:         uuid.NewString(),
		GameID:     req.GameID,
		Side:       req.Side,
		Action:     action,
		Reason:     req.Reason,
		PriceCents: req.PriceCents,
		Quantity:   req.Quantity,
		State:      StatePending,
		CreatedAt:  m.now(),
		placedMark: req.Mark,
	}
}

// send moves a pending order to SUBMITTED, indexes it, and builds its
// submit intent.
func (m *Manager) send(o *Order) Intent {
	now := m.now()
	_ = o.transition(StateSubmitted, now)
	o.Seq = m.nextSeq()
	m.orders[o.ID] = o
	m.openBySide[sideKey{o.GameID, o.Side}] = o.ID
	telemetry.Metrics.OrderIntents.Inc()
	return Intent{
		Kind:       IntentSubmit,
		OrderID:    o.ID,
		GameID:     o.GameID,
		Side:       o.Side,
		Action:     o.Action,
		PriceCents: o.PriceCents,
		Quantity:   o.Quantity,
		Seq:        o.Seq,
	}
}

// HandleAck attaches the exchange id and opens the order. Acks whose
// sequence does not match the order's latest intent are stale and dropped.
func (m *Manager) HandleAck(ack events.OrderAck) error {
	o, ok := m.orders[ack.OrderID]
	if !ok {
		return fmt.Errorf("ack for unknown order %s", ack.OrderID)
	}
	if ack.Seq != o.Seq {
		return fmt.Errorf("order %s: stale ack seq %d, current %d", o.ID, ack.Seq, o.Seq)
	}
	if err := o.transition(StateOpen, m.now()); err != nil {
		return err
	}
	o.ExchangeID = ack.ExchangeID
	o.placedAt = m.now()
	return nil
}

// HandleReject terminates a submitted order.
func (m *Manager) HandleReject(rej events.OrderReject) error {
	o, ok := m.orders[rej.OrderID]
	if !ok {
		return fmt.Errorf("reject for unknown order %s", rej.OrderID)
	}
	if rej.Seq != o.Seq {
		return fmt.Errorf("order %s: stale reject seq %d, current %d", o.ID, rej.Seq, o.Seq)
	}
	if err := o.transition(StateRejected, m.now()); err != nil {
		return err
	}
	m.unindex(o)
	return nil
}

// HandleFill applies a fill. A fill racing a cancel wins: the order reaches
// FILLED and any queued replacement is dropped, the position is already on.
func (m *Manager) HandleFill(f events.Fill) (*Order, error) {
	o, ok := m.orders[f.OrderID]
	if !ok {
		return nil, fmt.Errorf("fill for unknown order %s", f.OrderID)
	}
	o.FilledQty += f.Count

	now := m.now()
	if o.FilledQty >= o.Quantity {
		if err := o.transition(StateFilled, now); err != nil {
			return o, err
		}
		m.unindex(o)
		delete(m.replacements, o.ID)
		return o, nil
	}
	if o.State == StateCancelRequested {
		// Partial fill while the cancel is in flight; state holds until
		// the cancel ack or the completing fill arrives.
		return o, nil
	}
	return o, o.transition(StatePartiallyFilled, now)
}

// RequestCancel issues a cancel for a live order. Idempotent: a second
// request for the same order, or one for an already-terminal order, is a
// no-op returning nil.
func (m *Manager) RequestCancel(orderID string) *Intent {
	o, ok := m.orders[orderID]
	if !ok || !o.State.Live() {
		return nil
	}
	if err := o.transition(StateCancelRequested, m.now()); err != nil {
		return nil
	}
	o.Seq = m.nextSeq()
	telemetry.Metrics.OrderIntents.Inc()
	return &Intent{
		Kind:       IntentCancel,
		OrderID:    o.ID,
		ExchangeID: o.ExchangeID,
		GameID:     o.GameID,
		Side:       o.Side,
		Seq:        o.Seq,
	}
}

// HandleCancelAck terminates the cancelled order and releases its queued
// replacement, if one survived.
func (m *Manager) HandleCancelAck(ca events.CancelAck) (*Intent, error) {
	o, ok := m.orders[ca.OrderID]
	if !ok {
		return nil, fmt.Errorf("cancel ack for unknown order %s", ca.OrderID)
	}
	if ca.Seq != o.Seq {
		return nil, fmt.Errorf("order %s: stale cancel ack seq %d, current %d", o.ID, ca.Seq, o.Seq)
	}
	if err := o.transition(StateCancelled, m.now()); err != nil {
		return nil, err
	}
	m.unindex(o)

	if replacement, ok := m.replacements[o.ID]; ok {
		delete(m.replacements, o.ID)
		intent := m.send(replacement)
		return &intent, nil
	}
	return nil, nil
}

// OnMarketMove applies the auto-cancel policy: a resting order whose side's
// best price has dropped adverseMoveCents or more within adverseWindow of
// placement is cancelled before it gets adversely selected.
func (m *Manager) OnMarketMove(md events.MarketData) []Intent {
	now := m.now()
	var intents []Intent
	for _, o := range m.orders {
		if o.GameID != md.GameID || !o.State.Live() {
			continue
		}
		if now.Sub(o.placedAt) > m.adverseWindow {
			continue
		}
		current := sideMark(o.Side, md)
		if o.placedMark-current >= m.adverseMoveCents {
			if intent := m.RequestCancel(o.ID); intent != nil {
				intents = append(intents, *intent)
			}
		}
	}
	return intents
}

// CancelGame cancels every live order for a game and drops its queued
// replacements. Fired on run_detected and on the game breaker.
func (m *Manager) CancelGame(gameID string) []Intent {
	var intents []Intent
	for _, o := range m.orders {
		if o.GameID != gameID {
			continue
		}
		delete(m.replacements, o.ID)
		if intent := m.RequestCancel(o.ID); intent != nil {
			intents = append(intents, *intent)
		}
	}
	return intents
}

// CancelAll cancels every live order system-wide.
func (m *Manager) CancelAll() []Intent {
	var intents []Intent
	for id := range m.orders {
		delete(m.replacements, id)
		if intent := m.RequestCancel(id); intent != nil {
			intents = append(intents, *intent)
		}
	}
	return intents
}

// OpenOrders returns every non-terminal order.
func (m *Manager) OpenOrders() []*Order {
	var out []*Order
	for _, o := range m.orders {
		if !o.State.Terminal() {
			out = append(out, o)
		}
	}
	return out
}

// OpenFor returns the live or in-flight order on (game, side), if any.
func (m *Manager) OpenFor(gameID, side string) (*Order, bool) {
	id, ok := m.openBySide[sideKey{gameID, side}]
	if !ok {
		return nil, false
	}
	return m.orders[id], true
}

func (m *Manager) Get(orderID string) (*Order, bool) {
	o, ok := m.orders[orderID]
	return o, ok
}

// Adopt registers an exchange-reported order unknown to local state, used
// by reconciliation. The order enters directly in OPEN.
func (m *Manager) Adopt(o *Order) {
	o.State = StateOpen
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Action == "" {
		o.Action = "buy"
	}
	m.orders[o.ID] = o
	m.openBySide[sideKey{o.GameID, o.Side}] = o.ID
}

// Forget drops a non-terminal order without an exchange round trip, used by
// reconciliation when the exchange does not know the order.
func (m *Manager) Forget(orderID string) {
	o, ok := m.orders[orderID]
	if !ok {
		return
	}
	o.State = StateCancelled
	m.unindex(o)
	delete(m.replacements, orderID)
}

func (m *Manager) unindex(o *Order) {
	key := sideKey{o.GameID, o.Side}
	if m.openBySide[key] == o.ID {
		delete(m.openBySide, key)
	}
}

func sideMark(side string, md events.MarketData) int {
	if side == "yes" {
		return md.YesBid
	}
	return 100 - md.YesAsk
}
