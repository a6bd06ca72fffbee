// Package engine is the single consumer loop that turns feed and exchange
// events into risk-gated orders. All shared state (game states, orders,
// positions, breakers) is mutated only on this loop; I/O runs on short
// dispatch goroutines whose results re-enter as events.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/courtsidehq/courtside/internal/adapters/outbound/discord"
	"github.com/courtsidehq/courtside/internal/adapters/outbound/exchange"
	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/core/gamestate"
	"github.com/courtsidehq/courtside/internal/core/model"
	"github.com/courtsidehq/courtside/internal/core/orders"
	"github.com/courtsidehq/courtside/internal/core/risk"
	"github.com/courtsidehq/courtside/internal/core/signal"
	"github.com/courtsidehq/courtside/internal/core/sizing"
	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/persist"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// Gateway is the exchange collaborator the engine submits to and reconciles
// against.
type Gateway interface {
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Ack, error)
	CancelOrder(ctx context.Context, exchangeID string) error
	FetchPositions(ctx context.Context) ([]exchange.ExchangePosition, error)
	FetchOpenOrders(ctx context.Context) ([]exchange.ExchangeOrder, error)
}

// Recorder is the durable-state collaborator; *persist.Store satisfies it.
type Recorder interface {
	RecordOrder(persist.OrderRecord) error
	UpsertPosition(persist.PositionRecord) error
	RecordBreaker(level int, gameID, reason string) error
	RecordDecision(kind, gameID string, payload any)
}

const (
	postStopCooldown = 5 * time.Minute

	// Consecutive thresholds before the system breaker trips.
	maxLatencyBreaches  = 10
	maxExchangeFailures = 5
)

type Engine struct {
	cfg    *config.Config
	limits config.RiskLimits

	queue *events.Queue
	bus   *events.Bus

	tracker *gamestate.Tracker
	games   *gamestate.Store
	gen     *signal.Generator
	orders  *orders.Manager
	risk    *risk.Manager

	gateway  Gateway
	store    Recorder
	notifier *discord.Notifier

	// Latest quote per game; decisions need both a state and a price.
	quotes map[string]events.MarketData

	// Last accepted feed event per live game, for the staleness sweep.
	lastFeedAt map[string]time.Time

	latencyBreaches  int
	exchangeFailures int

	watchdog *Watchdog
	dryRun   bool // replay mode: full decision path, no exchange dispatch

	now func() time.Time
}

type Options struct {
	Config   *config.Config
	Limits   config.RiskLimits
	Queue    *events.Queue
	Bus      *events.Bus
	Gateway  Gateway
	Store    Recorder
	Notifier *discord.Notifier
	Bankroll int64 // cents
	DryRun   bool
}

func New(opts Options) *Engine {
	games := gamestate.NewStore()
	sigCfg := signal.DefaultConfig()
	sigCfg.MinEdge = opts.Limits.MinEdgeThreshold
	sigCfg.MaxEdge = opts.Limits.MaxEdgeThreshold
	sigCfg.Debounce = time.Duration(opts.Config.DebounceSeconds) * time.Second

	return &Engine{
		cfg:        opts.Config,
		limits:     opts.Limits,
		queue:      opts.Queue,
		bus:        opts.Bus,
		tracker:    gamestate.NewTracker(games, opts.Config.RunThresholds),
		games:      games,
		gen:        signal.NewGenerator(sigCfg),
		orders:     orders.NewManager(),
		risk:       risk.NewManager(opts.Limits, opts.Bankroll),
		gateway:    opts.Gateway,
		store:      opts.Store,
		notifier:   opts.Notifier,
		quotes:     make(map[string]events.MarketData),
		lastFeedAt: make(map[string]time.Time),
		dryRun:     opts.DryRun,
		now:        time.Now,
	}
}

// Risk exposes the risk manager for recovery seeding before Run.
func (e *Engine) Risk() *risk.Manager { return e.risk }

// Games reports how many games are currently tracked, for the session report.
func (e *Engine) Games() int { return e.games.Count() }

// Run drains the queue until it is closed or ctx is cancelled. The queue
// must be closed by the caller after producers stop.
func (e *Engine) Run(ctx context.Context) {
	telemetry.Plainf("engine: started")
	for {
		select {
		case <-ctx.Done():
			telemetry.Plainf("engine: context cancelled")
			return
		case evt, ok := <-e.queue.Events():
			if !ok {
				telemetry.Plainf("engine: queue closed")
				return
			}
			e.handle(ctx, evt)
		}
	}
}

func (e *Engine) handle(ctx context.Context, evt events.Event) {
	start := e.now()
	telemetry.Metrics.EventsProcessed.Inc()
	if e.watchdog != nil {
		e.watchdog.Beat()
	}

	switch evt.Type {
	case events.EventScoreUpdate:
		e.onScoreUpdate(ctx, evt)
	case events.EventMarketData:
		e.onMarketData(ctx, evt)
	case events.EventSettlement:
		e.onSettlement(ctx, evt)
	case events.EventOrderAck:
		e.onOrderAck(ctx, evt)
	case events.EventOrderReject:
		e.onOrderReject(ctx, evt)
	case events.EventCancelAck:
		e.onCancelAck(ctx, evt)
	case events.EventFill:
		e.onFill(ctx, evt)
	case events.EventDisconnect:
		e.onDisconnect(ctx, evt)
	case events.EventKillSwitch:
		e.executeAction(ctx, e.risk.Kill("kill switch"))
	case events.EventTimer:
		e.onTimer(ctx, evt)
	default:
		telemetry.Debugf("engine: ignoring event type %s", evt.Type)
	}

	elapsed := time.Since(start)
	telemetry.Metrics.DecisionLatency.Record(elapsed)
	e.checkLatency(ctx, elapsed)
}

// checkLatency escalates sustained slow decisions to the system breaker.
// One slow event is a GC pause; ten in a row is a sick process.
func (e *Engine) checkLatency(ctx context.Context, elapsed time.Duration) {
	if e.cfg.LatencyCeiling <= 0 {
		return
	}
	if elapsed <= e.cfg.LatencyCeiling {
		e.latencyBreaches = 0
		return
	}
	e.latencyBreaches++
	if e.latencyBreaches >= maxLatencyBreaches {
		e.latencyBreaches = 0
		e.executeAction(ctx, e.risk.TripSystem("sustained decision latency over ceiling"))
	}
}

func (e *Engine) onScoreUpdate(ctx context.Context, evt events.Event) {
	su, ok := evt.Payload.(events.ScoreUpdate)
	if !ok {
		return
	}
	telemetry.Metrics.ScoreUpdates.Inc()

	gs, derived, err := e.tracker.Apply(su)
	if err != nil {
		// Stale or invalid events are dropped and reported, never escalated.
		telemetry.Warnf("engine: score update rejected game=%s: %v", su.GameID, err)
		return
	}
	e.lastFeedAt[su.GameID] = e.now()

	for _, d := range derived {
		switch d.Type {
		case events.EventRunDetected:
			e.onRunDetected(ctx, d)
		case events.EventScoreChange:
			e.bus.Publish(d)
		}
	}

	e.decide(ctx, gs)
}

// onRunDetected opens the debounce window and pulls all resting orders for
// the game: the book is about to reprice and resting quotes are stale.
func (e *Engine) onRunDetected(ctx context.Context, evt events.Event) {
	rd, ok := evt.Payload.(events.RunDetected)
	if !ok {
		return
	}
	e.gen.NoteRun(rd.GameID, evt.Timestamp)
	e.dispatch(ctx, e.orders.CancelGame(rd.GameID))
	e.bus.Publish(evt)
	if e.store != nil {
		e.store.RecordDecision("run_detected", rd.GameID, rd)
	}
}

func (e *Engine) onMarketData(ctx context.Context, evt events.Event) {
	md, ok := evt.Payload.(events.MarketData)
	if !ok {
		return
	}
	e.quotes[md.GameID] = md

	e.dispatch(ctx, e.orders.OnMarketMove(md))

	if action := e.risk.MarkToMarket(md); action != nil {
		e.executeAction(ctx, action)
		return
	}

	if gs, ok := e.tracker.Get(md.GameID); ok {
		e.decide(ctx, gs)
	}
}

// decide runs one decision cycle: model, signal, gate, size, submit.
func (e *Engine) decide(ctx context.Context, gs *gamestate.GameState) {
	quote, ok := e.quotes[gs.GameID]
	if !ok {
		return
	}

	fair := model.WinProbability(gs)
	posView := e.risk.PositionView(gs.GameID)

	sig, err := e.gen.Evaluate(gs, fair, quote, posView)
	if err != nil {
		if errors.Is(err, signal.ErrSuspiciousEdge) {
			telemetry.Warnf("engine: %v", err)
			if e.store != nil {
				e.store.RecordDecision("suspicious_edge", gs.GameID, err.Error())
			}
			e.alertSuspiciousEdge(gs.GameID, fair, quote)
		}
		return
	}
	if sig == nil {
		return
	}

	e.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSignal,
		GameID:    sig.GameID,
		Timestamp: sig.At,
		Payload:   *sig,
	})
	if e.store != nil {
		e.store.RecordDecision("signal", sig.GameID, sig)
	}

	switch sig.Direction {
	case signal.DirectionBuy:
		e.placeEntry(ctx, sig)
	case signal.DirectionSell, signal.DirectionFlatten:
		e.placeExit(ctx, sig, posView)
	}
}

func (e *Engine) placeEntry(ctx context.Context, sig *signal.Signal) {
	var existing *sizing.Existing
	if p, ok := e.risk.PositionFor(sig.GameID, string(sig.Side)); ok && p.Quantity > 0 {
		existing = &sizing.Existing{Quantity: p.Quantity, AvgPriceCents: p.AvgPriceCents}
	}

	qty := sizing.Quantity(sig, e.risk.BankrollCents(), e.risk.ExposureCents(), sizing.Limits{
		KellyFraction:        e.limits.KellyFraction,
		MaxPositionPerGame:   e.limits.MaxPositionPerGame,
		MaxPortfolioExposure: e.limits.MaxPortfolioExposure,
	}, existing)
	if qty == 0 {
		return
	}

	decision := e.risk.Admit(risk.AdmitRequest{
		GameID:     sig.GameID,
		Side:       string(sig.Side),
		PriceCents: sig.MarketPrice,
		Quantity:   qty,
	})
	if !decision.Allowed {
		telemetry.Infof("engine: order denied game=%s: %s", sig.GameID, decision.Reason)
		if e.store != nil {
			e.store.RecordDecision("denied", sig.GameID, decision)
		}
		return
	}

	mark := sideMark(string(sig.Side), e.quotes[sig.GameID])
	e.dispatch(ctx, e.orders.Submit(orders.Request{
		GameID:     sig.GameID,
		Side:       string(sig.Side),
		Action:     "buy",
		Reason:     sig.Reason,
		PriceCents: sig.MarketPrice,
		Quantity:   qty,
		Mark:       mark,
	}))
}

// placeExit sells down an open position. Exits are risk-reducing and do not
// pass the admission gate: a tripped breaker must still be able to flatten.
func (e *Engine) placeExit(ctx context.Context, sig *signal.Signal, posView *signal.PositionView) {
	if posView == nil || posView.Quantity == 0 {
		return
	}

	// Pull resting entry orders first so a fill cannot grow the position
	// mid-exit.
	e.dispatch(ctx, e.orders.CancelGame(sig.GameID))

	e.dispatch(ctx, e.orders.Submit(orders.Request{
		GameID:     sig.GameID,
		Side:       string(sig.Side),
		Action:     "sell",
		Reason:     sig.Reason,
		PriceCents: sig.MarketPrice,
		Quantity:   posView.Quantity,
		Mark:       sig.MarketPrice,
	}))

	if sig.Reason == "stop_loss" {
		e.risk.StartCooldown(sig.GameID, postStopCooldown)
	}
}

func (e *Engine) onSettlement(ctx context.Context, evt events.Event) {
	s, ok := evt.Payload.(events.Settlement)
	if !ok {
		return
	}

	e.dispatch(ctx, e.orders.CancelGame(s.GameID))
	e.tracker.Settle(s.GameID)
	delete(e.quotes, s.GameID)
	delete(e.lastFeedAt, s.GameID)

	action := e.risk.ApplySettlement(s)
	if e.store != nil {
		e.store.UpsertPosition(persist.PositionRecord{GameID: s.GameID, Side: "yes"})
		e.store.UpsertPosition(persist.PositionRecord{GameID: s.GameID, Side: "no"})
		e.store.RecordDecision("settlement", s.GameID, s)
	}
	e.bus.Publish(evt)

	if action != nil {
		e.executeAction(ctx, action)
	}
}

func (e *Engine) onOrderAck(ctx context.Context, evt events.Event) {
	ack, ok := evt.Payload.(events.OrderAck)
	if !ok {
		return
	}
	e.exchangeFailures = 0
	if err := e.orders.HandleAck(ack); err != nil {
		telemetry.Warnf("engine: %v", err)
		return
	}

	// A breaker can trip while the order is in flight: SUBMITTED is not
	// cancellable, so the breaker's cancel pass could not reach it and any
	// flatten on its side was dropped. Now that the order is on the book,
	// take it off and re-issue the flatten.
	o, ok := e.orders.Get(ack.OrderID)
	if !ok || o.Action != "buy" || !e.breakerStopsGame(o.GameID) {
		return
	}
	telemetry.Infof("engine: order %s acked on stopped game %s, cancelling", o.ID, o.GameID)
	if intent := e.orders.RequestCancel(o.ID); intent != nil {
		e.dispatch(ctx, []orders.Intent{*intent})
	}
	if e.breakerFlattensGame(o.GameID) {
		e.flattenGame(ctx, o.GameID)
	}
}

// breakerStopsGame reports whether resting orders on the game are forbidden
// by a tripped breaker or the game's blacklist entry.
func (e *Engine) breakerStopsGame(gameID string) bool {
	return e.risk.Blacklisted(gameID) ||
		e.risk.Tripped(risk.BreakerSession) ||
		e.risk.Tripped(risk.BreakerSystem) ||
		e.risk.Tripped(risk.BreakerKill)
}

// breakerFlattensGame is the subset that also forces positions out. The
// system breaker is read-only: orders come off, positions stay.
func (e *Engine) breakerFlattensGame(gameID string) bool {
	return e.risk.Blacklisted(gameID) ||
		e.risk.Tripped(risk.BreakerSession) ||
		e.risk.Tripped(risk.BreakerKill)
}

func (e *Engine) onOrderReject(ctx context.Context, evt events.Event) {
	rej, ok := evt.Payload.(events.OrderReject)
	if !ok {
		return
	}
	if err := e.orders.HandleReject(rej); err != nil {
		telemetry.Warnf("engine: %v", err)
		return
	}
	telemetry.Metrics.OrderErrors.Inc()
	e.recordTerminal(rej.OrderID)

	// Same late-breaker window as the ack path: a rejected entry frees its
	// side, but the flatten it displaced still has to go out.
	if o, ok := e.orders.Get(rej.OrderID); ok && o.Action == "buy" && e.breakerFlattensGame(o.GameID) {
		e.flattenGame(ctx, o.GameID)
	}

	e.exchangeFailures++
	if e.exchangeFailures >= maxExchangeFailures {
		e.exchangeFailures = 0
		e.executeAction(ctx, e.risk.TripSystem("sustained exchange order failures"))
	}
}

func (e *Engine) onCancelAck(ctx context.Context, evt events.Event) {
	ca, ok := evt.Payload.(events.CancelAck)
	if !ok {
		return
	}
	e.exchangeFailures = 0
	replacement, err := e.orders.HandleCancelAck(ca)
	if err != nil {
		telemetry.Warnf("engine: %v", err)
		return
	}
	e.recordTerminal(ca.OrderID)
	if replacement != nil {
		e.dispatch(ctx, []orders.Intent{*replacement})
	}
}

func (e *Engine) onFill(ctx context.Context, evt events.Event) {
	f, ok := evt.Payload.(events.Fill)
	if !ok {
		return
	}
	telemetry.Metrics.Fills.Inc()
	e.exchangeFailures = 0

	o, found := e.lookupFillOrder(f)
	if !found {
		// A fill for an order we do not know means local state has
		// diverged; reconcile rather than guess.
		telemetry.Warnf("engine: fill for unknown order %q exchange=%s", f.OrderID, f.ExchangeID)
		e.reconcile(ctx, "unknown fill")
		return
	}
	if f.OrderID != o.ID {
		f.OrderID = o.ID
	}
	if !o.CreatedAt.IsZero() {
		telemetry.Metrics.OrderE2ELatency.Record(e.now().Sub(o.CreatedAt))
	}

	if _, err := e.orders.HandleFill(f); err != nil {
		telemetry.Warnf("engine: %v", err)
	}

	action := e.risk.ApplyFill(f, o.Action == "sell")
	e.persistPosition(f.GameID, f.Side)
	if o.State.Terminal() {
		e.recordTerminal(o.ID)
	}

	e.bus.Publish(evt)
	if e.store != nil {
		e.store.RecordDecision("fill", f.GameID, f)
	}

	if action != nil {
		e.executeAction(ctx, action)
	}
}

// lookupFillOrder resolves a fill to a local order by local id first, then
// exchange id.
func (e *Engine) lookupFillOrder(f events.Fill) (*orders.Order, bool) {
	if f.OrderID != "" {
		if o, ok := e.orders.Get(f.OrderID); ok {
			return o, true
		}
	}
	if f.ExchangeID != "" {
		for _, o := range e.orders.OpenOrders() {
			if o.ExchangeID == f.ExchangeID {
				return o, true
			}
		}
	}
	return nil, false
}

func (e *Engine) onDisconnect(ctx context.Context, evt events.Event) {
	d, _ := evt.Payload.(events.Disconnect)
	telemetry.Errorf("engine: exchange disconnected: %s", d.Reason)
	e.reconcile(ctx, "disconnect: "+d.Reason)
}

func (e *Engine) onTimer(ctx context.Context, evt events.Event) {
	tf, ok := evt.Payload.(events.TimerFired)
	if !ok {
		return
	}
	switch tf.Kind {
	case events.TimerStalenessSweep:
		e.sweepStaleFeeds(ctx)
	case events.TimerHeartbeat:
		// Heartbeat events exist to prove the loop is draining; Beat
		// already ran in handle.
	}
}

// sweepStaleFeeds trips the system breaker when any live game's feed has
// gone quiet beyond the staleness timeout.
func (e *Engine) sweepStaleFeeds(ctx context.Context) {
	now := e.now()
	for _, gs := range e.games.Live() {
		last, ok := e.lastFeedAt[gs.GameID]
		if !ok || gs.Finished {
			continue
		}
		if now.Sub(last) > e.cfg.StalenessTimeout {
			telemetry.Metrics.StaleEvents.Inc()
			e.executeAction(ctx, e.risk.TripSystem("feed stale for "+gs.GameID))
			return
		}
	}
}

// executeAction carries out a breaker decision: cancellations, flattens,
// persistence, operator alert.
func (e *Engine) executeAction(ctx context.Context, action *risk.Action) {
	if action == nil {
		return
	}

	switch action.Level {
	case risk.BreakerGame:
		e.dispatch(ctx, e.orders.CancelGame(action.GameID))
		e.flattenGame(ctx, action.GameID)
	case risk.BreakerSession, risk.BreakerKill:
		e.dispatch(ctx, e.orders.CancelAll())
		for _, p := range e.risk.Positions() {
			e.flattenGame(ctx, p.GameID)
		}
	case risk.BreakerSystem:
		// Read-only: cancel everything, keep positions, keep computing.
		e.dispatch(ctx, e.orders.CancelAll())
	}

	if e.store != nil {
		if err := e.store.RecordBreaker(int(action.Level), action.GameID, action.Reason); err != nil {
			telemetry.Errorf("engine: record breaker: %v", err)
		}
	}

	evt := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventBreakerTrip,
		GameID:    action.GameID,
		Timestamp: e.now(),
		Payload: events.BreakerTrip{
			Level:  int(action.Level),
			GameID: action.GameID,
			Reason: action.Reason,
		},
	}
	e.bus.Publish(evt)

	if e.notifier != nil && e.notifier.Enabled() {
		level, gameID, reason, pnl := action.Level.String(), action.GameID, action.Reason, e.risk.DayPnLCents()
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.notifier.BreakerTrip(alertCtx, level, gameID, reason, pnl); err != nil {
				telemetry.Warnf("engine: breaker alert: %v", err)
			}
		}()
	}
}

// flattenGame submits market-priced sells for each open position in a game.
func (e *Engine) flattenGame(ctx context.Context, gameID string) {
	quote, haveQuote := e.quotes[gameID]
	for _, side := range []string{"yes", "no"} {
		p, ok := e.risk.PositionFor(gameID, side)
		if !ok || p.Quantity == 0 {
			continue
		}
		price := p.AvgPriceCents
		if haveQuote {
			price = sideMark(side, quote)
		}
		if price <= 0 {
			price = 1
		}
		e.dispatch(ctx, e.orders.Submit(orders.Request{
			GameID:     gameID,
			Side:       side,
			Action:     "sell",
			Reason:     "breaker_flatten",
			PriceCents: price,
			Quantity:   p.Quantity,
			Mark:       price,
		}))
	}
}

func (e *Engine) recordTerminal(orderID string) {
	if e.store == nil {
		return
	}
	o, ok := e.orders.Get(orderID)
	if !ok {
		return
	}
	if err := e.store.RecordOrder(persist.OrderRecord{
		OrderID:    o.ID,
		ExchangeID: o.ExchangeID,
		GameID:     o.GameID,
		Side:       o.Side,
		PriceCents: o.PriceCents,
		Quantity:   o.Quantity,
		FilledQty:  o.FilledQty,
		State:      string(o.State),
	}); err != nil {
		telemetry.Errorf("engine: record order: %v", err)
	}
}

func (e *Engine) persistPosition(gameID, side string) {
	if e.store == nil {
		return
	}
	rec := persist.PositionRecord{GameID: gameID, Side: side}
	if p, ok := e.risk.PositionFor(gameID, side); ok {
		rec.Quantity = p.Quantity
		rec.AvgPriceCents = p.AvgPriceCents
		rec.RealizedPnLCents = p.RealizedPnLCents
	}
	if err := e.store.UpsertPosition(rec); err != nil {
		telemetry.Errorf("engine: persist position: %v", err)
	}
}

// dispatch executes intents against the exchange off-loop. Results re-enter
// the queue as ack/reject/cancel-ack events; the loop never blocks on I/O.
func (e *Engine) dispatch(ctx context.Context, intents []orders.Intent) {
	for _, intent := range intents {
		e.bus.Publish(events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventOrderIntent,
			GameID:    intent.GameID,
			Timestamp: e.now(),
			Payload:   intent,
		})
		if e.dryRun || e.gateway == nil {
			continue
		}
		go e.execute(ctx, intent)
	}
}

func (e *Engine) execute(ctx context.Context, intent orders.Intent) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch intent.Kind {
	case orders.IntentSubmit:
		ack, err := e.gateway.SubmitOrder(callCtx, exchange.OrderRequest{
			ClientID:   intent.OrderID,
			GameID:     intent.GameID,
			Action:     intent.Action,
			Side:       intent.Side,
			PriceCents: intent.PriceCents,
			Count:      intent.Quantity,
		})
		if err != nil {
			var rej *exchange.RejectError
			reason := "transport error: " + err.Error()
			if errors.As(err, &rej) {
				reason = rej.Body
			}
			e.queue.Push(events.Event{
				Type:      events.EventOrderReject,
				GameID:    intent.GameID,
				Timestamp: time.Now(),
				Payload:   events.OrderReject{OrderID: intent.OrderID, Seq: intent.Seq, Reason: reason},
			})
			return
		}
		e.queue.Push(events.Event{
			Type:      events.EventOrderAck,
			GameID:    intent.GameID,
			Timestamp: time.Now(),
			Payload:   events.OrderAck{OrderID: intent.OrderID, ExchangeID: ack.ExchangeID, Seq: intent.Seq},
		})

	case orders.IntentCancel:
		if err := e.gateway.CancelOrder(callCtx, intent.ExchangeID); err != nil {
			// The order stays CANCEL_REQUESTED; reconciliation resolves
			// it if the exchange view has moved on.
			telemetry.Warnf("engine: cancel %s failed: %v", intent.OrderID, err)
			return
		}
		e.queue.Push(events.Event{
			Type:      events.EventCancelAck,
			GameID:    intent.GameID,
			Timestamp: time.Now(),
			Payload:   events.CancelAck{OrderID: intent.OrderID, Seq: intent.Seq},
		})
	}
}

// alertSuspiciousEdge notifies the operator off-loop; suspect feed data is
// an incident, not just a log line.
func (e *Engine) alertSuspiciousEdge(gameID string, fair float64, quote events.MarketData) {
	if e.notifier == nil || !e.notifier.Enabled() {
		return
	}
	edge := fair - float64(quote.YesAsk)/100
	go func() {
		alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.SuspiciousEdge(alertCtx, gameID, edge, quote.YesAsk); err != nil {
			telemetry.Warnf("engine: edge alert: %v", err)
		}
	}()
}

func sideMark(side string, md events.MarketData) int {
	if side == "yes" {
		return md.YesBid
	}
	return 100 - md.YesAsk
}
