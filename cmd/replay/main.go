// Command replay drives the engine from a recorded jsonl feed with order
// dispatch disabled. Decision records are printed to stdout, one JSON
// object per line; with paper fills enabled every submit intent is acked
// and filled at its limit price so positions and PnL evolve as they would
// in a session.
//
// Input format, one record per line:
//
//	{"type":"score","score":{"game_id":"g1","home_score":52,...}}
//	{"type":"market","market":{"game_id":"g1","yes_bid":49,"yes_ask":51}}
//	{"type":"settlement","settlement":{"game_id":"g1","home_won":true,...}}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/core/engine"
	"github.com/courtsidehq/courtside/internal/core/orders"
	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

type record struct {
	Type       string              `json:"type"`
	Score      *events.ScoreUpdate `json:"score,omitempty"`
	Market     *events.MarketData  `json:"market,omitempty"`
	Settlement *events.Settlement  `json:"settlement,omitempty"`
}

func main() {
	var (
		file       = flag.String("file", "", "jsonl feed recording to replay")
		delay      = flag.Duration("delay", 0, "pause between records")
		bankroll   = flag.Int64("bankroll", 500000, "starting bankroll in cents")
		paperFills = flag.Bool("paper-fills", true, "fill every submit intent at its limit price")
		logLevel   = flag.String("log-level", "warn", "debug|info|warn|error")
	)
	flag.Parse()
	telemetry.Init(telemetry.ParseLogLevel(*logLevel))

	if *file == "" {
		telemetry.Errorf("replay: -file is required")
		os.Exit(1)
	}
	f, err := os.Open(*file)
	if err != nil {
		telemetry.Errorf("replay: %v", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := config.Load()
	limits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		telemetry.Errorf("replay: %v", err)
		os.Exit(1)
	}

	queue := events.NewQueue(4096)
	bus := events.NewBus()

	eng := engine.New(engine.Options{
		Config:   cfg,
		Limits:   limits,
		Queue:    queue,
		Bus:      bus,
		Bankroll: *bankroll,
		DryRun:   true,
	})

	out := json.NewEncoder(os.Stdout)
	printRecord := func(evt events.Event) error {
		return out.Encode(map[string]any{
			"type":    evt.Type,
			"game_id": evt.GameID,
			"at":      evt.Timestamp.Format(time.RFC3339Nano),
			"payload": evt.Payload,
		})
	}
	for _, typ := range []events.EventType{
		events.EventSignal,
		events.EventOrderIntent,
		events.EventRunDetected,
		events.EventBreakerTrip,
		events.EventSettlement,
		events.EventFill,
	} {
		bus.Subscribe(typ, printRecord)
	}

	if *paperFills {
		bus.Subscribe(events.EventOrderIntent, func(evt events.Event) error {
			intent, ok := evt.Payload.(orders.Intent)
			if !ok {
				return nil
			}
			// Pushed off-loop: this handler runs on the engine goroutine
			// and must not block on its own queue.
			switch intent.Kind {
			case orders.IntentSubmit:
				go func() {
					queue.Push(events.Event{
						Type:    events.EventOrderAck,
						GameID:  intent.GameID,
						Payload: events.OrderAck{OrderID: intent.OrderID, ExchangeID: "paper-" + intent.OrderID, Seq: intent.Seq},
					})
					queue.Push(events.Event{
						Type:   events.EventFill,
						GameID: intent.GameID,
						Payload: events.Fill{
							OrderID:    intent.OrderID,
							GameID:     intent.GameID,
							Side:       intent.Side,
							PriceCents: intent.PriceCents,
							Count:      intent.Quantity,
						},
					})
				}()
			case orders.IntentCancel:
				go queue.Push(events.Event{
					Type:    events.EventCancelAck,
					GameID:  intent.GameID,
					Payload: events.CancelAck{OrderID: intent.OrderID, Seq: intent.Seq},
				})
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(done)
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			telemetry.Warnf("replay: line %d: %v", line, err)
			continue
		}
		switch {
		case rec.Type == "score" && rec.Score != nil:
			su := *rec.Score
			if su.ReceivedAt.IsZero() {
				su.ReceivedAt = time.Now()
			}
			queue.Push(events.Event{Type: events.EventScoreUpdate, GameID: su.GameID, Timestamp: su.ReceivedAt, Payload: su})
		case rec.Type == "market" && rec.Market != nil:
			queue.Push(events.Event{Type: events.EventMarketData, GameID: rec.Market.GameID, Timestamp: time.Now(), Payload: *rec.Market})
		case rec.Type == "settlement" && rec.Settlement != nil:
			queue.Push(events.Event{Type: events.EventSettlement, GameID: rec.Settlement.GameID, Timestamp: time.Now(), Payload: *rec.Settlement})
		default:
			telemetry.Warnf("replay: line %d: unknown record type %q", line, rec.Type)
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}
	}
	if err := scanner.Err(); err != nil {
		telemetry.Errorf("replay: read: %v", err)
	}

	queue.Close()
	<-done

	telemetry.Plainf("replay: events=%d signals=%d intents=%d fills=%d day_pnl_cents=%d",
		telemetry.Metrics.EventsProcessed.Value(),
		telemetry.Metrics.Signals.Value(),
		telemetry.Metrics.OrderIntents.Value(),
		telemetry.Metrics.Fills.Value(),
		eng.Risk().DayPnLCents(),
	)
}
