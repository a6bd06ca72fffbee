package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtsidehq/courtside/internal/adapters/inbound/scorefeed"
	"github.com/courtsidehq/courtside/internal/adapters/outbound/discord"
	"github.com/courtsidehq/courtside/internal/adapters/outbound/exchange"
	"github.com/courtsidehq/courtside/internal/config"
	"github.com/courtsidehq/courtside/internal/core/engine"
	"github.com/courtsidehq/courtside/internal/core/risk"
	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/persist"
	"github.com/courtsidehq/courtside/internal/statusfeed"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting courtside")

	// ── Risk limits ─────────────────────────────────────────────
	limits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		telemetry.Errorf("Failed to load risk limits: %v", err)
		os.Exit(1)
	}

	if cfg.ExchangeAPIKey == "" {
		telemetry.Errorf("Exchange credentials missing — set EXCHANGE_API_KEY in .env")
		os.Exit(1)
	}

	// ── Durable store + session recovery state ──────────────────
	store, err := persist.Open(cfg.StorePath)
	if err != nil {
		telemetry.Errorf("Failed to open store %q: %v", cfg.StorePath, err)
		os.Exit(1)
	}

	queue := events.NewQueue(1024)
	bus := events.NewBus()

	gateway := exchange.NewClient(cfg.ExchangeBaseURL, cfg.ExchangeAPIKey)
	notifier := discord.NewNotifier(cfg.DiscordWebhookURL)

	eng := engine.New(engine.Options{
		Config:   cfg,
		Limits:   limits,
		Queue:    queue,
		Bus:      bus,
		Gateway:  gateway,
		Store:    store,
		Notifier: notifier,
		Bankroll: cfg.BankrollCents,
	})

	// ── Recovery: seed positions and breaker state, then reconcile
	// against the exchange before any trading resumes.
	recs, err := store.LoadPositions()
	if err != nil {
		telemetry.Errorf("Failed to load positions: %v", err)
		os.Exit(1)
	}
	for _, r := range recs {
		eng.Risk().RestorePosition(&risk.Position{
			GameID:           r.GameID,
			Side:             r.Side,
			Quantity:         r.Quantity,
			AvgPriceCents:    r.AvgPriceCents,
			RealizedPnLCents: r.RealizedPnLCents,
		})
	}
	level, blacklist, err := store.LoadBreakerState()
	if err != nil {
		telemetry.Errorf("Failed to load breaker state: %v", err)
		os.Exit(1)
	}
	if level > 1 || len(blacklist) > 0 {
		telemetry.Warnf("Restoring breaker state  level=%d blacklisted=%d", level, len(blacklist))
		eng.Risk().RestoreBreaker(risk.BreakerLevel(level), blacklist)
	}
	telemetry.Infof("Recovered %d positions from %q", len(recs), cfg.StorePath)

	queue.Push(events.Event{
		Type:      events.EventDisconnect,
		Timestamp: time.Now(),
		Payload:   events.Disconnect{Reason: "startup"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Status feed ─────────────────────────────────────────────
	sf := statusfeed.NewServer(bus)
	go func() {
		if err := sf.ListenAndServe(cfg.StatusFeedAddr); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("Status feed: %v", err)
		}
	}()
	telemetry.Infof("Status feed listening on %q", cfg.StatusFeedAddr)

	// ── Score feed webhook server ───────────────────────────────
	mux := http.NewServeMux()
	scorefeed.NewHandler(queue).RegisterRoutes(mux)
	feedServer := &http.Server{
		Addr:         cfg.FeedAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := feedServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("Feed server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Feed listening on %q", cfg.FeedAddr)

	// ── Watchdog + timers ───────────────────────────────────────
	wd := engine.NewWatchdog(queue, cfg.WatchdogTimeout, func(reason string) {
		// The loop is wedged; a queued kill event will never drain. Die
		// and let the supervisor restart into reconciliation.
		telemetry.Errorf("Watchdog: %s — exiting", reason)
		os.Exit(1)
	})
	eng.Attach(wd)
	go wd.Run(ctx)
	go engine.RunStalenessSweeps(ctx, queue, 15*time.Second)

	// ── Exchange stream ─────────────────────────────────────────
	stream := exchange.NewStream(cfg.ExchangeWSURL, cfg.ExchangeAPIKey, queue)
	go func() {
		if err := stream.Run(ctx); err != nil {
			telemetry.Warnf("Exchange stream: %v", err)
		}
	}()

	// ── Engine loop ─────────────────────────────────────────────
	engineDone := make(chan struct{})
	go func() {
		eng.Run(context.Background()) // returns when the queue closes
		close(engineDone)
	}()

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	feedServer.Shutdown(shutdownCtx)

	// Producers are stopped; let the engine drain what remains.
	queue.Close()
	select {
	case <-engineDone:
	case <-time.After(10 * time.Second):
		telemetry.Warnf("Engine did not drain in time")
	}

	if notifier.Enabled() {
		reportCtx, reportCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := notifier.SessionReport(reportCtx, eng.Games(),
			uint64(telemetry.Metrics.Fills.Value()), eng.Risk().DayPnLCents()); err != nil {
			telemetry.Warnf("Session report: %v", err)
		}
		reportCancel()
	}

	store.Close()

	telemetry.Infof("Shutdown complete  events=%d  scores=%d  signals=%d  fills=%d  errors=%d",
		telemetry.Metrics.EventsProcessed.Value(),
		telemetry.Metrics.ScoreUpdates.Value(),
		telemetry.Metrics.Signals.Value(),
		telemetry.Metrics.Fills.Value(),
		telemetry.Metrics.OrderErrors.Value(),
	)
}
