package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// Watchdog is the dead man's switch: an independent goroutine that
// observes heartbeats from the engine loop and fires the kill-switch path
// if the loop stops draining. It also feeds the loop heartbeat timer
// events so an idle queue still produces beats.
type Watchdog struct {
	queue    *events.Queue
	timeout  time.Duration
	lastBeat atomic.Int64

	// onStall runs outside the engine loop; the loop may be wedged and
	// unable to process a queued kill event.
	onStall func(reason string)
}

func NewWatchdog(queue *events.Queue, timeout time.Duration, onStall func(reason string)) *Watchdog {
	w := &Watchdog{queue: queue, timeout: timeout, onStall: onStall}
	w.Beat()
	return w
}

// Beat records loop liveness. Called by the engine on every handled event.
func (w *Watchdog) Beat() {
	w.lastBeat.Store(time.Now().UnixNano())
}

// Attach registers the watchdog with the engine so handled events beat it.
func (e *Engine) Attach(w *Watchdog) { e.watchdog = w }

// Run pushes heartbeat events and checks for stalls until ctx is
// cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	pulse := time.NewTicker(w.timeout / 3)
	check := time.NewTicker(w.timeout / 2)
	defer pulse.Stop()
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pulse.C:
			w.queue.Push(events.Event{
				Type:      events.EventTimer,
				Timestamp: time.Now(),
				Payload:   events.TimerFired{Kind: events.TimerHeartbeat},
			})
		case <-check.C:
			last := time.Unix(0, w.lastBeat.Load())
			if silence := time.Since(last); silence > w.timeout {
				telemetry.Errorf("watchdog: no heartbeat for %s, engaging kill switch", silence)
				// Queued kill event for the normal path, onStall for a
				// wedged loop.
				w.queue.Push(events.Event{
					Type:      events.EventKillSwitch,
					Timestamp: time.Now(),
					Payload:   events.Disconnect{Reason: "watchdog stall"},
				})
				if w.onStall != nil {
					w.onStall("watchdog stall")
				}
			}
		}
	}
}

// RunStalenessSweeps pushes periodic staleness-sweep timers into the queue.
func RunStalenessSweeps(ctx context.Context, queue *events.Queue, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queue.Push(events.Event{
				Type:      events.EventTimer,
				Timestamp: time.Now(),
				Payload:   events.TimerFired{Kind: events.TimerStalenessSweep},
			})
		}
	}
}
