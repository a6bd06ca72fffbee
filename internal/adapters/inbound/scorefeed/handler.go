// Package scorefeed receives live-game webhook POSTs and pushes them into
// the engine's event queue.
package scorefeed

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// Handler parses feed POSTs into typed events.
//
// Routes:
//
//	POST /feed/score      -> events.ScoreUpdate
//	POST /feed/market     -> events.MarketData
//	POST /feed/settlement -> events.Settlement
//	GET  /health          -> 200 OK
type Handler struct {
	queue *events.Queue
}

func NewHandler(queue *events.Queue) *Handler {
	return &Handler{queue: queue}
}

// RegisterRoutes wires HTTP routes onto the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /feed/score", h.handleScore)
	mux.HandleFunc("POST /feed/market", h.handleMarket)
	mux.HandleFunc("POST /feed/settlement", h.handleSettlement)
	mux.HandleFunc("GET /health", h.healthCheck)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	telemetry.Metrics.FeedPosts.Inc()

	var su events.ScoreUpdate
	if !h.decode(w, r, &su) {
		return
	}
	if su.GameID == "" {
		telemetry.Metrics.FeedParseErrors.Inc()
		http.Error(w, "missing game_id", http.StatusBadRequest)
		return
	}
	su.ReceivedAt = time.Now()

	// Respond before the push: a full queue must backpressure the feed,
	// not hold its HTTP connection open.
	w.WriteHeader(http.StatusOK)

	telemetry.Infof("scorefeed: %s  %s vs %s  %d-%d  p%d %ds",
		su.GameID, su.AwayTeam, su.HomeTeam, su.AwayScore, su.HomeScore, su.PeriodIndex, su.ClockSeconds)
	h.queue.Push(events.Event{
		Type:      events.EventScoreUpdate,
		GameID:    su.GameID,
		Timestamp: su.ReceivedAt,
		Payload:   su,
	})
}

func (h *Handler) handleMarket(w http.ResponseWriter, r *http.Request) {
	telemetry.Metrics.FeedPosts.Inc()

	var md events.MarketData
	if !h.decode(w, r, &md) {
		return
	}
	if md.GameID == "" || md.YesBid <= 0 || md.YesAsk <= 0 {
		telemetry.Metrics.FeedParseErrors.Inc()
		http.Error(w, "bad quote", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	h.queue.Push(events.Event{
		Type:      events.EventMarketData,
		GameID:    md.GameID,
		Timestamp: time.Now(),
		Payload:   md,
	})
}

func (h *Handler) handleSettlement(w http.ResponseWriter, r *http.Request) {
	telemetry.Metrics.FeedPosts.Inc()

	var s events.Settlement
	if !h.decode(w, r, &s) {
		return
	}
	if s.GameID == "" {
		telemetry.Metrics.FeedParseErrors.Inc()
		http.Error(w, "missing game_id", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	telemetry.Infof("scorefeed: %s settled  final %d-%d", s.GameID, s.FinalAway, s.FinalHome)
	h.queue.Push(events.Event{
		Type:      events.EventSettlement,
		GameID:    s.GameID,
		Timestamp: time.Now(),
		Payload:   s,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := h.readBody(r)
	if err != nil {
		telemetry.Metrics.FeedParseErrors.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		telemetry.Metrics.FeedParseErrors.Inc()
		telemetry.Warnf("scorefeed: JSON parse error: %v", err)
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// readBody handles gzip-compressed and plain payloads. Some feed relays
// gzip without setting Content-Encoding; detected by magic bytes.
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	defer r.Body.Close()

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		defer gz.Close()
		reader = gz
	} else {
		buf := make([]byte, 2)
		n, err := io.ReadFull(r.Body, buf)
		if err != nil && n == 0 {
			return nil, fmt.Errorf("empty body")
		}
		combined := io.MultiReader(strings.NewReader(string(buf[:n])), r.Body)
		if n >= 2 && buf[0] == 0x1f && buf[1] == 0x8b {
			gz, err := gzip.NewReader(combined)
			if err != nil {
				return nil, fmt.Errorf("gzip magic: %w", err)
			}
			defer gz.Close()
			reader = gz
		} else {
			reader = combined
		}
	}

	return io.ReadAll(reader)
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","adapter":"scorefeed"}`))
}
