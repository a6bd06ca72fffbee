package scorefeed

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsidehq/courtside/internal/events"
)

func newTestMux(q *events.Queue) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(q).RegisterRoutes(mux)
	return mux
}

func TestScorePostBecomesScoreUpdate(t *testing.T) {
	q := events.NewQueue(8)
	mux := newTestMux(q)

	body := `{"game_id":"g1","home_team":"HOME","away_team":"AWAY","home_score":52,"away_score":50,"period":2,"clock_seconds":600,"spread":-3.5}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feed/score", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	evt := <-q.Events()
	assert.Equal(t, events.EventScoreUpdate, evt.Type)
	su, ok := evt.Payload.(events.ScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, "g1", su.GameID)
	assert.Equal(t, 52, su.HomeScore)
	assert.Equal(t, 2, su.PeriodIndex)
	assert.InDelta(t, -3.5, su.Spread, 1e-9)
	assert.False(t, su.ReceivedAt.IsZero())
}

func TestGzipBodyWithoutHeader(t *testing.T) {
	q := events.NewQueue(8)
	mux := newTestMux(q)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(`{"game_id":"g1","yes_bid":49,"yes_ask":51}`))
	require.NoError(t, gz.Close())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feed/market", &buf))
	require.Equal(t, http.StatusOK, rec.Code)

	evt := <-q.Events()
	md, ok := evt.Payload.(events.MarketData)
	require.True(t, ok)
	assert.Equal(t, 49, md.YesBid)
	assert.Equal(t, 51, md.YesAsk)
}

func TestBadQuoteRejected(t *testing.T) {
	q := events.NewQueue(8)
	mux := newTestMux(q)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feed/market", strings.NewReader(`{"game_id":"g1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	select {
	case evt := <-q.Events():
		t.Fatalf("unexpected event %s", evt.Type)
	default:
	}
}

func TestSettlementPost(t *testing.T) {
	q := events.NewQueue(8)
	mux := newTestMux(q)

	body := `{"game_id":"g1","home_won":true,"final_home":98,"final_away":91}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/feed/settlement", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	evt := <-q.Events()
	s, ok := evt.Payload.(events.Settlement)
	require.True(t, ok)
	assert.True(t, s.HomeWon)
	assert.Equal(t, 98, s.FinalHome)
}
