// Package persist is the durable record behind restart recovery: terminal
// orders, open positions, breaker transitions, the blacklist, and the
// structured decision-event log live in one SQLite database.
package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/courtsidehq/courtside/internal/telemetry"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	telemetry.Plainf("store: opened %s", path)
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id    TEXT PRIMARY KEY,
	exchange_id TEXT,
	game_id     TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	price_cents INTEGER NOT NULL,
	quantity    INTEGER NOT NULL,
	filled_qty  INTEGER NOT NULL,
	state       TEXT    NOT NULL,
	recorded_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	game_id         TEXT    NOT NULL,
	side            TEXT    NOT NULL,
	quantity        INTEGER NOT NULL,
	avg_price_cents INTEGER NOT NULL,
	realized_pnl    INTEGER NOT NULL,
	updated_at      TEXT    NOT NULL,
	PRIMARY KEY (game_id, side)
);

CREATE TABLE IF NOT EXISTS breaker_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	level       INTEGER NOT NULL,
	game_id     TEXT    NOT NULL DEFAULT '',
	reason      TEXT    NOT NULL,
	tripped_at  TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist (
	game_id  TEXT PRIMARY KEY,
	added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	game_id     TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	recorded_at TEXT NOT NULL
)`

// OrderRecord is a terminal order as written to disk.
type OrderRecord struct {
	OrderID    string
	ExchangeID string
	GameID     string
	Side       string
	PriceCents int
	Quantity   int
	FilledQty  int
	State      string
}

// RecordOrder writes a terminal order. Idempotent per order id: replays
// after a crash overwrite with identical data.
func (s *Store) RecordOrder(r OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO orders (order_id, exchange_id, game_id, side, price_cents, quantity, filled_qty, state, recorded_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(order_id) DO UPDATE SET
			exchange_id=excluded.exchange_id, filled_qty=excluded.filled_qty,
			state=excluded.state, recorded_at=excluded.recorded_at`,
		r.OrderID, r.ExchangeID, r.GameID, r.Side, r.PriceCents, r.Quantity, r.FilledQty, r.State,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", r.OrderID, err)
	}
	return nil
}

// PositionRecord mirrors one (game, side) holding.
type PositionRecord struct {
	GameID           string
	Side             string
	Quantity         int
	AvgPriceCents    int
	RealizedPnLCents int64
}

// UpsertPosition overwrites the stored holding for (game, side). A zero
// quantity clears the row; closed positions leave no residue to restore.
func (s *Store) UpsertPosition(p PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Quantity == 0 {
		_, err := s.db.Exec(`DELETE FROM positions WHERE game_id=? AND side=?`, p.GameID, p.Side)
		if err != nil {
			return fmt.Errorf("clear position %s/%s: %w", p.GameID, p.Side, err)
		}
		return nil
	}

	_, err := s.db.Exec(
		`INSERT INTO positions (game_id, side, quantity, avg_price_cents, realized_pnl, updated_at)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(game_id, side) DO UPDATE SET
			quantity=excluded.quantity, avg_price_cents=excluded.avg_price_cents,
			realized_pnl=excluded.realized_pnl, updated_at=excluded.updated_at`,
		p.GameID, p.Side, p.Quantity, p.AvgPriceCents, p.RealizedPnLCents,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s/%s: %w", p.GameID, p.Side, err)
	}
	return nil
}

// LoadPositions returns every stored open position for restart recovery.
func (s *Store) LoadPositions() ([]PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT game_id, side, quantity, avg_price_cents, realized_pnl FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(&p.GameID, &p.Side, &p.Quantity, &p.AvgPriceCents, &p.RealizedPnLCents); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordBreaker appends a breaker transition and keeps the blacklist table
// in sync for game-level trips.
func (s *Store) RecordBreaker(level int, gameID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(
		`INSERT INTO breaker_log (level, game_id, reason, tripped_at) VALUES (?,?,?,?)`,
		level, gameID, reason, now,
	); err != nil {
		return fmt.Errorf("record breaker: %w", err)
	}
	if gameID != "" {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO blacklist (game_id, added_at) VALUES (?,?)`, gameID, now,
		); err != nil {
			return fmt.Errorf("record blacklist: %w", err)
		}
	}
	return nil
}

// LoadBreakerState returns the highest breaker level logged today and the
// full blacklist, for restart recovery. Game-level trips are excluded from
// the level: they are carried by the blacklist instead.
func (s *Store) LoadBreakerState() (level int, blacklist []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339Nano)
	row := s.db.QueryRow(
		`SELECT COALESCE(MAX(level), 0) FROM breaker_log WHERE level > 1 AND tripped_at >= ?`, dayStart)
	if err := row.Scan(&level); err != nil {
		return 0, nil, fmt.Errorf("load breaker level: %w", err)
	}

	rows, err := s.db.Query(`SELECT game_id FROM blacklist WHERE added_at >= ?`, dayStart)
	if err != nil {
		return 0, nil, fmt.Errorf("load blacklist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, err
		}
		blacklist = append(blacklist, id)
	}
	return level, blacklist, rows.Err()
}

// RecordDecision appends a structured decision record (signal generated,
// order placed, fill, breaker trip) to the event log. Best effort: a write
// failure is logged, never escalated, the log is an audit trail not a
// ledger.
func (s *Store) RecordDecision(kind, gameID string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		telemetry.Warnf("store: marshal decision %s: %v", kind, err)
		return
	}
	if _, err := s.db.Exec(
		`INSERT INTO decision_events (kind, game_id, payload, recorded_at) VALUES (?,?,?,?)`,
		kind, gameID, string(body), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		telemetry.Warnf("store: record decision %s: %v", kind, err)
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
