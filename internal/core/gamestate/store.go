package gamestate

import "sync"

// Store holds all tracked game states, keyed by game id. Live games are
// mutated only by the Tracker on the engine loop; the RWMutex protects the
// maps themselves for read-only callers (status feed, staleness sweep).
type Store struct {
	mu       sync.RWMutex
	games    map[string]*GameState
	archived map[string]*GameState
}

func NewStore() *Store {
	return &Store{
		games:    make(map[string]*GameState),
		archived: make(map[string]*GameState),
	}
}

func (s *Store) Get(gameID string) (*GameState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.games[gameID]
	return gs, ok
}

func (s *Store) Put(gs *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[gs.GameID] = gs
}

// Archive moves a settled game out of the live set. Archived state stays
// readable for end-of-session reporting.
func (s *Store) Archive(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gs, ok := s.games[gameID]; ok {
		s.archived[gameID] = gs
		delete(s.games, gameID)
	}
}

// Live returns a snapshot slice of all live game states.
func (s *Store) Live() []*GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*GameState, 0, len(s.games))
	for _, gs := range s.games {
		out = append(out, gs)
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
