package main

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"sync"
)

// Store holds all game sessions in memory.
type Store struct {
	mu    sync.RWMutex
	games map[string]*Game
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		games: make(map[string]*Game),
	}
}

// SaveGame registers a game under its ID.
func (s *Store) SaveGame(g *Game) *Game {
	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()
	return g
}

// GetGame returns a game by ID, or nil if not found.
func (s *Store) GetGame(id string) *Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[id]
}

// ListGames returns all games, most recent first.
func (s *Store) ListGames() []*Game {
	s.mu.RLock()
	list := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		list = append(list, g)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Game) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return list
}

// DeleteGame removes a game and stops it. It reports whether the game existed.
func (s *Store) DeleteGame(id string) bool {
	s.mu.Lock()
	g, ok := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()

	if ok {
		g.Close()
	}
	return ok
}

// Len returns the number of games held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}

// Close stops every game.
func (s *Store) Close() {
	s.mu.Lock()
	games := s.games
	s.games = make(map[string]*Game)
	s.mu.Unlock()

	for _, g := range games {
		g.Close()
	}
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
