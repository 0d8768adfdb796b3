package registry

import (
	"context"
	"sync"

	"github.com/melih/gamehost/internal/core/domain"
)

// Memory is a process-local GameRegistry. Nothing survives a restart, so it
// is meant for tests and throwaway sessions.
type Memory struct {
	mu      sync.RWMutex
	games   map[int64]domain.Game
	order   []int64
	seq     int64
	maxPort int
	hasPort bool
}

func NewMemory() *Memory {
	return &Memory{games: make(map[int64]domain.Game)}
}

func (m *Memory) Create(_ context.Context, game domain.Game) (domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.Port == game.Port {
			return domain.Game{}, domain.ErrPortTaken
		}
	}
	m.seq++
	game.ID = m.seq
	m.games[game.ID] = game
	m.order = append(m.order, game.ID)
	m.notePort(game.Port)
	return game, nil
}

func (m *Memory) Get(_ context.Context, id int64) (domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return domain.Game{}, domain.ErrNotFound
	}
	return g, nil
}

func (m *Memory) List(_ context.Context) ([]domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Game, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.games[id])
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, game domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[game.ID]; !ok {
		return domain.ErrNotFound
	}
	for id, g := range m.games {
		if id != game.ID && g.Port == game.Port {
			return domain.ErrPortTaken
		}
	}
	m.games[game.ID] = game
	m.notePort(game.Port)
	return nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return nil
	}
	delete(m.games, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) MaxPort(_ context.Context) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxPort, m.hasPort, nil
}

func (m *Memory) notePort(port int) {
	if !m.hasPort || port > m.maxPort {
		m.maxPort = port
		m.hasPort = true
	}
}
