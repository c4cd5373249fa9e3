// Package snake holds the rules of the game: a square board with wrapping
// edges, snakes that keep moving once steered, and snacks that make them
// grow.
package snake

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/blukai/snakeparty/internal/debug"
	"github.com/blukai/snakeparty/internal/protocol"
)

var (
	ErrPlayerExists = errors.New("player already exists")
	ErrBoardFull    = errors.New("no free cell on the board")
)

const spawnAttempts = 100

type snake struct {
	id      string
	color   protocol.Color
	body    []protocol.Position // head first
	heading protocol.Direction  // zero until the first move
}

// Game is safe for concurrent use. Sessions add, remove and reset players
// while the tick loop calls Move and Snapshot.
type Game struct {
	mu sync.Mutex

	rows   int
	nsnack int
	rng    *rand.Rand

	snakes map[string]*snake
	order  []string // join order, which is also snapshot order
	snacks []protocol.Position
}

// NewGame makes a rows×rows board with nsnack snacks. A nil rng is seeded
// from the clock.
func NewGame(rows, nsnack int, rng *rand.Rand) *Game {
	debug.Assert(rows > 0, "rows must be positive")

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	g := &Game{
		rows:   rows,
		nsnack: nsnack,
		rng:    rng,
		snakes: make(map[string]*snake),
	}
	g.refillSnacks()
	return g
}

func (g *Game) Rows() int {
	return g.rows
}

func (g *Game) AddPlayer(id string, color protocol.Color) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.snakes[id]; ok {
		return ErrPlayerExists
	}

	head, ok := g.freeCell()
	if !ok {
		return ErrBoardFull
	}

	g.snakes[id] = &snake{
		id:    id,
		color: color,
		body:  []protocol.Position{head},
	}
	g.order = append(g.order, id)
	return nil
}

// RemovePlayer is a no-op for unknown ids.
func (g *Game) RemovePlayer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.snakes[id]; !ok {
		return
	}
	delete(g.snakes, id)
	for i, other := range g.order {
		if other == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *Game) ResetPlayer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.snakes[id]; ok {
		g.respawn(s)
	}
}

func (g *Game) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.order...)
}

func (g *Game) Color(id string) (protocol.Color, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.snakes[id]
	if !ok {
		return protocol.Color{}, false
	}
	return s.color, true
}

// Move advances the world by one step.
//
// Moves are steering requests. When a player has several directions queued
// the first one in queue order that does not turn the snake back onto its
// own neck wins; the rest are ignored.
func (g *Game) Move(moves []protocol.Move) {
	g.mu.Lock()
	defer g.mu.Unlock()

	steered := make(map[string]struct{}, len(moves))
	for _, m := range moves {
		s, ok := g.snakes[m.SessionID]
		if !ok || !m.Direction.Valid() {
			continue
		}
		if _, done := steered[m.SessionID]; done {
			continue
		}
		if len(s.body) > 1 && m.Direction == s.heading.Opposite() {
			continue
		}
		s.heading = m.Direction
		steered[m.SessionID] = struct{}{}
	}

	for _, id := range g.order {
		g.advance(g.snakes[id])
	}

	g.resolveCollisions()
	g.refillSnacks()
}

func (g *Game) Snapshot() protocol.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := protocol.Snapshot{}
	for _, id := range g.order {
		body := g.snakes[id].body
		s.Players = append(s.Players, append(protocol.Player(nil), body...))
	}
	if len(g.snacks) > 0 {
		s.Snacks = append([]protocol.Position(nil), g.snacks...)
	}
	return s
}

func (g *Game) wrap(p protocol.Position) protocol.Position {
	return protocol.Position{
		X: ((p.X % g.rows) + g.rows) % g.rows,
		Y: ((p.Y % g.rows) + g.rows) % g.rows,
	}
}

func (g *Game) advance(s *snake) {
	if !s.heading.Valid() {
		return
	}

	head := g.wrap(s.body[0].Add(s.heading.Delta()))

	ate := -1
	for i, snack := range g.snacks {
		if snack == head {
			ate = i
			break
		}
	}

	if ate >= 0 {
		s.body = append([]protocol.Position{head}, s.body...)
		g.snacks = append(g.snacks[:ate], g.snacks[ate+1:]...)
		return
	}

	copy(s.body[1:], s.body[:len(s.body)-1])
	s.body[0] = head
}

// resolveCollisions respawns every snake whose head ended up on a body
// cell, its own or someone else's. Head on collisions respawn both.
func (g *Game) resolveCollisions() {
	occupied := make(map[protocol.Position]int)
	for _, id := range g.order {
		for _, p := range g.snakes[id].body {
			occupied[p]++
		}
	}

	var crashed []*snake
	for _, id := range g.order {
		s := g.snakes[id]
		if occupied[s.body[0]] > 1 {
			crashed = append(crashed, s)
		}
	}
	for _, s := range crashed {
		g.respawn(s)
	}
}

func (g *Game) respawn(s *snake) {
	old := s.body[0]

	// vacate first so the old body does not block the new spawn
	s.body = s.body[:0]
	head, ok := g.freeCell()
	if !ok {
		head = old
	}
	s.body = append(s.body, head)
	s.heading = 0
}

func (g *Game) refillSnacks() {
	for len(g.snacks) < g.nsnack {
		p, ok := g.freeCell()
		if !ok {
			return
		}
		g.snacks = append(g.snacks, p)
	}
}

func (g *Game) occupied(p protocol.Position) bool {
	for _, s := range g.snakes {
		for _, b := range s.body {
			if b == p {
				return true
			}
		}
	}
	for _, snack := range g.snacks {
		if snack == p {
			return true
		}
	}
	return false
}

// freeCell tries random cells first and falls back to a scan so that a
// nearly full board still finds its last free cells.
func (g *Game) freeCell() (protocol.Position, bool) {
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		p := protocol.Position{X: g.rng.Intn(g.rows), Y: g.rng.Intn(g.rows)}
		if !g.occupied(p) {
			return p, true
		}
	}
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.rows; x++ {
			p := protocol.Position{X: x, Y: y}
			if !g.occupied(p) {
				return p, true
			}
		}
	}
	return protocol.Position{}, false
}
