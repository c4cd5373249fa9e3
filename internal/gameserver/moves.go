package gameserver

import (
	"sync"

	"github.com/blukai/snakeparty/internal/protocol"
)

// MoveQueue collects moves from all sessions between two ticks. It is a set
// over (session, direction) that remembers insertion order.
type MoveQueue struct {
	mu      sync.Mutex
	pending []protocol.Move
	seen    map[protocol.Move]struct{}
}

func NewMoveQueue() *MoveQueue {
	return &MoveQueue{
		seen: make(map[protocol.Move]struct{}),
	}
}

// Add reports whether m was new since the last Drain.
func (q *MoveQueue) Add(m protocol.Move) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.seen[m]; ok {
		return false
	}
	q.seen[m] = struct{}{}
	q.pending = append(q.pending, m)
	return true
}

// Drain takes everything queued so far and leaves an empty queue behind.
// Take and reset happen under one lock, so a concurrent Add lands either in
// the returned slice or in the next Drain, never in both and never in
// neither.
func (q *MoveQueue) Drain() []protocol.Move {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.pending
	q.pending = nil
	if len(drained) > 0 {
		q.seen = make(map[protocol.Move]struct{})
	}
	return drained
}

func (q *MoveQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}
