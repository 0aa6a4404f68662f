// Package dedup suppresses duplicate user-facing effects when the same
// logical event is delivered more than once (duplicate hub delivery, several
// live subscribers in one session).
package dedup

// DefaultCapacity bounds the gate so memory stays flat over a long session.
const DefaultCapacity = 200

// Gate is a bounded set of event identity keys with strict FIFO eviction:
// when full, the oldest inserted key goes first, regardless of how recently
// it was queried. Gate is not safe for concurrent use; the consumer runs on
// a single control flow.
type Gate struct {
	keys  map[string]struct{}
	order []string
	cap   int
}

// NewGate creates a Gate holding at most capacity keys.
// capacity <= 0 selects DefaultCapacity.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{
		keys: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Seen reports whether key was marked and has not been evicted.
func (g *Gate) Seen(key string) bool {
	_, ok := g.keys[key]
	return ok
}

// Mark inserts key, evicting the oldest entry if the gate is full.
// Marking a key already present does not refresh its eviction position.
func (g *Gate) Mark(key string) {
	if _, ok := g.keys[key]; ok {
		return
	}

	if len(g.order) >= g.cap {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.keys, oldest)
	}

	g.keys[key] = struct{}{}
	g.order = append(g.order, key)
}

// Len returns the number of keys currently held.
func (g *Gate) Len() int {
	return len(g.keys)
}
