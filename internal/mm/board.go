package mm

import "sync"

// PositionBoard holds the latest per-symbol position view shared between the
// symbol runners and the telemetry publisher.
type PositionBoard struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewPositionBoard() *PositionBoard {
	return &PositionBoard{positions: make(map[string]Position)}
}

func (b *PositionBoard) Update(symbol string, pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = pos
}

func (b *PositionBoard) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// Snapshot returns a copy of the board safe to read without holding the lock.
func (b *PositionBoard) Snapshot() map[string]Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Position, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = pos
	}
	return out
}
