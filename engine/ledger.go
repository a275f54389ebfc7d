package engine

import (
	"github.com/openalpha/classdex/engine/types"
)

// Ledger stores per-user positions for one market. Positions are created
// lazily on first touch and only fills mutate them; cancellations and
// settlements never reach the ledger.
type Ledger struct {
	positions map[string]*types.Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*types.Position)}
}

// Get returns the user's position, creating a flat one on demand.
func (l *Ledger) Get(userID string) *types.Position {
	p, ok := l.positions[userID]
	if !ok {
		p = types.NewPosition()
		l.positions[userID] = p
	}
	return p
}

// Each visits every position that has been touched.
func (l *Ledger) Each(fn func(userID string, p *types.Position)) {
	for userID, p := range l.positions {
		fn(userID, p)
	}
}
