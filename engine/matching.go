package engine

import (
	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/book"
	"github.com/openalpha/classdex/engine/types"
)

// PlaceLimit accepts a limit order: optimistic position pre-check, match
// against the opposite side under price-time priority, rest any residual.
// Returns the assigned order ID; a pre-check breach returns
// ErrPositionLimit with no state changed and no ID consumed.
func (m *Market) PlaceLimit(userID string, side types.Side, price math.LegacyDec, qty int64) (int64, error) {
	if !m.checkLimit(userID, side, qty) {
		return 0, types.ErrPositionLimit
	}
	o := types.NewOrder(m.allocID(), userID, side, types.Snap(price, m.TickSize), qty)
	m.match(o)
	if o.Leaves > 0 {
		m.book.Push(o)
	}
	return o.ID, nil
}

// match crosses o against the opposite side, best level first, FIFO
// within each level, trading at the resting maker's price.
func (m *Market) match(o *types.Order) {
	opp := o.Side.Opposite()
	for o.Leaves > 0 {
		px, lvl, ok := m.book.Best(opp)
		if !ok || !o.Side.Crosses(o.Price, px) {
			return
		}
		m.fillLevel(o, px, lvl)
		if lvl.Empty() {
			m.book.DropLevel(opp, px)
		}
	}
}

// fillLevel walks one FIFO level head-first. The taker's position limit
// is re-checked before every fill; a breach zeroes the remaining leaves
// and ends the whole run. The maker is never re-checked: makers committed
// to their exposure at rest time.
func (m *Market) fillLevel(o *types.Order, px math.LegacyDec, lvl *book.Level) {
	for o.Leaves > 0 {
		maker := lvl.Head()
		if maker == nil {
			return
		}
		tradeQty := o.Leaves
		if maker.Leaves < tradeQty {
			tradeQty = maker.Leaves
		}
		if !m.checkLimit(o.UserID, o.Side, tradeQty) {
			o.Leaves = 0 // truncate: the residual is dropped, never rested
			return
		}
		m.fill(o.UserID, maker.UserID, o.Side, px, tradeQty)
		o.Leaves -= tradeQty
		maker.Leaves -= tradeQty
		if maker.Filled() {
			lvl.PopHead()
		}
	}
}

// fill applies both legs of one trade to the ledger and emits it.
func (m *Market) fill(taker, maker string, takerSide types.Side, px math.LegacyDec, qty int64) {
	buyer, seller := taker, maker
	if takerSide == types.SideSell {
		buyer, seller = maker, taker
	}
	m.ledger.Get(buyer).Apply(types.SideBuy, qty, px)
	m.ledger.Get(seller).Apply(types.SideSell, qty, px)
	m.emitTrade(px, qty, buyer, seller)
}

// TakeAtPrice executes against exactly one opposite level at the snapped
// price, FIFO, with the same per-fill position check as the match loop.
// Other levels are never touched. Returns the quantity actually filled.
func (m *Market) TakeAtPrice(userID string, side types.Side, price math.LegacyDec, maxQty int64) int64 {
	px := types.Snap(price, m.TickSize)
	opp := side.Opposite()
	lvl, ok := m.book.Level(opp, px)
	if !ok {
		return 0
	}
	remaining := maxQty
	if remaining < 0 {
		remaining = 0
	}
	var filled int64
	for remaining > 0 {
		maker := lvl.Head()
		if maker == nil {
			break
		}
		tradeQty := remaining
		if maker.Leaves < tradeQty {
			tradeQty = maker.Leaves
		}
		if !m.checkLimit(userID, side, tradeQty) {
			break
		}
		m.fill(userID, maker.UserID, side, px, tradeQty)
		remaining -= tradeQty
		filled += tradeQty
		maker.Leaves -= tradeQty
		if maker.Filled() {
			lvl.PopHead()
		}
	}
	if lvl.Empty() {
		m.book.DropLevel(opp, px)
	}
	return filled
}

// CancelAtPrice removes every resting order the user owns at the snapped
// (side, price). The ledger is untouched and nothing trades. Returns the
// count removed.
func (m *Market) CancelAtPrice(userID string, side types.Side, price math.LegacyDec) int {
	px := types.Snap(price, m.TickSize)
	lvl, ok := m.book.Level(side, px)
	if !ok {
		return 0
	}
	removed := lvl.RemoveUser(userID)
	if lvl.Empty() {
		m.book.DropLevel(side, px)
	}
	return removed
}
