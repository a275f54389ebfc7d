package engine

import (
	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/book"
	"github.com/openalpha/classdex/engine/types"
)

// View builders: every wire-facing read of engine state goes through
// here, converting decs to floats at the boundary.

// Meta summarizes the market for a markets_meta row.
func (m *Market) Meta() types.MarketMeta {
	meta := types.MarketMeta{
		Symbol:    m.Symbol,
		Open:      m.Open,
		PosLimit:  m.PosLimit,
		ClickSize: m.ClickSize,
		TickSize:  types.Float(m.TickSize),
	}
	if m.Settlement != nil {
		meta.Settlement = types.FloatPtr(*m.Settlement)
	}
	if px, _, ok := m.book.Best(types.SideBuy); ok {
		meta.BestBid = types.FloatPtr(px)
	}
	if px, _, ok := m.book.Best(types.SideSell); ok {
		meta.BestAsk = types.FloatPtr(px)
	}
	return meta
}

// Snapshot returns the top depth levels per side, bids descending and
// asks ascending, with the viewer's own resting size per level. An empty
// viewer yields zero My columns.
func (m *Market) Snapshot(viewer string, depth int) types.BookSnapshot {
	if depth <= 0 {
		depth = SnapshotDepth
	}
	collect := func(side types.Side) []types.BookLevelView {
		rows := make([]types.BookLevelView, 0, depth)
		m.book.Iterate(side, func(px math.LegacyDec, lvl *book.Level) bool {
			if len(rows) >= depth {
				return false
			}
			row := types.BookLevelView{Price: types.Float(px), Size: lvl.Size()}
			if viewer != "" {
				row.My = lvl.SizeFor(viewer)
			}
			rows = append(rows, row)
			return true
		})
		return rows
	}
	return types.BookSnapshot{
		Symbol: m.Symbol,
		Bids:   collect(types.SideBuy),
		Asks:   collect(types.SideSell),
	}
}

// PositionView is the user's position row for fan-out.
func (m *Market) PositionView(userID, name string) types.PositionView {
	p := m.ledger.Get(userID)
	return types.PositionView{
		Symbol: m.Symbol,
		Qty:    p.Qty,
		Cash:   types.Float(p.Cash),
		Name:   name,
	}
}

// UserSummary is the user's trading summary row for fan-out.
func (m *Market) UserSummary(userID string) types.UserSummary {
	p := m.ledger.Get(userID)
	s := m.statsFor(userID)
	return types.UserSummary{
		Symbol:   m.Symbol,
		Position: p.Qty,
		AvgBuy:   types.Float(s.AvgBuy()),
		AvgSell:  types.Float(s.AvgSell()),
		BuyVol:   s.BuyVol,
		SellVol:  s.SellVol,
	}
}

// MarketsMeta returns every market's meta row in creation order.
func (g *Game) MarketsMeta() []types.MarketMeta {
	out := make([]types.MarketMeta, 0, len(g.symbols))
	g.EachMarket(func(m *Market) {
		out = append(out, m.Meta())
	})
	return out
}
