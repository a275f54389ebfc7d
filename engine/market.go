package engine

import (
	"time"

	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/book"
	"github.com/openalpha/classdex/engine/types"
)

// Defaults applied when a market definition omits or zeroes a field.
var DefaultTickSize = math.LegacyNewDecWithPrec(1, 1) // 0.1

const (
	DefaultPosLimit int64 = 100

	// tapeMax bounds the per-market trade tape; the oldest entries drop.
	tapeMax = 1000
	// SnapshotDepth is the per-side level cap in book snapshots.
	SnapshotDepth = 200
)

// TradeFn receives each fill as it happens, in occurrence order.
type TradeFn func(t types.Trade)

// Market is one tradable instrument: its book, its position ledger, its
// trade tape and per-user stats, plus lifecycle metadata. A settled
// market is always closed.
type Market struct {
	Symbol     string
	TickSize   math.LegacyDec
	PosLimit   int64
	ClickSize  int64
	Open       bool
	Settlement *math.LegacyDec

	book   book.Book
	ledger *Ledger
	tape   []types.Trade
	stats  map[string]*types.UserStats

	allocID func() int64
	onTrade TradeFn
}

// NewMarket creates an open, unsettled market. allocID hands out
// session-local order IDs.
func NewMarket(symbol string, tick math.LegacyDec, posLimit, clickSize int64, engine string, allocID func() int64) *Market {
	return &Market{
		Symbol:    symbol,
		TickSize:  tick,
		PosLimit:  posLimit,
		ClickSize: clickSize,
		Open:      true,
		book:      book.New(engine),
		ledger:    NewLedger(),
		stats:     make(map[string]*types.UserStats),
		allocID:   allocID,
	}
}

// OnTrade wires the market's trade callback.
func (m *Market) OnTrade(fn TradeFn) {
	m.onTrade = fn
}

// Book exposes the resting book for snapshots and tests.
func (m *Market) Book() book.Book {
	return m.book
}

// Ledger exposes the position ledger for views and tests.
func (m *Market) Ledger() *Ledger {
	return m.ledger
}

// Settle snaps and stores the settlement price and forces the market
// closed. Returns the snapped price.
func (m *Market) Settle(price math.LegacyDec) math.LegacyDec {
	px := types.Snap(price, m.TickSize)
	m.Settlement = &px
	m.Open = false
	return px
}

// SetOpen flips the market open or closed. A settled market stays
// closed; the settled-implies-closed invariant wins over the toggle.
func (m *Market) SetOpen(open bool) {
	if m.Settlement != nil {
		m.Open = false
		return
	}
	m.Open = open
}

// ImpliedPx is the mark for PnL: settlement when set, else mid, else zero.
func (m *Market) ImpliedPx() math.LegacyDec {
	if m.Settlement != nil {
		return *m.Settlement
	}
	if mid, ok := m.book.Mid(); ok {
		return mid
	}
	return math.LegacyZeroDec()
}

// checkLimit reports whether userID could absorb incQty more in side's
// direction without breaching the symmetric position limit.
func (m *Market) checkLimit(userID string, side types.Side, incQty int64) bool {
	next := m.ledger.Get(userID).Qty + side.Sign()*incQty
	if next < 0 {
		next = -next
	}
	return next <= m.PosLimit
}

// statsFor returns the user's stats, creating them on demand.
func (m *Market) statsFor(userID string) *types.UserStats {
	s, ok := m.stats[userID]
	if !ok {
		s = types.NewUserStats()
		m.stats[userID] = s
	}
	return s
}

// emitTrade records one fill on the tape and both users' stats, then
// hands it to the trade callback.
func (m *Market) emitTrade(px math.LegacyDec, qty int64, buyer, seller string) {
	t := types.Trade{
		TS:     time.Now().UnixMilli(),
		Symbol: m.Symbol,
		Price:  px,
		Qty:    qty,
		Buyer:  buyer,
		Seller: seller,
	}
	m.tape = append(m.tape, t)
	if len(m.tape) > tapeMax {
		m.tape = m.tape[len(m.tape)-tapeMax:]
	}
	m.statsFor(buyer).Record(types.SideBuy, qty, px)
	m.statsFor(seller).Record(types.SideSell, qty, px)
	if m.onTrade != nil {
		m.onTrade(t)
	}
}

// Tape returns up to limit trades, most recent first.
func (m *Market) Tape(limit int) []types.TradeView {
	if limit <= 0 || limit > len(m.tape) {
		limit = len(m.tape)
	}
	out := make([]types.TradeView, 0, limit)
	for i := len(m.tape) - 1; i >= len(m.tape)-limit; i-- {
		out = append(out, m.tape[i].View())
	}
	return out
}

// TapeLen returns the number of trades currently on the tape.
func (m *Market) TapeLen() int {
	return len(m.tape)
}
