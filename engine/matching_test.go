package engine

import (
	"errors"
	"testing"

	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/book"
	"github.com/openalpha/classdex/engine/types"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func newTestMarket(posLimit int64, engine string) (*Market, *[]types.Trade) {
	var id int64
	alloc := func() int64 {
		id++
		return id
	}
	m := NewMarket("A", math.LegacyNewDecWithPrec(1, 1), posLimit, 5, engine, alloc)
	trades := &[]types.Trade{}
	m.OnTrade(func(tr types.Trade) {
		*trades = append(*trades, tr)
	})
	return m, trades
}

func mustPlace(t *testing.T, m *Market, user string, side types.Side, px string, qty int64) int64 {
	t.Helper()
	id, err := m.PlaceLimit(user, side, dec(px), qty)
	if err != nil {
		t.Fatalf("place %s %s %d@%s: unexpected error %v", user, side, qty, px, err)
	}
	return id
}

// checkInvariants verifies the conservation and book-shape invariants that
// must hold after any sequence of operations on a market.
func checkInvariants(t *testing.T, m *Market) {
	t.Helper()

	var sumQty int64
	sumCash := math.LegacyZeroDec()
	m.Ledger().Each(func(_ string, p *types.Position) {
		sumQty += p.Qty
		sumCash = sumCash.Add(p.Cash)
	})
	if sumQty != 0 {
		t.Errorf("expected positions to sum to 0, got %d", sumQty)
	}
	if !sumCash.IsZero() {
		t.Errorf("expected cash to sum to 0, got %s", sumCash.String())
	}

	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		m.Book().Iterate(side, func(px math.LegacyDec, lvl *book.Level) bool {
			if lvl.Empty() {
				t.Errorf("empty %s level at %s", side, px.String())
			}
			q := px.Quo(m.TickSize)
			if !q.Sub(q.TruncateDec()).IsZero() {
				t.Errorf("price %s is not a multiple of tick %s", px.String(), m.TickSize.String())
			}
			for _, o := range lvl.Orders {
				if o.Leaves <= 0 || o.Leaves > o.Qty {
					t.Errorf("order %d leaves %d out of range, qty %d", o.ID, o.Leaves, o.Qty)
				}
			}
			return true
		})
	}

	if m.Settlement != nil && m.Open {
		t.Error("settled market must be closed")
	}
}

// TestSimpleCross tests a full fill between two resting-and-taking users
func TestSimpleCross(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 5)
	mustPlace(t, m, "u2", types.SideBuy, "10.0", 5)

	if len(*trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(*trades))
	}
	tr := (*trades)[0]
	if !tr.Price.Equal(dec("10.0")) {
		t.Errorf("expected trade price 10.0, got %s", tr.Price.String())
	}
	if tr.Qty != 5 {
		t.Errorf("expected trade qty 5, got %d", tr.Qty)
	}
	if tr.Buyer != "u2" || tr.Seller != "u1" {
		t.Errorf("expected buyer u2 seller u1, got %s/%s", tr.Buyer, tr.Seller)
	}

	if d := m.Book().Depth(types.SideBuy); d != 0 {
		t.Errorf("expected empty bid side, got %d levels", d)
	}
	if d := m.Book().Depth(types.SideSell); d != 0 {
		t.Errorf("expected empty ask side, got %d levels", d)
	}

	p1 := m.Ledger().Get("u1")
	if p1.Qty != -5 || !p1.Cash.Equal(dec("50")) {
		t.Errorf("expected u1 position -5 cash 50, got %d %s", p1.Qty, p1.Cash.String())
	}
	p2 := m.Ledger().Get("u2")
	if p2.Qty != 5 || !p2.Cash.Equal(dec("-50")) {
		t.Errorf("expected u2 position 5 cash -50, got %d %s", p2.Qty, p2.Cash.String())
	}

	checkInvariants(t, m)
}

// TestPartialFillRestsResidual tests that an unfilled taker residual rests
func TestPartialFillRestsResidual(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 3)
	mustPlace(t, m, "u2", types.SideBuy, "10.0", 5)

	if len(*trades) != 1 || (*trades)[0].Qty != 3 {
		t.Fatalf("expected one trade of qty 3, got %+v", *trades)
	}

	px, lvl, ok := m.Book().Best(types.SideBuy)
	if !ok || !px.Equal(dec("10.0")) {
		t.Fatalf("expected residual bid at 10.0")
	}
	if lvl.Size() != 2 {
		t.Errorf("expected residual size 2, got %d", lvl.Size())
	}
	if d := m.Book().Depth(types.SideSell); d != 0 {
		t.Errorf("expected empty ask side, got %d levels", d)
	}

	checkInvariants(t, m)
}

// TestPriceTimePriority tests FIFO execution within a price level
func TestPriceTimePriority(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 3)
	mustPlace(t, m, "u3", types.SideSell, "10.0", 4)
	mustPlace(t, m, "u2", types.SideBuy, "10.0", 5)

	if len(*trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(*trades))
	}
	if (*trades)[0].Seller != "u1" || (*trades)[0].Qty != 3 {
		t.Errorf("expected first trade u1 qty 3, got %s qty %d", (*trades)[0].Seller, (*trades)[0].Qty)
	}
	if (*trades)[1].Seller != "u3" || (*trades)[1].Qty != 2 {
		t.Errorf("expected second trade u3 qty 2, got %s qty %d", (*trades)[1].Seller, (*trades)[1].Qty)
	}

	_, lvl, ok := m.Book().Best(types.SideSell)
	if !ok || lvl.Size() != 2 {
		t.Fatalf("expected 2 remaining at ask level")
	}
	if head := lvl.Head(); head.UserID != "u3" || head.Leaves != 2 {
		t.Errorf("expected u3 leaves 2 at head, got %s leaves %d", head.UserID, head.Leaves)
	}

	checkInvariants(t, m)
}

// TestMultiLevelSweep tests that a taker walks levels best-price-first
func TestMultiLevelSweep(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.1", 3)
	mustPlace(t, m, "u3", types.SideSell, "10.0", 2)
	mustPlace(t, m, "u2", types.SideBuy, "10.1", 4)

	if len(*trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(*trades))
	}
	if !(*trades)[0].Price.Equal(dec("10.0")) || (*trades)[0].Qty != 2 {
		t.Errorf("expected first trade 2@10.0, got %d@%s", (*trades)[0].Qty, (*trades)[0].Price.String())
	}
	if !(*trades)[1].Price.Equal(dec("10.1")) || (*trades)[1].Qty != 2 {
		t.Errorf("expected second trade 2@10.1, got %d@%s", (*trades)[1].Qty, (*trades)[1].Price.String())
	}

	px, lvl, ok := m.Book().Best(types.SideSell)
	if !ok || !px.Equal(dec("10.1")) || lvl.Size() != 1 {
		t.Errorf("expected 1 remaining at 10.1")
	}
	if d := m.Book().Depth(types.SideBuy); d != 0 {
		t.Errorf("expected taker fully filled, got %d bid levels", d)
	}

	checkInvariants(t, m)
}

// TestTradePriceIsMakerPrice tests that fills execute at the resting price
func TestTradePriceIsMakerPrice(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 5)
	mustPlace(t, m, "u2", types.SideBuy, "10.5", 5)

	if len(*trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(*trades))
	}
	if !(*trades)[0].Price.Equal(dec("10.0")) {
		t.Errorf("expected maker price 10.0, got %s", (*trades)[0].Price.String())
	}

	checkInvariants(t, m)
}

// TestPositionLimitPreCheck tests worst-case rejection before matching
func TestPositionLimitPreCheck(t *testing.T) {
	m, trades := newTestMarket(5, book.EngineBTree)

	// seed u2 to +3
	mustPlace(t, m, "u9", types.SideSell, "10.0", 3)
	mustPlace(t, m, "u2", types.SideBuy, "10.0", 3)
	if p := m.Ledger().Get("u2"); p.Qty != 3 {
		t.Fatalf("expected u2 seeded to +3, got %d", p.Qty)
	}
	seededTrades := len(*trades)

	_, err := m.PlaceLimit("u2", types.SideBuy, dec("10.0"), 5)
	if !errors.Is(err, types.ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}

	// rejection leaves book, ledger and tape untouched
	if len(*trades) != seededTrades {
		t.Errorf("expected no new trades after rejection, got %d", len(*trades)-seededTrades)
	}
	if p := m.Ledger().Get("u2"); p.Qty != 3 {
		t.Errorf("expected u2 position unchanged at 3, got %d", p.Qty)
	}
	if d := m.Book().Depth(types.SideBuy); d != 0 {
		t.Errorf("expected no resting bid after rejection, got %d levels", d)
	}

	// short side is symmetric: u9 is at -3, selling 3 more is fine, 5 is not
	if _, err := m.PlaceLimit("u9", types.SideSell, dec("11.0"), 5); !errors.Is(err, types.ErrPositionLimit) {
		t.Errorf("expected ErrPositionLimit on short side, got %v", err)
	}
	if _, err := m.PlaceLimit("u9", types.SideSell, dec("11.0"), 2); err != nil {
		t.Errorf("expected sell 2 within limit, got %v", err)
	}

	checkInvariants(t, m)
}

// TestTakeAtPriceTruncation tests the per-fill limit check halting a click
// taker at the boundary and dropping the rest of the requested quantity.
func TestTakeAtPriceTruncation(t *testing.T) {
	m, trades := newTestMarket(10, book.EngineBTree)

	// seed u2 to +3
	mustPlace(t, m, "u6", types.SideSell, "10.0", 3)
	mustPlace(t, m, "u2", types.SideBuy, "10.0", 3)

	// 20 lots resting at 10.0 spread over three makers
	mustPlace(t, m, "u9", types.SideSell, "10.0", 7)
	mustPlace(t, m, "u8", types.SideSell, "10.0", 7)
	mustPlace(t, m, "u7", types.SideSell, "10.0", 6)
	before := len(*trades)

	filled := m.TakeAtPrice("u2", types.SideBuy, dec("10.0"), 10)
	if filled != 7 {
		t.Errorf("expected fill truncated to 7, got %d", filled)
	}
	if p := m.Ledger().Get("u2"); p.Qty != 10 {
		t.Errorf("expected u2 to land exactly at +10, got %d", p.Qty)
	}

	// only the first maker traded; the next fill would have breached the limit
	if got := len(*trades) - before; got != 1 {
		t.Fatalf("expected 1 trade from the click, got %d", got)
	}
	last := (*trades)[len(*trades)-1]
	if last.Seller != "u9" || last.Qty != 7 {
		t.Errorf("expected 7 from u9, got %d from %s", last.Qty, last.Seller)
	}

	_, lvl, ok := m.Book().Best(types.SideSell)
	if !ok || lvl.Size() != 13 {
		t.Fatalf("expected 13 remaining at 10.0")
	}
	if head := lvl.Head(); head.UserID != "u8" {
		t.Errorf("expected u8 at head after u9 filled, got %s", head.UserID)
	}

	// a limit order for the same quantity is rejected up front instead
	if _, err := m.PlaceLimit("u2", types.SideBuy, dec("10.0"), 10); !errors.Is(err, types.ErrPositionLimit) {
		t.Errorf("expected ErrPositionLimit, got %v", err)
	}

	checkInvariants(t, m)
}

// TestSelfCrossNetsFlat tests a taker crossing its own resting order: both
// legs land on the same position, so the fills net to zero and the per-fill
// limit check never fires.
func TestSelfCrossNetsFlat(t *testing.T) {
	m, _ := newTestMarket(10, book.EngineBTree)
	mustPlace(t, m, "u1", types.SideSell, "10.0", 8)
	mustPlace(t, m, "u1", types.SideBuy, "10.0", 9)

	p := m.Ledger().Get("u1")
	if p.Qty != 0 || !p.Cash.IsZero() {
		t.Errorf("expected flat self-cross, got qty %d cash %s", p.Qty, p.Cash.String())
	}
	_, lvl, ok := m.Book().Best(types.SideBuy)
	if !ok || lvl.Size() != 1 {
		t.Errorf("expected residual bid of 1")
	}
	if d := m.Book().Depth(types.SideSell); d != 0 {
		t.Errorf("expected asks consumed, got %d levels", d)
	}

	checkInvariants(t, m)
}

// TestTakeAtPrice tests the basic click-trade flow against one level
func TestTakeAtPrice(t *testing.T) {
	m, trades := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 3)

	filled := m.TakeAtPrice("u2", types.SideBuy, dec("10.0"), 5)
	if filled != 3 {
		t.Errorf("expected 3 filled, got %d", filled)
	}
	if len(*trades) != 1 || (*trades)[0].Qty != 3 {
		t.Fatalf("expected one trade of 3, got %+v", *trades)
	}
	if d := m.Book().Depth(types.SideSell); d != 0 {
		t.Errorf("expected consumed level removed, got %d levels", d)
	}
	if p := m.Ledger().Get("u2"); p.Qty != 3 {
		t.Errorf("expected u2 position 3, got %d", p.Qty)
	}

	// no residual rests from a click
	if d := m.Book().Depth(types.SideBuy); d != 0 {
		t.Errorf("expected no resting residual from click, got %d levels", d)
	}

	checkInvariants(t, m)
}

// TestTakeAtPriceMisses tests clicks against absent levels and bad sizes
func TestTakeAtPriceMisses(t *testing.T) {
	m, _ := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideSell, "10.0", 3)

	if filled := m.TakeAtPrice("u2", types.SideBuy, dec("10.1"), 5); filled != 0 {
		t.Errorf("expected 0 filled at empty level, got %d", filled)
	}
	if filled := m.TakeAtPrice("u2", types.SideSell, dec("10.0"), 5); filled != 0 {
		t.Errorf("expected 0 filled clicking the wrong side, got %d", filled)
	}
	if filled := m.TakeAtPrice("u2", types.SideBuy, dec("10.0"), 0); filled != 0 {
		t.Errorf("expected 0 filled for zero quantity, got %d", filled)
	}
	if filled := m.TakeAtPrice("u2", types.SideBuy, dec("10.0"), -4); filled != 0 {
		t.Errorf("expected 0 filled for negative quantity, got %d", filled)
	}

	// level untouched throughout
	_, lvl, ok := m.Book().Best(types.SideSell)
	if !ok || lvl.Size() != 3 {
		t.Error("expected ask level left intact")
	}
}

// TestPlacementSnapsToTick tests price normalization on entry
func TestPlacementSnapsToTick(t *testing.T) {
	m, _ := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideBuy, "10.04", 5)

	px, _, ok := m.Book().Best(types.SideBuy)
	if !ok || !px.Equal(dec("10.0")) {
		t.Errorf("expected 10.04 snapped to 10.0, got %s", px.String())
	}

	// snapped prices land on the same level
	mustPlace(t, m, "u2", types.SideBuy, "9.96", 5)
	if d := m.Book().Depth(types.SideBuy); d != 1 {
		t.Errorf("expected both orders on one level, got %d", d)
	}
	_, lvl, _ := m.Book().Best(types.SideBuy)
	if lvl.Size() != 10 {
		t.Errorf("expected merged level size 10, got %d", lvl.Size())
	}

	checkInvariants(t, m)
}

// TestCancelAtPrice tests level-wide cancel for one user and idempotence
func TestCancelAtPrice(t *testing.T) {
	m, _ := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideBuy, "9.9", 5)
	mustPlace(t, m, "u1", types.SideBuy, "9.9", 3)
	mustPlace(t, m, "u2", types.SideBuy, "9.9", 4)

	if removed := m.CancelAtPrice("u1", types.SideBuy, dec("9.9")); removed != 2 {
		t.Errorf("expected 2 orders cancelled, got %d", removed)
	}
	_, lvl, ok := m.Book().Best(types.SideBuy)
	if !ok || lvl.Size() != 4 {
		t.Fatalf("expected u2's 4 lots to survive")
	}

	// cancelling again is a no-op
	if removed := m.CancelAtPrice("u1", types.SideBuy, dec("9.9")); removed != 0 {
		t.Errorf("expected idempotent cancel, got %d removed", removed)
	}

	// last order out deletes the level
	if removed := m.CancelAtPrice("u2", types.SideBuy, dec("9.94")); removed != 1 {
		t.Errorf("expected snapped cancel to remove 1, got %d", removed)
	}
	if d := m.Book().Depth(types.SideBuy); d != 0 {
		t.Errorf("expected empty bid side, got %d levels", d)
	}

	checkInvariants(t, m)
}

// TestSettleForcesClosed tests that settlement closes and pins the market
func TestSettleForcesClosed(t *testing.T) {
	m, _ := newTestMarket(100, book.EngineBTree)

	mustPlace(t, m, "u1", types.SideBuy, "9.9", 5)

	px := m.Settle(dec("10.04"))
	if !px.Equal(dec("10.0")) {
		t.Errorf("expected settlement snapped to 10.0, got %s", px.String())
	}
	if m.Open {
		t.Error("expected settled market closed")
	}
	if m.Settlement == nil || !m.Settlement.Equal(dec("10.0")) {
		t.Error("expected settlement price stored")
	}

	// settled markets cannot reopen
	m.SetOpen(true)
	if m.Open {
		t.Error("expected settled market to stay closed")
	}

	// cancels still work after settlement
	if removed := m.CancelAtPrice("u1", types.SideBuy, dec("9.9")); removed != 1 {
		t.Errorf("expected cancel to work on settled market, got %d", removed)
	}

	checkInvariants(t, m)
}

// TestImpliedPx tests the settlement/mid/zero fallback chain
func TestImpliedPx(t *testing.T) {
	m, _ := newTestMarket(100, book.EngineBTree)

	if !m.ImpliedPx().IsZero() {
		t.Error("expected implied 0 on empty market")
	}

	mustPlace(t, m, "u1", types.SideBuy, "10.0", 1)
	mustPlace(t, m, "u2", types.SideSell, "11.0", 1)
	if !m.ImpliedPx().Equal(dec("10.5")) {
		t.Errorf("expected implied mid 10.5, got %s", m.ImpliedPx().String())
	}

	m.Settle(dec("12.0"))
	if !m.ImpliedPx().Equal(dec("12.0")) {
		t.Errorf("expected implied settlement 12.0, got %s", m.ImpliedPx().String())
	}
}

// TestTapeRing tests that the tape retains only the most recent trades
func TestTapeRing(t *testing.T) {
	m, _ := newTestMarket(2000, book.EngineBTree)

	for i := 0; i < 1005; i++ {
		mustPlace(t, m, "u1", types.SideSell, "10.0", 1)
		mustPlace(t, m, "u2", types.SideBuy, "10.0", 1)
	}
	if n := m.TapeLen(); n != 1000 {
		t.Errorf("expected tape capped at 1000, got %d", n)
	}

	tape := m.Tape(5)
	if len(tape) != 5 {
		t.Fatalf("expected 5 tape entries, got %d", len(tape))
	}
	if tape[0].Qty != 1 || tape[0].Price != 10.0 {
		t.Errorf("expected most recent trade 1@10, got %d@%v", tape[0].Qty, tape[0].Price)
	}

	checkInvariants(t, m)
}

// TestMatchingAcrossEngines runs the core flow on both book engines
func TestMatchingAcrossEngines(t *testing.T) {
	for _, engine := range []string{book.EngineBTree, book.EngineSkipList} {
		t.Run(engine, func(t *testing.T) {
			m, trades := newTestMarket(100, engine)

			mustPlace(t, m, "u1", types.SideSell, "10.1", 3)
			mustPlace(t, m, "u3", types.SideSell, "10.0", 2)
			mustPlace(t, m, "u2", types.SideBuy, "10.1", 4)

			if len(*trades) != 2 {
				t.Fatalf("expected 2 trades, got %d", len(*trades))
			}
			if !(*trades)[0].Price.Equal(dec("10.0")) {
				t.Errorf("expected best level first, got %s", (*trades)[0].Price.String())
			}
			if filled := m.TakeAtPrice("u3", types.SideSell, dec("10.1"), 9); filled != 0 {
				t.Errorf("expected no bid left to click, got %d", filled)
			}
			if removed := m.CancelAtPrice("u1", types.SideSell, dec("10.1")); removed != 1 {
				t.Errorf("expected 1 cancel, got %d", removed)
			}
			if d := m.Book().Depth(types.SideSell); d != 0 {
				t.Errorf("expected empty book, got %d ask levels", d)
			}

			checkInvariants(t, m)
		})
	}
}
