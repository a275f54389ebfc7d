package book

import (
	"testing"

	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/types"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

// TestBookContract runs the book contract over both implementations
func TestBookContract(t *testing.T) {
	for _, engine := range []string{EngineBTree, EngineSkipList} {
		t.Run(engine, func(t *testing.T) {
			b := New(engine)

			if _, _, ok := b.Best(types.SideBuy); ok {
				t.Error("expected no best bid on empty book")
			}
			if _, _, ok := b.Best(types.SideSell); ok {
				t.Error("expected no best ask on empty book")
			}
			if _, ok := b.Mid(); ok {
				t.Error("expected no mid on empty book")
			}

			b.Push(types.NewOrder(1, "u1", types.SideBuy, dec("9.9"), 5))
			b.Push(types.NewOrder(2, "u2", types.SideBuy, dec("10.1"), 3))
			b.Push(types.NewOrder(3, "u1", types.SideBuy, dec("10.0"), 2))
			b.Push(types.NewOrder(4, "u3", types.SideSell, dec("10.4"), 7))
			b.Push(types.NewOrder(5, "u3", types.SideSell, dec("10.2"), 1))

			px, lvl, ok := b.Best(types.SideBuy)
			if !ok || !px.Equal(dec("10.1")) {
				t.Errorf("expected best bid 10.1, got %s", px.String())
			}
			if lvl.Size() != 3 {
				t.Errorf("expected best bid size 3, got %d", lvl.Size())
			}
			px, _, ok = b.Best(types.SideSell)
			if !ok || !px.Equal(dec("10.2")) {
				t.Errorf("expected best ask 10.2, got %s", px.String())
			}

			if d := b.Depth(types.SideBuy); d != 3 {
				t.Errorf("expected 3 bid levels, got %d", d)
			}
			if d := b.Depth(types.SideSell); d != 2 {
				t.Errorf("expected 2 ask levels, got %d", d)
			}

			// bids iterate descending, asks ascending
			var bidPrices []string
			b.Iterate(types.SideBuy, func(px math.LegacyDec, _ *Level) bool {
				bidPrices = append(bidPrices, px.String())
				return true
			})
			wantBids := []string{dec("10.1").String(), dec("10.0").String(), dec("9.9").String()}
			for i, want := range wantBids {
				if bidPrices[i] != want {
					t.Errorf("bid iteration %d: expected %s, got %s", i, want, bidPrices[i])
				}
			}
			var askPrices []string
			b.Iterate(types.SideSell, func(px math.LegacyDec, _ *Level) bool {
				askPrices = append(askPrices, px.String())
				return true
			})
			wantAsks := []string{dec("10.2").String(), dec("10.4").String()}
			for i, want := range wantAsks {
				if askPrices[i] != want {
					t.Errorf("ask iteration %d: expected %s, got %s", i, want, askPrices[i])
				}
			}

			mid, ok := b.Mid()
			if !ok || !mid.Equal(dec("10.15")) {
				t.Errorf("expected mid 10.15, got %s", mid.String())
			}

			if _, ok := b.Level(types.SideBuy, dec("10.0")); !ok {
				t.Error("expected level at 10.0")
			}
			if _, ok := b.Level(types.SideBuy, dec("10.05")); ok {
				t.Error("expected no level at 10.05")
			}

			b.DropLevel(types.SideBuy, dec("10.1"))
			if d := b.Depth(types.SideBuy); d != 2 {
				t.Errorf("expected 2 bid levels after drop, got %d", d)
			}
			px, _, _ = b.Best(types.SideBuy)
			if !px.Equal(dec("10.0")) {
				t.Errorf("expected best bid 10.0 after drop, got %s", px.String())
			}
		})
	}
}

// TestBookMidOneSided tests the mid fallback when only one side exists
func TestBookMidOneSided(t *testing.T) {
	for _, engine := range []string{EngineBTree, EngineSkipList} {
		t.Run(engine, func(t *testing.T) {
			b := New(engine)
			b.Push(types.NewOrder(1, "u1", types.SideBuy, dec("10.0"), 1))
			mid, ok := b.Mid()
			if !ok || !mid.Equal(dec("10.0")) {
				t.Errorf("expected mid 10.0 with only a bid, got %s", mid.String())
			}

			b2 := New(engine)
			b2.Push(types.NewOrder(2, "u1", types.SideSell, dec("11.0"), 1))
			mid, ok = b2.Mid()
			if !ok || !mid.Equal(dec("11.0")) {
				t.Errorf("expected mid 11.0 with only an ask, got %s", mid.String())
			}
		})
	}
}

// TestLevelFIFO tests that a level preserves acceptance order
func TestLevelFIFO(t *testing.T) {
	lvl := NewLevel()
	lvl.Append(types.NewOrder(1, "u1", types.SideBuy, dec("10"), 5))
	lvl.Append(types.NewOrder(2, "u2", types.SideBuy, dec("10"), 3))

	if head := lvl.Head(); head == nil || head.ID != 1 {
		t.Fatalf("expected head order 1, got %+v", head)
	}
	lvl.PopHead()
	if head := lvl.Head(); head == nil || head.ID != 2 {
		t.Fatalf("expected head order 2 after pop, got %+v", head)
	}
	lvl.PopHead()
	if !lvl.Empty() {
		t.Error("expected empty level after popping both orders")
	}
	if head := lvl.Head(); head != nil {
		t.Errorf("expected nil head on empty level, got %+v", head)
	}
}

// TestLevelRemoveUser tests user-targeted removal and size accounting
func TestLevelRemoveUser(t *testing.T) {
	lvl := NewLevel()
	lvl.Append(types.NewOrder(1, "u1", types.SideBuy, dec("10"), 5))
	lvl.Append(types.NewOrder(2, "u2", types.SideBuy, dec("10"), 3))
	lvl.Append(types.NewOrder(3, "u1", types.SideBuy, dec("10"), 2))

	if size := lvl.Size(); size != 10 {
		t.Errorf("expected size 10, got %d", size)
	}
	if my := lvl.SizeFor("u1"); my != 7 {
		t.Errorf("expected u1 size 7, got %d", my)
	}

	if removed := lvl.RemoveUser("u1"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if size := lvl.Size(); size != 3 {
		t.Errorf("expected size 3 after removal, got %d", size)
	}
	if removed := lvl.RemoveUser("u1"); removed != 0 {
		t.Errorf("expected 0 removed on second call, got %d", removed)
	}
}

// TestNewDefaultsToBTree tests the engine fallback
func TestNewDefaultsToBTree(t *testing.T) {
	if _, ok := New("bogus").(*BTreeBook); !ok {
		t.Error("expected unknown engine name to fall back to btree")
	}
	if _, ok := New(EngineSkipList).(*SkipListBook); !ok {
		t.Error("expected skiplist engine")
	}
}
