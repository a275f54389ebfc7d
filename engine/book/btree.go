package book

import (
	"cosmossdk.io/math"
	"github.com/google/btree"

	"github.com/openalpha/classdex/engine/types"
)

const btreeDegree = 32 // node size, affects cache efficiency

// levelItem wraps a price level for use in btree.
// Implements btree.Item.
type levelItem struct {
	price math.LegacyDec
	level *Level
}

// Less orders items ascending by price.
func (a *levelItem) Less(b btree.Item) bool {
	return a.price.LT(b.(*levelItem).price)
}

// btreeSide is one side of the book: a btree of price levels.
type btreeSide struct {
	tree *btree.BTree
	desc bool // true for bids (best = Max), false for asks (best = Min)
}

func newBTreeSide(desc bool) *btreeSide {
	return &btreeSide{
		tree: btree.New(btreeDegree),
		desc: desc,
	}
}

func (s *btreeSide) get(price math.LegacyDec) (*Level, bool) {
	item := s.tree.Get(&levelItem{price: price})
	if item == nil {
		return nil, false
	}
	return item.(*levelItem).level, true
}

func (s *btreeSide) getOrCreate(price math.LegacyDec) *Level {
	if lvl, ok := s.get(price); ok {
		return lvl
	}
	lvl := NewLevel()
	s.tree.ReplaceOrInsert(&levelItem{price: price, level: lvl})
	return lvl
}

func (s *btreeSide) remove(price math.LegacyDec) {
	s.tree.Delete(&levelItem{price: price})
}

func (s *btreeSide) best() (math.LegacyDec, *Level, bool) {
	var item btree.Item
	if s.desc {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return math.LegacyDec{}, nil, false
	}
	it := item.(*levelItem)
	return it.price, it.level, true
}

func (s *btreeSide) iterate(fn func(price math.LegacyDec, lvl *Level) bool) {
	wrap := func(item btree.Item) bool {
		it := item.(*levelItem)
		return fn(it.price, it.level)
	}
	if s.desc {
		s.tree.Descend(wrap)
	} else {
		s.tree.Ascend(wrap)
	}
}

// BTreeBook is the default book implementation. O(log n) for every
// operation with cache-friendly nodes.
type BTreeBook struct {
	bids *btreeSide
	asks *btreeSide
}

// NewBTreeBook creates an empty btree-backed book.
func NewBTreeBook() *BTreeBook {
	return &BTreeBook{
		bids: newBTreeSide(true),  // descending for bids
		asks: newBTreeSide(false), // ascending for asks
	}
}

func (b *BTreeBook) side(s types.Side) *btreeSide {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

// Push rests an order at its price level.
func (b *BTreeBook) Push(o *types.Order) {
	b.side(o.Side).getOrCreate(o.Price).Append(o)
}

// Best returns the best price level on side.
func (b *BTreeBook) Best(side types.Side) (math.LegacyDec, *Level, bool) {
	return b.side(side).best()
}

// Level returns the level at exactly price on side.
func (b *BTreeBook) Level(side types.Side, price math.LegacyDec) (*Level, bool) {
	return b.side(side).get(price)
}

// DropLevel removes the level at price on side.
func (b *BTreeBook) DropLevel(side types.Side, price math.LegacyDec) {
	b.side(side).remove(price)
}

// Iterate walks side best-first until fn returns false.
func (b *BTreeBook) Iterate(side types.Side, fn func(price math.LegacyDec, lvl *Level) bool) {
	b.side(side).iterate(fn)
}

// Depth returns the number of levels on side.
func (b *BTreeBook) Depth(side types.Side) int {
	return b.side(side).tree.Len()
}

// Mid returns the mid price per the book contract.
func (b *BTreeBook) Mid() (math.LegacyDec, bool) {
	bb, _, bbOK := b.bids.best()
	ba, _, baOK := b.asks.best()
	return mid(bb, bbOK, ba, baOK)
}
