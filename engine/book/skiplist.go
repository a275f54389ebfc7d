package book

import (
	"cosmossdk.io/math"
	"github.com/huandu/skiplist"

	"github.com/openalpha/classdex/engine/types"
)

// priceKeyAsc is a comparator for ascending price order (asks)
type priceKeyAsc struct{}

func (priceKeyAsc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.LT(r) {
		return -1
	}
	if l.GT(r) {
		return 1
	}
	return 0
}

func (priceKeyAsc) CalcScore(key interface{}) float64 {
	f, _ := key.(math.LegacyDec).Float64()
	return f
}

// priceKeyDesc is a comparator for descending price order (bids)
type priceKeyDesc struct{}

func (priceKeyDesc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.GT(r) {
		return -1
	}
	if l.LT(r) {
		return 1
	}
	return 0
}

func (priceKeyDesc) CalcScore(key interface{}) float64 {
	f, _ := key.(math.LegacyDec).Float64()
	return -f // negative for descending
}

// SkipListBook is the alternate book implementation, a skip list of price
// levels per side with O(1) best lookups.
type SkipListBook struct {
	bids *skiplist.SkipList // descending by price, highest first
	asks *skiplist.SkipList // ascending by price, lowest first
}

// NewSkipListBook creates an empty skiplist-backed book.
func NewSkipListBook() *SkipListBook {
	return &SkipListBook{
		bids: skiplist.New(priceKeyDesc{}),
		asks: skiplist.New(priceKeyAsc{}),
	}
}

func (b *SkipListBook) list(s types.Side) *skiplist.SkipList {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

// Push rests an order at its price level.
func (b *SkipListBook) Push(o *types.Order) {
	list := b.list(o.Side)
	var lvl *Level
	if elem := list.Get(o.Price); elem != nil {
		lvl = elem.Value.(*Level)
	} else {
		lvl = NewLevel()
		list.Set(o.Price, lvl)
	}
	lvl.Append(o)
}

// Best returns the best price level on side.
func (b *SkipListBook) Best(side types.Side) (math.LegacyDec, *Level, bool) {
	front := b.list(side).Front()
	if front == nil {
		return math.LegacyDec{}, nil, false
	}
	return front.Key().(math.LegacyDec), front.Value.(*Level), true
}

// Level returns the level at exactly price on side.
func (b *SkipListBook) Level(side types.Side, price math.LegacyDec) (*Level, bool) {
	elem := b.list(side).Get(price)
	if elem == nil {
		return nil, false
	}
	return elem.Value.(*Level), true
}

// DropLevel removes the level at price on side.
func (b *SkipListBook) DropLevel(side types.Side, price math.LegacyDec) {
	b.list(side).Remove(price)
}

// Iterate walks side best-first until fn returns false.
func (b *SkipListBook) Iterate(side types.Side, fn func(price math.LegacyDec, lvl *Level) bool) {
	elem := b.list(side).Front()
	for elem != nil {
		if !fn(elem.Key().(math.LegacyDec), elem.Value.(*Level)) {
			break
		}
		elem = elem.Next()
	}
}

// Depth returns the number of levels on side.
func (b *SkipListBook) Depth(side types.Side) int {
	return b.list(side).Len()
}

// Mid returns the mid price per the book contract.
func (b *SkipListBook) Mid() (math.LegacyDec, bool) {
	bb, _, bbOK := b.Best(types.SideBuy)
	ba, _, baOK := b.Best(types.SideSell)
	return mid(bb, bbOK, ba, baOK)
}
