package book

import (
	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/types"
)

// Engine names accepted by New.
const (
	EngineBTree    = "btree"
	EngineSkipList = "skiplist"
)

// Book is one market's resting order book: two sorted price -> level
// structures, bids and asks. Implementations are not safe for concurrent
// use; the owning session worker serializes every access.
type Book interface {
	// Push rests o at its price level on its own side, creating the
	// level if absent. FIFO within the level.
	Push(o *types.Order)
	// Best returns the best level on side: highest bid, lowest ask.
	Best(side types.Side) (math.LegacyDec, *Level, bool)
	// Level returns the level at exactly price on side.
	Level(side types.Side, price math.LegacyDec) (*Level, bool)
	// DropLevel removes the level at price on side.
	DropLevel(side types.Side, price math.LegacyDec)
	// Iterate walks side best-first until fn returns false.
	Iterate(side types.Side, fn func(price math.LegacyDec, lvl *Level) bool)
	// Depth returns the number of levels on side.
	Depth(side types.Side) int
	// Mid returns (bestBid+bestAsk)/2 when both sides are populated, the
	// surviving best when only one is, and false on an empty book.
	Mid() (math.LegacyDec, bool)
}

// Verify that both implementations satisfy the interface
var (
	_ Book = (*BTreeBook)(nil)
	_ Book = (*SkipListBook)(nil)
)

// New builds a book backed by the named engine, defaulting to btree.
func New(engine string) Book {
	if engine == EngineSkipList {
		return NewSkipListBook()
	}
	return NewBTreeBook()
}

func mid(bidPx math.LegacyDec, bidOK bool, askPx math.LegacyDec, askOK bool) (math.LegacyDec, bool) {
	switch {
	case bidOK && askOK:
		return bidPx.Add(askPx).QuoInt64(2), true
	case bidOK:
		return bidPx, true
	case askOK:
		return askPx, true
	default:
		return math.LegacyDec{}, false
	}
}

// Level is a FIFO queue of resting orders at one price. Books never hold
// an empty level: the caller drops a level once its last order leaves.
type Level struct {
	Orders []*types.Order
}

// NewLevel creates an empty level.
func NewLevel() *Level {
	return &Level{Orders: make([]*types.Order, 0, 4)}
}

// Append adds o to the back of the queue.
func (l *Level) Append(o *types.Order) {
	l.Orders = append(l.Orders, o)
}

// Head returns the oldest order, nil when empty.
func (l *Level) Head() *types.Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[0]
}

// PopHead drops the oldest order.
func (l *Level) PopHead() {
	if len(l.Orders) > 0 {
		l.Orders = l.Orders[1:]
	}
}

// RemoveUser removes every order owned by userID, returning the count.
func (l *Level) RemoveUser(userID string) int {
	kept := l.Orders[:0]
	removed := 0
	for _, o := range l.Orders {
		if o.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	l.Orders = kept
	return removed
}

// Size returns the summed leaves resting at this level.
func (l *Level) Size() int64 {
	var total int64
	for _, o := range l.Orders {
		total += o.Leaves
	}
	return total
}

// SizeFor returns the summed leaves owned by userID at this level.
func (l *Level) SizeFor(userID string) int64 {
	var total int64
	for _, o := range l.Orders {
		if o.UserID == userID {
			total += o.Leaves
		}
	}
	return total
}

// Empty returns true when no orders rest here.
func (l *Level) Empty() bool {
	return len(l.Orders) == 0
}
