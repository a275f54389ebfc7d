package types

import (
	"strings"
	"time"

	"cosmossdk.io/math"
)

// Side represents order side
type Side int

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns the position delta direction: +1 for buy, -1 for sell.
func (s Side) Sign() int64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// Crosses reports whether a taker order priced at takerPx can trade
// against an opposite level at levelPx.
func (s Side) Crosses(takerPx, levelPx math.LegacyDec) bool {
	if s == SideBuy {
		return takerPx.GTE(levelPx)
	}
	return takerPx.LTE(levelPx)
}

// ParseSide parses the wire representation of a side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideUnspecified, ErrInvalidSide
	}
}

// Role represents a connection's role within a game
type Role int

const (
	RoleUnspecified Role = iota
	RoleAdmin
	RolePlayer
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RolePlayer:
		return "player"
	default:
		return "unspecified"
	}
}

// Order is a resting or incoming limit order. IDs are session-local and
// monotonically increasing; Leaves only ever decreases and the order is
// removed from the book when it reaches zero.
type Order struct {
	ID     int64
	UserID string
	Side   Side
	Price  math.LegacyDec // tick-snapped
	Qty    int64          // original quantity
	Leaves int64          // unfilled remainder
	TS     int64          // acceptance time, unix milliseconds
}

// NewOrder creates an order with Leaves = Qty.
func NewOrder(id int64, userID string, side Side, price math.LegacyDec, qty int64) *Order {
	return &Order{
		ID:     id,
		UserID: userID,
		Side:   side,
		Price:  price,
		Qty:    qty,
		Leaves: qty,
		TS:     time.Now().UnixMilli(),
	}
}

// Filled returns true once nothing is left to match.
func (o *Order) Filled() bool {
	return o.Leaves == 0
}

// Trade is one fill between a buyer and a seller.
type Trade struct {
	TS     int64
	Symbol string
	Price  math.LegacyDec // the resting maker's price
	Qty    int64
	Buyer  string
	Seller string
}

// Position is one user's signed inventory and cash in a single market.
// Cash goes negative on buys and positive on sells; across the two legs
// of any fill the qty deltas and cash deltas each sum to zero.
type Position struct {
	Qty  int64
	Cash math.LegacyDec
}

// NewPosition returns a flat position.
func NewPosition() *Position {
	return &Position{Qty: 0, Cash: math.LegacyZeroDec()}
}

// Apply applies one fill of qty at px to this position.
func (p *Position) Apply(side Side, qty int64, px math.LegacyDec) {
	notional := px.MulInt64(qty)
	p.Qty += side.Sign() * qty
	if side == SideBuy {
		p.Cash = p.Cash.Sub(notional)
	} else {
		p.Cash = p.Cash.Add(notional)
	}
}

// UserStats accumulates one user's traded volume and notional per market.
type UserStats struct {
	BuyVol       int64
	BuyNotional  math.LegacyDec
	SellVol      int64
	SellNotional math.LegacyDec
}

// NewUserStats returns zeroed stats.
func NewUserStats() *UserStats {
	return &UserStats{
		BuyNotional:  math.LegacyZeroDec(),
		SellNotional: math.LegacyZeroDec(),
	}
}

// Record accumulates one fill of qty at px on the given side.
func (s *UserStats) Record(side Side, qty int64, px math.LegacyDec) {
	notional := px.MulInt64(qty)
	if side == SideBuy {
		s.BuyVol += qty
		s.BuyNotional = s.BuyNotional.Add(notional)
	} else {
		s.SellVol += qty
		s.SellNotional = s.SellNotional.Add(notional)
	}
}

// AvgBuy returns the volume-weighted average buy price, zero without volume.
func (s *UserStats) AvgBuy() math.LegacyDec {
	if s.BuyVol == 0 {
		return math.LegacyZeroDec()
	}
	return s.BuyNotional.QuoInt64(s.BuyVol)
}

// AvgSell returns the volume-weighted average sell price, zero without volume.
func (s *UserStats) AvgSell() math.LegacyDec {
	if s.SellVol == 0 {
		return math.LegacyZeroDec()
	}
	return s.SellNotional.QuoInt64(s.SellVol)
}

// Event is one entry in a game's event log.
type Event struct {
	TS   int64  `json:"ts"`
	Text string `json:"text"`
}

// MarketDef is one admin-supplied market definition in admin_create_game.
type MarketDef struct {
	Symbol   string  `json:"symbol"`
	PosLimit float64 `json:"posLimit"`
	TickSize float64 `json:"tickSize"`
}

const (
	// MaxSymbolLen bounds sanitized market symbols.
	MaxSymbolLen = 16
	// DefaultSymbol replaces an empty symbol.
	DefaultSymbol = "A"
	// MaxNameLen bounds sanitized display names.
	MaxNameLen = 24
	// MaxEventLen bounds admin event texts.
	MaxEventLen = 500
	// MaxMarkets bounds markets per game; extra definitions are ignored.
	MaxMarkets = 5
)

// SanitizeSymbol uppercases, trims, and bounds a market symbol,
// substituting DefaultSymbol when nothing is left.
func SanitizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if r := []rune(s); len(r) > MaxSymbolLen {
		s = string(r[:MaxSymbolLen])
	}
	if s == "" {
		return DefaultSymbol
	}
	return s
}

// SanitizeName bounds a display name, deriving a fallback from the
// connection ID when the name is empty.
func SanitizeName(name, connID string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		id := connID
		if r := []rune(id); len(r) > 4 {
			id = string(r[:4])
		}
		return "Player-" + id
	}
	if r := []rune(name); len(r) > MaxNameLen {
		name = string(r[:MaxNameLen])
	}
	return name
}

// TruncateEvent bounds an admin event text.
func TruncateEvent(text string) string {
	if r := []rune(text); len(r) > MaxEventLen {
		return string(r[:MaxEventLen])
	}
	return text
}

var (
	minTick = math.LegacyNewDecWithPrec(1, 6) // 1e-6 floor keeps the divisor sane
	half    = math.LegacyNewDecWithPrec(5, 1)
)

// Snap rounds px to the nearest multiple of tick, ties away from zero.
// Every price entering a book passes through here, so price keys compare
// exactly.
func Snap(px, tick math.LegacyDec) math.LegacyDec {
	t := tick
	if t.LT(minTick) {
		t = minTick
	}
	q := px.Quo(t)
	n := q.Abs().Add(half).TruncateInt()
	if q.IsNegative() {
		n = n.Neg()
	}
	return t.MulInt(n)
}
