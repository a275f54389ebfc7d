package engine

import (
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/types"
)

// eventsMax bounds the session event ring; the oldest entries drop.
const eventsMax = 500

// Game is one session's entire state: its markets, connection roles and
// display names, and the event log. A single session worker owns each
// Game; nothing here is safe for concurrent use.
type Game struct {
	Code string

	markets map[string]*Market
	symbols []string // creation order, drives every market iteration
	names   map[string]string
	roles   map[string]types.Role
	events  []types.Event

	nextOrderID   int64
	clickSize     int64
	bookEngine    string
	pendingTrades []types.Trade

	logger log.Logger
}

// NewGame creates an empty game for code.
func NewGame(code string, clickSize int64, bookEngine string, logger log.Logger) *Game {
	return &Game{
		Code:       code,
		markets:    make(map[string]*Market),
		names:      make(map[string]string),
		roles:      make(map[string]types.Role),
		events:     make([]types.Event, 0, 64),
		clickSize:  clickSize,
		bookEngine: bookEngine,
		logger:     logger.With("game", code),
	}
}

func (g *Game) allocOrderID() int64 {
	g.nextOrderID++
	return g.nextOrderID
}

func (g *Game) collectTrade(t types.Trade) {
	g.pendingTrades = append(g.pendingTrades, t)
}

// TakeTrades drains the trades emitted since the last call, in
// occurrence order.
func (g *Game) TakeTrades() []types.Trade {
	out := g.pendingTrades
	g.pendingTrades = nil
	return out
}

// AddMarkets creates markets from admin-supplied definitions: the first
// MaxMarkets entries, sanitized symbols, defaults for missing tick and
// limit. Duplicate symbols keep the first definition.
func (g *Game) AddMarkets(defs []types.MarketDef) {
	for i, def := range defs {
		if i >= types.MaxMarkets {
			break
		}
		sym := types.SanitizeSymbol(def.Symbol)
		if _, exists := g.markets[sym]; exists {
			continue
		}
		tick := DefaultTickSize
		if d, err := types.DecFromFloat(def.TickSize); err == nil && d.IsPositive() {
			tick = d
		}
		posLimit := DefaultPosLimit
		if def.PosLimit >= 1 {
			posLimit = int64(def.PosLimit)
		}
		m := NewMarket(sym, tick, posLimit, g.clickSize, g.bookEngine, g.allocOrderID)
		m.OnTrade(g.collectTrade)
		g.markets[sym] = m
		g.symbols = append(g.symbols, sym)
		g.logger.Info("market created", "symbol", sym, "tick", tick.String(), "pos_limit", posLimit)
	}
}

// Market returns the market for symbol.
func (g *Game) Market(symbol string) (*Market, bool) {
	m, ok := g.markets[symbol]
	return m, ok
}

// EachMarket visits markets in creation order.
func (g *Game) EachMarket(fn func(m *Market)) {
	for _, sym := range g.symbols {
		fn(g.markets[sym])
	}
}

// SetAdmin marks the connection as the session admin.
func (g *Game) SetAdmin(connID string) {
	g.roles[connID] = types.RoleAdmin
	if _, ok := g.names[connID]; !ok {
		g.names[connID] = "Admin"
	}
}

// Join registers the connection as a player, returning the sanitized
// display name.
func (g *Game) Join(connID, name string) string {
	n := types.SanitizeName(name, connID)
	g.names[connID] = n
	g.roles[connID] = types.RolePlayer
	return n
}

// Disconnect drops the connection's name and role. Resting orders and
// ledger entries stay keyed by the defunct connection ID.
func (g *Game) Disconnect(connID string) {
	delete(g.names, connID)
	delete(g.roles, connID)
}

// Role returns the connection's role, RoleUnspecified when unknown.
func (g *Game) Role(connID string) types.Role {
	return g.roles[connID]
}

// Name returns the connection's display name.
func (g *Game) Name(connID string) string {
	return g.names[connID]
}

// ToggleMarket flips one market. Unknown symbols error; settled markets
// stay closed.
func (g *Game) ToggleMarket(symbol string, open bool) error {
	m, ok := g.markets[symbol]
	if !ok {
		return types.ErrUnknownMarket
	}
	m.SetOpen(open)
	return nil
}

// ToggleAll flips every market.
func (g *Game) ToggleAll(open bool) {
	g.EachMarket(func(m *Market) {
		m.SetOpen(open)
	})
}

// SettleMarket settles one market at the snapped price and logs it to
// the event ring.
func (g *Game) SettleMarket(symbol string, price math.LegacyDec) error {
	m, ok := g.markets[symbol]
	if !ok {
		return types.ErrUnknownMarket
	}
	px := m.Settle(price)
	g.AddEvent(symbol + " settled @ " + types.FormatPx(px))
	g.logger.Info("market settled", "symbol", symbol, "price", px.String())
	return nil
}

// SettleAll settles every symbol present in prices; unknown symbols are
// skipped.
func (g *Game) SettleAll(prices map[string]math.LegacyDec) {
	for _, sym := range g.symbols {
		if px, ok := prices[sym]; ok {
			_ = g.SettleMarket(sym, px)
		}
	}
}

// AddEvent appends a truncated event text to the ring and returns it.
func (g *Game) AddEvent(text string) types.Event {
	ev := types.Event{TS: time.Now().UnixMilli(), Text: types.TruncateEvent(text)}
	g.events = append(g.events, ev)
	if len(g.events) > eventsMax {
		g.events = g.events[len(g.events)-eventsMax:]
	}
	return ev
}

// RecentEvents returns up to n events, oldest first.
func (g *Game) RecentEvents(n int) []types.Event {
	if n <= 0 || n > len(g.events) {
		n = len(g.events)
	}
	out := make([]types.Event, n)
	copy(out, g.events[len(g.events)-n:])
	return out
}

// PnLImplied is the user's mark-to-market PnL summed across markets:
// cash + qty * impliedPx per market.
func (g *Game) PnLImplied(userID string) math.LegacyDec {
	total := math.LegacyZeroDec()
	g.EachMarket(func(m *Market) {
		p := m.Ledger().Get(userID)
		total = total.Add(p.Cash.Add(m.ImpliedPx().MulInt64(p.Qty)))
	})
	return total
}
