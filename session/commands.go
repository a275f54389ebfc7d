package session

import (
	"errors"

	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine"
	"github.com/openalpha/classdex/engine/types"
	"github.com/openalpha/classdex/metrics"
)

// command is one unit of work for the session worker. Exec runs on the
// worker goroutine and may touch any session state.
type command interface {
	exec(s *Session)
}

// createGameCmd registers the caller as admin. Market definitions apply
// only when this call actually created the session, so re-creating an
// existing game changes nothing but the admin binding.
type createGameCmd struct {
	conn    Conn
	markets []types.MarketDef
	created bool
}

func (c createGameCmd) exec(s *Session) {
	if c.created {
		s.game.AddMarkets(c.markets)
	}
	s.game.SetAdmin(c.conn.ID())
	s.conns[c.conn.ID()] = c.conn
	s.sendTo(c.conn, MsgAdminAck, AdminAck{OK: true, Code: s.code, Markets: s.game.MarketsMeta()})
	s.flush(true)
}

type joinCmd struct {
	conn Conn
	name string
}

func (c joinCmd) exec(s *Session) {
	name := s.game.Join(c.conn.ID(), c.name)
	s.conns[c.conn.ID()] = c.conn
	s.logger.Info("player joined", "user", c.conn.ID(), "name", name)
	s.sendTo(c.conn, MsgJoinAck, JoinAck{OK: true, Code: s.code, Name: name, Markets: s.game.MarketsMeta()})
	s.flush(false)
}

type disconnectCmd struct {
	connID string
}

func (c disconnectCmd) exec(s *Session) {
	s.game.Disconnect(c.connID)
	delete(s.conns, c.connID)
}

// placeOrderCmd carries an already shape-checked limit order. Market
// existence and the open flag are checked here because they are session
// state.
type placeOrderCmd struct {
	connID string
	symbol string
	side   types.Side
	price  math.LegacyDec
	qty    int64
}

func (c placeOrderCmd) exec(s *Session) {
	m, ok := s.game.Market(c.symbol)
	if !ok || !m.Open {
		return
	}
	px := types.Snap(c.price, m.TickSize)
	if !px.IsPositive() {
		return
	}
	timer := metrics.NewTimer()
	_, err := m.PlaceLimit(c.connID, c.side, px, c.qty)
	s.metrics.RecordMatchingLatency(c.symbol, timer.ElapsedMs())
	if err != nil {
		if errors.Is(err, types.ErrPositionLimit) {
			s.metrics.RecordOrderRejected(types.RejectReasonPosLimit)
			if conn, ok := s.conns[c.connID]; ok {
				s.sendTo(conn, MsgOrderReject, OrderReject{Symbol: c.symbol, Reason: types.RejectReasonPosLimit})
			}
		}
		return
	}
	s.metrics.RecordOrderPlaced(c.symbol)
	s.flush(false)
}

type cancelAtPriceCmd struct {
	connID string
	symbol string
	side   types.Side
	price  math.LegacyDec
}

func (c cancelAtPriceCmd) exec(s *Session) {
	m, ok := s.game.Market(c.symbol)
	if !ok {
		return
	}
	removed := m.CancelAtPrice(c.connID, c.side, c.price)
	s.metrics.RecordCancel(c.symbol, removed)
	if removed > 0 {
		s.flush(false)
	}
}

type clickTradeCmd struct {
	connID string
	symbol string
	side   types.Side
	price  math.LegacyDec
	maxQty int64
}

func (c clickTradeCmd) exec(s *Session) {
	m, ok := s.game.Market(c.symbol)
	if !ok || !m.Open {
		return
	}
	timer := metrics.NewTimer()
	filled := m.TakeAtPrice(c.connID, c.side, c.price, c.maxQty)
	s.metrics.RecordMatchingLatency(c.symbol, timer.ElapsedMs())
	if filled > 0 {
		s.flush(false)
	}
}

// Admin commands check the caller's role on the worker, where role state
// lives. Non-admin callers are dropped silently.

type toggleMarketCmd struct {
	connID string
	symbol string
	open   bool
}

func (c toggleMarketCmd) exec(s *Session) {
	if s.game.Role(c.connID) != types.RoleAdmin {
		return
	}
	if err := s.game.ToggleMarket(c.symbol, c.open); err != nil {
		return
	}
	s.flush(true)
}

type toggleAllCmd struct {
	connID string
	open   bool
}

func (c toggleAllCmd) exec(s *Session) {
	if s.game.Role(c.connID) != types.RoleAdmin {
		return
	}
	s.game.ToggleAll(c.open)
	s.flush(true)
}

type settleCmd struct {
	connID string
	symbol string
	price  math.LegacyDec
}

func (c settleCmd) exec(s *Session) {
	if s.game.Role(c.connID) != types.RoleAdmin {
		return
	}
	if err := s.game.SettleMarket(c.symbol, c.price); err != nil {
		return
	}
	s.flush(true)
}

type settleAllCmd struct {
	connID string
	prices map[string]math.LegacyDec
}

func (c settleAllCmd) exec(s *Session) {
	if s.game.Role(c.connID) != types.RoleAdmin {
		return
	}
	s.game.SettleAll(c.prices)
	s.flush(true)
}

type addEventCmd struct {
	connID string
	text   string
}

func (c addEventCmd) exec(s *Session) {
	if s.game.Role(c.connID) != types.RoleAdmin {
		return
	}
	ev := s.game.AddEvent(c.text)
	s.broadcast(MsgEvent, ev)
	s.flush(false)
}

// queryCmd runs a read-only closure on the worker for the REST layer.
type queryCmd struct {
	fn    func(g *engine.Game) any
	reply chan any
}

func (c queryCmd) exec(s *Session) {
	c.reply <- c.fn(s.game)
}
