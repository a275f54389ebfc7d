package session

import (
	"encoding/json"
	stdmath "math"
	"regexp"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/openalpha/classdex/engine/types"
	"github.com/openalpha/classdex/metrics"
)

var codePattern = regexp.MustCompile(`^\d{4}$`)

// Dispatcher parses inbound frames, runs the stateless checks, and
// routes commands to the owning session's worker. Checks that depend on
// session state (market existence, open flag, caller role) happen on
// the worker, which owns that state. Frames failing any check other
// than the acked create/join ones are dropped without a reply.
type Dispatcher struct {
	registry      *Registry
	adminPassword string

	mu       sync.RWMutex
	attached map[string]*Session

	logger  log.Logger
	metrics *metrics.Collector
}

func NewDispatcher(registry *Registry, adminPassword string, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		adminPassword: adminPassword,
		attached:      make(map[string]*Session),
		logger:        logger,
		metrics:       metrics.GetCollector(),
	}
}

// Handle processes one raw inbound frame from conn.
func (d *Dispatcher) Handle(conn Conn, raw []byte) {
	var env inEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		d.logger.Debug("dropping malformed frame", "conn", conn.ID())
		d.metrics.RecordWSDropped("malformed")
		return
	}
	d.metrics.RecordCommand(env.Type)

	switch env.Type {
	case MsgAdminCreateGame:
		d.handleCreateGame(conn, env.Data)
	case MsgPlayerJoin:
		d.handleJoin(conn, env.Data)
	case MsgPlaceOrder:
		d.handlePlaceOrder(conn, env.Data)
	case MsgCancelAtPrice:
		d.handleCancel(conn, env.Data)
	case MsgClickTrade:
		d.handleClick(conn, env.Data)
	case MsgAdminToggleMarket:
		d.handleToggleMarket(conn, env.Data)
	case MsgAdminToggleAll:
		d.handleToggleAll(conn, env.Data)
	case MsgAdminSettle:
		d.handleSettle(conn, env.Data)
	case MsgAdminSettleAll:
		d.handleSettleAll(conn, env.Data)
	case MsgAdminAddEvent:
		d.handleAddEvent(conn, env.Data)
	default:
		d.logger.Debug("unknown message type", "type", env.Type)
		d.metrics.RecordWSDropped("unknown_type")
	}
}

// Disconnect detaches the connection and tells its session, if any, to
// forget the viewer.
func (d *Dispatcher) Disconnect(conn Conn) {
	d.mu.Lock()
	sess, ok := d.attached[conn.ID()]
	delete(d.attached, conn.ID())
	d.mu.Unlock()
	if ok {
		sess.enqueue(disconnectCmd{connID: conn.ID()})
	}
}

// attach binds the connection to sess. A connection hopping to a new
// game is first detached from the old one so it stops receiving that
// room's fan-out.
func (d *Dispatcher) attach(conn Conn, sess *Session) {
	d.mu.Lock()
	prev := d.attached[conn.ID()]
	d.attached[conn.ID()] = sess
	d.mu.Unlock()
	if prev != nil && prev != sess {
		prev.enqueue(disconnectCmd{connID: conn.ID()})
	}
}

func (d *Dispatcher) session(connID string) *Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.attached[connID]
}

func (d *Dispatcher) handleCreateGame(conn Conn, data json.RawMessage) {
	var p createGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	if p.AdminPassword != d.adminPassword {
		send(d.metrics, conn, MsgAdminAck, AdminAck{OK: false, Error: types.ErrBadPassword.Error(), Code: p.Code})
		return
	}
	if !codePattern.MatchString(p.Code) {
		send(d.metrics, conn, MsgAdminAck, AdminAck{OK: false, Error: types.ErrBadCode.Error(), Code: p.Code})
		return
	}
	sess, created := d.registry.CreateOrGet(p.Code)
	d.attach(conn, sess)
	sess.enqueue(createGameCmd{conn: conn, markets: p.Markets, created: created})
}

func (d *Dispatcher) handleJoin(conn Conn, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess, ok := d.registry.Lookup(p.Code)
	if !ok {
		send(d.metrics, conn, MsgJoinAck, JoinAck{OK: false, Error: types.ErrGameNotFound.Error(), Code: p.Code})
		return
	}
	d.attach(conn, sess)
	sess.enqueue(joinCmd{conn: conn, name: p.Name})
}

func (d *Dispatcher) handlePlaceOrder(conn Conn, data json.RawMessage) {
	var p orderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	side, err := types.ParseSide(p.Side)
	if err != nil {
		d.metrics.RecordWSDropped("invalid_side")
		return
	}
	price, err := types.DecFromFloat(p.Price)
	if err != nil || !price.IsPositive() {
		d.metrics.RecordWSDropped("invalid_price")
		return
	}
	qty := int64(stdmath.Floor(p.Qty))
	if qty < 1 {
		d.metrics.RecordWSDropped("invalid_qty")
		return
	}
	sess.enqueue(placeOrderCmd{connID: conn.ID(), symbol: p.Symbol, side: side, price: price, qty: qty})
}

func (d *Dispatcher) handleCancel(conn Conn, data json.RawMessage) {
	var p cancelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	side, err := types.ParseSide(p.Side)
	if err != nil {
		d.metrics.RecordWSDropped("invalid_side")
		return
	}
	price, err := types.DecFromFloat(p.Price)
	if err != nil || !price.IsPositive() {
		d.metrics.RecordWSDropped("invalid_price")
		return
	}
	sess.enqueue(cancelAtPriceCmd{connID: conn.ID(), symbol: p.Symbol, side: side, price: price})
}

func (d *Dispatcher) handleClick(conn Conn, data json.RawMessage) {
	var p clickPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	side, err := types.ParseSide(p.Side)
	if err != nil {
		d.metrics.RecordWSDropped("invalid_side")
		return
	}
	price, err := types.DecFromFloat(p.Price)
	if err != nil || !price.IsPositive() {
		d.metrics.RecordWSDropped("invalid_price")
		return
	}
	maxQty := int64(stdmath.Floor(p.MaxQty))
	if maxQty < 1 {
		maxQty = 1
	}
	sess.enqueue(clickTradeCmd{connID: conn.ID(), symbol: p.Symbol, side: side, price: price, maxQty: maxQty})
}

func (d *Dispatcher) handleToggleMarket(conn Conn, data json.RawMessage) {
	var p toggleMarketPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	sess.enqueue(toggleMarketCmd{connID: conn.ID(), symbol: p.Symbol, open: p.Open})
}

func (d *Dispatcher) handleToggleAll(conn Conn, data json.RawMessage) {
	var p toggleAllPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	sess.enqueue(toggleAllCmd{connID: conn.ID(), open: p.Open})
}

func (d *Dispatcher) handleSettle(conn Conn, data json.RawMessage) {
	var p settlePayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	price, err := types.DecFromFloat(p.Price)
	if err != nil {
		d.metrics.RecordWSDropped("invalid_price")
		return
	}
	sess.enqueue(settleCmd{connID: conn.ID(), symbol: p.Symbol, price: price})
}

func (d *Dispatcher) handleSettleAll(conn Conn, data json.RawMessage) {
	var p settleAllPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	prices := make(map[string]math.LegacyDec, len(p.PriceMap))
	for sym, f := range p.PriceMap {
		px, err := types.DecFromFloat(f)
		if err != nil {
			continue
		}
		prices[sym] = px
	}
	if len(prices) == 0 {
		return
	}
	sess.enqueue(settleAllCmd{connID: conn.ID(), prices: prices})
}

func (d *Dispatcher) handleAddEvent(conn Conn, data json.RawMessage) {
	var p addEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.metrics.RecordWSDropped("malformed")
		return
	}
	sess := d.session(conn.ID())
	if sess == nil {
		d.metrics.RecordWSDropped("unattached")
		return
	}
	if strings.TrimSpace(p.Text) == "" {
		return
	}
	sess.enqueue(addEventCmd{connID: conn.ID(), text: p.Text})
}
