package session

import (
	"encoding/json"

	"github.com/openalpha/classdex/engine/types"
)

// Inbound command types.
const (
	MsgAdminCreateGame   = "admin_create_game"
	MsgPlayerJoin        = "player_join"
	MsgAdminToggleMarket = "admin_toggle_market"
	MsgAdminToggleAll    = "admin_toggle_all"
	MsgAdminSettle       = "admin_settle"
	MsgAdminSettleAll    = "admin_settle_all"
	MsgAdminAddEvent     = "admin_add_event"
	MsgPlaceOrder        = "place_order"
	MsgCancelAtPrice     = "cancel_at_price"
	MsgClickTrade        = "click_trade"
)

// Outbound message types.
const (
	MsgAdminAck     = "admin_ack"
	MsgJoinAck      = "join_ack"
	MsgOrderReject  = "order_reject"
	MsgMarketsMeta  = "markets_meta"
	MsgTrade        = "trade"
	MsgEvent        = "event"
	MsgBookSnapshot = "book_snapshot"
	MsgPosition     = "position"
	MsgUserSummary  = "user_summary"
	MsgPnLImplied   = "pnl_implied"
	MsgEvents       = "events"
)

// inEnvelope is the tagged frame wrapping every inbound command.
type inEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutMessage is the tagged frame wrapping every outbound message.
type OutMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound payloads.

type createGamePayload struct {
	Code          string            `json:"code"`
	AdminPassword string            `json:"adminPassword"`
	Markets       []types.MarketDef `json:"markets"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type toggleMarketPayload struct {
	Symbol string `json:"symbol"`
	Open   bool   `json:"open"`
}

type toggleAllPayload struct {
	Open bool `json:"open"`
}

type settlePayload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type settleAllPayload struct {
	PriceMap map[string]float64 `json:"priceMap"`
}

type addEventPayload struct {
	Text string `json:"text"`
}

type orderPayload struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
}

type cancelPayload struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
}

type clickPayload struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	MaxQty float64 `json:"maxQty"`
}

// Outbound payloads. Acks go to the caller only; everything else is
// either a room broadcast or part of a per-viewer bundle.

// AdminAck answers admin_create_game.
type AdminAck struct {
	OK      bool               `json:"ok"`
	Error   string             `json:"error,omitempty"`
	Code    string             `json:"code"`
	Markets []types.MarketMeta `json:"markets,omitempty"`
}

// JoinAck answers player_join.
type JoinAck struct {
	OK      bool               `json:"ok"`
	Error   string             `json:"error,omitempty"`
	Code    string             `json:"code"`
	Name    string             `json:"name,omitempty"`
	Markets []types.MarketMeta `json:"markets,omitempty"`
}

// OrderReject tells the caller a placement was refused.
type OrderReject struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// MarketsMetaMsg carries every market's meta row.
type MarketsMetaMsg struct {
	Markets []types.MarketMeta `json:"markets"`
}

// EventsMsg carries the recent slice of the session event ring.
type EventsMsg struct {
	Events []types.Event `json:"events"`
}
