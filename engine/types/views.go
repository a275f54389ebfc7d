package types

import (
	stdmath "math"
	"strconv"

	"cosmossdk.io/math"
)

// Wire-facing view structs. Internal state keeps LegacyDec; everything a
// client sees is converted to float64 exactly once, here.

// Float converts a dec for a wire field.
func Float(d math.LegacyDec) float64 {
	f, _ := d.Float64()
	return f
}

// DecFromFloat converts a wire float to a dec, rejecting NaN, infinities,
// and values beyond dec precision.
func DecFromFloat(f float64) (math.LegacyDec, error) {
	if stdmath.IsNaN(f) || stdmath.IsInf(f, 0) {
		return math.LegacyDec{}, ErrInvalidPrice
	}
	d, err := math.LegacyNewDecFromStr(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return math.LegacyDec{}, ErrInvalidPrice
	}
	return d, nil
}

// FloatPtr converts a dec for a nullable wire field.
func FloatPtr(d math.LegacyDec) *float64 {
	f, _ := d.Float64()
	return &f
}

// FormatPx renders a price for display text without trailing zeros.
func FormatPx(d math.LegacyDec) string {
	return strconv.FormatFloat(Float(d), 'f', -1, 64)
}

// MarketMeta is one row of a markets_meta message. Settlement, BestBid and
// BestAsk are null when absent.
type MarketMeta struct {
	Symbol     string   `json:"symbol"`
	Open       bool     `json:"open"`
	Settlement *float64 `json:"settlement"`
	PosLimit   int64    `json:"posLimit"`
	ClickSize  int64    `json:"clickSize"`
	BestBid    *float64 `json:"bestBid"`
	BestAsk    *float64 `json:"bestAsk"`
	TickSize   float64  `json:"tickSize"`
}

// BookLevelView is one depth row. My is the viewer's own resting size.
type BookLevelView struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
	My    int64   `json:"my"`
}

// BookSnapshot carries the top of one market's book, bids descending and
// asks ascending.
type BookSnapshot struct {
	Symbol string          `json:"symbol"`
	Bids   []BookLevelView `json:"bids"`
	Asks   []BookLevelView `json:"asks"`
}

// PositionView is the viewer's position in one market.
type PositionView struct {
	Symbol string  `json:"symbol"`
	Qty    int64   `json:"qty"`
	Cash   float64 `json:"cash"`
	Name   string  `json:"name"`
}

// UserSummary is the viewer's per-market trading summary.
type UserSummary struct {
	Symbol   string  `json:"symbol"`
	Position int64   `json:"position"`
	AvgBuy   float64 `json:"avgBuy"`
	AvgSell  float64 `json:"avgSell"`
	BuyVol   int64   `json:"buyVol"`
	SellVol  int64   `json:"sellVol"`
}

// TradeView is the room-broadcast form of a trade.
type TradeView struct {
	TS     int64   `json:"ts"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Qty    int64   `json:"qty"`
}

// View converts a trade for broadcast.
func (t Trade) View() TradeView {
	return TradeView{TS: t.TS, Symbol: t.Symbol, Price: Float(t.Price), Qty: t.Qty}
}

// PnLView is the viewer's implied mark-to-market PnL across all markets.
type PnLView struct {
	PnL float64 `json:"pnl"`
}
