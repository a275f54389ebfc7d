package types

import (
	"cosmossdk.io/errors"
)

// Engine error codes. The ack-facing descriptions (bad password, bad code,
// unknown game) are the exact strings clients display.
var (
	ErrBadPassword   = errors.Register("classdex", 1, "Bad password")
	ErrBadCode       = errors.Register("classdex", 2, "Code must be 4 digits")
	ErrGameNotFound  = errors.Register("classdex", 3, "Game not found")
	ErrUnknownMarket = errors.Register("classdex", 4, "unknown market")
	ErrMarketClosed  = errors.Register("classdex", 5, "market closed")
	ErrInvalidSide   = errors.Register("classdex", 6, "invalid side")
	ErrInvalidPrice  = errors.Register("classdex", 7, "invalid price")
	ErrInvalidQty    = errors.Register("classdex", 8, "invalid quantity")
	ErrPositionLimit = errors.Register("classdex", 9, "position limit exceeded")
	ErrUnauthorized  = errors.Register("classdex", 10, "unauthorized")
)

// RejectReasonPosLimit is the order_reject reason for limit breaches.
const RejectReasonPosLimit = "pos_limit"
