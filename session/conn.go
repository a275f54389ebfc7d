package session

// Conn is the transport half of one connected viewer: a stable identity
// plus a non-blocking send. The connection ID doubles as the trading
// user ID for the lifetime of the socket. Send reports false when the
// frame was dropped because the client could not keep up.
type Conn interface {
	ID() string
	Send(data []byte) bool
}
