package websocket

import (
	"net/http"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openalpha/classdex/metrics"
	"github.com/openalpha/classdex/session"
)

// Handler upgrades HTTP requests to WebSocket connections and starts
// the per-connection pumps. Each upgrade mints a fresh connection ID,
// which the session layer treats as the participant identity.
type Handler struct {
	dispatcher *session.Dispatcher
	upgrader   websocket.Upgrader
	logger     log.Logger
	metrics    *metrics.Collector
}

func NewHandler(dispatcher *session.Dispatcher, allowedOrigin string, logger log.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		logger:  logger.With("module", "websocket"),
		metrics: metrics.GetCollector(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(uuid.NewString(), conn, h.dispatcher, h.logger)
	h.metrics.RecordWSConnection(1)
	h.logger.Info("client connected", "conn", client.ID(), "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
