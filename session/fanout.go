package session

import (
	"encoding/json"

	"github.com/openalpha/classdex/engine"
	"github.com/openalpha/classdex/engine/types"
	"github.com/openalpha/classdex/metrics"
)

// eventsWindow is how many ring events each bundle carries.
const eventsWindow = 200

// marshal wraps a payload in the outbound envelope. Marshal errors are
// impossible for our view structs but checked anyway.
func marshal(typ string, data any) ([]byte, bool) {
	b, err := json.Marshal(OutMessage{Type: typ, Data: data})
	if err != nil {
		return nil, false
	}
	return b, true
}

// send delivers one framed message to one connection, counting it only
// when the transport accepted it.
func send(c *metrics.Collector, conn Conn, typ string, data any) {
	b, ok := marshal(typ, data)
	if !ok {
		return
	}
	if conn.Send(b) {
		c.RecordWSMessage(typ)
	} else {
		c.RecordWSDropped("slow_consumer")
	}
}

func (s *Session) sendTo(conn Conn, typ string, data any) {
	send(s.metrics, conn, typ, data)
}

// broadcast marshals once and fans the frame to every connection in the
// room.
func (s *Session) broadcast(typ string, data any) {
	b, ok := marshal(typ, data)
	if !ok {
		return
	}
	for _, conn := range s.conns {
		if conn.Send(b) {
			s.metrics.RecordWSMessage(typ)
		} else {
			s.metrics.RecordWSDropped("slow_consumer")
		}
	}
}

// flush pushes everything the last command produced: trades first in
// occurrence order, a room-wide markets_meta when admin metadata
// changed, then each viewer's personalized bundle.
func (s *Session) flush(metaChanged bool) {
	timer := metrics.NewTimer()

	for _, t := range s.game.TakeTrades() {
		s.metrics.RecordTrade(t.Symbol, t.Qty)
		s.broadcast(MsgTrade, t.View())
	}

	metas := s.game.MarketsMeta()
	if metaChanged {
		s.broadcast(MsgMarketsMeta, MarketsMetaMsg{Markets: metas})
	}

	events := s.game.RecentEvents(eventsWindow)
	for _, conn := range s.conns {
		viewer := conn.ID()
		s.sendTo(conn, MsgMarketsMeta, MarketsMetaMsg{Markets: metas})
		s.sendTo(conn, MsgEvents, EventsMsg{Events: events})
		s.game.EachMarket(func(m *engine.Market) {
			s.sendTo(conn, MsgBookSnapshot, m.Snapshot(viewer, engine.SnapshotDepth))
			s.sendTo(conn, MsgPosition, m.PositionView(viewer, s.game.Name(viewer)))
			s.sendTo(conn, MsgUserSummary, m.UserSummary(viewer))
		})
		s.sendTo(conn, MsgPnLImplied, types.PnLView{PnL: types.Float(s.game.PnLImplied(viewer))})
	}

	s.metrics.RecordFanout(timer.ElapsedMs())
}
