package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/log"
	gorilla "github.com/gorilla/websocket"

	"github.com/openalpha/classdex/engine/types"
	"github.com/openalpha/classdex/session"
)

func newTestHandler(t *testing.T, origin string) *Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := session.NewRegistry(ctx, 5, "btree", log.NewNopLogger())
	d := session.NewDispatcher(reg, "secret", log.NewNopLogger())
	return NewHandler(d, origin, log.NewNopLogger())
}

// readUntil reads frames until one of the wanted type arrives. Frames
// may arrive batched newline-separated inside one websocket message, so
// lines not yet consumed are kept in pending for later calls.
func readUntil(t *testing.T, conn *gorilla.Conn, pending *[][]byte, typ string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		for len(*pending) > 0 {
			line := (*pending)[0]
			*pending = (*pending)[1:]
			if len(line) == 0 {
				continue
			}
			var frame struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(line, &frame); err != nil {
				t.Fatalf("bad frame %s: %v", line, err)
			}
			if frame.Type == typ {
				return frame.Data
			}
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		*pending = append(*pending, bytes.Split(msg, []byte{'\n'})...)
	}
	t.Fatalf("no %s frame before deadline", typ)
	return nil
}

func writeMsg(t *testing.T, conn *gorilla.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: typ, Data: payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(gorilla.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// TestServeWSCreateGame tests the full path from socket dial through
// game creation to the first fan-out bundle.
func TestServeWSCreateGame(t *testing.T) {
	h := newTestHandler(t, "*")
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	writeMsg(t, conn, session.MsgAdminCreateGame, map[string]any{
		"code":          "1234",
		"adminPassword": "secret",
		"markets":       []map[string]any{{"symbol": "BTC"}},
	})

	var pending [][]byte
	var ack session.AdminAck
	raw := readUntil(t, conn, &pending, session.MsgAdminAck)
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.OK || ack.Code != "1234" || len(ack.Markets) != 1 || ack.Markets[0].Symbol != "BTC" {
		t.Errorf("unexpected ack: %+v", ack)
	}

	var snap types.BookSnapshot
	raw = readUntil(t, conn, &pending, session.MsgBookSnapshot)
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Symbol != "BTC" {
		t.Errorf("expected BTC snapshot, got %+v", snap)
	}
}

// TestServeWSOriginCheck tests that a configured origin rejects foreign
// upgrade requests.
func TestServeWSOriginCheck(t *testing.T) {
	h := newTestHandler(t, "https://class.example")
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}}); err == nil {
		t.Error("expected foreign origin to be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	conn, _, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": {"https://class.example"}})
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

// TestClientSendDropsWhenFull tests the non-blocking send contract.
func TestClientSendDropsWhenFull(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	if !c.Send([]byte("one")) {
		t.Error("expected first send to fit")
	}
	if c.Send([]byte("two")) {
		t.Error("expected second send to drop")
	}
}
