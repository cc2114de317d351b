package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestServerAcceptsConnection(t *testing.T) {
	srv := New(0) // port 0 = pick any free port
	msgs := srv.Messages()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	req := IncomingMsg{Type: "lookup", ID: "req-1", URL: "https://runfest.org"}
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Type != "lookup" || msg.ID != "req-1" {
			t.Errorf("got %+v, want lookup/req-1", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestServerSendsResponse(t *testing.T) {
	srv := New(0)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Give server a moment to register the connection
	time.Sleep(50 * time.Millisecond)

	resp := OutgoingMsg{
		Type:   "lookup_result",
		ID:     "req-1",
		Lookup: &LookupPayload{Kind: "no_match"},
	}
	srv.Send(resp)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got OutgoingMsg
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "req-1" || got.Type != "lookup_result" {
		t.Errorf("got %+v, want req-1/lookup_result", got)
	}
	if got.Lookup == nil || got.Lookup.Kind != "no_match" {
		t.Errorf("lookup payload = %+v", got.Lookup)
	}
}

func TestServerSendWithoutConnection(t *testing.T) {
	srv := New(0)
	if err := srv.Send(OutgoingMsg{Type: "badge"}); err != nil {
		t.Errorf("send without connection: %v", err)
	}
	if srv.Connected() {
		t.Error("Connected() = true with no client")
	}
}

func TestServerReplacesConnection(t *testing.T) {
	srv := New(0)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	first, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.CloseNow()
	time.Sleep(50 * time.Millisecond)

	second, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.CloseNow()
	time.Sleep(50 * time.Millisecond)

	srv.Send(OutgoingMsg{Type: "badge", Badge: &BadgePayload{Kind: "event"}})

	// Only the second connection receives it; the first was closed.
	_, data, err := second.Read(ctx)
	if err != nil {
		t.Fatalf("read on second: %v", err)
	}
	var got OutgoingMsg
	json.Unmarshal(data, &got)
	if got.Type != "badge" {
		t.Errorf("got type %q, want badge", got.Type)
	}

	if _, _, err := first.Read(ctx); err == nil {
		t.Error("first connection still readable after replacement")
	}
}
