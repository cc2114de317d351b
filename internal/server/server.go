// Package server is the localhost WebSocket bridge between the daemon and
// the browser extension. The extension is the only expected client; a new
// connection replaces the old one.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// IncomingMsg is a message from the extension. Every request carries a
// correlation id that the response echoes back.
type IncomingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// capture
	Page     json.RawMessage `json:"page,omitempty"`
	BundleID string          `json:"bundleId,omitempty"`
	Replace  bool            `json:"replace,omitempty"`

	// lookup
	URL string `json:"url,omitempty"`

	// screenshot
	EventID   string `json:"eventId,omitempty"`
	EventName string `json:"eventName,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Data      string `json:"data,omitempty"` // base64, optionally a data URL

	// settings
	Settings json.RawMessage `json:"settings,omitempty"`
}

// QueuePayload mirrors one upload queue item for the extension popup.
type QueuePayload struct {
	ID        string `json:"id"`
	EventID   string `json:"eventId"`
	EventName string `json:"eventName,omitempty"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
}

// LookupPayload is the classification result for a lookup request.
type LookupPayload struct {
	Kind  string              `json:"kind"`
	Event *types.MatchedEvent `json:"event,omitempty"`
}

// BadgePayload drives the extension's toolbar badge.
type BadgePayload struct {
	Kind  string `json:"kind"`
	Count int    `json:"count,omitempty"`
}

// CaptureAck reports where a captured page landed.
type CaptureAck struct {
	BundleID       string `json:"bundleId"`
	BundleName     string `json:"bundleName"`
	PageCount      int    `json:"pageCount"`
	DuplicateIndex *int   `json:"duplicateIndex,omitempty"`
}

// OutgoingMsg is a message to the extension. ID echoes the request's
// correlation id when the message is a response; push messages leave it
// empty.
type OutgoingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Lookup  *LookupPayload `json:"lookup,omitempty"`
	Queue   []QueuePayload `json:"queue,omitempty"`
	Badge   *BadgePayload  `json:"badge,omitempty"`
	Capture *CaptureAck    `json:"capture,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Server owns the extension connection and the inbound message channel.
type Server struct {
	port    int
	msgs    chan IncomingMsg
	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
}

// New creates a Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port: port,
		msgs: make(chan IncomingMsg, 64),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of incoming extension messages.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes a message to the connected extension. With no connection it
// is a no-op; pushes to a disconnected extension are not worth an error.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	applog.Info("ws.send", "type", msg.Type, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("websocket accept: %v", err)
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB — captures carry full HTML and screenshots

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "id", msg.ID)
			select {
			case s.msgs <- msg:
			default:
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
