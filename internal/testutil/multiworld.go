package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// FakeMultiworld is an in-process stand-in for an Archipelago coordination
// server: it greets with RoomInfo, answers the Connect handshake with a
// configurable Connected packet, and lets tests push arbitrary packets.
type FakeMultiworld struct {
	t      *testing.T
	server *httptest.Server

	// Team, Slot, and SlotInfo shape the Connected packet.
	Team     int
	Slot     int
	SlotInfo map[string]any

	// ConnectPackets receives the raw Connect packet of every handshake.
	ConnectPackets chan []byte

	mu      sync.Mutex
	conn    *websocket.Conn
	session chan struct{}
}

// NewFakeMultiworld starts a fake coordination server.
//
// Postcondition: Returns a running fake whose server is shut down via t.Cleanup.
func NewFakeMultiworld(t *testing.T, team, slot int, slotInfo map[string]any) *FakeMultiworld {
	t.Helper()

	f := &FakeMultiworld{
		t:              t,
		Team:           team,
		Slot:           slot,
		SlotInfo:       slotInfo,
		ConnectPackets: make(chan []byte, 4),
		session:        make(chan struct{}, 4),
	}

	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	return f
}

// Addr returns the "host:port" address of the fake server.
func (f *FakeMultiworld) Addr() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

func (f *FakeMultiworld) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()

	roomInfo := []map[string]any{{
		"cmd":       "RoomInfo",
		"version":   map[string]any{"major": 0, "minor": 5, "build": 1, "class": "Version"},
		"password":  false,
		"seed_name": "testseed",
	}}
	if err := f.write(ctx, conn, roomInfo); err != nil {
		return
	}

	// Handshake: expect a frame holding the Connect packet.
	_, frame, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var packets []json.RawMessage
	if err := json.Unmarshal(frame, &packets); err != nil || len(packets) == 0 {
		return
	}
	f.ConnectPackets <- packets[0]

	connected := []map[string]any{{
		"cmd":       "Connected",
		"team":      f.Team,
		"slot":      f.Slot,
		"slot_info": f.SlotInfo,
	}}
	if err := f.write(ctx, conn, connected); err != nil {
		return
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.session <- struct{}{}

	// Discard anything else the client sends; the test drives the rest.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (f *FakeMultiworld) write(ctx context.Context, conn *websocket.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		f.t.Errorf("marshalling fake packet: %v", err)
		return err
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// AwaitSession blocks until a handshake completes, failing the test on timeout.
func (f *FakeMultiworld) AwaitSession(timeout time.Duration) {
	f.t.Helper()
	select {
	case <-f.session:
	case <-time.After(timeout):
		f.t.Fatalf("no session established within %s", timeout)
	}
}

// Push sends the given packets to the connected client as one frame.
//
// Precondition: a session must be established (see AwaitSession).
func (f *FakeMultiworld) Push(packets ...any) {
	f.t.Helper()

	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		f.t.Fatal("no client connected")
	}

	if err := f.write(drainContext(f.t), conn, packets); err != nil {
		f.t.Fatalf("pushing packets: %v", err)
	}
}

// DropSession closes the server side of the current session.
func (f *FakeMultiworld) DropSession() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "dropping session")
	}
}
