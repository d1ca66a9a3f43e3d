// Package testutil provides in-process fake servers for integration testing:
// a fake T.I.T.S. overlay API and a fake multiworld coordination server.
package testutil

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// OverlayTrigger is one trigger the fake overlay reports in its trigger list.
type OverlayTrigger struct {
	Name string `json:"name"`
	ID   string `json:"ID"`
}

// FakeOverlay is an in-process stand-in for the T.I.T.S. overlay websocket
// API. It answers trigger-list requests with a configured set of triggers,
// acknowledges everything else, and records every activate payload.
type FakeOverlay struct {
	t        *testing.T
	server   *httptest.Server
	triggers []OverlayTrigger
	open     atomic.Int32

	// ListRequests receives the raw payload of every trigger-list request.
	ListRequests chan []byte
	// Activations receives the raw payload of every non-list request.
	Activations chan []byte
}

// NewFakeOverlay starts a fake overlay serving the given triggers.
//
// Postcondition: Returns a running fake whose server is shut down via t.Cleanup.
func NewFakeOverlay(t *testing.T, triggers []OverlayTrigger) *FakeOverlay {
	t.Helper()

	f := &FakeOverlay{
		t:            t,
		triggers:     triggers,
		ListRequests: make(chan []byte, 16),
		Activations:  make(chan []byte, 16),
	}

	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	return f
}

// Port returns the TCP port the fake overlay listens on.
func (f *FakeOverlay) Port() int {
	f.t.Helper()
	_, portStr, err := net.SplitHostPort(f.server.Listener.Addr().String())
	if err != nil {
		f.t.Fatalf("splitting overlay listener address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		f.t.Fatalf("parsing overlay listener port: %v", err)
	}
	return port
}

// OpenConnections reports how many websocket sessions are currently live on
// the fake's side.
func (f *FakeOverlay) OpenConnections() int {
	return int(f.open.Load())
}

// SetTriggers replaces the trigger list served to subsequent list requests.
func (f *FakeOverlay) SetTriggers(triggers []OverlayTrigger) {
	f.triggers = triggers
}

func (f *FakeOverlay) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	f.open.Add(1)
	defer f.open.Add(-1)

	ctx := r.Context()
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var envelope struct {
			MessageType string `json:"messageType"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			continue
		}

		switch envelope.MessageType {
		case "TITSTriggerListRequest":
			f.ListRequests <- payload
			resp := map[string]any{
				"messageType": "TITSTriggerListResponse",
				"data":        map[string]any{"triggers": f.triggers},
			}
			body, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
				return
			}
		default:
			f.Activations <- payload
			ack, _ := json.Marshal(map[string]any{"messageType": envelope.MessageType + "Response"})
			if err := conn.Write(ctx, websocket.MessageText, ack); err != nil {
				return
			}
		}
	}
}

// WaitActivation returns the next recorded activate payload, failing the test
// after the timeout.
func (f *FakeOverlay) WaitActivation(timeout time.Duration) []byte {
	f.t.Helper()
	select {
	case payload := <-f.Activations:
		return payload
	case <-time.After(timeout):
		f.t.Fatalf("no overlay activation within %s", timeout)
		return nil
	}
}

// AssertNoActivation fails the test if an activate payload arrives within
// the given window.
func (f *FakeOverlay) AssertNoActivation(window time.Duration) {
	f.t.Helper()
	select {
	case payload := <-f.Activations:
		f.t.Fatalf("unexpected overlay activation: %s", payload)
	case <-time.After(window):
	}
}

// drainContext is a helper for fakes needing a cancellable read context.
func drainContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
