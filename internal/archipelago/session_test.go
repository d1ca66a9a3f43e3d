package archipelago_test

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quillhaven/titsbridge/internal/archipelago"
	"github.com/quillhaven/titsbridge/internal/config"
	"github.com/quillhaven/titsbridge/internal/testutil"
)

// recordingObserver captures every dispatched event on channels.
type recordingObserver struct {
	connected  chan archipelago.ConnectedPacket
	printJSON  chan archipelago.PrintJSONPacket
	deathLinks chan map[string]any

	mu           sync.Mutex
	disconnects  int
	sessionClose int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		connected:  make(chan archipelago.ConnectedPacket, 4),
		printJSON:  make(chan archipelago.PrintJSONPacket, 16),
		deathLinks: make(chan map[string]any, 4),
	}
}

func (r *recordingObserver) OnConnected(pkt archipelago.ConnectedPacket) { r.connected <- pkt }
func (r *recordingObserver) OnPrintJSON(pkt archipelago.PrintJSONPacket) { r.printJSON <- pkt }
func (r *recordingObserver) OnDeathLink(data map[string]any)             { r.deathLinks <- data }

func (r *recordingObserver) OnDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
}

func (r *recordingObserver) OnSessionClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionClose++
}

func (r *recordingObserver) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects, r.sessionClose
}

func startSession(t *testing.T, fake *testutil.FakeMultiworld, obs *recordingObserver) *archipelago.Session {
	t.Helper()

	cfg := config.ArchipelagoConfig{
		Host: "127.0.0.1",
		Port: portOf(t, fake.Addr()),
		Slot: "Player1",
	}

	session := archipelago.NewSession(cfg, zaptest.NewLogger(t), obs, obs)

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()
	t.Cleanup(func() {
		session.Stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("session did not stop in time")
		}
	})

	return session
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestSessionHandshake(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, map[string]any{
		"1": map[string]any{"name": "Player1", "game": "Clique", "type": 1},
	})
	obs := newRecordingObserver()
	startSession(t, fake, obs)

	// The Connect packet advertises the bridge capabilities.
	select {
	case raw := <-fake.ConnectPackets:
		var pkt struct {
			Cmd           string   `json:"cmd"`
			Game          string   `json:"game"`
			Name          string   `json:"name"`
			Tags          []string `json:"tags"`
			ItemsHandling int      `json:"items_handling"`
			SlotData      bool     `json:"slot_data"`
			UUID          string   `json:"uuid"`
		}
		require.NoError(t, json.Unmarshal(raw, &pkt))
		assert.Equal(t, "Connect", pkt.Cmd)
		assert.Equal(t, "", pkt.Game)
		assert.Equal(t, "Player1", pkt.Name)
		assert.ElementsMatch(t, []string{"TextOnly", "DeathLink"}, pkt.Tags)
		assert.Equal(t, 0b111, pkt.ItemsHandling, "must receive all item notifications")
		assert.False(t, pkt.SlotData, "must opt out of game-specific slot data")
		assert.NotEmpty(t, pkt.UUID)
	case <-time.After(5 * time.Second):
		t.Fatal("no Connect packet received")
	}

	select {
	case pkt := <-obs.connected:
		assert.Equal(t, 0, pkt.Team)
		assert.Equal(t, 1, pkt.Slot)
		assert.Equal(t, "Clique", pkt.SlotInfo["1"].Game)
	case <-time.After(5 * time.Second):
		t.Fatal("observer never saw Connected")
	}
}

func TestSessionDispatchesPrintJSON(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()
	startSession(t, fake, obs)
	fake.AwaitSession(5 * time.Second)

	fake.Push(map[string]any{
		"cmd":       "PrintJSON",
		"type":      "ItemSend",
		"receiving": 1,
		"item":      map[string]any{"item": 77, "location": 88, "player": 1, "flags": 1},
		"data": []map[string]any{
			{"type": "player_id", "text": "1"},
			{"type": "item_id", "text": "77", "flags": 1},
		},
	})

	select {
	case pkt := <-obs.printJSON:
		assert.Equal(t, archipelago.PrintTypeItemSend, pkt.Type)
		require.NotNil(t, pkt.Receiving)
		assert.Equal(t, 1, *pkt.Receiving)
		require.NotNil(t, pkt.Item)
		assert.Equal(t, 1, pkt.Item.Player)
		require.Len(t, pkt.Data, 2)
		assert.Nil(t, pkt.Data[0].Flags, "player part carries no flags")
		require.NotNil(t, pkt.Data[1].Flags)
		assert.Equal(t, 1, *pkt.Data[1].Flags)
	case <-time.After(5 * time.Second):
		t.Fatal("observer never saw PrintJSON")
	}
}

func TestSessionDispatchesDeathLinkBounces(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()
	startSession(t, fake, obs)
	fake.AwaitSession(5 * time.Second)

	// A bounce without the DeathLink tag is not a death link.
	fake.Push(map[string]any{
		"cmd":  "Bounced",
		"tags": []string{"Chat"},
		"data": map[string]any{"text": "hi"},
	})
	fake.Push(map[string]any{
		"cmd":  "Bounced",
		"tags": []string{"DeathLink"},
		"data": map[string]any{"source": "Player2", "cause": "lava"},
	})

	select {
	case data := <-obs.deathLinks:
		assert.Equal(t, "Player2", data["source"])
	case <-time.After(5 * time.Second):
		t.Fatal("observer never saw death link")
	}

	select {
	case data := <-obs.deathLinks:
		t.Fatalf("untagged bounce dispatched as death link: %v", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionIgnoresUnknownAndMalformedPackets(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()
	startSession(t, fake, obs)
	fake.AwaitSession(5 * time.Second)

	fake.Push(map[string]any{"cmd": "RoomUpdate", "players": []any{}})
	fake.Push(map[string]any{"no_cmd_at_all": true})

	// The session is still alive and dispatching.
	fake.Push(map[string]any{
		"cmd":  "Bounced",
		"tags": []string{"DeathLink"},
		"data": map[string]any{},
	})

	select {
	case <-obs.deathLinks:
	case <-time.After(5 * time.Second):
		t.Fatal("session stopped dispatching after unknown packets")
	}
}

func TestSessionDropInvokesDisconnectedHook(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()
	startSession(t, fake, obs)
	fake.AwaitSession(5 * time.Second)

	fake.DropSession()

	require.Eventually(t, func() bool {
		disconnects, _ := obs.counts()
		return disconnects == 1
	}, 5*time.Second, 20*time.Millisecond)

	// No session-closed hook until the session is stopped for good.
	_, closed := obs.counts()
	assert.Equal(t, 0, closed)
}

func TestSessionReconnectAfterDrop(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()
	session := startSession(t, fake, obs)
	fake.AwaitSession(5 * time.Second)
	<-obs.connected

	fake.DropSession()
	require.Eventually(t, func() bool {
		disconnects, _ := obs.counts()
		return disconnects == 1
	}, 5*time.Second, 20*time.Millisecond)

	session.Reconnect()
	fake.AwaitSession(5 * time.Second)

	select {
	case <-obs.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("no Connected after reconnect")
	}
}

func TestSessionStopInvokesSessionClosedOnce(t *testing.T) {
	fake := testutil.NewFakeMultiworld(t, 0, 1, nil)
	obs := newRecordingObserver()

	cfg := config.ArchipelagoConfig{
		Host: "127.0.0.1",
		Port: portOf(t, fake.Addr()),
		Slot: "Player1",
	}
	session := archipelago.NewSession(cfg, zaptest.NewLogger(t), obs, obs)

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()
	fake.AwaitSession(5 * time.Second)

	session.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}

	_, closed := obs.counts()
	assert.Equal(t, 1, closed)
}
