// Package bridge relays qualifying multiworld events to the overlay
// application as named trigger activations.
package bridge

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/quillhaven/titsbridge/internal/archipelago"
	"github.com/quillhaven/titsbridge/internal/tits"
)

// Overlay is the overlay-client capability the bridge depends on.
// *tits.Client satisfies it.
type Overlay interface {
	Connect(ctx context.Context, port int) error
	Activate(ctx context.Context, name string)
	Close()
	Connected() bool
	Port() int
	SetAlias(alias string)
	Triggers() []tits.Entry
}

// Bridge owns the overlay connection lifecycle and translates coordination
// server events into overlay trigger activations. It implements
// archipelago.Observer and archipelago.LifecycleHooks.
//
// All session state lives on this one struct; there are no package-level
// globals.
type Bridge struct {
	logger  *zap.Logger
	overlay Overlay

	mu       sync.Mutex
	team     int
	slot     int
	groups   map[int]bool
	game     string
	lastPort int
}

// New creates a Bridge that relays to the given overlay client.
//
// Precondition: logger and overlay must be non-nil; port must be 1-65535.
func New(logger *zap.Logger, overlay Overlay, port int) *Bridge {
	return &Bridge{
		logger:   logger,
		overlay:  overlay,
		groups:   make(map[int]bool),
		lastPort: port,
	}
}

// fireAll dispatches the given triggers in order on a single background
// goroutine. The caller never waits: handler completion does not imply the
// triggers were delivered. Failures are logged inside the overlay client.
func (b *Bridge) fireAll(names ...string) {
	go func() {
		for _, name := range names {
			b.overlay.Activate(context.Background(), name)
		}
	}()
}

// slotConcernsSelf reports whether the given slot number is the local slot
// or an item-link group containing it.
func (b *Bridge) slotConcernsSelf(slot int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slot == b.slot || b.groups[slot]
}

// OnConnected records the local slot identity and connects to the overlay
// on the last configured port. The overlay connect is fire-and-forget, same
// as trigger sends.
func (b *Bridge) OnConnected(pkt archipelago.ConnectedPacket) {
	b.mu.Lock()
	b.team = pkt.Team
	b.slot = pkt.Slot
	b.game = ""
	b.groups = make(map[int]bool)
	for key, info := range pkt.SlotInfo {
		num, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if num == pkt.Slot {
			b.game = info.Game
		}
		for _, member := range info.GroupMembers {
			if member == pkt.Slot {
				b.groups[num] = true
			}
		}
	}
	port := b.lastPort
	game := b.game
	b.mu.Unlock()

	b.logger.Info("relaying events for session",
		zap.Int("team", pkt.Team),
		zap.Int("slot", pkt.Slot),
		zap.String("game", game),
	)

	go func() {
		_ = b.overlay.Connect(context.Background(), port)
	}()
}

// OnPrintJSON classifies display notifications and fires the matching
// triggers. Item receipts fire AP-Receive whenever the local participant is
// both the receiving and the originating party, plus one classification
// trigger when every flag-bearing message part shares the exact same known
// classification. Goal completions matching the local team or slot fire
// AP-Goal. Everything else is ignored.
func (b *Bridge) OnPrintJSON(pkt archipelago.PrintJSONPacket) {
	switch pkt.Type {
	case archipelago.PrintTypeItemSend:
		if pkt.Receiving == nil || pkt.Item == nil {
			return
		}
		if !b.slotConcernsSelf(*pkt.Receiving) || !b.slotConcernsSelf(pkt.Item.Player) {
			return
		}

		names := []string{TriggerReceive}
		if name, ok := ClassificationTrigger(collectFlags(pkt.Data)); ok {
			names = append(names, name)
		}
		b.fireAll(names...)

	case archipelago.PrintTypeGoal:
		b.mu.Lock()
		team := b.team
		b.mu.Unlock()
		if (pkt.Team != nil && *pkt.Team == team) || (pkt.Slot != nil && b.slotConcernsSelf(*pkt.Slot)) {
			b.fireAll(TriggerGoal)
		}
	}
}

// collectFlags gathers the classification flags of the flag-bearing message
// parts, preserving order.
func collectFlags(parts []archipelago.JSONMessagePart) []int {
	var flags []int
	for _, part := range parts {
		if part.Flags != nil {
			flags = append(flags, *part.Flags)
		}
	}
	return flags
}

// OnDeathLink fires AP-Deathlink for every death-link broadcast, regardless
// of which participant died.
func (b *Bridge) OnDeathLink(data map[string]any) {
	if source, ok := data["source"].(string); ok {
		b.logger.Debug("death link received", zap.String("source", source))
	}
	b.fireAll(TriggerDeathlink)
}

// OnDisconnected clears transient per-session state. The overlay connection
// stays up so a session reconnect resumes relaying without operator action.
func (b *Bridge) OnDisconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.game = ""
}

// OnSessionClosed closes the overlay connection if open.
func (b *Bridge) OnSessionClosed() {
	b.overlay.Close()
}

// ConnectOverlay connects (or reconnects) to the overlay application. A
// non-positive port means "the last configured port".
//
// Postcondition: The given port becomes the last configured port when positive.
func (b *Bridge) ConnectOverlay(ctx context.Context, port int) error {
	b.mu.Lock()
	if port <= 0 {
		port = b.lastPort
	}
	b.lastPort = port
	b.mu.Unlock()

	return b.overlay.Connect(ctx, port)
}

// SetAlias changes the correlation token sent with overlay requests.
func (b *Bridge) SetAlias(alias string) {
	b.overlay.SetAlias(alias)
	b.logger.Info("overlay alias updated", zap.String("alias", alias))
}

// Status is a point-in-time report of the overlay connection.
type Status struct {
	Connected bool
	Port      int
	Triggers  []tits.Entry
}

// Status reports whether the overlay connection is active and, if so, every
// currently known trigger. Side-effect free.
func (b *Bridge) Status() Status {
	st := Status{
		Connected: b.overlay.Connected(),
		Port:      b.overlay.Port(),
	}
	if st.Connected {
		st.Triggers = b.overlay.Triggers()
	}
	return st
}
