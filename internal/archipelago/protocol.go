// Package archipelago implements the client side of an Archipelago
// multiworld session: websocket transport, the connect handshake, and
// dispatch of inbound packets to observer interfaces.
package archipelago

import "encoding/json"

// Packet command names used on the wire. Packets travel in JSON arrays;
// every element carries a "cmd" discriminator.
const (
	cmdRoomInfo          = "RoomInfo"
	cmdConnect           = "Connect"
	cmdConnected         = "Connected"
	cmdConnectionRefused = "ConnectionRefused"
	cmdPrintJSON         = "PrintJSON"
	cmdBounced           = "Bounced"
)

// PrintJSON packet types the bridge reacts to. Other types pass through
// unhandled.
const (
	PrintTypeItemSend = "ItemSend"
	PrintTypeGoal     = "Goal"
)

// deathLinkTag marks Bounced packets carrying a death-link broadcast.
const deathLinkTag = "DeathLink"

// NetworkVersion identifies the protocol version in the handshake.
type NetworkVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

// protocolVersion is the server protocol generation this client speaks.
func protocolVersion() NetworkVersion {
	return NetworkVersion{Major: 0, Minor: 5, Build: 1, Class: "Version"}
}

// basePacket is decoded first to discover a packet's command.
type basePacket struct {
	Cmd string `json:"cmd"`
}

// RoomInfoPacket is the server's greeting. Only the fields the session
// consumes are declared.
type RoomInfoPacket struct {
	Version  NetworkVersion `json:"version"`
	Password bool           `json:"password"`
	SeedName string         `json:"seed_name"`
}

// ConnectPacket is the session handshake sent in response to RoomInfo.
//
// ItemsHandling 0b111 declares interest in every item notification
// regardless of classification; SlotData false opts out of game-specific
// slot configuration data.
type ConnectPacket struct {
	Cmd           string         `json:"cmd"`
	Game          string         `json:"game"`
	Name          string         `json:"name"`
	Password      string         `json:"password"`
	UUID          string         `json:"uuid"`
	Version       NetworkVersion `json:"version"`
	Tags          []string       `json:"tags"`
	ItemsHandling int            `json:"items_handling"`
	SlotData      bool           `json:"slot_data"`
}

// NetworkSlot describes one slot in the multiworld roster.
type NetworkSlot struct {
	Name         string `json:"name"`
	Game         string `json:"game"`
	Type         int    `json:"type"`
	GroupMembers []int  `json:"group_members"`
}

// ConnectedPacket confirms a successful handshake.
type ConnectedPacket struct {
	Team     int                    `json:"team"`
	Slot     int                    `json:"slot"`
	SlotInfo map[string]NetworkSlot `json:"slot_info"`
}

// ConnectionRefusedPacket reports handshake rejection reasons.
type ConnectionRefusedPacket struct {
	Errors []string `json:"errors"`
}

// NetworkItem is the item payload attached to ItemSend notifications.
type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

// JSONMessagePart is one fragment of a PrintJSON message. Flags is a
// pointer so a fragment without a classification flag is distinguishable
// from one flagged zero (filler).
type JSONMessagePart struct {
	Type  string `json:"type,omitempty"`
	Text  string `json:"text,omitempty"`
	Flags *int   `json:"flags,omitempty"`
}

// PrintJSONPacket is a display notification from the server. ItemSend
// packets carry Receiving and Item; Goal packets carry Team and Slot.
type PrintJSONPacket struct {
	Type      string            `json:"type"`
	Data      []JSONMessagePart `json:"data"`
	Receiving *int              `json:"receiving,omitempty"`
	Item      *NetworkItem      `json:"item,omitempty"`
	Team      *int              `json:"team,omitempty"`
	Slot      *int              `json:"slot,omitempty"`
}

// BouncedPacket is a relayed broadcast. Death-link notifications arrive as
// Bounced packets tagged "DeathLink".
type BouncedPacket struct {
	Tags []string       `json:"tags"`
	Data map[string]any `json:"data"`
}

// isDeathLink reports whether the bounce carries a death-link broadcast.
func (b BouncedPacket) isDeathLink() bool {
	for _, tag := range b.Tags {
		if tag == deathLinkTag {
			return true
		}
	}
	return false
}

// decodePacketList splits a raw websocket frame into individual packets.
func decodePacketList(frame []byte) ([]json.RawMessage, error) {
	var packets []json.RawMessage
	if err := json.Unmarshal(frame, &packets); err != nil {
		return nil, err
	}
	return packets, nil
}
