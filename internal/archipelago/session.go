package archipelago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/quillhaven/titsbridge/internal/config"
)

const (
	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 16 << 20
)

// sessionTags advertise the client capabilities: no game of its own, and a
// subscriber to death-link broadcasts.
var sessionTags = []string{"TextOnly", "DeathLink"}

// itemsHandlingAll requests every item notification regardless of origin.
const itemsHandlingAll = 0b111

// Observer receives the game events a session delivers. Implementations
// must not block: packet dispatch runs on the session read loop.
type Observer interface {
	// OnConnected is invoked once per successful session handshake.
	OnConnected(pkt ConnectedPacket)
	// OnPrintJSON is invoked for every display notification, including
	// item-send and goal-completion events.
	OnPrintJSON(pkt PrintJSONPacket)
	// OnDeathLink is invoked for every death-link broadcast, regardless of
	// which participant died.
	OnDeathLink(data map[string]any)
}

// LifecycleHooks receives connection lifecycle transitions.
type LifecycleHooks interface {
	// OnDisconnected is invoked when an established session drops. Transient
	// per-session state should be cleared; independent connections stay up.
	OnDisconnected()
	// OnSessionClosed is invoked exactly once when the session shuts down
	// for good. Dependent connections should be closed.
	OnSessionClosed()
}

// Session maintains the websocket connection to the coordination server and
// dispatches inbound packets to the configured observer and hooks.
//
// There is no automatic reconnect: after a drop the session waits until the
// operator requests a reconnect or the session is stopped.
type Session struct {
	cfg      config.ArchipelagoConfig
	logger   *zap.Logger
	observer Observer
	hooks    LifecycleHooks

	mu   sync.Mutex
	conn *websocket.Conn

	reconnectCh chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewSession creates a Session.
//
// Precondition: logger, observer, and hooks must be non-nil; cfg must be valid.
func NewSession(cfg config.ArchipelagoConfig, logger *zap.Logger, observer Observer, hooks LifecycleHooks) *Session {
	return &Session{
		cfg:         cfg,
		logger:      logger,
		observer:    observer,
		hooks:       hooks,
		reconnectCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Run connects to the coordination server and serves the session until Stop
// is called or the context is cancelled. After a connection failure or drop
// it parks until Reconnect is invoked.
//
// Postcondition: OnSessionClosed has been invoked exactly once on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.hooks.OnSessionClosed()

	for {
		established, err := s.connectAndServe(ctx)
		if s.stopping(ctx) {
			return nil
		}
		if err != nil {
			s.logger.Warn("session ended", zap.Error(err))
		}
		if established {
			s.hooks.OnDisconnected()
		}
		s.logger.Info("not connected to the multiworld; use the 'reconnect' command to try again")

		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.reconnectCh:
		}
	}
}

// Reconnect requests a new connection attempt after a drop. Harmless while
// a session is still up; the request is consumed by the next park.
func (s *Session) Reconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// Stop shuts the session down, closing the server connection if open.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.closeConn(websocket.StatusNormalClosure, "client shutting down")
	})
}

func (s *Session) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// connectAndServe dials the server and runs the read loop until the
// connection drops. The returned bool reports whether a connection was
// established at all.
func (s *Session) connectAndServe(ctx context.Context) (bool, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer s.closeConn(websocket.StatusNormalClosure, "")

	s.logger.Info("connected to coordination server", zap.String("addr", s.cfg.Addr()))

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("reading from server: %w", err)
		}

		packets, err := decodePacketList(frame)
		if err != nil {
			s.logger.Warn("malformed packet list from server", zap.Error(err))
			continue
		}

		for _, raw := range packets {
			if err := s.dispatch(ctx, conn, raw); err != nil {
				return true, err
			}
		}
	}
}

// dial attempts a secure websocket connection first and falls back to
// plaintext for servers without TLS.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var errs []string
	for _, scheme := range []string{"wss", "ws"} {
		url := fmt.Sprintf("%s://%s", scheme, s.cfg.Addr())
		conn, _, err := websocket.Dial(dialCtx, url, nil)
		if err == nil {
			conn.SetReadLimit(readLimit)
			return conn, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", url, err))
	}
	return nil, fmt.Errorf("dialing coordination server: %s", strings.Join(errs, "; "))
}

// dispatch decodes a single packet and routes it. A decode failure of one
// packet is logged and skipped; only handshake rejection aborts the session.
func (s *Session) dispatch(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
	var base basePacket
	if err := json.Unmarshal(raw, &base); err != nil {
		s.logger.Warn("packet without command", zap.Error(err))
		return nil
	}

	switch base.Cmd {
	case cmdRoomInfo:
		var pkt RoomInfoPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			s.logger.Warn("malformed RoomInfo packet", zap.Error(err))
			return nil
		}
		s.logger.Info("room info received",
			zap.String("seed", pkt.SeedName),
			zap.Bool("password_required", pkt.Password),
		)
		return s.sendConnect(ctx, conn)

	case cmdConnected:
		var pkt ConnectedPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			s.logger.Warn("malformed Connected packet", zap.Error(err))
			return nil
		}
		s.logger.Info("session established",
			zap.Int("team", pkt.Team),
			zap.Int("slot", pkt.Slot),
		)
		s.observer.OnConnected(pkt)

	case cmdConnectionRefused:
		var pkt ConnectionRefusedPacket
		_ = json.Unmarshal(raw, &pkt)
		return fmt.Errorf("connection refused by server: %s", strings.Join(pkt.Errors, ", "))

	case cmdPrintJSON:
		var pkt PrintJSONPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			s.logger.Warn("malformed PrintJSON packet", zap.Error(err))
			return nil
		}
		s.observer.OnPrintJSON(pkt)

	case cmdBounced:
		var pkt BouncedPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			s.logger.Warn("malformed Bounced packet", zap.Error(err))
			return nil
		}
		if pkt.isDeathLink() {
			s.observer.OnDeathLink(pkt.Data)
		}

	default:
		// ReceivedItems, RoomUpdate, and friends carry nothing the bridge
		// reacts to.
	}
	return nil
}

// sendConnect performs the session handshake.
func (s *Session) sendConnect(ctx context.Context, conn *websocket.Conn) error {
	pkt := ConnectPacket{
		Cmd:           cmdConnect,
		Game:          "",
		Name:          s.cfg.Slot,
		Password:      s.cfg.Password,
		UUID:          uuid.NewString(),
		Version:       protocolVersion(),
		Tags:          sessionTags,
		ItemsHandling: itemsHandlingAll,
		SlotData:      false,
	}

	payload, err := json.Marshal([]ConnectPacket{pkt})
	if err != nil {
		return fmt.Errorf("encoding connect packet: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("sending connect packet: %w", err)
	}
	return nil
}

func (s *Session) closeConn(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close(code, reason)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("closing server connection", zap.Error(err))
		}
		s.conn = nil
	}
}
