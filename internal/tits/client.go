package tits

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// DefaultPort is the port the overlay application's websocket API listens on
// unless the operator configured otherwise.
const DefaultPort = 42069

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
)

// listTimeout bounds the wait for the trigger-list response. A var so tests
// can shrink it.
var listTimeout = 10 * time.Second

// Client owns the optional websocket connection to the overlay application
// and the Trigger Directory populated from it.
//
// The connection handle is either absent (never connected / failed /
// disconnected) or present. All failures are logged and non-fatal; the
// client stays reconnectable after any of them.
type Client struct {
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	port   int
	connID string
	alias  string

	directory *Directory
}

// NewClient creates a Client with no active connection.
//
// Precondition: logger must be non-nil; alias must be non-empty.
func NewClient(logger *zap.Logger, alias string) *Client {
	return &Client{
		logger:    logger,
		port:      DefaultPort,
		alias:     alias,
		directory: NewDirectory(),
	}
}

// Connect establishes a websocket connection to the overlay application on
// the given port, replacing any prior connection, and rebuilds the Trigger
// Directory from the overlay's trigger list. Safe to re-invoke at any time.
//
// Postcondition: On success the connection handle is present and the
// directory holds the overlay's triggers. On any failure (refused, timeout,
// protocol error) the handle is absent, a diagnostic is logged, and already
// applied directory entries are kept as-is.
func (c *Client) Connect(ctx context.Context, port int) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reconnecting")
		c.conn = nil
	}
	c.port = port
	alias := c.alias
	c.mu.Unlock()

	url := fmt.Sprintf("ws://localhost:%d/websocket", port)
	c.logger.Info("connecting to overlay", zap.String("url", url))

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		c.logger.Warn("unable to connect to overlay; ensure T.I.T.S. is running, its API is enabled, and the port matches",
			zap.Int("port", port),
			zap.Error(err),
		)
		return fmt.Errorf("dialing overlay on port %d: %w", port, err)
	}
	conn.SetReadLimit(readLimit)

	connID := uuid.NewString()

	c.directory.Reset()
	if err := c.requestTriggers(ctx, conn, alias); err != nil {
		c.logger.Warn("trigger list request failed", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "trigger list request failed")
		return err
	}

	c.mu.Lock()
	// A concurrent Connect may have stored its own connection while this one
	// was handshaking; that one loses and gets closed.
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reconnecting")
	}
	c.conn = conn
	c.connID = connID
	c.mu.Unlock()

	// The overlay answers every activate request; drain those responses so
	// control frames keep being processed.
	go c.drainResponses(conn, connID)

	c.logger.Info("overlay connected",
		zap.Int("port", port),
		zap.String("conn_id", connID),
		zap.Int("triggers", c.directory.Len()),
	)
	return nil
}

// requestTriggers sends a trigger-list request and populates the directory
// from the single expected response.
func (c *Client) requestTriggers(ctx context.Context, conn *websocket.Conn, alias string) error {
	payload, err := json.Marshal(NewTriggerListRequest(alias))
	if err != nil {
		return fmt.Errorf("encoding trigger list request: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("sending trigger list request: %w", err)
	}

	readCtx, cancelRead := context.WithTimeout(ctx, listTimeout)
	defer cancelRead()
	_, resp, err := conn.Read(readCtx)
	if err != nil {
		return fmt.Errorf("reading trigger list response: %w", err)
	}

	triggers, err := ParseTriggerList(resp)
	if err != nil {
		return err
	}

	for _, t := range triggers {
		c.logger.Info("found trigger", zap.String("name", t.Name), zap.String("id", t.ID))
		c.directory.Put(t.Name, t.ID)
	}
	return nil
}

// Activate looks up the trigger name in the directory and, if present, sends
// an activate request over the overlay connection. A missing entry is an
// expected no-op: operators configure only the triggers they use. Send
// failures are logged and never propagated to the event flow.
func (c *Client) Activate(ctx context.Context, name string) {
	c.logger.Debug("sending overlay trigger", zap.String("trigger", name))

	c.mu.Lock()
	conn := c.conn
	alias := c.alias
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("overlay not connected, dropping trigger", zap.String("trigger", name))
		return
	}

	id, ok := c.directory.Lookup(name)
	if !ok {
		c.logger.Debug("skipping trigger, no overlay endpoint configured", zap.String("trigger", name))
		return
	}

	payload, err := json.Marshal(NewTriggerActivateRequest(alias, id))
	if err != nil {
		c.logger.Warn("encoding trigger activate request", zap.String("trigger", name), zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		c.logger.Warn("sending trigger failed",
			zap.String("trigger", name),
			zap.Error(err),
		)
	}
}

// drainResponses discards inbound frames on the given connection until it
// closes. The overlay acknowledges each activate request; nothing in those
// acknowledgements is consumed.
func (c *Client) drainResponses(conn *websocket.Conn, connID string) {
	for {
		_, msg, err := conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.logger.Debug("overlay connection closed", zap.String("conn_id", connID), zap.Error(err))
			return
		}
		c.logger.Debug("overlay response", zap.ByteString("payload", msg))
	}
}

// Close closes the overlay connection if one is open.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "client shutting down")
		c.conn = nil
		c.logger.Info("overlay disconnected", zap.String("conn_id", c.connID))
	}
}

// Connected reports whether an overlay connection is currently active.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Port returns the port of the most recent connection attempt.
func (c *Client) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// SetAlias changes the correlation token sent with subsequent requests.
//
// Precondition: alias must be non-empty.
func (c *Client) SetAlias(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alias = alias
}

// Alias returns the current correlation token.
func (c *Client) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

// Triggers returns the current Trigger Directory contents sorted by name.
func (c *Client) Triggers() []Entry {
	return c.directory.Entries()
}
