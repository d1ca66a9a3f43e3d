package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/quillhaven/titsbridge/internal/bridge"
)

// Controller is the bridge capability the console drives.
// *bridge.Bridge satisfies it.
type Controller interface {
	ConnectOverlay(ctx context.Context, port int) error
	Status() bridge.Status
	SetAlias(alias string)
}

// SessionControl requests coordination-server reconnects.
// *archipelago.Session satisfies it.
type SessionControl interface {
	Reconnect()
}

// Console reads operator commands from a line-oriented input and dispatches
// them against the bridge.
type Console struct {
	controller Controller
	session    SessionControl
	registry   *Registry
	logger     *zap.Logger
	in         io.Reader
	out        io.Writer
	stopped    atomic.Bool
}

// New creates a Console with the built-in command set.
//
// Precondition: controller, session, logger, in, and out must be non-nil.
func New(controller Controller, session SessionControl, logger *zap.Logger, in io.Reader, out io.Writer) *Console {
	return &Console{
		controller: controller,
		session:    session,
		registry:   DefaultRegistry(),
		logger:     logger,
		in:         in,
		out:        out,
	}
}

// Run reads and dispatches commands until EOF, a quit command, or Stop.
//
// Postcondition: Returns nil on clean exit, or a non-nil error on a read failure.
func (c *Console) Run() error {
	c.printf("T.I.T.S. bridge console ready. Type 'help' for commands.")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if c.stopped.Load() {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		name, args := fields[0], fields[1:]

		cmd, ok := c.registry.Resolve(name)
		if !ok {
			c.printf("Unknown command %q. Type 'help' for commands.", name)
			continue
		}
		c.logger.Debug("console command", zap.String("command", cmd.Name), zap.Strings("args", args))

		if quit := c.dispatch(cmd, args); quit {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading console input: %w", err)
	}
	return nil
}

// Stop makes Run return after the current read. The blocking read itself
// cannot be interrupted; process shutdown closes stdin anyway.
func (c *Console) Stop() {
	c.stopped.Store(true)
}

// dispatch runs one resolved command. Returns true when the console should exit.
func (c *Console) dispatch(cmd *Command, args []string) bool {
	switch cmd.Handler {
	case HandlerConnect:
		c.handleConnect(args)
	case HandlerStatus:
		c.handleStatus()
	case HandlerAlias:
		c.handleAlias(args)
	case HandlerReconnect:
		c.printf("Requesting multiworld reconnect...")
		c.session.Reconnect()
	case HandlerHelp:
		c.handleHelp()
	case HandlerQuit:
		c.printf("Shutting down.")
		return true
	default:
		c.printf("Command %q has no handler.", cmd.Name)
	}
	return false
}

func (c *Console) handleConnect(args []string) {
	port := 0 // bridge substitutes the last configured port
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 1 || p > 65535 {
			c.printf("Invalid port %q: expected a number between 1 and 65535.", args[0])
			return
		}
		port = p
	}

	if err := c.controller.ConnectOverlay(context.Background(), port); err != nil {
		c.printf("Unable to connect. Ensure T.I.T.S. is running, its API is enabled, and the port matches.")
		return
	}
	c.handleStatus()
}

func (c *Console) handleStatus() {
	st := c.controller.Status()
	if !st.Connected {
		c.printf("T.I.T.S. is not connected. Use 'connect [port]' to establish a connection.")
		return
	}

	c.printf("T.I.T.S. is connected and listening on port %d", st.Port)
	for _, entry := range st.Triggers {
		c.printf("Found Trigger %s: %s", entry.Name, entry.ID)
	}
}

func (c *Console) handleAlias(args []string) {
	if len(args) == 0 {
		c.printf("Usage: alias <name>")
		return
	}
	alias := strings.Join(args, " ")
	c.controller.SetAlias(alias)
	c.printf("Alias set to %q.", alias)
}

func (c *Console) handleHelp() {
	c.printf("This bridge sends the following T.I.T.S. Triggers when connected to a multiworld:")
	for _, doc := range bridge.TriggerDocs() {
		c.printf("    - %-24s %s", doc.Name+":", doc.Fires)
	}
	c.printf("")
	c.printf("Any triggers that are not set in T.I.T.S. will be skipped. You need only implement the ones you intend to use.")
	c.printf("")
	c.printf("Commands:")
	for _, cmd := range c.registry.Commands() {
		label := cmd.Name
		if cmd.Usage != "" {
			label += " " + cmd.Usage
		}
		aliases := ""
		if len(cmd.Aliases) > 0 {
			aliases = " (" + strings.Join(cmd.Aliases, ", ") + ")"
		}
		c.printf("    %-18s%s — %s", label, aliases, cmd.Help)
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
