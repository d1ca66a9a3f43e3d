// Package console provides the operator-facing command surface: a line
// console with a small registry of bridge control commands.
package console

import "fmt"

// Handler identifiers mapping commands to console actions.
const (
	HandlerConnect   = "connect"
	HandlerStatus    = "status"
	HandlerAlias     = "alias"
	HandlerReconnect = "reconnect"
	HandlerHelp      = "help"
	HandlerQuit      = "quit"
)

// Command defines an operator-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage is the argument hint shown in help output.
	Usage string
	// Help is the short help text displayed to the operator.
	Help string
	// Handler maps to the console action.
	Handler string
}

// BuiltinCommands returns all built-in console commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "connect", Aliases: []string{"tits_connect"}, Usage: "[port]", Help: "Connect to the T.I.T.S. API on a given port (default port when omitted)", Handler: HandlerConnect},
		{Name: "status", Aliases: []string{"tits_status"}, Usage: "", Help: "Display the overlay connection status and all found triggers", Handler: HandlerStatus},
		{Name: "alias", Aliases: []string{"tits_alias"}, Usage: "<name>", Help: "Set the requestID alias sent with every overlay API call", Handler: HandlerAlias},
		{Name: "reconnect", Aliases: []string{"login"}, Usage: "", Help: "Reconnect to the multiworld server after a drop", Handler: HandlerReconnect},
		{Name: "help", Aliases: []string{"tits_help", "?"}, Usage: "", Help: "List the triggers this bridge fires and all commands", Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Usage: "", Help: "Shut the bridge down", Handler: HandlerQuit},
	}
}

// Registry maps command names and aliases to Command definitions.
type Registry struct {
	commands []Command           // definition order, for help output
	byName   map[string]*Command // canonical name or alias → command
}

// NewRegistry creates a Registry populated with the given commands.
//
// Precondition: No two commands may share a canonical name or alias.
// Postcondition: Returns a Registry or an error on name/alias collisions.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{
		commands: cmds,
		byName:   make(map[string]*Command, len(cmds)),
	}

	for i := range r.commands {
		cmd := &r.commands[i]
		if _, exists := r.byName[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		r.byName[cmd.Name] = cmd

		for _, alias := range cmd.Aliases {
			if existing, exists := r.byName[alias]; exists {
				return nil, fmt.Errorf("duplicate alias %q: used by %q and %q", alias, existing.Name, cmd.Name)
			}
			r.byName[alias] = cmd
		}
	}

	return r, nil
}

// DefaultRegistry creates a Registry with all built-in commands.
//
// Postcondition: Returns a Registry with all built-in commands registered.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by name or alias.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(input string) (*Command, bool) {
	cmd, ok := r.byName[input]
	return cmd, ok
}

// Commands returns all registered commands in definition order.
func (r *Registry) Commands() []Command {
	return r.commands
}
