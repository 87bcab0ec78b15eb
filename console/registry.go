package console

import (
	"errors"
	"sort"
	"sync"
)

// CommandHandler handles one command line. args excludes the command name.
type CommandHandler func(c *Console, args []string) error

// Command represents a console command
type Command struct {
	ID      uint16
	Name    string
	Usage   string // Argument synopsis shown by help (e.g., "<addr> <n>")
	Summary string
	Handler CommandHandler
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
	help     []string // Rendered help lines, sorted by name
}

// ErrUnknownCommand is returned by Dispatch for names that are not registered.
var ErrUnknownCommand = errors.New("unknown command")

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
		nextID:   0,
	}
}

// Register adds a command to the registry
func (r *CommandRegistry) Register(name, usage, summary string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if already registered
	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Usage:   usage,
		Summary: summary,
		Handler: handler,
	}
	r.nameToID[name] = id

	r.rebuildHelp()

	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup retrieves a command by name
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered under name
func (r *CommandRegistry) Dispatch(c *Console, name string, args []string) error {
	cmd, ok := r.Lookup(name)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}

	return cmd.Handler(c, args)
}

// Help returns one line per command
func (r *CommandRegistry) Help() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.help
}

// rebuildHelp renders the help lines
// Must be called with lock held
func (r *CommandRegistry) rebuildHelp() {
	names := make([]string, 0, len(r.nameToID))
	for name := range r.nameToID {
		names = append(names, name)
	}
	sort.Strings(names)

	help := make([]string, 0, len(names))
	for _, name := range names {
		cmd := r.commands[r.nameToID[name]]
		line := cmd.Name
		if cmd.Usage != "" {
			line += " " + cmd.Usage
		}
		if cmd.Summary != "" {
			line += " - " + cmd.Summary
		}
		help = append(help, line)
	}
	r.help = help
}
