package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// UnauthorizedText is the well-known reply for a command rejected on
// authority grounds.
const UnauthorizedText = "You don't have permission to run this command."

// Registry holds the top-level commands and dispatches a parsed invocation
// down the subcommand trie, checking each leaf's required privilege.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a top-level command.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" {
		return fmt.Errorf("command must have a name")
	}
	if cmd.Handler == nil && len(cmd.Subcommands) == 0 {
		return fmt.Errorf("command %q must have a handler or subcommands", cmd.Name)
	}

	name := strings.ToLower(cmd.Name)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		a := strings.ToLower(alias)
		if a == "" || a == name {
			continue
		}
		r.aliases[a] = name
	}
	return nil
}

// Get resolves a top-level command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	if real, ok := r.aliases[name]; ok {
		cmd, ok := r.commands[real]
		return cmd, ok
	}
	return nil, false
}

// List returns every registered top-level command, sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch resolves inv.Name to a top-level command, then recurses down the
// subcommand trie consuming leading tokens of inv.Args that name a
// subcommand. Authority is checked at the leaf command actually invoked.
func (r *Registry) Dispatch(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
	cmd, ok := r.Get(inv.Name)
	if !ok {
		return ErrorReply(fmt.Sprintf("unknown command %q", inv.Name))
	}

	args := inv.Args
	for len(cmd.Subcommands) > 0 && len(args) > 0 {
		next, ok := cmd.Subcommands[strings.ToLower(args[0])]
		if !ok {
			break
		}
		cmd = next
		args = args[1:]
	}

	if !authorityAllows(cmd.Privilege, inv) {
		r.logger.Info("command rejected for insufficient authority",
			"command", cmd.Name, "required", cmd.Privilege, "sender", inv.SenderID)
		return ErrorReply(UnauthorizedText)
	}
	if cmd.Handler == nil {
		return r.renderHelp(cmd)
	}
	if !cmd.AcceptsArgs && len(args) > 0 {
		return ErrorReply(fmt.Sprintf("command %q does not accept arguments", cmd.Name))
	}

	leafInv := *inv
	leafInv.Name = cmd.Name
	leafInv.Args = args
	return cmd.Handler(ctx, &leafInv)
}

func authorityAllows(required Privilege, inv *Invocation) bool {
	switch required {
	case BotAdmin:
		return inv.IsBotAdmin
	case GroupAdmin:
		return inv.IsGroupAdmin || inv.IsBotAdmin
	default:
		return true
	}
}

// renderHelp renders a command's subcommand trie, used both for an explicit
// help command and for a parent command invoked with no matching
// subcommand.
func (r *Registry) renderHelp(cmd *Command) (<-chan CommandReturn, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", cmd.Name, cmd.Description)
	names := make([]string, 0, len(cmd.Subcommands))
	for name, sub := range cmd.Subcommands {
		if sub.Hidden {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sub := cmd.Subcommands[name]
		fmt.Fprintf(&b, "  %s %s - %s\n", cmd.Name, name, sub.Description)
	}
	return TextReply(strings.TrimRight(b.String(), "\n"))
}

// RenderHelp renders the full top-level command trie, used by the built-in
// help command.
func (r *Registry) RenderHelp() string {
	var b strings.Builder
	for _, cmd := range r.List() {
		if cmd.Hidden {
			continue
		}
		fmt.Fprintf(&b, "/%s (%s) - %s\n", cmd.Name, cmd.Privilege, cmd.Description)
		subNames := make([]string, 0, len(cmd.Subcommands))
		for name := range cmd.Subcommands {
			subNames = append(subNames, name)
		}
		sort.Strings(subNames)
		for _, name := range subNames {
			sub := cmd.Subcommands[name]
			if sub.Hidden {
				continue
			}
			fmt.Fprintf(&b, "  %s %s - %s\n", cmd.Name, name, sub.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
