package repl

import (
	"sort"
	"strings"

	"github.com/yndnr/memkv/internal/core/domain"
)

var metaCommands = []string{"connect", "exit", "help", "history", "output", "quit"}

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the server commands and the
// REPL meta commands.
func NewCompleter() *Completer {
	cmds := make([]string, 0, len(metaCommands)+domain.NumCommands)
	for _, kind := range domain.AllCommands() {
		cmds = append(cmds, kind.String())
	}
	cmds = append(cmds, metaCommands...)
	sort.Strings(cmds)
	return &Completer{commands: cmds}
}

// Complete returns the commands starting with prefix, ignoring case.
// Server commands are returned upper case.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if len(cmd) >= len(prefix) && strings.EqualFold(cmd[:len(prefix)], prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
