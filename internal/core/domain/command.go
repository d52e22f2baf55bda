package domain

import "strings"

// CommandKind enumerates the commands understood by the engine.
type CommandKind uint8

const (
	CmdCommand CommandKind = iota
	CmdSet
	CmdGet
	CmdDel
	CmdExpire
	CmdTTL
	CmdIncr
	CmdDecr
	CmdLRange
	CmdLPush
	CmdRPush
	CmdLPop
	CmdRPop

	commandKindCount
)

// NumCommands is the number of defined command kinds.
const NumCommands = int(commandKindCount)

var commandNames = [commandKindCount]string{
	CmdCommand: "COMMAND",
	CmdSet:     "SET",
	CmdGet:     "GET",
	CmdDel:     "DEL",
	CmdExpire:  "EXPIRE",
	CmdTTL:     "TTL",
	CmdIncr:    "INCR",
	CmdDecr:    "DECR",
	CmdLRange:  "LRANGE",
	CmdLPush:   "LPUSH",
	CmdRPush:   "RPUSH",
	CmdLPop:    "LPOP",
	CmdRPop:    "RPOP",
}

var commandsByName = func() map[string]CommandKind {
	m := make(map[string]CommandKind, commandKindCount)
	for k, name := range commandNames {
		m[name] = CommandKind(k)
	}
	return m
}()

// String returns the upper-case command name.
func (k CommandKind) String() string {
	if k < commandKindCount {
		return commandNames[k]
	}
	return "UNKNOWN"
}

// Valid reports whether k is one of the defined kinds.
func (k CommandKind) Valid() bool {
	return k < commandKindCount
}

// ParseCommand resolves a command name case-insensitively.
func ParseCommand(name string) (CommandKind, bool) {
	k, ok := commandsByName[strings.ToUpper(name)]
	return k, ok
}

// AllCommands returns every defined kind in declaration order.
func AllCommands() []CommandKind {
	kinds := make([]CommandKind, commandKindCount)
	for i := range kinds {
		kinds[i] = CommandKind(i)
	}
	return kinds
}
