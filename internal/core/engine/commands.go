package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/pkg/resp"
)

// handlerFunc implements one command. tx is nil for commands that do not
// name a key; otherwise args[0] is the key and tx is open on it.
type handlerFunc func(e *Engine, tx *memory.Txn, args []string) (resp.Reply, error)

type command struct {
	kind     domain.CommandKind
	name     string
	minArgs  int  // extra arguments are ignored
	mutating bool // appended to the command log on success
	keyed    bool // args[0] is a key
	handler  handlerFunc
}

func commandTable() [domain.NumCommands]*command {
	var t [domain.NumCommands]*command
	add := func(kind domain.CommandKind, minArgs int, mutating bool, h handlerFunc) {
		t[kind] = &command{
			kind:     kind,
			name:     kind.String(),
			minArgs:  minArgs,
			mutating: mutating,
			keyed:    minArgs > 0,
			handler:  h,
		}
	}

	add(domain.CmdCommand, 0, false, cmdCommand)
	add(domain.CmdSet, 2, true, cmdSet)
	add(domain.CmdGet, 1, false, cmdGet)
	add(domain.CmdDel, 1, true, cmdDel)
	add(domain.CmdExpire, 2, true, cmdExpire)
	add(domain.CmdTTL, 1, false, cmdTTL)
	add(domain.CmdIncr, 1, true, cmdIncr)
	add(domain.CmdDecr, 1, true, cmdDecr)
	add(domain.CmdLRange, 3, false, cmdLRange)
	add(domain.CmdLPush, 2, true, cmdLPush)
	add(domain.CmdRPush, 2, true, cmdRPush)
	add(domain.CmdLPop, 1, true, cmdLPop)
	add(domain.CmdRPop, 1, true, cmdRPop)
	return t
}

// ============================================================================
// Keyspace commands
// ============================================================================

func cmdCommand(_ *Engine, _ *memory.Txn, _ []string) (resp.Reply, error) {
	return resp.OK, nil
}

func cmdSet(e *Engine, tx *memory.Txn, args []string) (resp.Reply, error) {
	tx.Put(domain.NewString(args[1]))
	if !e.quirks.SetKeepsTTL {
		tx.ClearDeadline()
	}
	return resp.OK, nil
}

func cmdGet(_ *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	entry := tx.Entry()
	if !entry.IsString() {
		return resp.NullBulk, nil
	}
	return resp.BulkString(entry.Str), nil
}

func cmdDel(_ *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	if tx.Delete() {
		return resp.Integer(1), nil
	}
	return resp.Integer(0), nil
}

// maxExpireMillis bounds now+seconds*1000 away from int64 overflow.
const maxExpireMillis = float64(1 << 53)

func cmdExpire(e *Engine, tx *memory.Txn, args []string) (resp.Reply, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, domain.ErrNotNumber
	}
	if seconds == 0 && e.quirks.ZeroExpireIsInvalid {
		return nil, domain.ErrNotNumber
	}
	millis := seconds * 1000
	if math.Abs(millis) > maxExpireMillis {
		return nil, domain.ErrNotInteger
	}

	if tx.Entry() == nil {
		return resp.Integer(0), nil
	}

	deadline := tx.NowMillis() + int64(millis)
	if deadline <= tx.NowMillis() {
		// Already due.
		tx.Delete()
		return resp.Integer(1), nil
	}
	tx.SetDeadline(deadline)
	return resp.Integer(1), nil
}

func cmdTTL(_ *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	if tx.Entry() == nil {
		return resp.Integer(-2), nil
	}
	deadline, ok := tx.Deadline()
	if !ok {
		return resp.Integer(-1), nil
	}
	remaining := deadline - tx.NowMillis()
	if remaining <= 0 {
		return resp.Integer(-2), nil
	}
	if ttl := remaining / 1000; ttl > 0 {
		return resp.Integer(ttl), nil
	}
	return resp.Integer(-2), nil
}

func cmdIncr(e *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	return incrBy(e, tx, 1)
}

func cmdDecr(e *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	return incrBy(e, tx, -1)
}

func incrBy(e *Engine, tx *memory.Txn, delta int64) (resp.Reply, error) {
	entry := tx.Entry()
	if entry == nil {
		if e.quirks.IncrMissingReturnsZero {
			return resp.Integer(0), nil
		}
		tx.Put(domain.NewString(strconv.FormatInt(delta, 10)))
		return resp.Integer(delta), nil
	}
	if !entry.IsString() {
		return nil, domain.ErrWrongType
	}

	current, err := strconv.ParseInt(entry.Str, 10, 64)
	if err != nil {
		return nil, domain.ErrNotInteger
	}
	if current == 0 && e.quirks.ZeroIsNotInteger {
		return nil, domain.ErrNotInteger
	}
	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return nil, domain.ErrNotInteger
	}

	next := current + delta
	tx.Put(domain.NewString(strconv.FormatInt(next, 10)))
	return resp.Integer(next), nil
}
