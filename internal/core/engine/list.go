package engine

import (
	"strconv"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/pkg/resp"
)

// ============================================================================
// List commands
// ============================================================================

// liveList returns the list under the key, or nil if the key is absent,
// holds a string, or holds an empty list.
func liveList(tx *memory.Txn) *domain.Entry {
	entry := tx.Entry()
	if !entry.IsList() || len(entry.List) == 0 {
		return nil
	}
	return entry
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.ErrNotInteger
	}
	return n, nil
}

func cmdLRange(_ *Engine, tx *memory.Txn, args []string) (resp.Reply, error) {
	start, err := parseIndex(args[1])
	if err != nil {
		return nil, err
	}
	stop, err := parseIndex(args[2])
	if err != nil {
		return nil, err
	}

	entry := liveList(tx)
	if entry == nil {
		return resp.NullBulk, nil
	}

	n := len(entry.List)
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return resp.Array{}, nil
	}
	return resp.BulkArray(entry.List[start : stop+1]), nil
}

// pushTarget returns the list to push onto, creating it when the key is
// absent.
func pushTarget(tx *memory.Txn) (*domain.Entry, error) {
	entry := tx.Entry()
	if entry == nil {
		entry = domain.NewList()
		tx.Put(entry)
		return entry, nil
	}
	if !entry.IsList() {
		return nil, domain.ErrWrongType
	}
	return entry, nil
}

// cmdLPush inserts the values at the head as one block, so
// LPUSH k a b yields [a b ...].
func cmdLPush(_ *Engine, tx *memory.Txn, args []string) (resp.Reply, error) {
	entry, err := pushTarget(tx)
	if err != nil {
		return nil, err
	}
	values := args[1:]
	list := make([]string, 0, len(values)+len(entry.List))
	list = append(list, values...)
	entry.List = append(list, entry.List...)
	return resp.Integer(len(entry.List)), nil
}

func cmdRPush(_ *Engine, tx *memory.Txn, args []string) (resp.Reply, error) {
	entry, err := pushTarget(tx)
	if err != nil {
		return nil, err
	}
	entry.List = append(entry.List, args[1:]...)
	return resp.Integer(len(entry.List)), nil
}

func cmdLPop(_ *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	entry := liveList(tx)
	if entry == nil {
		return resp.NullBulk, nil
	}
	head := entry.List[0]
	entry.List[0] = ""
	entry.List = entry.List[1:]
	return resp.BulkString(head), nil
}

func cmdRPop(_ *Engine, tx *memory.Txn, _ []string) (resp.Reply, error) {
	entry := liveList(tx)
	if entry == nil {
		return resp.NullBulk, nil
	}
	last := len(entry.List) - 1
	tail := entry.List[last]
	entry.List = entry.List[:last]
	return resp.BulkString(tail), nil
}
