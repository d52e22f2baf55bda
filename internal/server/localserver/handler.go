package localserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// ErrUnknownCommand is returned for a command the socket does not serve.
var ErrUnknownCommand = errors.New("unknown command")

// Store is the persistence view the control socket needs.
type Store interface {
	KeyCount() int
	AppendOnly() bool
	AOFOffset() int64
	LastSnapshot() *snapshot.Info
	Save(ctx context.Context) (*snapshot.Info, error)
}

// HandlerConfig wires the handler to the running server.
type HandlerConfig struct {
	Store Store
	// Reload re-reads the configuration. Nil makes reload fail.
	Reload func() error
	// Shutdown starts a graceful stop. It must not block.
	Shutdown  func()
	StartedAt time.Time
}

// Handler executes control commands.
type Handler struct {
	cfg      HandlerConfig
	commands map[string]func(ctx context.Context, args []string) (any, error)
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{cfg: cfg}
	h.commands = map[string]func(context.Context, []string) (any, error){
		"ping":     h.handlePing,
		"status":   h.handleStatus,
		"save":     h.handleSave,
		"reload":   h.handleReload,
		"shutdown": h.handleShutdown,
		"help":     h.handleHelp,
	}
	return h
}

// Execute runs one command. cmd is matched case-insensitively.
func (h *Handler) Execute(ctx context.Context, cmd string, args []string) (any, error) {
	fn, ok := h.commands[strings.ToLower(cmd)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	return fn(ctx, args)
}

func (h *Handler) handlePing(context.Context, []string) (any, error) {
	return "pong", nil
}

func (h *Handler) handleStatus(context.Context, []string) (any, error) {
	data := map[string]any{
		"keys":        h.cfg.Store.KeyCount(),
		"append_only": h.cfg.Store.AppendOnly(),
		"aof_offset":  h.cfg.Store.AOFOffset(),
	}
	if !h.cfg.StartedAt.IsZero() {
		data["uptime_seconds"] = int64(time.Since(h.cfg.StartedAt).Seconds())
	}
	if info := h.cfg.Store.LastSnapshot(); info != nil {
		data["last_snapshot"] = info
	}
	return data, nil
}

func (h *Handler) handleSave(ctx context.Context, _ []string) (any, error) {
	info, err := h.cfg.Store.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return info, nil
}

func (h *Handler) handleReload(context.Context, []string) (any, error) {
	if h.cfg.Reload == nil {
		return nil, errors.New("reload: no configuration file")
	}
	if err := h.cfg.Reload(); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	return "reloaded", nil
}

func (h *Handler) handleShutdown(context.Context, []string) (any, error) {
	if h.cfg.Shutdown == nil {
		return nil, errors.New("shutdown: not supported")
	}
	h.cfg.Shutdown()
	return "shutting down", nil
}

func (h *Handler) handleHelp(context.Context, []string) (any, error) {
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
