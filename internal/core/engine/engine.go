package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/resp"
)

// Appender receives every successful mutating command. It is called with
// the key's shard lock held, so records for one key are appended in the
// order the commands ran.
type Appender interface {
	Append(name string, args []string) error
}

// Engine dispatches commands to their handlers.
type Engine struct {
	store    *memory.Store
	commands [domain.NumCommands]*command
	quirks   Quirks
	logger   logger.Logger
	metrics  *metric.Registry
	appender atomic.Pointer[appenderRef]
}

type appenderRef struct{ Appender }

// Option configures the Engine.
type Option func(*Engine)

// WithQuirks selects command behaviour. Defaults to DefaultQuirks().
func WithQuirks(q Quirks) Option {
	return func(e *Engine) {
		e.quirks = q
	}
}

// WithLogger sets the logger. The engine logs under component=core.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records command counts and latencies in r.
func WithMetrics(r *metric.Registry) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// New creates an engine bound to store.
func New(store *memory.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: nil store")
	}
	e := &Engine{
		store:    store,
		commands: commandTable(),
		quirks:   DefaultQuirks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := validateTable(&e.commands); err != nil {
		return nil, err
	}
	e.logger = logger.Named(e.logger, "core")
	return e, nil
}

// validateTable checks that every command kind has a handler.
func validateTable(table *[domain.NumCommands]*command) error {
	for _, kind := range domain.AllCommands() {
		cmd := table[kind]
		if cmd == nil || cmd.handler == nil {
			return fmt.Errorf("engine: no handler for %s", kind)
		}
		if cmd.kind != kind {
			return fmt.Errorf("engine: table slot %s holds %s", kind, cmd.kind)
		}
	}
	return nil
}

// Store returns the store the engine operates on.
func (e *Engine) Store() *memory.Store {
	return e.store
}

// SetAppender attaches the command log. A nil Appender detaches it.
func (e *Engine) SetAppender(a Appender) {
	if a == nil {
		e.appender.Store(nil)
		return
	}
	e.appender.Store(&appenderRef{a})
}

// KeyCount returns the number of live keys.
func (e *Engine) KeyCount() int {
	return e.store.Count()
}

// Execute runs one decoded frame: frame[0] is the command name, the rest
// are arguments. An empty frame yields nil.
func (e *Engine) Execute(ctx context.Context, frame [][]byte) resp.Reply {
	if len(frame) == 0 {
		return nil
	}
	args := make([]string, len(frame)-1)
	for i, a := range frame[1:] {
		args[i] = string(a)
	}
	return e.run(ctx, string(frame[0]), args, false)
}

// Do runs a command given as strings.
func (e *Engine) Do(ctx context.Context, name string, args ...string) resp.Reply {
	return e.run(ctx, name, args, false)
}

// Replay re-executes a logged command. The command is not appended again.
func (e *Engine) Replay(ctx context.Context, name string, args []string) resp.Reply {
	return e.run(ctx, name, args, true)
}

func (e *Engine) run(ctx context.Context, name string, args []string, replaying bool) resp.Reply {
	start := time.Now()

	kind, ok := domain.ParseCommand(name)
	if !ok {
		e.observe("UNKNOWN", domain.ErrUnknownCommand, start)
		return resp.ErrorReply(domain.ErrUnknownCommand.Reply())
	}
	cmd := e.commands[kind]

	e.logger.Debug("command received",
		"command", cmd.name,
		"args", len(args),
		"replay", replaying,
		"conn_id", logger.ConnIDFromContext(ctx))

	reply, err := e.dispatch(ctx, cmd, args, replaying)
	e.observe(cmd.name, err, start)
	if err != nil {
		var ce *domain.CommandError
		if !errors.As(err, &ce) {
			ce = domain.NewInternalError(cmd.name, err)
		}
		return resp.ErrorReply(ce.Reply())
	}
	return reply
}

func (e *Engine) dispatch(ctx context.Context, cmd *command, args []string, replaying bool) (reply resp.Reply, err error) {
	if len(args) < cmd.minArgs {
		return nil, domain.NewArityError(cmd.name)
	}
	if !cmd.keyed {
		return e.call(ctx, cmd, nil, args)
	}

	e.store.Do(args[0], func(tx *memory.Txn) {
		reply, err = e.call(ctx, cmd, tx, args)
		if replaying {
			return
		}
		// Replay runs on a different clock, so an expiry seen here is
		// logged as an explicit DEL ahead of the command itself.
		if tx.Purged() {
			e.append(ctx, domain.CmdDel.String(), args[:1])
		}
		if err == nil && cmd.mutating {
			e.append(ctx, cmd.name, args)
		}
	})
	return reply, err
}

// call runs the handler, turning a panic into an internal error.
func (e *Engine) call(ctx context.Context, cmd *command, tx *memory.Txn, args []string) (reply resp.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("command handler panicked",
				"command", cmd.name,
				"conn_id", logger.ConnIDFromContext(ctx),
				"panic", fmt.Sprint(r))
			reply, err = nil, domain.NewInternalError(cmd.name, fmt.Errorf("panic: %v", r))
		}
	}()
	return cmd.handler(e, tx, args)
}

func (e *Engine) append(ctx context.Context, name string, args []string) {
	ref := e.appender.Load()
	if ref == nil {
		return
	}
	if err := ref.Append(name, args); err != nil {
		e.logger.Error("append to command log failed",
			"command", name,
			"conn_id", logger.ConnIDFromContext(ctx),
			"error", err)
	}
}

func (e *Engine) observe(name string, err error, start time.Time) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = domain.KindOf(err).String()
	}
	e.metrics.ObserveCommand(name, status, time.Since(start))
}
