package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yndnr/memkv/internal/cli/output"
	"github.com/yndnr/memkv/pkg/resp"
)

// Session is the server connection the REPL drives.
type Session interface {
	Connect(ctx context.Context, addr string) error
	Addr() string
	Do(ctx context.Context, name string, args ...string) (resp.Reply, error)
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	session   Session
	input     io.Reader
	output    io.Writer
	formatter output.Formatter
	completer *Completer
	history   *History
}

// Option configures the REPL.
type Option func(*REPL)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = in
		r.output = out
	}
}

// WithFormat selects the initial output format.
func WithFormat(f output.Format) Option {
	return func(r *REPL) {
		r.formatter = output.NewFormatter(f)
	}
}

// WithHistory replaces the in-memory history.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		r.history = h
	}
}

// New creates a new REPL instance.
func New(session Session, opts ...Option) *REPL {
	r := &REPL{
		session:   session,
		input:     os.Stdin,
		output:    os.Stdout,
		formatter: output.NewFormatter(output.FormatRaw),
		completer: NewCompleter(),
		history:   NewHistory("", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// History returns the REPL's history.
func (r *REPL) History() *History {
	return r.history
}

// Run reads lines until EOF, exit, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	reader := bufio.NewReader(r.input)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt())

		line, err := reader.ReadString('\n')
		if err == io.EOF && line == "" {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		if quit := r.execute(ctx, line); quit {
			return nil
		}
	}
}

func (r *REPL) prompt() string {
	if addr := r.session.Addr(); addr != "" {
		return addr + "> "
	}
	return "not connected> "
}

// execute runs one line and reports whether the REPL should exit.
func (r *REPL) execute(ctx context.Context, line string) bool {
	args, err := SplitArgs(line)
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		return true
	case "help":
		r.help(args[1:])
		return false
	case "connect":
		r.connect(ctx, args[1:])
		return false
	case "output":
		r.setOutput(args[1:])
		return false
	case "history":
		r.showHistory(args[1:])
		return false
	}

	reply, err := r.session.Do(ctx, args[0], args[1:]...)
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return false
	}
	if err := r.formatter.Format(r.output, reply); err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
	return false
}

func (r *REPL) help(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	matches := r.completer.Complete(prefix)
	if len(matches) == 0 {
		fmt.Fprintf(r.output, "no commands match %q\n", prefix)
		return
	}
	fmt.Fprintln(r.output, strings.Join(matches, " "))
}

func (r *REPL) connect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.output, "usage: connect <host:port>")
		return
	}
	if err := r.session.Connect(ctx, args[0]); err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
}

func (r *REPL) setOutput(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.output, "usage: output <raw|json|yaml|table>")
		return
	}
	f, err := output.ParseFormat(args[0])
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return
	}
	r.formatter = output.NewFormatter(f)
}

func (r *REPL) showHistory(args []string) {
	n := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			fmt.Fprintln(r.output, "usage: history [n]")
			return
		}
		n = v
	}
	entries := r.history.Last(n)
	first := r.history.Len() - len(entries) + 1
	for i, entry := range entries {
		fmt.Fprintf(r.output, "%5d  %s\n", first+i, entry)
	}
}

