package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/resp"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAppender struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (a *recordingAppender) Append(name string, args []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, strings.Join(append([]string{name}, args...), " "))
	return a.err
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	e, err := New(memory.New(memory.WithClock(clock.Now)), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, clock
}

// do runs a command and returns the encoded reply.
func do(e *Engine, args ...string) string {
	return string(resp.Encode(e.Do(context.Background(), args[0], args[1:]...)))
}

type step struct {
	args []string
	want string
}

func runSteps(t *testing.T, e *Engine, steps []step) {
	t.Helper()
	for _, s := range steps {
		if got := do(e, s.args...); got != s.want {
			t.Fatalf("%v = %q, want %q", s.args, got, s.want)
		}
	}
}

// ============================================================
// Construction
// ============================================================

func TestNew_NilStore(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestValidateTable(t *testing.T) {
	table := commandTable()
	if err := validateTable(&table); err != nil {
		t.Fatalf("full table: %v", err)
	}

	table[domain.CmdRPop] = nil
	if err := validateTable(&table); err == nil || !strings.Contains(err.Error(), "RPOP") {
		t.Errorf("missing handler error = %v, want mention of RPOP", err)
	}

	table = commandTable()
	table[domain.CmdGet], table[domain.CmdSet] = table[domain.CmdSet], table[domain.CmdGet]
	if err := validateTable(&table); err == nil {
		t.Error("swapped slots should fail validation")
	}
}

// ============================================================
// Concrete scenarios
// ============================================================

func TestScenarios(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"set then get", []step{
			{[]string{"SET", "foo", "bar"}, "+OK\r\n"},
			{[]string{"GET", "foo"}, "$3\r\nbar\r\n"},
		}},
		{"get missing", []step{
			{[]string{"GET", "missing"}, "$-1\r\n"},
		}},
		{"del twice", []step{
			{[]string{"SET", "foo", "bar"}, "+OK\r\n"},
			{[]string{"DEL", "foo"}, ":1\r\n"},
			{[]string{"DEL", "foo"}, ":0\r\n"},
		}},
		{"lpush then lrange", []step{
			{[]string{"LPUSH", "listL", "el1"}, ":1\r\n"},
			{[]string{"LRANGE", "listL", "0", "4"}, "*1\r\n$3\r\nel1\r\n"},
		}},
		{"incr", []step{
			{[]string{"SET", "fooIncr", "5"}, "+OK\r\n"},
			{[]string{"INCR", "fooIncr"}, ":6\r\n"},
			{[]string{"GET", "fooIncr"}, "$1\r\n6\r\n"},
		}},
		{"expire missing", []step{
			{[]string{"EXPIRE", "missingKey", "10"}, ":0\r\n"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			runSteps(t, e, tt.steps)
		})
	}
}

// ============================================================
// Dispatch
// ============================================================

func TestUnknownCommand(t *testing.T) {
	e, _ := newTestEngine(t)
	if got := do(e, "FLUSHALL"); got != "-ERR unknown command\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestCommand(t *testing.T) {
	e, _ := newTestEngine(t)
	if got := do(e, "COMMAND"); got != "+OK\r\n" {
		t.Errorf("got %q", got)
	}
	if got := do(e, "command", "DOCS"); got != "+OK\r\n" {
		t.Errorf("extra args: got %q", got)
	}
}

func TestCaseInsensitiveNames(t *testing.T) {
	e, _ := newTestEngine(t)
	runSteps(t, e, []step{
		{[]string{"set", "k", "v"}, "+OK\r\n"},
		{[]string{"Get", "k"}, "$1\r\nv\r\n"},
	})
}

func TestArity(t *testing.T) {
	tests := []struct {
		args []string
		name string
	}{
		{[]string{"SET", "k"}, "SET"},
		{[]string{"GET"}, "GET"},
		{[]string{"DEL"}, "DEL"},
		{[]string{"EXPIRE", "k"}, "EXPIRE"},
		{[]string{"TTL"}, "TTL"},
		{[]string{"INCR"}, "INCR"},
		{[]string{"decr"}, "DECR"},
		{[]string{"LRANGE", "k", "0"}, "LRANGE"},
		{[]string{"LPUSH", "k"}, "LPUSH"},
		{[]string{"RPUSH", "k"}, "RPUSH"},
		{[]string{"LPOP"}, "LPOP"},
		{[]string{"RPOP"}, "RPOP"},
	}

	e, _ := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := "-ERR wrong number of arguments for '" + tt.name + "' command\r\n"
			if got := do(e, tt.args...); got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}

func TestExtraArgumentsIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	runSteps(t, e, []step{
		{[]string{"SET", "k", "v", "EX", "10"}, "+OK\r\n"},
		{[]string{"GET", "k", "other"}, "$1\r\nv\r\n"},
		{[]string{"TTL", "k"}, ":-1\r\n"},
	})
}

func TestExecute_Frame(t *testing.T) {
	e, _ := newTestEngine(t)
	frame := [][]byte{[]byte("set"), []byte("k"), []byte("a b\r\nc")}
	if got := resp.Encode(e.Execute(context.Background(), frame)); string(got) != "+OK\r\n" {
		t.Fatalf("Execute = %q", got)
	}
	if got := do(e, "GET", "k"); got != "$6\r\na b\r\nc\r\n" {
		t.Errorf("GET = %q", got)
	}
	if e.Execute(context.Background(), nil) != nil {
		t.Error("empty frame should yield nil reply")
	}
}

// ============================================================
// Appender
// ============================================================

func TestAppender_OnlySuccessfulMutations(t *testing.T) {
	e, _ := newTestEngine(t)
	app := &recordingAppender{}
	e.SetAppender(app)

	do(e, "SET", "s", "1")
	do(e, "GET", "s")
	do(e, "TTL", "s")
	do(e, "COMMAND")
	do(e, "LPUSH", "s", "x") // type error
	do(e, "INCR", "s")       // 1 -> 2
	do(e, "EXPIRE", "s", "abc")
	do(e, "RPUSH", "l", "a b", "c")
	do(e, "LRANGE", "l", "0", "1")
	do(e, "LPOP", "l")
	do(e, "DEL", "nope")

	want := []string{
		"SET s 1",
		"INCR s",
		"RPUSH l a b c",
		"LPOP l",
		"DEL nope",
	}
	if strings.Join(app.records, "|") != strings.Join(want, "|") {
		t.Errorf("records = %q, want %q", app.records, want)
	}
}

func TestAppender_LogsLazyExpiry(t *testing.T) {
	e, clock := newTestEngine(t)
	app := &recordingAppender{}
	e.SetAppender(app)

	do(e, "RPUSH", "l", "a")
	do(e, "EXPIRE", "l", "1")
	do(e, "SET", "g", "v")
	do(e, "EXPIRE", "g", "1")
	clock.Advance(2 * time.Second)

	do(e, "RPUSH", "l", "b")
	do(e, "GET", "g")
	do(e, "GET", "g")         // already gone, nothing to log
	do(e, "EXPIRE", "l", "x") // validation error, no purge

	want := []string{
		"RPUSH l a",
		"EXPIRE l 1",
		"SET g v",
		"EXPIRE g 1",
		"DEL l",
		"RPUSH l b",
		"DEL g",
	}
	if strings.Join(app.records, "|") != strings.Join(want, "|") {
		t.Errorf("records = %q, want %q", app.records, want)
	}
}

func TestReplay_DoesNotAppend(t *testing.T) {
	e, _ := newTestEngine(t)
	app := &recordingAppender{}
	e.SetAppender(app)

	reply := e.Replay(context.Background(), "SET", []string{"k", "v"})
	if string(resp.Encode(reply)) != "+OK\r\n" {
		t.Fatalf("Replay reply = %q", resp.Encode(reply))
	}
	if len(app.records) != 0 {
		t.Errorf("replay appended %q", app.records)
	}
	if got := do(e, "GET", "k"); got != "$1\r\nv\r\n" {
		t.Errorf("GET after replay = %q", got)
	}
}

func TestAppender_ErrorIsNotFatal(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetAppender(&recordingAppender{err: errors.New("disk full")})

	if got := do(e, "SET", "k", "v"); got != "+OK\r\n" {
		t.Errorf("SET with failing log = %q, want +OK", got)
	}
	e.SetAppender(nil)
	if got := do(e, "SET", "k", "w"); got != "+OK\r\n" {
		t.Errorf("SET after detach = %q", got)
	}
}

// ============================================================
// Failure handling
// ============================================================

func TestPanicRecovered(t *testing.T) {
	e, _ := newTestEngine(t)
	e.commands[domain.CmdGet].handler = func(*Engine, *memory.Txn, []string) (resp.Reply, error) {
		panic("boom")
	}

	got := do(e, "GET", "k")
	if got != "-ERR internal error executing 'GET'\r\n" {
		t.Errorf("got %q", got)
	}
	if do(e, "SET", "k", "v") != "+OK\r\n" {
		t.Error("engine should keep working after a recovered panic")
	}
}

func TestMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	e, _ := newTestEngine(t, WithMetrics(reg))

	do(e, "SET", "k", "v")
	do(e, "NOPE")
	do(e, "GET")

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "memkv_commands_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var cmd, status string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "command":
					cmd = lp.GetValue()
				case "status":
					status = lp.GetValue()
				}
			}
			got[cmd+"/"+status] = m.GetCounter().GetValue()
		}
	}
	for _, key := range []string{"SET/ok", "UNKNOWN/unknown_command", "GET/arity"} {
		if got[key] != 1 {
			t.Errorf("%s = %v, want 1 (all: %v)", key, got[key], got)
		}
	}
}

func TestConcurrentIncr(t *testing.T) {
	e, _ := newTestEngine(t)
	do(e, "SET", "n", "1")

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				do(e, "INCR", "n")
			}
		}()
	}
	wg.Wait()

	if got := do(e, "GET", "n"); got != "$4\r\n1601\r\n" {
		t.Errorf("GET n = %q, want 1601", got)
	}
}
