package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/output"
	"github.com/yndnr/memkv/pkg/client"
	"github.com/yndnr/memkv/pkg/resp"
)

// benchTests lists the supported workloads in run order.
var benchTests = []string{"set", "get", "incr", "lpush", "rpush", "lpop", "rpop", "lrange"}

// BenchResult summarizes one workload.
type BenchResult struct {
	Test      string  `json:"test"`
	Requests  int     `json:"requests"`
	Errors    int64   `json:"errors"`
	Seconds   float64 `json:"seconds"`
	OpsPerSec float64 `json:"ops_per_sec"`
	AvgMillis float64 `json:"avg_ms"`
	P99Millis float64 `json:"p99_ms"`
}

// benchOptions configures a benchmark run.
type benchOptions struct {
	Requests int
	Clients  int
	Pipeline int
	Keyspace int
	Value    string
}

// BenchCommand generates load against the server.
func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure command throughput with concurrent clients",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "requests", Aliases: []string{"n"}, Value: 10000, Usage: "requests per test"},
			&cli.IntFlag{Name: "clients", Aliases: []string{"C"}, Value: 8, Usage: "concurrent connections"},
			&cli.IntFlag{Name: "pipeline", Aliases: []string{"P"}, Value: 1, Usage: "commands per round trip"},
			&cli.IntFlag{Name: "keyspace", Aliases: []string{"r"}, Value: 1000, Usage: "number of distinct keys"},
			&cli.IntFlag{Name: "data-size", Aliases: []string{"d"}, Value: 3, Usage: "value size in bytes"},
			&cli.StringFlag{Name: "tests", Aliases: []string{"t"}, Value: "set,get", Usage: "comma separated: " + strings.Join(benchTests, ",")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "hide progress"},
		},
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) error {
	tests, err := parseBenchTests(c.String("tests"))
	if err != nil {
		return err
	}
	opts := benchOptions{
		Requests: c.Int("requests"),
		Clients:  c.Int("clients"),
		Pipeline: c.Int("pipeline"),
		Keyspace: c.Int("keyspace"),
		Value:    strings.Repeat("x", max(c.Int("data-size"), 1)),
	}
	if opts.Requests <= 0 || opts.Clients <= 0 || opts.Pipeline <= 0 || opts.Keyspace <= 0 {
		return fmt.Errorf("requests, clients, pipeline and keyspace must be positive")
	}

	s := GetSettings(c)
	ctx := c.Context
	p := client.NewPool(ctx, s.Config.Server, client.PoolOptions{
		Options:  s.ClientOptions(),
		MaxTotal: opts.Clients,
		MaxIdle:  opts.Clients,
	})
	defer p.Close(ctx)

	results := make([]BenchResult, 0, len(tests))
	for _, test := range tests {
		var bar *output.ProgressBar
		if !c.Bool("quiet") {
			bar = output.NewProgressBar(errWriter(c), strings.ToUpper(test), int64(opts.Requests))
		}
		res, err := runBench(ctx, p, test, opts, bar)
		if err != nil {
			return err
		}
		if bar != nil {
			bar.Finish()
		}
		results = append(results, res)
	}
	return printResult(c, results)
}

func parseBenchTests(s string) ([]string, error) {
	var tests []string
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, known := range benchTests {
			if known == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown test %q (want %s)", name, strings.Join(benchTests, ","))
		}
		tests = append(tests, name)
	}
	if len(tests) == 0 {
		return nil, fmt.Errorf("no tests selected")
	}
	return tests, nil
}

// benchCommand builds the i-th command of a workload.
func benchCommand(test string, i int, opts benchOptions) []string {
	key := "bench:key:" + strconv.Itoa(i%opts.Keyspace)
	switch test {
	case "set":
		return []string{"SET", key, opts.Value}
	case "get":
		return []string{"GET", key}
	case "incr":
		return []string{"INCR", "bench:counter:" + strconv.Itoa(i%opts.Keyspace)}
	case "lpush":
		return []string{"LPUSH", "bench:list", opts.Value}
	case "rpush":
		return []string{"RPUSH", "bench:list", opts.Value}
	case "lpop":
		return []string{"LPOP", "bench:list"}
	case "rpop":
		return []string{"RPOP", "bench:list"}
	default:
		return []string{"LRANGE", "bench:list", "0", "99"}
	}
}

// runBench sends opts.Requests commands of one workload from opts.Clients
// workers, each holding one pooled connection.
func runBench(ctx context.Context, p *client.Pool, test string, opts benchOptions, bar *output.ProgressBar) (BenchResult, error) {
	var (
		next      atomic.Int64
		errCount  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.Requests/opts.Pipeline+1)
		wg        sync.WaitGroup
		firstErr  error
	)

	start := time.Now()
	for w := 0; w < opts.Clients; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.Get(ctx)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			defer p.Put(ctx, conn)

			var local []time.Duration
			for {
				from := int(next.Add(int64(opts.Pipeline))) - opts.Pipeline
				if from >= opts.Requests {
					break
				}
				to := min(from+opts.Pipeline, opts.Requests)
				cmds := make([][]string, 0, to-from)
				for i := from; i < to; i++ {
					cmds = append(cmds, benchCommand(test, i, opts))
				}

				t0 := time.Now()
				replies, err := conn.Pipeline(ctx, cmds)
				local = append(local, time.Since(t0))
				if err != nil {
					errCount.Add(int64(len(cmds)))
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					break
				}
				for _, r := range replies {
					if _, ok := r.(resp.ErrorReply); ok {
						errCount.Add(1)
					}
				}
				if bar != nil {
					bar.Increment(int64(len(cmds)))
				}
			}

			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if firstErr != nil {
		return BenchResult{}, fmt.Errorf("%s: %w", test, firstErr)
	}
	return summarize(test, opts.Requests, errCount.Load(), elapsed, latencies), nil
}

func summarize(test string, requests int, errs int64, elapsed time.Duration, latencies []time.Duration) BenchResult {
	res := BenchResult{
		Test:     strings.ToUpper(test),
		Requests: requests,
		Errors:   errs,
		Seconds:  elapsed.Seconds(),
	}
	if elapsed > 0 {
		res.OpsPerSec = float64(requests) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return res
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	res.AvgMillis = float64(total) / float64(len(latencies)) / float64(time.Millisecond)
	idx := (len(latencies)*99 + 99) / 100
	res.P99Millis = float64(latencies[idx-1]) / float64(time.Millisecond)
	return res
}
