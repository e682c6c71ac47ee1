package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/coord"
	"github.com/Iron-Ham/baton/internal/config"
	"github.com/Iron-Ham/baton/internal/event"
	"github.com/Iron-Ham/baton/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the doubler pipeline",
	Long: `Run the doubler pipeline: every input is doubled by the "doubler" agent,
which holds a shared resource lock while it works. A handler on
"doubler_complete" emits a "chained" event carrying the doubled value.
Events are printed as they fire, followed by the results and a snapshot of
every lock.

Examples:
  # Double 3 and 5 concurrently under the "shared" lock
  baton run

  # Make the doubler reject 7
  baton run --inputs 3,5,7 --fail-on 7

  # Hold the lock long enough that other callers time out
  baton run --inputs 1,2,3 --hold 200ms --timeout 100ms

  # Serve Prometheus metrics and export spans while running
  baton run --metrics-addr :9464 --trace`,
	RunE: runRun,
}

var (
	runInputs      []int
	runFailOn      []int
	runLock        string
	runTimeout     time.Duration
	runHold        time.Duration
	runConcurrency int
	runMetricsAddr string
	runTrace       bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntSliceVar(&runInputs, "inputs", []int{3, 5}, "Values to double, one invocation each")
	runCmd.Flags().IntSliceVar(&runFailOn, "fail-on", nil, "Inputs the doubler rejects with an error")
	runCmd.Flags().StringVar(&runLock, "lock", "shared", "Resource lock the doubler holds (empty for none)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Lock wait timeout (default: locks.default_timeout_ms)")
	runCmd.Flags().DurationVar(&runHold, "hold", 0, "How long each doubler call holds the lock")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Maximum concurrent invocations (0 = one per input)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Export invocation spans to stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()
	pal := palette{styled: isTerminal(out)}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	col := metrics.NewCollector()
	reg := metrics.NewRegistry()
	if err := col.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hubOpts := []coord.HubOption{
		coord.WithLogger(logger),
		coord.WithMetrics(col),
		coord.WithDefaultLockTimeout(cfg.Locks.DefaultTimeout()),
		coord.WithSlowLockWarning(cfg.Locks.SlowWait()),
	}
	if runTrace || cfg.Tracing.Enabled {
		tp, err := newTracerProvider(cmd.ErrOrStderr(), cfg.Tracing.Pretty)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		hubOpts = append(hubOpts, coord.WithTracerProvider(tp))
	}
	hub := coord.New(hubOpts...)

	sinks, err := openSinks(ctx, cfg.Sinks, hub)
	if err != nil {
		return err
	}
	defer closeSinks(sinks, logger)

	if addr := metricsAddr(cfg); addr != "" {
		bound, shutdown, err := serveMetrics(addr, cfg.Metrics.Path, reg, logger)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer shutdown()
		fmt.Fprintln(out, pal.render(mutedStyle, fmt.Sprintf("Serving metrics on http://%s%s", bound, metricsPath(cfg))))
	}

	printer := &eventPrinter{w: out, palette: pal, start: time.Now()}
	hub.SubscribeAll(printer.handle)

	report := runPipeline(ctx, hub, pipelineOptions{
		Inputs:      runInputs,
		FailOn:      runFailOn,
		Lock:        runLock,
		Timeout:     runTimeout,
		TimeoutSet:  cmd.Flags().Changed("timeout"),
		Hold:        runHold,
		Concurrency: runConcurrency,
	})

	printReport(out, pal, report)

	if failed := report.failures(); failed > 0 {
		return fmt.Errorf("%d of %d invocations failed", failed, len(report.Results))
	}
	return nil
}

func metricsAddr(cfg *config.Config) string {
	if runMetricsAddr != "" {
		return runMetricsAddr
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Addr
	}
	return ""
}

func metricsPath(cfg *config.Config) string {
	if cfg.Metrics.Path == "" {
		return "/metrics"
	}
	return cfg.Metrics.Path
}

// pipelineOptions configures one doubler pipeline run.
type pipelineOptions struct {
	Inputs      []int
	FailOn      []int
	Lock        string
	Timeout     time.Duration
	TimeoutSet  bool // Timeout overrides the hub default even when zero
	Hold        time.Duration
	Concurrency int
}

type invocationResult struct {
	Index  int
	Input  int
	Output int
	Err    error
}

type pipelineReport struct {
	Results []invocationResult
	Chained []int
	Locks   []coord.LockState
}

func (r pipelineReport) failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// runPipeline wires the doubler agent and its chained follower onto hub and
// runs one invocation per input.
func runPipeline(ctx context.Context, hub *coord.Hub, opts pipelineOptions) pipelineReport {
	var agentOpts []coord.Option
	if opts.Lock != "" {
		agentOpts = append(agentOpts, coord.WithLock(opts.Lock))
	}
	if opts.TimeoutSet {
		agentOpts = append(agentOpts, coord.WithTimeout(opts.Timeout))
	}

	doubler := coord.Coordinate(hub, "doubler", func(ctx context.Context, x int) (int, error) {
		if slices.Contains(opts.FailOn, x) {
			return 0, fmt.Errorf("refusing to double %d", x)
		}
		if opts.Hold > 0 {
			select {
			case <-time.After(opts.Hold):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return x * 2, nil
	}, agentOpts...)

	coord.When(hub, "doubler_complete", func(e coord.Event) error {
		v, _ := e.Result()
		hub.Emit("chained", map[string]any{"value": v, "source": e.InvocationID})
		return nil
	})

	var mu sync.Mutex
	var chained []int
	hub.Subscribe("chained", func(e coord.Event) error {
		v, _ := e.Get("value")
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("chained value %v is not an int", v)
		}
		mu.Lock()
		chained = append(chained, n)
		mu.Unlock()
		return nil
	})

	p := pool.NewWithResults[invocationResult]()
	if opts.Concurrency > 0 {
		p = p.WithMaxGoroutines(opts.Concurrency)
	}
	for i, in := range opts.Inputs {
		p.Go(func() invocationResult {
			out, err := doubler(ctx, in)
			return invocationResult{Index: i, Input: in, Output: out, Err: err}
		})
	}
	results := p.Wait()
	slices.SortFunc(results, func(a, b invocationResult) int { return cmp.Compare(a.Index, b.Index) })

	mu.Lock()
	defer mu.Unlock()
	sort.Ints(chained)
	return pipelineReport{Results: results, Chained: chained, Locks: hub.LockSnapshot()}
}

// eventPrinter writes one line per bus event.
type eventPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	palette palette
	start   time.Time
}

func (p *eventPrinter) handle(e coord.Event) error {
	line := formatEvent(e, p.palette, e.Timestamp().Sub(p.start))
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func formatEvent(e coord.Event, pal palette, elapsed time.Duration) string {
	name := e.EventType()
	style := customStyle
	if e.AgentName != "" {
		switch {
		case strings.HasSuffix(name, event.SuffixStarted):
			style = startedStyle
		case strings.HasSuffix(name, event.SuffixComplete):
			style = successStyle
		case strings.HasSuffix(name, event.SuffixError):
			style = errorStyle
		}
	}

	var details []string
	if e.InvocationID != "" {
		details = append(details, "id="+shortID(e.InvocationID))
	}
	if v, ok := e.Result(); ok {
		details = append(details, fmt.Sprintf("result=%v", v))
	}
	if e.Err != nil {
		details = append(details, "error="+e.Err.Error())
	}
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		v := e.Fields[k]
		if s, ok := v.(string); ok && k == "source" {
			v = shortID(s)
		}
		details = append(details, fmt.Sprintf("%s=%v", k, v))
	}

	stamp := pal.render(mutedStyle, fmt.Sprintf("+%.3fs", max(elapsed, 0).Seconds()))
	return strings.TrimRight(fmt.Sprintf("%s %s %s", stamp, pal.render(style, fmt.Sprintf("%-18s", name)), strings.Join(details, " ")), " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printReport(w io.Writer, pal palette, r pipelineReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, pal.render(titleStyle, "RESULTS"))
	fmt.Fprintln(w, strings.Repeat("─", 40))
	for _, res := range r.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "  %d -> %s\n", res.Input, pal.render(errorStyle, "error: "+res.Err.Error()))
			continue
		}
		fmt.Fprintf(w, "  %d -> %s\n", res.Input, pal.render(successStyle, fmt.Sprint(res.Output)))
	}
	fmt.Fprintf(w, "  chained: %v\n", r.Chained)

	fmt.Fprintln(w)
	fmt.Fprintln(w, pal.render(titleStyle, "LOCKS"))
	fmt.Fprintln(w, strings.Repeat("─", 40))
	if len(r.Locks) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	fmt.Fprintf(w, "  %-16s %-5s %-8s %s\n", "NAME", "HELD", "WAITERS", "ACQUISITIONS")
	for _, l := range r.Locks {
		held := "no"
		if l.Held {
			held = "yes"
		}
		fmt.Fprintf(w, "  %-16s %-5s %-8d %d\n", l.Name, held, l.Waiters, l.Acquisitions)
	}
}
