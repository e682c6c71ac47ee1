// Package internal contains integration tests that verify the coordination
// hub, its event sinks, logs and metrics work together.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/baton/coord"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
	"github.com/Iron-Ham/baton/internal/sink"
)

// TestHubMirrorsLifecycleToRedis runs a locked agent and a chained follower
// and checks that the redis mirror sees every event in publish order.
func TestHubMirrorsLifecycleToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	ps := client.Subscribe(ctx, "baton.events")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirmation: %v", err)
	}

	hub := coord.New()
	if _, err := sink.Forward(hub, sink.NewRedisSink(client, "baton.events"), sink.ForwardOptions{}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	doubler := coord.Coordinate(hub, "doubler", func(_ context.Context, x int) (int, error) {
		return x * 2, nil
	}, coord.WithLock("shared"))
	coord.When(hub, "doubler_complete", func(e coord.Event) error {
		v, _ := e.Result()
		coord.Emit(hub, "chained", map[string]any{"value": v})
		return nil
	})

	got, err := doubler(ctx, 21)
	if err != nil || got != 42 {
		t.Fatalf("doubler(21) = %d, %v", got, err)
	}

	want := []string{"doubler_started", "doubler_complete", "chained"}
	var seen []sink.Envelope
	for range want {
		select {
		case msg := <-ps.Channel():
			var env sink.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			seen = append(seen, env)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout after %d of %d events", len(seen), len(want))
		}
	}

	for i, env := range seen {
		if env.Event != want[i] {
			t.Errorf("event %d = %q, want %q", i, env.Event, want[i])
		}
	}
	if seen[0].InvocationID == "" || seen[0].InvocationID != seen[1].InvocationID {
		t.Errorf("lifecycle events should share one invocation ID: %q vs %q", seen[0].InvocationID, seen[1].InvocationID)
	}
	if seen[2].Fields["value"] != float64(42) {
		t.Errorf("chained value = %v, want 42", seen[2].Fields["value"])
	}
}

// TestFailedInvocationReachesLogsAndMetrics checks that one failing agent is
// visible in the log directory and counted in every relevant metric.
func TestFailedInvocationReachesLogsAndMetrics(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	col := metrics.NewCollector()
	if err := col.Register(metrics.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	hub := coord.New(coord.WithLogger(logger), coord.WithMetrics(col))
	hub.Subscribe("validator_error", func(coord.Event) error {
		return errors.New("alerting is down")
	})

	errBad := errors.New("bad input")
	validate := coord.CoordinateFunc(hub, "validator", func(context.Context) error {
		return errBad
	}, coord.WithLock("db"))

	if err := validate(context.Background()); !errors.Is(err, errBad) {
		t.Fatalf("validate() error = %v, want %v", err, errBad)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		t.Fatalf("ReadLogs: %v", err)
	}
	agentEntries := logging.FilterLogs(entries, logging.LogFilter{Agent: "validator"})
	msgs := make([]string, 0, len(agentEntries))
	for _, e := range agentEntries {
		msgs = append(msgs, e.Message)
		if e.Lock != "db" {
			t.Errorf("entry %q lock = %q, want db", e.Message, e.Lock)
		}
	}
	if !slices.Contains(msgs, "agent failed") {
		t.Errorf("validator log messages = %v, want an \"agent failed\" entry", msgs)
	}
	if len(logging.FilterLogs(entries, logging.LogFilter{Event: "validator_error"})) == 0 {
		t.Error("expected a handler failure entry tagged with event validator_error")
	}

	if got := testutil.ToFloat64(col.Invocations.WithLabelValues("validator", metrics.OutcomeFailure)); got != 1 {
		t.Errorf("failure invocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(col.HandlerFailures.WithLabelValues("validator_error")); got != 1 {
		t.Errorf("handler failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(col.LocksHeld); got != 0 {
		t.Errorf("locks held after release = %v, want 0", got)
	}
}

// TestLockSerializesAcrossAgents runs two agents sharing one lock from many
// goroutines and checks that at most one body is ever active.
func TestLockSerializesAcrossAgents(t *testing.T) {
	hub := coord.New()

	var mu sync.Mutex
	active, peak := 0, 0
	body := func(context.Context) error {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	reader := coord.CoordinateFunc(hub, "reader", body, coord.WithLock("ledger"))
	writer := coord.CoordinateFunc(hub, "writer", body, coord.WithLock("ledger"))

	var wg sync.WaitGroup
	for i := range 20 {
		call := reader
		if i%2 == 0 {
			call = writer
		}
		wg.Go(func() {
			if err := call(context.Background()); err != nil {
				t.Errorf("call: %v", err)
			}
		})
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", peak)
	}
	snap := hub.LockSnapshot()
	if len(snap) != 1 || snap[0].Name != "ledger" || snap[0].Held || snap[0].Acquisitions != 20 {
		t.Errorf("snapshot = %+v", snap)
	}
}
