package lockreg

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/baton/internal/metrics"
)

func TestAcquireRelease(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	h, err := reg.Acquire(ctx, "shared")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Name() != "shared" {
		t.Errorf("Name() = %q, want shared", h.Name())
	}
	if _, ok := reg.TryAcquire("shared"); ok {
		t.Fatal("TryAcquire should fail while the lock is held")
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h2, ok := reg.TryAcquire("shared")
	if !ok {
		t.Fatal("TryAcquire should succeed after release")
	}
	h2.Release() //nolint:errcheck
}

func TestEmptyName(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Acquire(context.Background(), ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Acquire(\"\") error = %v, want ErrEmptyName", err)
	}
	if _, ok := reg.TryAcquire(""); ok {
		t.Error("TryAcquire(\"\") should fail")
	}
	if reg.Len() != 0 {
		t.Errorf("empty names must not create locks, Len() = %d", reg.Len())
	}
}

func TestReleaseTwice(t *testing.T) {
	reg := NewRegistry()
	h, err := reg.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := reg.Release(h); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := reg.Release(h); !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("second Release error = %v, want ErrAlreadyReleased", err)
	}
	if err := reg.Release(nil); !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("Release(nil) error = %v, want ErrAlreadyReleased", err)
	}

	// A double release must not leave the semaphore over-released.
	a, ok := reg.TryAcquire("k")
	if !ok {
		t.Fatal("TryAcquire after release should succeed")
	}
	if _, ok := reg.TryAcquire("k"); ok {
		t.Fatal("lock admitted two holders after a double release")
	}
	a.Release() //nolint:errcheck
}

func TestAcquireTimeout(t *testing.T) {
	c := metrics.NewCollector()
	reg := NewRegistry(WithMetrics(c))
	ctx := context.Background()

	h, _ := reg.Acquire(ctx, "k")
	defer h.Release() //nolint:errcheck

	start := time.Now()
	_, err := reg.AcquireTimeout(ctx, "k", 20*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("AcquireTimeout error = %v, want ErrLockTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond || elapsed > time.Second {
		t.Errorf("timeout not respected, waited %v", elapsed)
	}
	if v := testutil.ToFloat64(c.LockTimeouts.WithLabelValues("k")); v != 1 {
		t.Errorf("lock timeouts = %v, want 1", v)
	}

	states := reg.Snapshot()
	if len(states) != 1 || !states[0].Held || states[0].Waiters != 0 {
		t.Errorf("timed-out waiter must leave no trace, got %+v", states)
	}
}

func TestAcquireCancelledIsNotTimeout(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Acquire(context.Background(), "k")
	defer h.Release() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := reg.AcquireTimeout(ctx, "k", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrLockTimeout) {
		t.Error("external cancellation must not be reported as ErrLockTimeout")
	}
}

func TestMutualExclusion(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.WithLock(ctx, "counter", 0, func() error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", p)
	}
	if got := reg.Snapshot()[0].Acquisitions; got != 50 {
		t.Errorf("acquisitions = %d, want 50", got)
	}
}

func TestConcurrentFirstUseCreatesOnePrimitive(t *testing.T) {
	reg := NewRegistry()

	const n = 64
	got := make([]*resourceLock, n)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			got[i] = reg.lockFor("fresh")
		}(i)
	}
	start.Done()
	wg.Wait()

	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatalf("goroutine %d saw a different primitive", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestWithLock(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		lock    string
		fn      func() error
		wantErr error
	}{
		{name: "success", lock: "k", fn: func() error { return nil }},
		{name: "error propagates", lock: "k", fn: func() error { return errBoom }, wantErr: errBoom},
		{name: "empty name skips locking", lock: "", fn: func() error { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.WithLock(context.Background(), tt.lock, 0, tt.fn)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WithLock error = %v, want %v", err, tt.wantErr)
			}
			if tt.lock == "" {
				if reg.Len() != 0 {
					t.Error("empty lock name should not register a lock")
				}
				return
			}
			h, ok := reg.TryAcquire(tt.lock)
			if !ok {
				t.Fatal("lock should be free after WithLock returns")
			}
			h.Release() //nolint:errcheck
		})
	}
}

func TestWithLockEmptyNameRunsConcurrently(t *testing.T) {
	reg := NewRegistry()
	inside := make(chan struct{})
	release := make(chan struct{})

	go reg.WithLock(context.Background(), "", 0, func() error { //nolint:errcheck
		close(inside)
		<-release
		return nil
	})
	<-inside

	done := make(chan struct{})
	go func() {
		reg.WithLock(context.Background(), "", 0, func() error { return nil }) //nolint:errcheck
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unnamed WithLock calls should not block each other")
	}
	close(release)
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	reg := NewRegistry()

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("recovered %v, want kaboom", r)
			}
		}()
		reg.WithLock(context.Background(), "k", 0, func() error { //nolint:errcheck
			panic("kaboom")
		})
	}()

	h, ok := reg.TryAcquire("k")
	if !ok {
		t.Fatal("lock should be released after a panic")
	}
	h.Release() //nolint:errcheck
}

func TestWithLockTimeoutSkipsFn(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Acquire(context.Background(), "k")
	defer h.Release() //nolint:errcheck

	called := false
	err := reg.WithLock(context.Background(), "k", 10*time.Millisecond, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("error = %v, want ErrLockTimeout", err)
	}
	if called {
		t.Error("fn must not run when acquisition times out")
	}
}

func TestSnapshotSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		h, _ := reg.Acquire(context.Background(), name)
		if name != "b" {
			h.Release() //nolint:errcheck
		}
	}

	states := reg.Snapshot()
	want := []LockState{
		{Name: "a", Acquisitions: 1},
		{Name: "b", Held: true, Acquisitions: 1},
		{Name: "c", Acquisitions: 1},
	}
	if len(states) != len(want) {
		t.Fatalf("Snapshot() = %+v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %+v, want %+v", i, states[i], want[i])
		}
	}
}

func TestLocksHeldGauge(t *testing.T) {
	c := metrics.NewCollector()
	reg := NewRegistry(WithMetrics(c))

	h1, _ := reg.Acquire(context.Background(), "a")
	h2, _ := reg.Acquire(context.Background(), "b")
	if v := testutil.ToFloat64(c.LocksHeld); v != 2 {
		t.Errorf("locks held = %v, want 2", v)
	}
	h1.Release() //nolint:errcheck
	h2.Release() //nolint:errcheck
	if v := testutil.ToFloat64(c.LocksHeld); v != 0 {
		t.Errorf("locks held = %v, want 0", v)
	}
}
