package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coderunner/execgw/internal/pool"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		e.Stop(ctx)
	})
	return e
}

func minimalConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheSweep = time.Hour
	cfg.ScratchSweep = time.Hour
	cfg.StatsInterval = time.Hour
	return cfg
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	e := newTestEngine(t, minimalConfig())
	_, err := e.Execute(context.Background(), "ruby", "", "puts 1")
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if asErr, ok := err.(*Error); !ok || asErr.Kind != KindUnsupported {
		t.Fatalf("got %v, want KindUnsupported", err)
	}
}

func TestExecuteInputTooLarge(t *testing.T) {
	e := newTestEngine(t, minimalConfig())
	src := strings.Repeat("a", MaxSourceBytes+1)
	_, err := e.Execute(context.Background(), pool.Python, "", src)
	asErr, ok := err.(*Error)
	if !ok || asErr.Kind != KindInputTooLarge {
		t.Fatalf("got %v, want KindInputTooLarge", err)
	}
}

func TestExecuteExactSizeLimitAccepted(t *testing.T) {
	e := newTestEngine(t, minimalConfig())
	src := "print(1)" + strings.Repeat(" ", MaxSourceBytes-len("print(1)"))
	_, err := e.Execute(context.Background(), pool.Python, "", src)
	if err != nil {
		if asErr, ok := err.(*Error); ok && asErr.Kind == KindInputTooLarge {
			t.Fatal("exact-size source should be accepted, not rejected as too large")
		}
	}
}

func TestExecuteJSSuccessThenCacheHit(t *testing.T) {
	e := newTestEngine(t, minimalConfig())
	ctx := context.Background()

	r1, err := e.Execute(ctx, pool.JavaScript, "", `console.log("hi")`)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if r1.Error {
		t.Skipf("node not available in this environment")
	}
	if r1.Cached {
		t.Fatal("first call should not be cached")
	}

	r2, err := e.Execute(ctx, pool.JavaScript, "", `console.log("hi")`)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !r2.Cached {
		t.Fatal("second identical call within TTL should be cached")
	}
	if r2.Stdout != r1.Stdout || r2.ExitCode != r1.ExitCode {
		t.Fatalf("cached result diverges from original: %+v vs %+v", r2, r1)
	}
}

func TestExecuteCoalescesConcurrentIdenticalRequests(t *testing.T) {
	e := newTestEngine(t, minimalConfig())
	ctx := context.Background()

	const n = 20
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Execute(ctx, pool.Python, "", `print(2+2)`)
		}(i)
	}
	wg.Wait()

	counters := e.pool.Counters(pool.Python).Snapshot()
	if counters.Spawned > 1 {
		t.Fatalf("expected at most 1 spawn for coalesced identical requests, got %d", counters.Spawned)
	}

	var first Result
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if i == 0 {
			first = results[i]
			continue
		}
		if results[i].Stdout != first.Stdout || results[i].ExitCode != first.ExitCode {
			t.Fatalf("call %d result diverges: %+v vs %+v", i, results[i], first)
		}
	}
}

func TestExecuteRejectsAtCapacity(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxConcurrent = 1
	cfg.Deadline = 3 * time.Second
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	e.mu.Lock()
	e.active = cfg.MaxConcurrent
	e.mu.Unlock()

	_, err := e.Execute(ctx, pool.Python, "", `print(1)`)
	asErr, ok := err.(*Error)
	if !ok || asErr.Kind != KindCapacity {
		t.Fatalf("got %v, want KindCapacity", err)
	}
}

func TestStatsReflectsLoadAndStatus(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxConcurrent = 10
	e := newTestEngine(t, cfg)

	e.mu.Lock()
	e.active = 9
	e.total = 42
	e.mu.Unlock()

	s := e.Stats()
	if s.Active != 9 || s.Total != 42 || s.MaxConcurrent != 10 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.Status != "degraded" {
		t.Fatalf("got status %q, want degraded at 90%% load", s.Status)
	}
}

func TestStatsHealthyBelowThreshold(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxConcurrent = 10
	e := newTestEngine(t, cfg)

	e.mu.Lock()
	e.active = 1
	e.mu.Unlock()

	if got := e.Stats().Status; got != "healthy" {
		t.Fatalf("got status %q, want healthy", got)
	}
}
