package coalesce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoRunsComputeOnce(t *testing.T) {
	g := New()
	var calls int32
	start := make(chan struct{})

	const n = 50
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := g.Do("same-key", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "4", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute invoked %d times, want 1", got)
	}
	for i, v := range results {
		if v != "4" {
			t.Fatalf("result[%d] = %v, want 4", i, v)
		}
	}
	if g.InFlight() != 0 {
		t.Fatalf("expected no in-flight entries after completion, got %d", g.InFlight())
	}
}

func TestDoPropagatesErrorToAllWaiters(t *testing.T) {
	g := New()
	wantErr := errors.New("spawn failed")
	start := make(chan struct{})

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := g.Do("same-key", func() (any, error) {
				return nil, wantErr
			})
			errs[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Fatalf("errs[%d] = %v, want %v", i, err, wantErr)
		}
	}
}

func TestDoAllowsReentryAfterSettling(t *testing.T) {
	g := New()
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := g.Do("key", func() (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("compute invoked %d times across sequential calls, want 3", got)
	}
}

func TestDistinctKeysRunIndependently(t *testing.T) {
	g := New()
	var calls int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			g.Do(k, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				return k, nil
			})
		}(key)
	}
	wg.Wait()
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("compute invoked %d times, want 3 (one per distinct key)", got)
	}
}
