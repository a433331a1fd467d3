// Package engine composes fingerprinting, result caching, request
// coalescing, and per-language dispatch into the gateway's single public
// entry point, Execute.
//
// Start/Stop's background-task bring-up and graceful shutdown mirror
// internal/gateway/lifecycle.go's Server.Start/Stop: a startTime stamp,
// a sequence of startX() calls for periodic background workers, and a
// Stop that signals them to exit and waits within a grace window.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coderunner/execgw/internal/breaker"
	"github.com/coderunner/execgw/internal/coalesce"
	"github.com/coderunner/execgw/internal/fingerprint"
	"github.com/coderunner/execgw/internal/observability"
	"github.com/coderunner/execgw/internal/pool"
	"github.com/coderunner/execgw/internal/resultcache"
	"github.com/coderunner/execgw/internal/runner"
	"github.com/coderunner/execgw/internal/scratch"
)

// ErrorKind classifies an Execute failure that never reaches the runner.
type ErrorKind string

const (
	KindUnsupported   ErrorKind = "unsupported"
	KindInputTooLarge ErrorKind = "input-too-large"
	KindCapacity      ErrorKind = "capacity"
	KindCircuitOpen   ErrorKind = "circuit-open"
)

// Error is returned by Execute for any failure that does not produce a
// result record (i.e. one of the admission-time rejections).
type Error struct {
	Kind       ErrorKind
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("execgw: %s", e.Kind)
}

// MaxSourceBytes is the maximum accepted source size.
const MaxSourceBytes = 100_000

// Result is the public result record returned by Execute.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
	Killed     bool   `json:"killed"`
	Cached     bool   `json:"cached"`
	Phase      string `json:"phase,omitempty"`
	Error      bool   `json:"error,omitempty"`
}

// Config tunes the engine.
type Config struct {
	MaxConcurrent int
	Deadline      time.Duration
	MaxOutput     int
	CacheTTL      time.Duration
	CacheMaxSize  int
	BreakerConfig breaker.Config
	CacheSweep    time.Duration
	ScratchSweep  time.Duration
	StatsInterval time.Duration
}

// DefaultConfig returns the engine's documented default tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 100,
		Deadline:      10 * time.Second,
		MaxOutput:     runner.MaxOutputBytes,
		CacheTTL:      resultcache.DefaultTTL,
		CacheMaxSize:  resultcache.DefaultMaxSize,
		BreakerConfig: breaker.DefaultConfig(),
		CacheSweep:    60 * time.Second,
		ScratchSweep:  60 * time.Second,
		StatsInterval: 5 * time.Second,
	}
}

// Engine is the gateway's core execution component.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	scratch *scratch.Dir
	pool    *pool.Pool
	cache   *resultcache.Cache
	group   *coalesce.Group
	metrics *observability.Metrics

	mu        sync.Mutex
	active    int
	total     int
	startTime time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an Engine with its own scratch root. Callers must call
// Start before issuing Execute calls and Stop when finished.
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultConfig().MaxOutput
	}

	sc, err := scratch.New()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		scratch: sc,
		pool:    pool.New(sc, cfg.BreakerConfig, cfg.MaxOutput),
		cache:   resultcache.New(resultcache.Options{TTL: cfg.CacheTTL, MaxSize: cfg.CacheMaxSize}),
		group:   coalesce.New(),
		stop:    make(chan struct{}),
	}
	return e, nil
}

// SetMetrics attaches a Prometheus metrics collector; engine operations
// report to it when set. Safe to call once, before Start.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Start records the engine's start time, launches background workers, and
// performs a best-effort interpreter warm-up. Never returns an error:
// warm-up failures are logged, not fatal.
func (e *Engine) Start(ctx context.Context) {
	e.startTime = time.Now()

	sweepEvery := e.cfg.CacheSweep
	if sweepEvery <= 0 {
		sweepEvery = DefaultConfig().CacheSweep
	}
	scratchSweepEvery := e.cfg.ScratchSweep
	if scratchSweepEvery <= 0 {
		scratchSweepEvery = DefaultConfig().ScratchSweep
	}
	statsEvery := e.cfg.StatsInterval
	if statsEvery <= 0 {
		statsEvery = DefaultConfig().StatsInterval
	}

	e.scratch.StartSweeper(scratchSweepEvery)
	e.startCacheSweeper(sweepEvery)
	e.startStatsLogger(statsEvery)
	e.warmUp(ctx)
}

// warmUp issues one trivial execution per supported language to
// pre-launch interpreters. Failures are logged and otherwise ignored.
func (e *Engine) warmUp(ctx context.Context) {
	samples := map[string]string{
		pool.JavaScript: `console.log("ok")`,
		pool.TypeScript: `console.log("ok")`,
		pool.Python:     `print("ok")`,
		pool.PHP:        `<?php echo "ok";`,
		pool.Java:       `public class Main { public static void main(String[] a) { System.out.println("ok"); } }`,
	}
	for lang, src := range samples {
		if _, err := e.Execute(ctx, lang, "", src); err != nil {
			e.log.Warn("warm-up execution failed", "language", lang, "error", err)
		}
	}
}

func (e *Engine) startCacheSweeper(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				e.cache.Sweep(time.Now())
			}
		}
	}()
}

func (e *Engine) startStatsLogger(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				s := e.Stats()
				e.log.Debug("engine stats", "active", s.Active, "total", s.Total, "load_pct", s.LoadPercent)
				e.reportCircuitState()
			}
		}
	}()
}

// Stop signals all background workers to exit, waits for them until ctx
// is done, and tears down the scratch root. Executions already in flight
// are not waited for. Cache contents are discarded.
func (e *Engine) Stop(ctx context.Context) error {
	close(e.stop)
	e.scratch.StopSweeper()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("engine stop: background workers did not exit within grace window")
	}

	e.cache.Clear()
	return e.scratch.Close()
}

// Execute admits the request, then fingerprints and probes the cache, then
// coalesces concurrent identical requests onto a single spawn.
func (e *Engine) Execute(ctx context.Context, language, version, source string) (Result, error) {
	if !e.pool.Supports(language) {
		return Result{}, &Error{Kind: KindUnsupported}
	}
	if len(source) > MaxSourceBytes {
		return Result{}, &Error{Kind: KindInputTooLarge}
	}

	e.mu.Lock()
	if e.active >= e.cfg.MaxConcurrent {
		e.mu.Unlock()
		return Result{}, &Error{Kind: KindCapacity, RetryAfter: 5 * time.Second}
	}
	e.mu.Unlock()

	fp := fingerprint.Of(language, version, source)

	if cached, ok := e.cache.Get(fp); ok {
		if e.metrics != nil {
			e.metrics.CacheHitsTotal.Inc()
		}
		r := cached.(Result)
		r.Cached = true
		return r, nil
	}
	if e.metrics != nil {
		e.metrics.CacheMissesTotal.Inc()
	}

	val, err := e.group.Do(fp, func() (any, error) {
		return e.execute(ctx, language, version, source, fp)
	})
	if err != nil {
		return Result{}, err
	}
	r := val.(Result)
	r.Cached = false
	return r, nil
}

// execute is the coalesced computation body: exactly one caller per
// fingerprint runs this at a time.
func (e *Engine) execute(ctx context.Context, language, version, source, fp string) (Result, error) {
	e.mu.Lock()
	e.active++
	e.total++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.ActiveExecutions.WithLabelValues(language).Inc()
	}
	start := time.Now()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.ActiveExecutions.WithLabelValues(language).Dec()
			e.metrics.ExecutionDuration.WithLabelValues(language).Observe(time.Since(start).Seconds())
		}
	}()

	out := e.pool.Dispatch(ctx, language, version, source, e.cfg.Deadline)
	switch out.Kind {
	case pool.KindCircuitOpen, pool.KindCircuitTesting:
		e.countOutcome(language, "circuit-open")
		return Result{}, &Error{Kind: KindCircuitOpen, RetryAfter: 30 * time.Second}
	case pool.KindUnsupported:
		e.countOutcome(language, "unsupported")
		return Result{}, &Error{Kind: KindUnsupported}
	}

	res := out.Result
	r := Result{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMs: res.DurationMs,
		Killed:     res.Killed,
		Phase:      out.Phase,
		Error:      res.SpawnFailed,
	}

	if !res.SpawnFailed && e.metrics != nil {
		e.metrics.SpawnedTotal.WithLabelValues(language).Inc()
	}

	switch {
	case res.SpawnFailed:
		e.countOutcome(language, "spawn-failed")
	case res.Killed:
		e.countOutcome(language, "timeout")
	case r.ExitCode != 0:
		e.countOutcome(language, "user-program-nonzero")
	default:
		e.countOutcome(language, "success")
	}

	if r.ExitCode == 0 {
		e.cache.Put(fp, r)
	}
	return r, nil
}

func (e *Engine) countOutcome(language, outcome string) {
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(language, outcome).Inc()
	}
}

// reportCircuitState publishes each language's breaker state (0=closed,
// 1=half_open, 2=open) to the CircuitState gauge.
func (e *Engine) reportCircuitState() {
	if e.metrics == nil {
		return
	}
	for _, lang := range e.pool.Languages() {
		b := e.pool.Breaker(lang)
		if b == nil {
			continue
		}
		var value float64
		switch b.CurrentState() {
		case breaker.HalfOpen:
			value = 1
		case breaker.Open:
			value = 2
		}
		e.metrics.CircuitState.WithLabelValues(lang).Set(value)
	}
}

// Stats is a point-in-time snapshot of engine load and cache behavior.
type Stats struct {
	Active        int           `json:"active"`
	Total         int           `json:"total"`
	MaxConcurrent int           `json:"maxConcurrent"`
	LoadPercent   float64       `json:"loadPercent"`
	Uptime        time.Duration `json:"uptime"`
	CacheHits     uint64        `json:"cacheHits"`
	CacheMisses   uint64        `json:"cacheMisses"`
	CacheSize     int           `json:"cacheSize"`
	InFlight      int           `json:"inFlight"`
	Status        string        `json:"status"`
}

// Stats returns the current engine snapshot.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active, total := e.active, e.total
	e.mu.Unlock()

	hits, misses := e.cache.HitsMisses()
	load := float64(active) / float64(e.cfg.MaxConcurrent) * 100
	status := "healthy"
	if load >= 90 {
		status = "degraded"
	}

	return Stats{
		Active:        active,
		Total:         total,
		MaxConcurrent: e.cfg.MaxConcurrent,
		LoadPercent:   load,
		Uptime:        time.Since(e.startTime),
		CacheHits:     hits,
		CacheMisses:   misses,
		CacheSize:     e.cache.Size(),
		InFlight:      e.group.InFlight(),
		Status:        status,
	}
}
