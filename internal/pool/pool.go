// Package pool dispatches one (language, version, source) request to the
// right interpreter invocation, fronted by that language's circuit
// breaker and execution counters.
//
// The per-language lookup table generalizes internal/config's provider
// table idiom (config_llm.go maps a provider name to its request-building
// behavior) into a capability interface of {PrepareSource, BuildCommand,
// Cleanup}; the active/spawned/timeouts/errors bookkeeping follows
// internal/process.LaneState's counter style.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coderunner/execgw/internal/breaker"
	"github.com/coderunner/execgw/internal/execsafety"
	"github.com/coderunner/execgw/internal/runner"
	"github.com/coderunner/execgw/internal/scratch"
)

// Language identifiers supported by the gateway.
const (
	JavaScript = "javascript"
	TypeScript = "typescript"
	Python     = "python"
	PHP        = "php"
	Java       = "java"
)

// Kind classifies a dispatch-time failure the pool reports without
// reaching the runner at all.
type Kind int

const (
	KindOK Kind = iota
	KindUnsupported
	KindCircuitOpen
	KindCircuitTesting
)

// Outcome is what a pool Dispatch call returns.
type Outcome struct {
	Kind   Kind
	Result runner.Result
	// Phase is set to "compile" when a Java compile step failed.
	Phase string
}

// Counters tracks per-language execution bookkeeping.
type Counters struct {
	mu       sync.Mutex
	Active   int
	Spawned  int
	Timeouts int
	Errors   int
}

func (c *Counters) enter() {
	c.mu.Lock()
	c.Active++
	c.mu.Unlock()
}

func (c *Counters) leave(spawned, timedOut, errored bool) {
	c.mu.Lock()
	c.Active--
	if spawned {
		c.Spawned++
	}
	if timedOut {
		c.Timeouts++
	}
	if errored {
		c.Errors++
	}
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Active: c.Active, Spawned: c.Spawned, Timeouts: c.Timeouts, Errors: c.Errors}
}

// handler implements the per-language capability set: prepare any on-disk
// source, build the command(s) to run, and clean up afterward.
type handler interface {
	// dispatch runs the full invocation (possibly two processes, for
	// Java) and returns the outcome. It owns its own scratch-file
	// lifecycle.
	dispatch(ctx context.Context, version, source string, deadline time.Duration) Outcome
}

// Pool dispatches requests to one handler per language, each fronted by
// its own circuit breaker and counters.
type Pool struct {
	scratch  *scratch.Dir
	handlers map[string]handler
	breakers map[string]*breaker.Breaker
	counters map[string]*Counters
}

// New builds a Pool with the five supported languages wired to sc for
// any on-disk source they need. maxOutput bounds each handler's captured
// stdout/stderr; a value <= 0 falls back to runner.MaxOutputBytes.
func New(sc *scratch.Dir, cfg breaker.Config, maxOutput int) *Pool {
	if maxOutput <= 0 {
		maxOutput = runner.MaxOutputBytes
	}
	langs := []string{JavaScript, TypeScript, Python, PHP, Java}
	p := &Pool{
		scratch:  sc,
		handlers: make(map[string]handler, len(langs)),
		breakers: make(map[string]*breaker.Breaker, len(langs)),
		counters: make(map[string]*Counters, len(langs)),
	}
	for _, lang := range langs {
		p.breakers[lang] = breaker.New(lang, cfg)
		p.counters[lang] = &Counters{}
	}
	p.handlers[JavaScript] = &scriptHandler{executable: "node", moduleFlag: true, maxOutput: maxOutput}
	p.handlers[TypeScript] = p.handlers[JavaScript]
	p.handlers[Python] = &scriptHandler{executable: "python3", maxOutput: maxOutput}
	p.handlers[PHP] = &phpHandler{scratch: sc, maxOutput: maxOutput}
	p.handlers[Java] = &javaHandler{scratch: sc, maxOutput: maxOutput}
	return p
}

// Languages returns the five supported language identifiers.
func (p *Pool) Languages() []string {
	return []string{JavaScript, TypeScript, Python, PHP, Java}
}

// Supports reports whether language is one of the five known languages.
func (p *Pool) Supports(language string) bool {
	_, ok := p.handlers[language]
	return ok
}

// Breaker returns the circuit breaker for language, or nil if unknown.
func (p *Pool) Breaker(language string) *breaker.Breaker {
	return p.breakers[language]
}

// Counters returns the execution counters for language, or nil if
// unknown.
func (p *Pool) Counters(language string) *Counters {
	return p.counters[language]
}

// Dispatch routes one request to its language handler, consulting and
// updating that language's circuit breaker around the spawn.
func (p *Pool) Dispatch(ctx context.Context, language, version, source string, deadline time.Duration) Outcome {
	h, ok := p.handlers[language]
	if !ok {
		return Outcome{Kind: KindUnsupported}
	}
	b := p.breakers[language]
	counters := p.counters[language]

	allowed, reason := b.Allow()
	if !allowed {
		if reason == breaker.RejectTesting {
			return Outcome{Kind: KindCircuitTesting}
		}
		return Outcome{Kind: KindCircuitOpen}
	}

	counters.enter()
	out := h.dispatch(ctx, version, source, deadline)

	spawnFailed := out.Result.SpawnFailed
	if spawnFailed {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	counters.leave(!spawnFailed, out.Result.Killed, spawnFailed)

	return out
}

// scriptHandler covers languages that pipe source on the command line
// with no on-disk file: JavaScript/TypeScript (via a JS engine in
// module-evaluation mode) and Python (unbuffered, minimal environment).
type scriptHandler struct {
	executable string
	moduleFlag bool
	maxOutput  int
}

func (h *scriptHandler) dispatch(ctx context.Context, version, source string, deadline time.Duration) Outcome {
	exe, err := execsafety.SanitizeExecutable(h.executable)
	if err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}

	var args []string
	var env []string
	if h.moduleFlag {
		args = []string{"--input-type=module", "-e", source}
	} else {
		args = []string{"-u", "-c", source}
		env = []string{"PYTHONUNBUFFERED=1", "PATH=/usr/bin:/bin"}
	}

	res := runner.Run(ctx, runner.Spec{
		Path:      exe,
		Args:      args,
		Env:       env,
		Deadline:  deadline,
		MaxOutput: h.maxOutput,
	})
	return Outcome{Result: res}
}

// phpHandler writes source to a scratch file, prefixing `<?php` if the
// source doesn't already open a PHP tag, and invokes the PHP CLI with the
// file path.
type phpHandler struct {
	scratch   *scratch.Dir
	maxOutput int
}

func (h *phpHandler) dispatch(ctx context.Context, _ string, source string, deadline time.Duration) Outcome {
	body := source
	if len(body) < 5 || body[:5] != "<?php" {
		body = "<?php\n" + body
	}

	path := h.scratch.NewFile("src", ".php")
	if err := h.scratch.Write(path, []byte(body)); err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}
	defer h.scratch.Remove(path)

	exe, err := execsafety.SanitizeExecutable("php")
	if err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}

	res := runner.Run(ctx, runner.Spec{
		Path:      exe,
		Args:      []string{path},
		Deadline:  deadline,
		MaxOutput: h.maxOutput,
	})
	return Outcome{Result: res}
}

// javaHandler derives the class name, writes <scratch>/NAME.java,
// compiles it, and on success runs it with NAME on the scratch
// directory's classpath. A non-zero compile exit short-circuits the run
// step and is reported with Phase "compile".
type javaHandler struct {
	scratch   *scratch.Dir
	maxOutput int
}

func (h *javaHandler) dispatch(ctx context.Context, _ string, source string, deadline time.Duration) Outcome {
	className, err := execsafety.JavaClassName(source)
	if err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}

	srcPath := fmt.Sprintf("%s/%s.java", h.scratch.Root(), className)
	if err := h.scratch.Write(srcPath, []byte(source)); err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}
	classPath := fmt.Sprintf("%s/%s.class", h.scratch.Root(), className)
	defer h.scratch.Remove(srcPath)
	defer h.scratch.Remove(classPath)

	javac, err := execsafety.SanitizeExecutable("javac")
	if err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}
	compile := runner.Run(ctx, runner.Spec{
		Path:      javac,
		Args:      []string{"-d", h.scratch.Root(), srcPath},
		Deadline:  deadline,
		MaxOutput: h.maxOutput,
	})
	if compile.SpawnFailed || compile.ExitCode != 0 {
		return Outcome{Result: compile, Phase: "compile"}
	}

	java, err := execsafety.SanitizeExecutable("java")
	if err != nil {
		return Outcome{Result: runner.Result{SpawnFailed: true, SpawnErr: err, ExitCode: -1}}
	}
	run := runner.Run(ctx, runner.Spec{
		Path:      java,
		Args:      []string{"-cp", h.scratch.Root(), className},
		Deadline:  deadline,
		MaxOutput: h.maxOutput,
	})
	return Outcome{Result: run}
}
