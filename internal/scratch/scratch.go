// Package scratch manages the engine's on-disk scratch root: the
// temporary directory where PHP and Java sources are written before
// invoking their respective interpreters.
//
// The sweeper loop (a time.Ticker driving a stop channel) follows
// internal/shell/process_registry.go's StartSweeper/StopSweeper pattern,
// retargeted from in-memory process-registry entries to filesystem
// entries; unique file names reuse google/uuid for temp-file naming,
// following cmd/nexus-edge/node_tools.go's own use of the same library.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StaleAfter is how old (by modification time) a scratch entry must be
// before the sweeper removes it, catching orphans left by crashed
// executions.
const StaleAfter = 60 * time.Second

// Dir manages one scratch root directory.
type Dir struct {
	root string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a scratch root under the OS temp directory, named with the
// current process id, and returns a Dir for managing it.
func New() (*Dir, error) {
	root := filepath.Join(os.TempDir(), fmt.Sprintf("execgw-%d", os.Getpid()))
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("scratch: create root: %w", err)
	}
	return &Dir{root: root, stop: make(chan struct{})}, nil
}

// Root returns the scratch root path.
func (d *Dir) Root() string { return d.root }

// NewFile returns a unique path under the scratch root with the given
// basename and extension, e.g. NewFile("Main", ".java").
func (d *Dir) NewFile(basename, ext string) string {
	name := fmt.Sprintf("%s-%s%s", basename, uuid.NewString()[:8], ext)
	return filepath.Join(d.root, name)
}

// Write creates path with the given content, mode 0600.
func (d *Dir) Write(path string, content []byte) error {
	return os.WriteFile(path, content, 0o600)
}

// Remove deletes path if it exists, ignoring a not-exist error. Callers
// use it to unlink source/class files on every exit path.
func (d *Dir) Remove(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// StartSweeper launches a background goroutine that removes entries
// older than StaleAfter every interval, until StopSweeper is called.
func (d *Dir) StartSweeper(interval time.Duration) {
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.sweepOnce(time.Now())
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (d *Dir) StopSweeper() {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.done != nil {
		<-d.done
	}
}

// Sweep removes entries under the scratch root whose modification time
// is older than StaleAfter as of now, returning the count removed.
func (d *Dir) Sweep(now time.Time) int {
	return d.sweepOnce(now)
}

func (d *Dir) sweepOnce(now time.Time) int {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > StaleAfter {
			if os.Remove(filepath.Join(d.root, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// Close removes the entire scratch root.
func (d *Dir) Close() error {
	return os.RemoveAll(d.root)
}
