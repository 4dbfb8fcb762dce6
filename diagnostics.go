package interposecheck

import (
	"fmt"
	"os"
	"sync"
)

// Policy selects how a Diagnostics value reacts to a fatal condition.
type Policy int

const (
	// PolicyRaise turns a fatal condition into a returned error. The
	// Indexer uses this: one package's broken ELF shouldn't abort a run
	// over a whole package list.
	PolicyRaise Policy = iota
	// PolicyExit terminates the process immediately, matching the
	// original's error()/sys.exit(1) for the Analyser, where a corrupt
	// store is not something any single package can recover from.
	PolicyExit
)

// Diagnostics is the run-scoped home for warning output and dedup state
// that the original Python tool kept as function-attribute globals
// (`hasattr(fn, 'warned')`, module-level `raise_on_error`). A Diagnostics
// value is created once per Indexer/Analyser invocation and threaded
// explicitly through every call that might warn or fail, so concurrent
// runs (and concurrent workers within one run) never share state through
// a package-level variable.
type Diagnostics struct {
	policy Policy
	warnf  func(format string, args ...any)

	mu   sync.Mutex
	seen map[string]bool
}

// NewDiagnostics constructs a Diagnostics with the given policy. warnf
// receives every warning message; pass nil to discard them.
func NewDiagnostics(policy Policy, warnf func(format string, args ...any)) *Diagnostics {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &Diagnostics{policy: policy, warnf: warnf, seen: make(map[string]bool)}
}

// Warn reports a recoverable condition unconditionally.
func (d *Diagnostics) Warn(format string, args ...any) {
	d.warnf(format, args...)
}

// WarnOnce reports a recoverable condition at most once per key, for the
// lifetime of this Diagnostics value. This replaces the original's
// per-function `warned`/`soname_warnings`/`dup_warnings` set attributes.
func (d *Diagnostics) WarnOnce(key, format string, args ...any) {
	d.mu.Lock()
	already := d.seen[key]
	d.seen[key] = true
	d.mu.Unlock()
	if !already {
		d.warnf(format, args...)
	}
}

// Fail reports a non-recoverable condition according to the Diagnostics'
// Policy: under PolicyRaise it returns a formatted error for the caller
// to propagate; under PolicyExit it terminates the process, matching
// lib/errors.py's error() behaviour when raise_on_error is disabled.
func (d *Diagnostics) Fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if d.policy == PolicyExit {
		d.warnf("fatal: %s", err)
		exit(1)
		return err // unreachable in production; lets tests override exit
	}
	return err
}

// exit is a package-level indirection over os.Exit so tests can observe
// Fail's PolicyExit branch without killing the test binary.
var exit = os.Exit
