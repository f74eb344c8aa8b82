// Package runconfig defines the property set a for_each invocation
// resolves once, before the loop starts: the loop's name (for stats),
// its worklist choice, and whether conflict detection, pushing,
// breaking, and per-iteration allocation are needed. Every property
// foreach.ForEach uses is read once at construction time — never
// re-checked per iteration — matching the configuration-time
// specialization the executor's main loop depends on.
package runconfig

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/grailbio/galoisrun/log"
	"github.com/grailbio/galoisrun/pagepool"
	"github.com/grailbio/galoisrun/stats"
	"github.com/grailbio/galoisrun/worklist"
)

// Options is the fully-resolved trait/args set for one ForEach call.
type Options[T any] struct {
	// LoopName identifies this loop in published stats.
	LoopName string
	// Worklist builds the per-worker worklist views the executor
	// dispatches through. A nil Worklist is replaced by Default's
	// chunked-FIFO-with-stealing choice when Options is passed through
	// Resolve.
	Worklist worklist.Factory[T]
	// NoConflicts disables conflict-context bracketing and the abort
	// path entirely: the operator is trusted never to conflict, and the
	// executor takes the simple pop-run-commit path.
	NoConflicts bool
	// CanPush is true if the operator may enqueue new work items.
	CanPush bool
	// CanBreak is true if the operator may call break_loop.
	CanBreak bool
	// NeedsPerIterAlloc is true if the operator uses the per-iteration
	// bump arena.
	NeedsPerIterAlloc bool
	// CollectExtraStats records whether extra statistics were asked
	// for. ForEach does not read it: only the committed/conflicts/pushed
	// counters are collected.
	CollectExtraStats bool
	// NumWorkers is the worker-pool size this loop runs with.
	NumWorkers int
	// NumSockets is the socket topology used to select the abort
	// handler's placement policy.
	NumSockets int
	// MaxWorkers bounds concurrently-live worker goroutines; zero
	// disables the bound.
	MaxWorkers int
	// Registry, if non-nil, accumulates this loop's stats across
	// repeated ForEach calls sharing LoopName instead of reporting a
	// one-shot snapshot per call.
	Registry *stats.Registry
	// Allocator backs per-iteration allocation when NeedsPerIterAlloc
	// is set. When NeedsPerIterAlloc is set, a nil Allocator is
	// replaced by a pagepool.Pool sized to NumWorkers when Resolve runs.
	Allocator pagepool.Allocator
	// Log receives per-iteration commit and conflict lines at Debug and
	// failed iterations at Error. A nil Log silently drops messages.
	Log *log.Logger
}

// Default returns Options for a loop named name running numWorkers
// workers with conflict detection on and a chunked-FIFO-with-stealing
// worklist, a safe default construction that works without further
// tuning. A caller wanting a different worklist family overrides the
// Worklist field before calling ForEach.
func Default[T any](name string, numWorkers int) Options[T] {
	return Options[T]{
		LoopName:   name,
		Worklist:   defaultWorklist[T](),
		CanPush:    true,
		CanBreak:   true,
		NumWorkers: numWorkers,
		NumSockets: 1,
	}
}

// defaultWorklist returns a chunked FIFO: consumers that drain their
// own chunk already adopt chunks from the shared list before falling
// back to their own producer chunk, which is itself a stealing
// discipline between workers, so no further Stealing wrapper is
// needed to satisfy "chunked FIFO with stealing".
func defaultWorklist[T any]() worklist.Factory[T] {
	return worklist.NewChunkedFIFO[T]()
}

// resolved applies Default's fallbacks to any field the caller left
// at its zero value.
func (o Options[T]) resolved() Options[T] {
	if o.Worklist == nil {
		o.Worklist = defaultWorklist[T]()
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 1
	}
	if o.NumSockets <= 0 {
		o.NumSockets = 1
	}
	if o.NeedsPerIterAlloc && o.Allocator == nil {
		o.Allocator = pagepool.NewPool(o.NumWorkers, 64)
	}
	return o
}

// Resolve returns o ready to pass to foreach.ForEach: a nil Worklist
// becomes Default's worklist, a non-positive NumWorkers or NumSockets
// becomes 1, and a nil Allocator is filled in when NeedsPerIterAlloc is
// set. LoopName and the boolean flags are left as given.
func Resolve[T any](o Options[T]) Options[T] {
	return o.resolved()
}

// Preset is the YAML-serializable subset of Options used by
// LoadPreset: the fields that make sense to name in a configuration
// file rather than construct programmatically (a worklist.Factory
// value can't round-trip through YAML).
type Preset struct {
	LoopName    string `yaml:"loop_name"`
	NumWorkers  int    `yaml:"num_workers"`
	NumSockets  int    `yaml:"num_sockets"`
	MaxWorkers  int    `yaml:"max_workers"`
	NoConflicts bool   `yaml:"no_conflicts"`
	CanPush     bool   `yaml:"can_push"`
	CanBreak    bool   `yaml:"can_break"`
}

// LoadPreset reads a named runconfig.Preset from a YAML file. The
// caller applies the returned Preset onto an Options[T] value
// (LoopName, NumWorkers, ... fields align by name) since Preset itself
// is not generic over the work-item type.
func LoadPreset(path string) (Preset, error) {
	var p Preset
	b, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, err
	}
	return p, nil
}

// ApplyPreset copies p's fields onto o, returning the updated Options.
// A free function rather than a Preset method since Go methods can't
// introduce their own type parameter.
func ApplyPreset[T any](p Preset, o Options[T]) Options[T] {
	o.LoopName = p.LoopName
	o.NumWorkers = p.NumWorkers
	o.NumSockets = p.NumSockets
	o.MaxWorkers = p.MaxWorkers
	o.NoConflicts = p.NoConflicts
	o.CanPush = p.CanPush
	o.CanBreak = p.CanBreak
	return o
}
