// Package stats implements the per-worker counters the for_each
// executor maintains for one loop: iterations committed, conflicts,
// and pushes, published under the loop's name at shutdown.
package stats

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/grailbio/galoisrun/pts"
)

var (
	mu                sync.Mutex
	exportNameCounter int
	exportedNames     []string
)

// GetExportedNames returns the expvar names every Stats.Publish call
// has registered in this process, letting a test suite that starts
// many executors enumerate what it published.
func GetExportedNames() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, len(exportedNames))
	copy(names, exportedNames)
	return names
}

// Snapshot is an immutable copy of one worker's counters.
type Snapshot struct {
	Committed int64
	Conflicts int64
	Pushed    int64
}

// Data is an immutable snapshot of a whole loop's stats: the sum
// across workers plus the per-worker breakdown.
type Data struct {
	LoopName string
	Overall  Snapshot
	Workers  []Snapshot
}

type counters struct {
	mu        sync.Mutex
	committed int64
	conflicts int64
	pushed    int64
}

// Stats holds one loop's per-worker counters, one pts.Storage slot
// per worker so a worker's own increments never contend with another
// worker's, or with the end-of-run Copy that walks every slot.
type Stats struct {
	loopName string
	workers  *pts.Storage[*counters]
}

// New returns Stats for loopName sized to numWorkers.
func New(loopName string, numWorkers int) *Stats {
	workers := pts.New[*counters](numWorkers)
	for tid := 0; tid < numWorkers; tid++ {
		workers.Set(tid, &counters{})
	}
	return &Stats{loopName: loopName, workers: workers}
}

// CommitIteration records one committed iteration for worker tid.
func (s *Stats) CommitIteration(tid int) {
	c := s.workers.Get(tid)
	c.mu.Lock()
	c.committed++
	c.mu.Unlock()
}

// ConflictIteration records one aborted iteration for worker tid.
func (s *Stats) ConflictIteration(tid int) {
	c := s.workers.Get(tid)
	c.mu.Lock()
	c.conflicts++
	c.mu.Unlock()
}

// Pushed records n items pushed by worker tid's committed iterations.
func (s *Stats) Pushed(tid int, n int64) {
	c := s.workers.Get(tid)
	c.mu.Lock()
	c.pushed += n
	c.mu.Unlock()
}

// Copy returns an immutable snapshot of every worker's counters.
func (s *Stats) Copy() Data {
	data := Data{LoopName: s.loopName, Workers: make([]Snapshot, s.workers.Len())}
	s.workers.Each(func(tid int, c *counters) {
		c.mu.Lock()
		snap := Snapshot{Committed: c.committed, Conflicts: c.conflicts, Pushed: c.pushed}
		c.mu.Unlock()
		data.Workers[tid] = snap
		data.Overall.Committed += snap.Committed
		data.Overall.Conflicts += snap.Conflicts
		data.Overall.Pushed += snap.Pushed
	})
	return data
}

// Publish registers this Stats' Copy() under a process-unique expvar
// name derived from the loop name, via a package-global counter that
// avoids expvar name collisions when a test suite starts many
// executors under the same loop name in one process.
func (s *Stats) Publish() {
	mu.Lock()
	n := exportNameCounter
	exportNameCounter++
	name := fmt.Sprintf("galois.%s.%d", s.loopName, n)
	exportedNames = append(exportedNames, name)
	mu.Unlock()
	expvar.Publish(name, expvar.Func(func() interface{} { return s.Copy() }))
}

// Registry accumulates Data across repeated ForEach calls sharing a
// loop name, matching the original runtime's StatManager, which keys
// counters by loop name and merges repeated runs (e.g. successive
// coarsening levels of the same named loop) rather than resetting
// them on every call. A nil *Registry passed to runconfig.Options
// means each ForEach call reports one-shot, non-accumulated stats.
type Registry struct {
	mu    sync.Mutex
	total map[string]Snapshot
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{total: make(map[string]Snapshot)}
}

// Accumulate folds one run's overall Data into the registry's running
// total for that loop name.
func (r *Registry) Accumulate(d Data) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := r.total[d.LoopName]
	total.Committed += d.Overall.Committed
	total.Conflicts += d.Overall.Conflicts
	total.Pushed += d.Overall.Pushed
	r.total[d.LoopName] = total
}

// Total returns the accumulated Snapshot for loopName across every
// Accumulate call so far.
func (r *Registry) Total(loopName string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total[loopName]
}
