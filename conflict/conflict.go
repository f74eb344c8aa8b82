// Package conflict implements the per-iteration acquisition log the
// for_each executor brackets every iteration with: StartIteration
// opens the log, CommitIteration clears it on success, and
// CancelIteration releases every logged acquisition in reverse order
// on an abort, so shared-data-structure code never has to reason
// about partial rollback itself.
package conflict

import "github.com/willf/bloom"

// Resource is anything a Context can log an acquisition against and
// later release. Graph node handles (an external collaborator, per
// this module's scope) are the intended implementer.
type Resource interface {
	// Release undoes whatever this acquisition reserved. Called by
	// CancelIteration in the reverse order acquisitions were logged.
	Release()
	// ID returns a stable identifier for the resource, used only for
	// the bloom filter's fast-negative check and diagnostic logging —
	// never for equality of the resource itself.
	ID() uint64
}

// bloomM and bloomK size the per-iteration bloom filter: small enough
// to be cheap to allocate and reset every iteration, generous enough
// that a few dozen acquisitions per iteration keep a low false-
// positive rate.
const (
	bloomM = 2048
	bloomK = 4
)

// Context is one worker's per-iteration conflict-tracking state.
// Between StartIteration and CommitIteration|CancelIteration, every
// acquisition performed on a shared resource must be logged via Log
// so CancelIteration can undo it.
type Context struct {
	log    []Resource
	filter *bloom.BloomFilter
	active bool

	// lastConflict records the most recently canceled acquisition's
	// resource id, readable through LastConflict — purely diagnostic
	// bookkeeping, never consulted for control flow.
	lastConflict uint64
	hasConflict  bool
}

// NewContext returns an empty, inactive conflict context.
func NewContext() *Context {
	return &Context{filter: bloom.New(bloomM, bloomK)}
}

// StartIteration opens the acquisition log for a new iteration. It
// panics if called while a previous iteration's log is still open —
// every StartIteration must be paired with exactly one
// CommitIteration or CancelIteration before the next.
func (c *Context) StartIteration() {
	if c.active {
		panic("conflict: StartIteration called while an iteration is already open")
	}
	c.active = true
	c.log = c.log[:0]
	c.filter.ClearAll()
}

// MightHaveTouched is a fast negative check: if it returns false, r
// was definitely not logged during the current iteration and callers
// may skip the exact-log scan a full conflict check would otherwise
// require. A true result is not proof — the bloom filter may false-
// positive — so callers must still fall back to the exact log.
func (c *Context) MightHaveTouched(r Resource) bool {
	return c.filter.TestString(idKey(r.ID()))
}

// Log records that r was acquired during the current iteration. r
// will be released, in reverse acquisition order, if the iteration is
// later canceled.
func (c *Context) Log(r Resource) {
	if !c.active {
		panic("conflict: Log called outside an open iteration")
	}
	c.log = append(c.log, r)
	c.filter.AddString(idKey(r.ID()))
}

func idKey(id uint64) string {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(id >> (8 * i))
	}
	return string(buf[:])
}

// CommitIteration closes the current iteration successfully: the log
// is cleared without releasing anything, since every logged
// acquisition is retained as part of the now-committed state.
func (c *Context) CommitIteration() {
	if !c.active {
		panic("conflict: CommitIteration called outside an open iteration")
	}
	c.log = c.log[:0]
	c.active = false
}

// CancelIteration closes the current iteration by rolling it back:
// every logged acquisition is released in reverse order, so the last
// resource acquired is the first released — mirroring the nesting a
// typical lock-ordering discipline assumes.
func (c *Context) CancelIteration() {
	if !c.active {
		panic("conflict: CancelIteration called outside an open iteration")
	}
	for i := len(c.log) - 1; i >= 0; i-- {
		c.lastConflict = c.log[i].ID()
		c.hasConflict = true
		c.log[i].Release()
	}
	c.log = c.log[:0]
	c.active = false
}

// LastConflict returns the resource id most recently released by a
// CancelIteration call, and whether one has ever occurred on this
// Context.
func (c *Context) LastConflict() (id uint64, ok bool) {
	return c.lastConflict, c.hasConflict
}

// Empty reports whether the acquisition log is currently empty —
// true both before StartIteration and immediately after
// CommitIteration or CancelIteration return.
func (c *Context) Empty() bool {
	return len(c.log) == 0
}
