// Package abort implements the retry-placement policies the for_each
// executor hands conflicted work items to: a per-worker queue plus a
// choice of four strategies for escalating a repeatedly-conflicting
// item toward a single serialization point, so a hot spot stops
// aborting instead of burning retries forever.
package abort

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/grailbio/galoisrun/log"
	"github.com/grailbio/galoisrun/worklist"
)

// Record pairs a work item with the number of times it has been
// retried after a conflict.
type Record[T any] struct {
	Item    T
	Retries int
}

// Policy selects how a conflicted item's retry record is placed once
// its retry count grows, chosen at construction time from the
// worker-pool's socket topology.
type Policy int

const (
	// Basic serializes aborts through a binary tree of sockets: every
	// worker's retries land on the leader of socket/leaderRatio, the
	// same inter-socket promotion doubleClimb uses, so two conflicting
	// items from different sockets converge on one serialization point
	// instead of each pinning to its own socket's leader. Selected when
	// the pool has two or fewer sockets.
	Basic Policy = iota
	// Double retains odd-retry items locally and, for even retries,
	// pushes halfway toward the socket leader each time — halving the
	// distance to the serialization point on every escalation — before
	// eventually promoting to the socket tree above. Selected for pools
	// with more than two sockets.
	Double
	// Bounded keeps the first two retries local, climbs the intra-
	// socket tree for retries [2,5), and promotes to the leader of
	// socket/leaderRatio in the inter-socket tree at 5 or more.
	Bounded
	// Eager never escalates: every retry is retained on the worker that
	// produced it.
	Eager
)

// leaderRatio is the fan-in used by Basic and Double's socket-tree
// promotion: retries climb toward socket leader socket/2 at each
// level, matching a binary tree over socket indices.
const leaderRatio = 2

// Handler owns one local retry queue per worker and a placement
// policy chosen from the pool's socket count.
type Handler[T any] struct {
	policy     Policy
	numWorkers int
	numSockets int
	perSocket  int

	local []worklist.Worklist[Record[T]]

	Log     *log.Logger
	limiter *rate.Limiter
}

// socketOf returns the socket a worker belongs to under the same
// contiguous-block assignment runtime.Pool uses.
func (h *Handler[T]) socketOf(tid int) int {
	s := tid / h.perSocket
	if s >= h.numSockets {
		s = h.numSockets - 1
	}
	return s
}

// leaderOf returns the worker id that is socket s's leader.
func (h *Handler[T]) leaderOf(socket int) int {
	return socket * h.perSocket
}

// New returns a Handler for numWorkers workers arranged across
// numSockets sockets. The construction-time socket count selects the
// policy: two or fewer sockets uses Basic; more than two uses Double,
// unless forcePolicy overrides the automatic choice (pass -1 to let
// socket count decide).
func New[T any](numWorkers, numSockets int, forcePolicy Policy, newLocal func() worklist.Worklist[Record[T]]) *Handler[T] {
	if numSockets < 1 {
		numSockets = 1
	}
	perSocket := (numWorkers + numSockets - 1) / numSockets
	if perSocket < 1 {
		perSocket = 1
	}
	policy := forcePolicy
	if policy < Basic || policy > Eager {
		if numSockets <= leaderRatio {
			policy = Basic
		} else {
			policy = Double
		}
	}
	local := make([]worklist.Worklist[Record[T]], numWorkers)
	for i := range local {
		local[i] = newLocal()
	}
	return &Handler[T]{
		policy:     policy,
		numWorkers: numWorkers,
		numSockets: numSockets,
		perSocket:  perSocket,
		local:      local,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Push enqueues v as a fresh retry record (retries=1) onto tid's local
// queue: the first abort of an item is always retained by the worker
// that produced it.
func (h *Handler[T]) Push(tid int, v T) {
	h.local[tid].Push(Record[T]{Item: v, Retries: 1})
}

// PushRecord increments rec's retry count and dispatches it to the
// worker this Handler's policy selects for that retry count, given
// tid as the worker currently holding the record.
func (h *Handler[T]) PushRecord(tid int, rec Record[T]) {
	rec.Retries++
	dest := h.placement(tid, rec.Retries)
	if dest != tid && h.limiter != nil && rec.Retries >= 5 {
		if h.limiter.Allow() {
			h.Log.Errorf("abort: item escalated to worker %d after %d retries", dest, rec.Retries)
		}
	}
	h.local[dest].Push(rec)
}

// placement returns the destination worker for a retry record
// currently held by tid with the given (post-increment) retry count.
func (h *Handler[T]) placement(tid, retries int) int {
	switch h.policy {
	case Eager:
		return tid
	case Basic:
		return h.leaderOf(h.socketOf(tid) / leaderRatio)
	case Bounded:
		switch {
		case retries < 2:
			return tid
		case retries < 5:
			return h.intraSocketClimb(tid)
		default:
			return h.leaderOf(h.socketOf(tid) / leaderRatio)
		}
	case Double:
		if retries%2 == 1 {
			return tid
		}
		return h.doubleClimb(tid)
	default:
		return tid
	}
}

// intraSocketClimb moves tid halfway toward its socket's leader,
// staying within the socket.
func (h *Handler[T]) intraSocketClimb(tid int) int {
	leader := h.leaderOf(h.socketOf(tid))
	if tid == leader {
		return leader
	}
	return leader + (tid-leader)/2
}

// doubleClimb implements the Double policy's even-retry step: if tid
// is not yet its socket's leader, move halfway toward the leader
// (halving the distance to the serialization point each escalation);
// once at the leader, promote to the leader of the socket tree above
// (the leader of socket/leaderRatio).
func (h *Handler[T]) doubleClimb(tid int) int {
	socket := h.socketOf(tid)
	leader := h.leaderOf(socket)
	if tid != leader {
		return leader + (tid-leader)/2
	}
	if h.numSockets <= 1 {
		return leader
	}
	parentSocket := socket / leaderRatio
	return h.leaderOf(parentSocket)
}

// Local returns the worklist the executor drains as worker tid's
// source of retried work, after the main worklist runs dry for that
// worker.
func (h *Handler[T]) Local(tid int) worklist.Worklist[Record[T]] {
	return h.local[tid]
}
