package taskctx

import (
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// listNode threads a Context through its owner's intrusive doubly-linked list. Every read and
// write of prev/next happens with the owning Worker's mu held (bind-time link, destroy-time
// unlink, or the local pass of propagation) — see DESIGN.md's entry for list.go — so these fields
// need no atomics of their own.
type listNode struct {
	prev *listNode
	next *listNode
	ctx  *Context // nil for a worker's sentinel head
}

// Worker is a per-worker collaborator: the intrusive list of contexts bound to this worker, this
// worker's local propagation epoch, and the dispatcher's currently-active-context stack that
// BindTo consults to find a new context's parent.
//
// Worker stands in for a task dispatcher's thread-local state: only the minimal surface
// BindTo/propagation need (Active/Enter/Leave, the list, the epoch) is implemented here.
type Worker struct {
	arena *Arena

	mu   sync.Mutex
	head listNode // sentinel; ctx == nil

	// epoch is this worker's last-synced snapshot of the arena-wide propagation epoch. Written
	// with release ordering by this worker's own local propagation pass (under mu) or read with
	// acquire ordering by any thread speculatively binding a child under a context this worker
	// owns, when that context has a parent of its own (see lifecycle.go's epoch protocol).
	epoch atomic.Uint64

	// dispatchStack is the stand-in for a task dispatcher's execution context: only the
	// goroutine identified with this Worker may call Enter/Leave/Active.
	dispatchStack []*Context
}

// newWorker constructs a Worker registered with the given arena, with its dispatch stack starting
// at the arena's default context — matching a thread that has not yet entered any task's scope.
func newWorker(a *Arena) *Worker {
	w := &Worker{arena: a}
	w.head.prev = &w.head
	w.head.next = &w.head
	w.dispatchStack = []*Context{a.defaultCtx}
	return w
}

// Active returns the context this worker is currently executing under, or nil if the dispatch
// stack has been popped below the arena default (which should not happen in normal use).
//
// Precondition: called only by the goroutine identified with this Worker.
func (w *Worker) Active() *Context {
	if len(w.dispatchStack) == 0 {
		return nil
	}
	return w.dispatchStack[len(w.dispatchStack)-1]
}

// Enter pushes ctx as the worker's active context, for the duration of a task running under ctx.
//
// Precondition: called only by the goroutine identified with this Worker.
func (w *Worker) Enter(ctx *Context) {
	w.dispatchStack = append(w.dispatchStack, ctx)
}

// Leave pops the worker's active context, restoring whatever was active before the matching
// Enter.
//
// Precondition: called only by the goroutine identified with this Worker, and only after a
// matching Enter.
func (w *Worker) Leave() {
	if len(w.dispatchStack) <= 1 {
		panic("taskctx: Leave called without a matching Enter")
	}
	w.dispatchStack = w.dispatchStack[:len(w.dispatchStack)-1]
}

// linkLocked inserts ctx at the head of the list. Callers must hold w.mu.
//
// New contexts are always linked at the head of the list. A propagation's local pass holds w.mu
// for its whole walk, so no context is linked while a walk is in progress.
func (w *Worker) linkLocked(ctx *Context) {
	n := &ctx.node
	n.prev = &w.head
	next := w.head.next
	next.prev = n
	n.next = next
	w.head.next = n
}

// unlinkLocked removes ctx from the list. Callers must hold w.mu.
func (w *Worker) unlinkLocked(ctx *Context) {
	n := &ctx.node
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

// registerWith assigns ctx's owner and links it into w's list under w.mu. The mutex's
// acquire/release pair is the full fence the epoch protocol in lifecycle.go relies on: everything
// this function does happens-before any later local propagation pass that acquires the same
// mutex, and happens-after any earlier one.
func (w *Worker) registerWith(ctx *Context) {
	ctx.owner = w
	w.mu.Lock()
	w.linkLocked(ctx)
	w.mu.Unlock()
}

// Snapshot returns the contexts currently bound to this worker, sorted by name for deterministic
// diagnostic output (in the spirit of taskgroup_test.go's use of slices.SortFunc/slices.Equal for
// order-independent comparisons). The returned slice is a point-in-time copy; contexts may be
// unbound concurrently. Unnamed contexts (Name() == "") sort before named ones.
func (w *Worker) Snapshot() []*Context {
	w.mu.Lock()
	var out []*Context
	for n := w.head.next; n != &w.head; n = n.next {
		out = append(out, n.ctx)
	}
	w.mu.Unlock()

	slices.SortFunc(out, func(a, b *Context) bool {
		return a.Name() < b.Name()
	})
	return out
}
