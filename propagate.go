package taskctx

import (
	"sync"
	"sync/atomic"
)

// globalPropagationEpoch and globalPropagationMu are the process-wide propagation singletons: a
// single pair serves every Arena. The epoch protocol's correctness only needs a total order over
// propagations and bindings, and a package-level pair gives that order for free across arenas
// without needing to thread one through every Worker.
var (
	globalPropagationEpoch atomic.Uint64
	globalPropagationMu    sync.Mutex
)

// monotonicFlag abstracts over "which atomic field is being propagated": the propagation engine is
// written once, against this interface, so a future second monotonic flag (today only
// cancellationFlag exists) can reuse it without duplicating the walk.
type monotonicFlag interface {
	// load reads ctx's copy of the flag.
	load(ctx *Context) bool
	// trySet attempts the monotonic 0->1 transition, reporting whether this call performed it.
	trySet(ctx *Context) bool
}

type cancellationFlag struct{}

func (cancellationFlag) load(ctx *Context) bool {
	return ctx.cancelRequested.Load() != 0
}

func (cancellationFlag) trySet(ctx *Context) bool {
	return ctx.cancelRequested.CompareAndSwap(0, 1)
}

// CancelGroupExecution requests cancellation of ctx. It returns true if this call performed the
// 0->1 transition (and, if ctx may have children, completed a propagation sweep marking its
// current descendants); it returns false if ctx was already cancelled.
//
// CancelGroupExecution never blocks on anything but finite-time lock acquisition, and never
// throws: all recoverable conditions are reported through the boolean return.
func (ctx *Context) CancelGroupExecution() bool {
	return propagateFlag(ctx, cancellationFlag{})
}

// propagateFlag is the generalized cancel-and-sweep operation, parameterized over which monotonic
// flag is being set and swept.
func propagateFlag(ctx *Context, flag monotonicFlag) bool {
	if flag.load(ctx) {
		return false
	}
	if !flag.trySet(ctx) {
		return false
	}

	if h := ctx.arena.hooks().OnCancel; h != nil {
		h(ctx)
	}

	if ctx.mayHaveChildren.Load() == 0 {
		return true
	}

	return marketPropagate(ctx, flag)
}

// marketPropagate is the global-mutex-guarded sweep of every worker registered with ctx's arena,
// marking every descendant of ctx that doesn't already carry the flag.
func marketPropagate(ctx *Context, flag monotonicFlag) bool {
	globalPropagationMu.Lock()
	defer globalPropagationMu.Unlock()

	if !flag.load(ctx) {
		// Only reachable if something reset ctx between the trySet above and here, which its own
		// single-threaded precondition forbids under correct use; preserved for idempotence under
		// misuse rather than left to panic.
		return false
	}

	globalPropagationEpoch.Add(1)
	newEpoch := globalPropagationEpoch.Load()

	for _, w := range ctx.arena.Workers() {
		w.localPropagate(flag, ctx, newEpoch)
	}

	return true
}

// localPropagate walks, under w's list mutex, every context bound to w and, for each one not
// already carrying flag, walks its parent chain to see whether ctx is an ancestor; if so, it sets
// flag on every context from the walked-to context up to (excluding) ctx.
func (w *Worker) localPropagate(flag monotonicFlag, src *Context, newEpoch uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for n := w.head.next; n != &w.head; n = n.next {
		c := n.ctx
		if flag.load(c) {
			continue
		}
		if isDescendantOf(c, src) {
			markChainTo(c, src, flag)
		}
	}

	w.epoch.Store(newEpoch)
}

// isDescendantOf reports whether walking c's parent chain reaches src.
func isDescendantOf(c, src *Context) bool {
	for p := c.parent; p != nil; p = p.parent {
		if p == src {
			return true
		}
	}
	return false
}

// markChainTo sets flag on every context from c up to (excluding) src.
func markChainTo(c, src *Context, flag monotonicFlag) {
	for n := c; n != src; n = n.parent {
		flag.trySet(n)
	}
}
