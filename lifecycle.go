package taskctx

import (
	"runtime"
	"time"
)

// BindTo performs ctx's first-use binding against the context active on worker w: a CAS moves ctx
// created -> locked, giving the caller exclusive rights to decide ctx's parent and list
// membership; the state then resolves to either bound or isolated.
//
// The owner of ctx (the thread that successfully wins the created->locked CAS) determines w's
// active context P and either isolates ctx (no parent, not listed) or links it as a child of P
// and copies P's cancellation flag across, closing the race against a concurrent propagation via
// the epoch protocol below.
//
// Any later call to BindTo on the same ctx - by the same or a different goroutine - observes
// locked or later and simply waits for the winner to finish (spin-wait with yielding backoff); it
// never re-runs the binding logic. This should not normally happen (a context is meant to be
// bound once, by its creator), but must be safe since nothing prevents a caller from trying.
func (ctx *Context) BindTo(w *Worker) {
	if !ctx.state.CompareAndSwap(uint32(stateCreated), uint32(stateLocked)) {
		ctx.spinWaitWhileLocked()
		return
	}

	p := w.Active()
	isolated := p == nil || p == w.arena.defaultCtx || !ctx.traits.Bound

	if isolated {
		// An isolated context never attaches to a parent, so there is no ancestor to inherit an
		// FP environment from; a freshly bound isolated context instead copies from the arena's
		// default context, exactly as a context bound directly under the default would.
		if !ctx.traits.FPSettings {
			ctx.copyFPSettingsFrom(w.arena.defaultCtx)
		}
		ctx.finishBind(stateIsolated)
		return
	}

	ctx.parent = p

	if !ctx.traits.FPSettings {
		ctx.copyFPSettingsFrom(p)
	}

	// p must be marked as possibly having children before its flag is read below, not after: a
	// concurrent CancelGroupExecution(p) checks p.mayHaveChildren to decide whether it can skip
	// the worker sweep entirely. Setting the flag afterward would leave a window, when ctx is the
	// first child ever bound to p, where the cancel call observes mayHaveChildren == 0, sets p's
	// flag, and returns without sweeping - while this call has already (or is about to) copy p's
	// stale unset flag into ctx, leaving ctx permanently uncancelled.
	markMayHaveChildren(p)

	if p.parent == nil {
		// P is itself a root, so the only context that could be racing a propagation against this
		// bind is P: its flag can be read directly, no epoch bookkeeping needed.
		// ctx is linked before P's flag is read: a propagation whose sweep finds ctx in w's list
		// marks ctx itself, and one whose sweep of w ran before the link had already set P's flag,
		// which the read below then observes.
		w.registerWith(ctx)
		if p.IsGroupExecutionCancelled() {
			ctx.cancelRequested.Store(1)
		}
	} else {
		ctx.bindWithEpochProtocol(w, p)
	}

	ctx.finishBind(stateBound)
}

// markMayHaveChildren sets p's monotonic mayHaveChildren flag, guarded by a relaxed load first to
// avoid a redundant atomic store (and the cache-line traffic that comes with it) on every bind
// under an already-busy parent.
func markMayHaveChildren(p *Context) {
	if p.mayHaveChildren.Load() == 0 {
		p.mayHaveChildren.Store(1)
	}
}

// bindWithEpochProtocol handles the case where P has a grandparent, meaning a propagation started
// by any ancestor above P may be racing this bind. It snapshots the local epoch of P's owner (the
// worker whose list P itself is linked into), speculatively copies P's flag, links ctx
// into the owner's list (the mutex acquire/release is a full fence), and then validates the
// speculation against the global propagation epoch; on a mismatch it falls back to re-reading P's
// flag under the global propagation mutex.
//
// This is sound because a propagation always bumps the global epoch before walking any worker's
// list, and a worker only syncs its own local epoch after that walk completes. So either the
// walk observes the newly linked ctx directly (because the link's mutex release happened before
// the walk's mutex acquire), or the epoch comparison here catches the mismatch and forces the
// re-read under the lock - there is no window where a racing propagation can miss ctx while
// leaving the epoch unchanged.
func (ctx *Context) bindWithEpochProtocol(w *Worker, p *Context) {
	snapshot := p.owner.epoch.Load()

	if p.IsGroupExecutionCancelled() {
		ctx.cancelRequested.Store(1)
	}

	w.registerWith(ctx)

	if globalPropagationEpoch.Load() == snapshot {
		// No propagation completed between the snapshot and now: either the propagator's walk of
		// w's list will still observe ctx (because w's mutex release here happens before any
		// future propagator's mutex acquire), or no propagator has run at all. Either way the
		// speculative copy above is correct.
		return
	}

	if h := w.arena.hooks().OnPropagationFallback; h != nil {
		h(w)
	}

	globalPropagationMu.Lock()
	if p.IsGroupExecutionCancelled() {
		ctx.cancelRequested.Store(1)
	}
	globalPropagationMu.Unlock()
}

func (ctx *Context) finishBind(final lifecycleState) {
	if h := ctx.arena.hooks().OnBind; h != nil {
		h(ctx, final == stateIsolated)
	}
	ctx.state.Store(uint32(final))
}

// spinWaitWhileLocked waits for a concurrent BindTo (on the same context, from a different
// caller) to finish, using a yielding back-off in the style of hioload-ws's adaptiveBackoff: a
// short pure spin, escalating to runtime.Gosched, escalating to a bounded sleep. The window this
// waits on is owner-local and bounded by a handful of memory operations, so this rarely needs to
// escalate far in practice.
func (ctx *Context) spinWaitWhileLocked() {
	const spinIters = 64
	const schedIters = 64

	for i := 0; i < spinIters; i++ {
		if ctx.loadState() != stateLocked {
			return
		}
	}
	for i := 0; i < schedIters; i++ {
		if ctx.loadState() != stateLocked {
			return
		}
		runtime.Gosched()
	}

	sleep := time.Microsecond
	for ctx.loadState() == stateLocked {
		time.Sleep(sleep)
		if sleep < time.Millisecond {
			sleep *= 2
		}
	}
}
