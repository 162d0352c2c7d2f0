package taskctx

import (
	"fmt"
	"sync/atomic"
)

// lifecycleState is the first-use binding state machine of a Context: created -> locked ->
// {bound, isolated}, with dead reached only from Destroy. See Context.BindTo.
type lifecycleState uint32

const (
	stateCreated lifecycleState = iota
	stateLocked
	stateIsolated
	stateBound
	stateDead
)

func (s lifecycleState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateLocked:
		return "locked"
	case stateIsolated:
		return "isolated"
	case stateBound:
		return "bound"
	case stateDead:
		return "dead"
	default:
		return fmt.Sprintf("lifecycleState(%d)", uint32(s))
	}
}

// Traits are fixed at construction and never change for the lifetime of a Context.
type Traits struct {
	// FPSettings, if true, means the context captures its own floating-point environment at
	// construction instead of inheriting one from its parent at bind time.
	FPSettings bool
	// Bound, if false, marks the context as "isolated": it never attaches to a parent and
	// cancellation never propagates to it from above, regardless of which context is active
	// when BindTo is called.
	Bound bool
}

// Context is a node in a per-program tree of task groups. It carries a monotonic cancellation
// flag, an optional captured floating-point environment, and (once a task fails) a pending
// exception to be re-thrown at the group boundary.
//
// A Context must be bound (via BindTo) before it participates in the tree; before binding it has
// no parent and is not visible to cancellation propagation. Reading the cancellation flag
// (IsGroupExecutionCancelled) requires no cross-thread synchronization. Binding or destroying a
// bound context takes only its owning worker's list mutex; only cancelling a context that may have
// children, or binding a new child several levels below an in-flight cancellation, ever takes the
// global propagation lock.
//
// Precondition for Destroy and Reset: the caller must serialize with any other user of the
// context externally. In the typical case, the owning worker is the only thread that ever calls
// them.
type Context struct {
	arena *Arena

	parent *Context // set once at bind time; nil for created, isolated, and dead contexts
	owner  *Worker  // set once at bind time; nil unless state == stateBound

	state atomic.Uint32 // lifecycleState

	cancelRequested atomic.Uint32 // monotonic 0->1
	mayHaveChildren atomic.Uint32 // monotonic 0->1

	node listNode // threaded into owner's list once bound

	traits Traits
	fpEnv  FPEnv // valid iff traits.FPSettings

	// exception is written via CompareAndSwap so concurrent failing tasks race safely: exactly
	// one installs its exception, the rest discard theirs. See exception.go.
	exception atomic.Pointer[PendingException]

	// rethrowWorkaround, if non-nil, is applied by ThrowSelf before returning the pending
	// error, for host runtimes whose exception re-throw mangles or loses information about
	// certain error values.
	rethrowWorkaround func(error) error

	// name is an optional debug label, in the spirit of chord.TaskGroup's name field. It has no
	// effect on any operation.
	name string
}

// Name returns the Context's debug label, as given to Arena.NewContext via WithName.
func (ctx *Context) Name() string {
	return ctx.name
}

// ContextOption customizes a Context at construction, in the style of chord.SignalManager's
// functional-option registration surface.
type ContextOption func(*Context)

// WithName attaches a debug label to a Context. It has no effect on any operation.
func WithName(name string) ContextOption {
	return func(ctx *Context) { ctx.name = name }
}

// WithRethrowWorkaround installs a workaround applied by ThrowSelf, for host runtimes with
// broken re-throw semantics for particular error values.
func WithRethrowWorkaround(f func(error) error) ContextOption {
	return func(ctx *Context) { ctx.rethrowWorkaround = f }
}

// initialize is the idempotent zero-init step of construction: clears flags, sets the state to
// created, and captures an FP environment if traits.FPSettings was requested.
func (ctx *Context) initialize() {
	ctx.state.Store(uint32(stateCreated))
	ctx.cancelRequested.Store(0)
	ctx.mayHaveChildren.Store(0)
	ctx.node.prev = nil
	ctx.node.next = nil
	ctx.node.ctx = ctx
	ctx.parent = nil
	ctx.owner = nil
	ctx.exception.Store(nil)
	if ctx.traits.FPSettings {
		ctx.CaptureFPSettings()
	}
}

func (ctx *Context) loadState() lifecycleState {
	return lifecycleState(ctx.state.Load())
}

// Destroy releases a Context's resources: if bound, it is unlinked from its owner's list under
// that owner's list mutex; its captured exception (if any) is released; all pointers are
// poisoned by transitioning to the dead state.
//
// Precondition: no concurrent user, and state is not locked (i.e. no BindTo call on this context
// is in progress). Permitted from any thread only if the caller serializes with the owner
// externally; in the typical case the owner destroys.
func (ctx *Context) Destroy() {
	st := ctx.loadState()
	if st == stateLocked {
		panic("taskctx: Destroy called while context is locked")
	}
	if st == stateDead {
		panic("taskctx: Destroy called twice on the same context")
	}

	if st == stateBound {
		w := ctx.owner
		w.mu.Lock()
		w.unlinkLocked(ctx)
		w.mu.Unlock()
	}

	ctx.releaseException()

	if h := ctx.arena.hooks().OnDestroy; h != nil {
		h(ctx)
	}

	ctx.parent = nil
	ctx.owner = nil
	ctx.state.Store(uint32(stateDead))
}

// Reset clears the cancellation flag and releases any pending exception. It does not change the
// lifecycle state or unbind the context.
//
// Precondition: no concurrent user, and the context has no children (may_have_children == 0).
func (ctx *Context) Reset() {
	if ctx.mayHaveChildren.Load() != 0 {
		panic("taskctx: Reset called on a context that may have children")
	}
	ctx.releaseException()
	ctx.cancelRequested.Store(0)
}

// IsGroupExecutionCancelled reports the current value of the cancellation flag. This is a
// relaxed, lock-free read: it requires no cross-thread synchronization.
func (ctx *Context) IsGroupExecutionCancelled() bool {
	return ctx.cancelRequested.Load() != 0
}
