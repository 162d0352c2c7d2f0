package taskctx

import "sync"

// PendingException is the error captured by the first failing task in a group, together with a
// snapshot of where it happened. It is allocated from a pool, installed at most once per context
// (first failure wins), and released on Destroy/Reset.
type PendingException struct {
	Err   error
	Stack StackTrace
}

var exceptionPool = sync.Pool{
	New: func() any { return new(PendingException) },
}

func allocException(err error, stack StackTrace) *PendingException {
	pe := exceptionPool.Get().(*PendingException)
	pe.Err = err
	pe.Stack = stack
	return pe
}

func freeException(pe *PendingException) {
	pe.Err = nil
	pe.Stack = StackTrace{}
	exceptionPool.Put(pe)
}

// stackPCPool backs GetStackTrace's program-counter buffer: Fail runs on every failing task, so
// the buffer used to ask runtime.Callers for frames is pooled the same way the PendingException
// carrying those frames is.
var stackPCPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 128)
		return &buf
	},
}

func getStackPCBuffer() *[]uintptr {
	return stackPCPool.Get().(*[]uintptr)
}

func putStackPCBuffer(buf *[]uintptr) {
	if len(*buf) < 1024 {
		stackPCPool.Put(buf)
	}
}

// Fail installs err as ctx's pending exception, capturing the caller's stack trace, unless ctx
// already has one pending. It reports whether this call won the race to install the first
// exception. Unlike cancellation, a pending exception is not propagated to any other context
// here - see Context.ThrowSelf and CancelGroupExecution, which callers of Fail are expected to
// combine at task-group boundaries: cancel the group first, then let the boundary re-raise
// whatever ThrowSelf returns.
//
// Fail does not itself require ctx to be bound.
func (ctx *Context) Fail(err error) bool {
	if err == nil {
		panic("taskctx: Fail called with a nil error")
	}
	return ctx.InstallException(allocException(err, GetStackTrace(nil, 1)))
}

// InstallException installs pe as ctx's pending exception if none is set yet, taking ownership of
// pe on success. It reports whether the install happened, via a compare-and-swap against nil so
// concurrent failing tasks race safely: exactly one wins, and the losers' calls leave their
// *PendingException uncounted for by ctx (callers of Fail don't need to free a losing
// PendingException themselves; Fail's own allocation is pool-backed and simply not reused until
// GC rather than adding a second free path). Callers that already have a *PendingException (e.g.
// relayed from a descendant context) should use this directly instead of Fail, to avoid capturing
// a second, less relevant stack trace.
func (ctx *Context) InstallException(pe *PendingException) bool {
	return ctx.exception.CompareAndSwap(nil, pe)
}

// Exception returns ctx's pending exception, or nil if none has been installed.
func (ctx *Context) Exception() *PendingException {
	return ctx.exception.Load()
}

// ThrowSelf returns ctx's pending error, if any, passed through ctx's rethrow workaround if one
// was installed via WithRethrowWorkaround. It returns nil if no exception is pending.
//
// This is the point where a group boundary re-raises whatever its first failing task reported.
func (ctx *Context) ThrowSelf() error {
	pe := ctx.exception.Load()
	if pe == nil {
		return nil
	}
	err := pe.Err
	if ctx.rethrowWorkaround != nil {
		err = ctx.rethrowWorkaround(err)
	}
	return err
}

// releaseException clears ctx's pending exception, returning it to the pool.
//
// Precondition: no concurrent user (shared with Destroy/Reset).
func (ctx *Context) releaseException() {
	pe := ctx.exception.Swap(nil)
	if pe == nil {
		return
	}
	freeException(pe)
}
