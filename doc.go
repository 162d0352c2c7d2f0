// obligatory // comment

/*
Package taskctx provides the task-group cancellation core of a
work-stealing parallel task scheduler: a tree of [Context] values that
group related units of parallel work, propagate cancellation to their
descendants, and carry an optional captured floating-point environment
and pending exception.

Broadly, the pieces belong to a few distinct groups:

- Context lifecycle: [Context], [Arena.NewContext], [Traits], [Context.Destroy], [Context.Reset]
- Per-worker binding: [Worker], [Context.BindTo], [Arena]
- Cancellation propagation: [Context.CancelGroupExecution], [Context.IsGroupExecutionCancelled]
- Exception capture: [PendingException], [Context.Fail], [Context.ThrowSelf]
- Diagnostics: [StackTrace], [GetStackTrace], [Hooks], [MetricsRegistry]

# Contexts and binding

A [Context] starts out in the created state. The first thread to call
[Context.BindTo] on it either links it into its own [Worker]'s list as a
child of that worker's currently active context, or - if there is no
effective parent (the worker is at the arena's default context, or the
context's [Traits.Bound] is false) - marks it isolated and never links
it anywhere. Every other caller of BindTo on the same context (which
should not normally happen, but must be safe) spin-waits for the first
caller to finish.

For more, see [Context.BindTo].

# Cancellation

[Context.CancelGroupExecution] sets a context's cancellation flag and, if the
context may have children, propagates the flag to every context bound
underneath it across every worker registered with the context's arena.
The propagation protocol is designed so a child bound concurrently with
a cancellation can never escape it, while contexts that are never
cancelled pay no cross-thread synchronization cost at all.

For more, see [Context.CancelGroupExecution].

# Stack traces

The primary goal of the stack trace tooling here is to make it easy to
link stack traces across goroutines, and to attach a snapshot of where a
task failed to the [PendingException] captured for its group. To that
end, [GetStackTrace] may be given a parent [StackTrace] to use, which
gets appended on producing a string.

The stack trace management is designed with simplicity in mind, with
optimizations for collection but not printing (i.e. GetStackTrace should
be fast, but there's faster ways to print than via [StackTrace.String]).

For more, see [StackTrace].
*/
package taskctx
