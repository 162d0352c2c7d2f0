package taskctx_test

import (
	"testing"

	"github.com/sharnoff/taskctx"
)

// TestBindIsolatedAtDefaultRoot checks that a context bound while the worker's active context is
// the arena default becomes isolated, never appears in any worker's list, and is unaffected by
// cancelling the default root (which has no children of its own here).
func TestBindIsolatedAtDefaultRoot(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	w := a.NewWorker()

	ctx := a.NewContext(taskctx.Traits{Bound: true})
	ctx.BindTo(w) // w.Active() == a.DefaultContext()

	assert(a.DefaultContext().CancelGroupExecution())
	assert(!ctx.IsGroupExecutionCancelled())
}

// TestBindIsolatedTrait checks that Traits.Bound == false isolates a context even when the
// active parent is a real, non-default context.
func TestBindIsolatedTrait(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	w := a.NewWorker()

	root := a.NewContext(taskctx.Traits{Bound: true})
	root.BindTo(w)

	w.Enter(root)
	defer w.Leave()

	iso := a.NewContext(taskctx.Traits{Bound: false})
	iso.BindTo(w)

	assert(root.CancelGroupExecution())
	assert(!iso.IsGroupExecutionCancelled())
}

// TestBindRootParentInheritsCancellation checks that binding directly under a root parent
// (P.parent == nil) reads P's flag without the epoch protocol.
func TestBindRootParentInheritsCancellation(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	w := a.NewWorker()

	root := a.NewContext(taskctx.Traits{Bound: true})
	root.BindTo(w)
	assert(root.CancelGroupExecution())

	w.Enter(root)
	defer w.Leave()

	child := a.NewContext(taskctx.Traits{Bound: true})
	child.BindTo(w)

	assert(child.IsGroupExecutionCancelled())
}

// TestBindGrandchildInheritsCancellation checks that binding under a parent that itself has a
// parent takes the epoch protocol, and still observes an already-cancelled ancestor's flag
// correctly.
func TestBindGrandchildInheritsCancellation(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	w := a.NewWorker()

	root := a.NewContext(taskctx.Traits{Bound: true})
	root.BindTo(w)

	w.Enter(root)
	mid := a.NewContext(taskctx.Traits{Bound: true})
	mid.BindTo(w)
	assert(root.CancelGroupExecution())

	w.Enter(mid)
	grandchild := a.NewContext(taskctx.Traits{Bound: true})
	grandchild.BindTo(w)
	w.Leave()
	w.Leave()

	assert(grandchild.IsGroupExecutionCancelled())
}

// TestDoubleBindIsSafeNoOp checks that calling BindTo again on an already-bound context does not
// panic and does not change its parent.
func TestDoubleBindIsSafeNoOp(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	w1 := a.NewWorker()
	w2 := a.NewWorker()

	root := a.NewContext(taskctx.Traits{Bound: true})
	root.BindTo(w1)

	w1.Enter(root)
	defer w1.Leave()

	ctx := a.NewContext(taskctx.Traits{Bound: true})
	ctx.BindTo(w1)
	ctx.BindTo(w2) // should be a no-op: ctx is already bound

	assert(root.CancelGroupExecution())
	assert(ctx.IsGroupExecutionCancelled())
}

func TestFPSettingsInheritedFromParent(t *testing.T) {
	// Not t.Parallel(): SetFPEnvSource mutates process-wide state.
	var captured int
	taskctx.SetFPEnvSource(func() taskctx.FPEnv {
		captured++
		return taskctx.FPEnv{}
	})

	a := newTestArena()
	w := a.NewWorker()

	root := a.NewContext(taskctx.Traits{Bound: true, FPSettings: true})
	root.BindTo(w)

	w.Enter(root)
	defer w.Leave()

	child := a.NewContext(taskctx.Traits{Bound: true})
	child.BindTo(w)

	if child.FPEnv() != root.FPEnv() {
		t.Fatal("expected child to inherit parent's FP environment")
	}
}
