package taskctx

import (
	"sync"

	"github.com/eapache/queue"
)

// Arena is the minimal stand-in for a scheduler's "arena" and "worker-pool" collaborators: just
// enough to hand BindTo a default root context and give the propagation engine a stable,
// lock-protected list of workers to sweep. Scheduling policy and worker-pool management
// themselves are out of scope here.
type Arena struct {
	defaultCtx *Context

	mu      sync.Mutex
	workers *queue.Queue // FIFO of *Worker, in registration order

	hookSet Hooks
	metrics *MetricsRegistry
}

// ArenaOption customizes an Arena at construction.
type ArenaOption func(*Arena)

// WithHooks attaches instrumentation callbacks fired at create/bind/destroy/cancel/fallback.
func WithHooks(h Hooks) ArenaOption {
	return func(a *Arena) { a.hookSet = h }
}

// WithMetrics attaches a MetricsRegistry that Hooks callbacks (default or custom) may consult.
// If unset, NewArena allocates its own.
func WithMetrics(m *MetricsRegistry) ArenaOption {
	return func(a *Arena) { a.metrics = m }
}

// NewArena constructs an Arena with a fresh default root context, ready to register workers with.
func NewArena(opts ...ArenaOption) *Arena {
	a := &Arena{workers: queue.New()}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetricsRegistry()
	}

	a.defaultCtx = &Context{arena: a, traits: Traits{Bound: false}, name: "default"}
	a.defaultCtx.initialize()

	return a
}

// DefaultContext returns the arena's default root context: the context a worker is considered
// active under before it enters any real task's scope. Binding a new context while a worker is
// active under DefaultContext always produces an isolated context.
func (a *Arena) DefaultContext() *Context {
	return a.defaultCtx
}

// NewWorker constructs and registers a new Worker with this arena.
func (a *Arena) NewWorker() *Worker {
	w := newWorker(a)
	a.mu.Lock()
	a.workers.Add(w)
	a.mu.Unlock()
	return w
}

// Workers returns a point-in-time snapshot of the workers registered with this arena, in
// registration order.
func (a *Arena) Workers() []*Worker {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Worker, a.workers.Length())
	for i := range out {
		out[i] = a.workers.Get(i).(*Worker)
	}
	return out
}

// NewContext constructs a new Context belonging to this arena, in the created state. It must be
// bound via Context.BindTo before it participates in the context tree.
func (a *Arena) NewContext(traits Traits, opts ...ContextOption) *Context {
	ctx := &Context{arena: a, traits: traits}
	ctx.initialize()
	for _, o := range opts {
		o(ctx)
	}

	if h := a.hooks().OnCreate; h != nil {
		h(ctx)
	}
	a.metrics.Inc("contexts_created")

	return ctx
}

func (a *Arena) hooks() Hooks {
	return a.hookSet
}
