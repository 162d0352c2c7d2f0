package taskctx

// FPEnv is an opaque snapshot of a floating-point control environment (rounding mode, exception
// masks, denormal handling) as captured by CaptureFPSettings. Go's runtime does not expose the x87
// or SSE control words directly, so FPEnv is a seam: captureFPEnvFunc can be overridden
// (SetFPEnvSource) by a build that links against a platform-specific capture routine (e.g. via
// cgo or a syscall wrapper), and in its absence an empty environment (a zero control word, marked
// valid) is simply propagated - making
// floating-point capture a documented no-op rather than a silent divergence from real FPU state.
type FPEnv struct {
	// valid distinguishes a genuinely-captured environment (even one that happens to equal the
	// zero value) from "never captured". It's only informational today, but lets a future
	// platform-specific captureFPEnvFunc distinguish "no FPU state available" from "default FPU
	// state".
	valid bool
	word  uint64
}

// captureFPEnvFunc is called by Context.CaptureFPSettings. The default implementation reports an
// empty, valid environment; SetFPEnvSource overrides it for platforms that can read real FPU
// state.
var captureFPEnvFunc = func() FPEnv {
	return FPEnv{valid: true}
}

// SetFPEnvSource overrides the function used to capture the current floating-point environment.
// It is meant to be called once, at program startup, by a platform-specific package that can read
// real FPU control state; taskctx itself only propagates whatever value it's given.
func SetFPEnvSource(f func() FPEnv) {
	if f == nil {
		panic("taskctx: SetFPEnvSource called with a nil function")
	}
	captureFPEnvFunc = f
}

// CaptureFPSettings captures the current floating-point environment into ctx, for contexts with
// Traits.FPSettings set. It is called automatically by the Arena on construction of such a
// context, and may be called again to re-capture after a Reset.
func (ctx *Context) CaptureFPSettings() {
	ctx.fpEnv = captureFPEnvFunc()
}

// copyFPSettingsFrom installs src's floating-point environment into ctx: the inheritance step a
// freshly bound child that didn't request its own FP capture goes through at bind time.
func (ctx *Context) copyFPSettingsFrom(src *Context) {
	ctx.fpEnv = src.fpEnv
}

// FPEnv returns ctx's captured floating-point environment. The result is meaningful only if
// ctx.Traits().FPSettings is true, or ctx inherited one from a bound ancestor that captured its
// own.
func (ctx *Context) FPEnv() FPEnv {
	return ctx.fpEnv
}

// Traits returns the Traits this Context was constructed with.
func (ctx *Context) Traits() Traits {
	return ctx.traits
}
