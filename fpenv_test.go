package taskctx_test

import (
	"testing"

	"github.com/sharnoff/taskctx"
)

func TestFPSettingsSelfCapturedWhenRequested(t *testing.T) {
	// Not t.Parallel(): SetFPEnvSource mutates process-wide state.
	calls := 0
	taskctx.SetFPEnvSource(func() taskctx.FPEnv {
		calls++
		return taskctx.FPEnv{}
	})
	defer taskctx.SetFPEnvSource(func() taskctx.FPEnv { return taskctx.FPEnv{} })

	a := newTestArena()
	_ = a.NewContext(taskctx.Traits{Bound: true, FPSettings: true})

	if calls != 1 {
		t.Fatalf("expected exactly one capture call at construction, got %d", calls)
	}
}

func TestSetFPEnvSourceRejectsNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected SetFPEnvSource(nil) to panic")
		}
	}()
	taskctx.SetFPEnvSource(nil)
}

func TestTraitsReturnsConstructionValue(t *testing.T) {
	t.Parallel()

	a := newTestArena()
	ctx := a.NewContext(taskctx.Traits{Bound: true, FPSettings: true})

	tr := ctx.Traits()
	if !tr.Bound || !tr.FPSettings {
		t.Fatalf("expected Traits() to reflect construction, got %+v", tr)
	}
}
