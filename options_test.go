package particles

import (
	"errors"
	"testing"

	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/software"
)

// TestDefaultSessionOptionsFollowDefaultPrecision tests that sessions pick
// up SetDefaultPrecision when no option overrides it.
func TestDefaultSessionOptionsFollowDefaultPrecision(t *testing.T) {
	t.Cleanup(resetDefaults)
	SetDefaultPrecision(Double)

	s, err := NewSession(software.New())
	if err != nil {
		t.Fatal(err)
	}
	if s.Precision() != Double {
		t.Errorf("Precision() = %s, want double", s.Precision())
	}

	s, err = NewSession(software.New(), WithPrecision(Single))
	if err != nil {
		t.Fatal(err)
	}
	if s.Precision() != Single {
		t.Errorf("WithPrecision(Single) ignored: %s", s.Precision())
	}
}

// TestWithOwnedContext tests that an owning session closes its context.
func TestWithOwnedContext(t *testing.T) {
	ctx := software.New()
	s, err := NewSession(ctx, WithOwnedContext())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Alloc("x", compute.Float32, 1); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("Alloc after owning Close err = %v, want ErrClosed", err)
	}
}

// TestOptionsApplyInOrder tests that later options win.
func TestOptionsApplyInOrder(t *testing.T) {
	o := defaultSessionOptions()
	for _, opt := range []SessionOption{WithPrecision(Double), WithPrecision(Single)} {
		opt(&o)
	}
	if o.precision != Single {
		t.Errorf("precision = %s, want single", o.precision)
	}
	if o.ownsCtx || o.queue != nil {
		t.Error("unrelated options changed")
	}
}
