package particles

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/software"
)

func TestNewSession(t *testing.T) {
	ctx := software.New()
	s, err := NewSession(ctx, WithPrecision(Double))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Context() != ctx || s.Queue() == nil {
		t.Error("session does not carry its context and queue")
	}
	if s.Precision() != Double {
		t.Errorf("Precision() = %s, want double", s.Precision())
	}
	if s.Backend() != compute.BackendSoftware {
		t.Errorf("Backend() = %q", s.Backend())
	}
	if !strings.HasPrefix(s.Label("x"), "x@") {
		t.Errorf("Label = %q", s.Label("x"))
	}

	// A session built on a caller's context leaves it open.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Alloc("x", compute.Float32, 1); err != nil {
		t.Errorf("context closed by non-owning session: %v", err)
	}
}

func TestNewSessionWithQueue(t *testing.T) {
	ctx := software.New()
	q, _ := ctx.NewQueue()
	s, err := NewSession(ctx, WithQueue(q))
	if err != nil {
		t.Fatal(err)
	}
	if s.Queue() != q {
		t.Error("WithQueue ignored")
	}
}

func TestNewSessionErrors(t *testing.T) {
	if _, err := NewSession(nil); !errors.Is(err, ErrNoBackend) {
		t.Errorf("nil context err = %v, want ErrNoBackend", err)
	}
	if _, err := NewSession(software.New(), WithPrecision(Precision(9))); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("bad precision err = %v, want ErrTypeMismatch", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	a, _ := NewSession(software.New())
	b, _ := NewSession(software.New())
	if a.ID() == b.ID() {
		t.Error("sessions share an ID")
	}
}

func TestOpenSession(t *testing.T) {
	s, err := OpenSession(compute.BackendSoftware)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	ctx := s.Context()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Alloc("x", compute.Float32, 1); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("owning session did not close its context: %v", err)
	}

	if _, err := OpenSession("no-such-backend"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("unknown backend err = %v, want ErrNoBackend", err)
	}
}
