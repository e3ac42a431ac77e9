package frame

import (
	"testing"

	"github.com/hollowcore/govm/pkg/object"
)

func TestPushPopRoundTrip(t *testing.T) {
	f := NewFrame(MethodRef{ClassName: "C", MethodName: "m"}, 2, 4)
	f.Push(object.Int(42))
	f.Push(object.Object(object.Ref(7)))
	if got := f.Pop(); got.Ref != 7 {
		t.Errorf("Pop: got %v", got)
	}
	if got := f.Pop(); got.I != 42 {
		t.Errorf("Pop: got %v", got)
	}
}

func TestPushOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on stack overflow")
		}
	}()
	f := NewFrame(MethodRef{}, 0, 1)
	f.Push(object.Int(1))
	f.Push(object.Int(2))
}

func TestCallingConventionLocals(t *testing.T) {
	// receiver at local 0, then params; long/double take two slots.
	f := NewFrame(MethodRef{}, 4, 0)
	f.SetLocal(0, object.Object(object.Ref(1))) // this
	f.SetLocal(1, object.Long(123))             // occupies locals 1 and 2
	f.SetLocal(3, object.Int(9))
	if f.Locals[1].L != 123 {
		t.Errorf("local 1: got %v", f.Locals[1])
	}
	if f.Locals[3].I != 9 {
		t.Errorf("local 3: got %v", f.Locals[3])
	}
}

func TestRefSlotsIgnoresNonReferenceKinds(t *testing.T) {
	f := NewFrame(MethodRef{}, 2, 2)
	f.Push(object.Int(5))
	f.Push(object.Object(object.Ref(3)))
	f.SetLocal(0, object.Long(99))
	f.SetLocal(1, object.Object(object.Ref(4)))

	refs := f.RefSlots(nil)
	if len(refs) != 2 {
		t.Fatalf("expected 2 reference slots, got %d: %v", len(refs), refs)
	}
}

func TestSetSPClearsClearedSlots(t *testing.T) {
	f := NewFrame(MethodRef{}, 0, 2)
	f.Push(object.Object(object.Ref(5)))
	f.Push(object.Int(1))
	f.SetSP(0)
	if f.SP() != 0 {
		t.Errorf("SP: got %d, want 0", f.SP())
	}
	refs := f.RefSlots(nil)
	if len(refs) != 0 {
		t.Errorf("expected no live refs after SetSP(0), got %v", refs)
	}
}

func TestStackPushPopStackOverflow(t *testing.T) {
	s := NewStack()
	for i := 0; i < MaxDepth; i++ {
		if err := s.Push(NewFrame(MethodRef{}, 0, 0)); err != nil {
			t.Fatalf("unexpected error at depth %d: %v", i, err)
		}
	}
	if err := s.Push(NewFrame(MethodRef{}, 0, 0)); err != ErrStackOverflow {
		t.Errorf("expected ErrStackOverflow, got %v", err)
	}
}

func TestStackFramesInnermostFirst(t *testing.T) {
	s := NewStack()
	outer := NewFrame(MethodRef{MethodName: "outer"}, 0, 0)
	inner := NewFrame(MethodRef{MethodName: "inner"}, 0, 0)
	s.Push(outer)
	s.Push(inner)

	frames := s.Frames()
	if frames[0].Method.MethodName != "inner" {
		t.Errorf("expected innermost frame first, got %s", frames[0].Method.MethodName)
	}
	if frames[1].Method.MethodName != "outer" {
		t.Errorf("expected outermost frame last, got %s", frames[1].Method.MethodName)
	}
}

func TestRewriteRefs(t *testing.T) {
	f := NewFrame(MethodRef{}, 1, 1)
	f.Push(object.Object(object.Ref(2)))
	f.SetLocal(0, object.Object(object.Ref(5)))

	forward := make([]object.Ref, 10)
	forward[2] = object.Ref(20)
	forward[5] = object.Ref(50)
	f.RewriteRefs(forward)

	if f.Peek(0).Ref != 20 {
		t.Errorf("stack ref not rewritten: got %v", f.Peek(0).Ref)
	}
	if f.Locals[0].Ref != 50 {
		t.Errorf("local ref not rewritten: got %v", f.Locals[0].Ref)
	}
}
