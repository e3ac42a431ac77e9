package natives

import (
	"testing"

	"github.com/hollowcore/govm/pkg/object"
)

// fakeContext is a minimal Context backed by plain Go maps, standing in for
// the full VM (spec §9: tests substitute a lightweight fake).
type fakeContext struct {
	objects map[object.Ref]object.Object
	strings map[object.Ref]string
	next    object.Ref
	printed string
}

func newFakeContext() *fakeContext {
	return &fakeContext{objects: make(map[object.Ref]object.Object), strings: make(map[object.Ref]string)}
}

func (c *fakeContext) Allocate(obj object.Object) (object.Ref, error) {
	c.next++
	c.objects[c.next] = obj
	return c.next, nil
}
func (c *fakeContext) Get(ref object.Ref) object.Object { return c.objects[ref] }
func (c *fakeContext) NewString(s string) (object.Ref, error) {
	c.next++
	c.strings[c.next] = s
	return c.next, nil
}
func (c *fakeContext) ExtractString(ref object.Ref) (string, error) { return c.strings[ref], nil }
func (c *fakeContext) Print(s string)                               { c.printed += s }
func (c *fakeContext) StackTrace(ref object.Ref) []StackTraceFrame {
	return []StackTraceFrame{{DeclaringClass: "Main", MethodName: "main", LineNumber: 3}}
}
func (c *fakeContext) FillInStackTrace(ref object.Ref) {}

func TestPrintlnString(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext()
	strRef, _ := ctx.NewString("hello")

	cb, err := r.Lookup("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cb(ctx, object.Value{}, []object.Value{object.Object(strRef)}); err != nil {
		t.Fatal(err)
	}
	if ctx.printed != "hello\n" {
		t.Errorf("printed: got %q, want %q", ctx.printed, "hello\n")
	}
}

func TestPrintlnInt(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext()
	cb, err := r.Lookup("java/io/PrintStream", "println", "(I)V")
	if err != nil {
		t.Fatal(err)
	}
	cb(ctx, object.Value{}, []object.Value{object.Int(42)})
	if ctx.printed != "42\n" {
		t.Errorf("printed: got %q", ctx.printed)
	}
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("com/example/Widget", "spin", "()V")
	if err == nil {
		t.Fatal("expected NotImplemented error")
	}
}

func TestArraycopy(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext()
	src := object.NewArray(0, object.ElemInt, 3)
	src.Set(0, object.Int(1))
	src.Set(1, object.Int(2))
	src.Set(2, object.Int(3))
	dst := object.NewArray(0, object.ElemInt, 3)
	srcRef, _ := ctx.Allocate(src)
	dstRef, _ := ctx.Allocate(dst)

	cb, err := r.Lookup("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	if err != nil {
		t.Fatal(err)
	}
	_, err = cb(ctx, object.Value{}, []object.Value{
		object.Object(srcRef), object.Int(0),
		object.Object(dstRef), object.Int(0),
		object.Int(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := dst.Get(1)
	if got.I != 2 {
		t.Errorf("arraycopy: got %v", got)
	}
}

func TestObjectHashCode(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext()
	inst := object.NewInstance(1, nil)
	ref, _ := ctx.Allocate(inst)

	cb, err := r.Lookup("java/lang/Object", "hashCode", "()I")
	if err != nil {
		t.Fatal(err)
	}
	v, err := cb(ctx, object.Object(ref), nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != object.KindInt {
		t.Errorf("hashCode should return an int, got %v", v.Kind)
	}
}

func TestGetStackTrace(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext()
	cb, err := r.Lookup("java/lang/Throwable", "getStackTrace", "()[Ljava/lang/StackTraceElement;")
	if err != nil {
		t.Fatal(err)
	}
	v, err := cb(ctx, object.Value{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := ctx.Get(v.Ref).(*object.Array)
	if !ok || arr.Len() != 1 {
		t.Fatalf("expected a 1-element StackTraceElement array, got %v", v)
	}
}
