// Package frame implements the call stack and frame layout (spec §4.F):
// operand stack, locals array, program counter and class/method backpointer
// per frame, plus the GC root iteration the heap package needs. Grounded on
// the teacher's Frame (daimatz-gojvm/pkg/vm/frame.go) and its calling
// convention, generalized to the full object.Value tagged union.
package frame

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/object"
)

// MethodRef identifies the method a frame is executing, for stack traces
// and exception-table lookup.
type MethodRef struct {
	ClassName  string
	MethodName string
	Descriptor string
	Code       CodeSource
}

// CodeSource is the subset of classfile.CodeAttribute the frame/stack
// package needs, kept as an interface so this package does not import
// classfile and stays reusable against any code representation a test
// wants to substitute (spec §9: "tests may substitute a lightweight
// fake").
type CodeSource interface {
	Bytecode() []byte
	LineForPC(pc int) uint16
}

// Frame is one activation record: a bounded operand stack, a locals array,
// a program counter, and a back-pointer to its class and method.
type Frame struct {
	Method MethodRef
	Locals []object.Value
	stack  []object.Value
	sp     int
	PC     int
}

// NewFrame allocates a frame with the given locals/stack capacity. Locals
// beyond the populated arguments default to the zero Value (Kind
// KindInt, value 0) — unused local slots are never read by correctly
// verified bytecode.
func NewFrame(method MethodRef, maxLocals, maxStack int) *Frame {
	return &Frame{
		Method: method,
		Locals: make([]object.Value, maxLocals),
		stack:  make([]object.Value, maxStack),
	}
}

// SetLocal populates a local slot — used by the caller when pushing a new
// frame to lay out the JVM calling convention (spec §4.F: "receiver (if
// any) at local 0, then parameters in declaration order, long/double
// occupying two local slots each").
func (f *Frame) SetLocal(i int, v object.Value) { f.Locals[i] = v }

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v object.Value) {
	if f.sp >= len(f.stack) {
		panic(fmt.Sprintf("operand stack overflow: capacity %d", len(f.stack)))
	}
	f.stack[f.sp] = v
	f.sp++
}

// Pop pops the top of the operand stack.
func (f *Frame) Pop() object.Value {
	if f.sp == 0 {
		panic("operand stack underflow")
	}
	f.sp--
	v := f.stack[f.sp]
	f.stack[f.sp] = object.Value{}
	return v
}

// Peek returns the value n slots below the top without popping (0 = top).
func (f *Frame) Peek(n int) object.Value {
	return f.stack[f.sp-1-n]
}

// SP returns the current operand-stack depth.
func (f *Frame) SP() int { return f.sp }

// SetSP resets the stack pointer — used on exception-handler dispatch
// (spec §4.H: "operand stack is cleared").
func (f *Frame) SetSP(n int) {
	for i := n; i < f.sp; i++ {
		f.stack[i] = object.Value{}
	}
	f.sp = n
}

// RefSlots appends every live reference-kind value currently held by this
// frame — operand stack up to sp, locals in full — to dst and returns the
// result (spec §4.F: "an iterator over every reference-typed slot currently
// live in any frame ... slots holding non-reference kinds must not be
// reported").
func (f *Frame) RefSlots(dst []object.Ref) []object.Ref {
	for i := 0; i < f.sp; i++ {
		if f.stack[i].Kind == object.KindObject && !f.stack[i].Ref.IsNull() {
			dst = append(dst, f.stack[i].Ref)
		}
	}
	for _, v := range f.Locals {
		if v.Kind == object.KindObject && !v.Ref.IsNull() {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}

// RewriteRefs rewrites every reference-kind slot through a GC forwarding
// table, called after a heap compaction (spec §4.E: "rewrites every root
// ... to its forwarding address").
func (f *Frame) RewriteRefs(forward []object.Ref) {
	rewrite := func(v *object.Value) {
		if v.Kind == object.KindObject && !v.Ref.IsNull() && int(v.Ref) < len(forward) {
			v.Ref = forward[v.Ref]
		}
	}
	for i := 0; i < f.sp; i++ {
		rewrite(&f.stack[i])
	}
	for i := range f.Locals {
		rewrite(&f.Locals[i])
	}
}

// MaxDepth is the maximum number of nested frames a single call stack
// permits before a StackOverflowError is synthesized (spec §7).
const MaxDepth = 1024

// Stack is a call stack: a sequence of frames, newest last. Frames never
// outlive their stack (spec §3).
type Stack struct {
	frames []*Frame
}

// NewStack creates an empty call stack.
func NewStack() *Stack { return &Stack{} }

// ErrStackOverflow is returned by Push when the stack already holds
// MaxDepth frames.
var ErrStackOverflow = fmt.Errorf("StackOverflowError")

// Push pushes a new frame, or returns ErrStackOverflow if the stack is at
// capacity.
func (s *Stack) Push(f *Frame) error {
	if len(s.frames) >= MaxDepth {
		return ErrStackOverflow
	}
	s.frames = append(s.frames, f)
	return nil
}

// Pop removes and returns the top frame.
func (s *Stack) Pop() *Frame {
	n := len(s.frames)
	f := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return f
}

// Top returns the current (innermost) frame, or nil if the stack is empty.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames currently on the stack.
func (s *Stack) Depth() int { return len(s.frames) }

// Frames returns the frames from innermost to outermost — the order a
// stack trace is captured in (spec §4.H).
func (s *Stack) Frames() []*Frame {
	out := make([]*Frame, len(s.frames))
	for i, f := range s.frames {
		out[i] = s.frames[len(s.frames)-1-i]
	}
	return out
}

// RefSlots appends every live reference held by any frame on this stack to
// dst — one component of the GC root set (spec §4.E).
func (s *Stack) RefSlots(dst []object.Ref) []object.Ref {
	for _, f := range s.frames {
		dst = f.RefSlots(dst)
	}
	return dst
}

// RewriteRefs rewrites every frame's reference slots after a GC compaction.
func (s *Stack) RewriteRefs(forward []object.Ref) {
	for _, f := range s.frames {
		f.RewriteRefs(forward)
	}
}
