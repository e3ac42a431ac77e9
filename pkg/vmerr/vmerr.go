// Package vmerr defines the error taxonomy shared across the interpreter,
// exception model, and native registry (spec §7): structural errors never
// become Java throwables, runtime errors become thrown objects and enter
// the unwind path, and VM-fatal errors abort the current invocation.
package vmerr

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/object"
)

// Thrown wraps a live Java exception object in flight through the Go call
// stack during unwind — the runtime-error branch of spec §7's taxonomy.
// The interpreter's exception-table search (spec §4.H) catches this type
// specifically; every other error type aborts the method call outright.
type Thrown struct {
	Object    object.Ref
	ClassName string // the throwable's class, cached for handler matching
}

func (t *Thrown) Error() string {
	return fmt.Sprintf("exception in flight: %s", t.ClassName)
}

// Internal represents the VM-fatal branch of spec §7: heap exhausted after
// collection, or an unresolvable native method marked required. It aborts
// the current top-level invocation and is never converted into a Java
// throwable.
type Internal struct {
	Reason string
	Err    error
}

func (e *Internal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal VM error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("internal VM error: %s", e.Reason)
}

func (e *Internal) Unwrap() error { return e.Err }

// NotImplemented is returned by the native registry when no callback is
// registered for a (class, method, descriptor) triple (spec §4.I).
type NotImplemented struct {
	ClassName, MethodName, Descriptor string
}

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("NotImplemented: %s.%s:%s", e.ClassName, e.MethodName, e.Descriptor)
}
