package interp

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/natives"
	"github.com/hollowcore/govm/pkg/vmerr"
)

// captureStackTrace walks the call stack innermost-first, resolving each
// frame's current line from its Code attribute's line-number table (spec
// §4.H), recording declaring class, method name and line number for every
// frame from innermost to outermost. SourceFile is left empty.
func captureStackTrace(stack *frame.Stack) []natives.StackTraceFrame {
	frames := stack.Frames()
	out := make([]natives.StackTraceFrame, len(frames))
	for i, f := range frames {
		line := 0
		if f.Method.Code != nil {
			line = int(f.Method.Code.LineForPC(f.PC))
		}
		out[i] = natives.StackTraceFrame{
			DeclaringClass: f.Method.ClassName,
			MethodName:     f.Method.MethodName,
			LineNumber:     line,
		}
	}
	return out
}

// findHandler searches method's exception table for an entry covering pc
// whose catch type is a supertype of thrownClass, or catch-all (CatchType
// 0) (spec §4.H step 2). Returns (handlerPC, true) on a match.
func findHandler(m Machine, pool []classfile.ConstantPoolEntry, method *classfile.MethodInfo, pc int, thrownClass string) (int, bool, error) {
	if method.Code == nil {
		return 0, false, nil
	}
	for _, h := range method.Code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true, nil
		}
		catchName, err := classfile.GetClassName(pool, h.CatchType)
		if err != nil {
			return 0, false, &vmerr.Internal{Reason: "resolving exception handler catch type", Err: err}
		}
		ok, err := isSubtype(m, thrownClass, catchName)
		if err != nil {
			return 0, false, &vmerr.Internal{Reason: fmt.Sprintf("resolving catch type %s", catchName), Err: err}
		}
		if ok {
			return int(h.HandlerPC), true, nil
		}
	}
	return 0, false, nil
}
