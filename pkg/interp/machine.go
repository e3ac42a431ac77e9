package interp

import (
	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/natives"
	"github.com/hollowcore/govm/pkg/object"
)

// Machine is the capability surface the interpreter needs from its
// embedding VM (spec §9: "the interpreter is polymorphic over a capability
// {resolve class by id, materialize strings, allocate} supplied by the
// VM"). pkg/vm.VM implements this; tests substitute a lightweight fake
// (spec §9) so instruction semantics can be exercised without a class path
// or the embedder's logging.
type Machine interface {
	// ResolveClass loads, links and — if not already initialized — runs
	// the <clinit> chain for name, returning the ready-to-use class (spec
	// §4.C, §4.G "resolution may trigger class initialization").
	ResolveClass(name string) (*class.Loaded, error)
	// ResolveArrayClass returns the synthetic runtime class for an array
	// type descriptor ("[I", "[Ljava/lang/String;", ...), so every array
	// this package allocates carries a resolvable ClassID the same as an
	// Instance does (spec §4.D: arrays are objects rooted at
	// java/lang/Object).
	ResolveArrayClass(descriptor string) (*class.Loaded, error)
	// ClassByID looks up an already-resolved class by its assigned id,
	// used to find an object's runtime class from Instance/Array.ClassID.
	ClassByID(id uint32) *class.Loaded

	Allocate(obj object.Object) (object.Ref, error)
	Get(ref object.Ref) object.Object

	NewString(s string) (object.Ref, error)
	ExtractString(ref object.Ref) (string, error)

	// ClassObjectFor returns (creating and caching if needed) the
	// java/lang/Class instance representing name, for ldc of a Class
	// constant and Object.getClass.
	ClassObjectFor(name string) (object.Ref, error)

	// RecordStackTrace stores the captured trace for a throwable, keyed by
	// its identity (spec §4.H: "side table keyed by the throwable's
	// identity").
	RecordStackTrace(ref object.Ref, frames []natives.StackTraceFrame)
	// StackTrace retrieves a previously recorded trace, or nil.
	StackTrace(ref object.Ref) []natives.StackTraceFrame

	Natives() *natives.Registry
	NativeContext() natives.Context
}
