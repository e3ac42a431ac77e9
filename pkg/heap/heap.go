// Package heap implements the VM's object storage: a fixed-capacity region
// with a bump allocator and a stop-the-world mark-compact collector (spec
// §4.E). The teacher (daimatz-gojvm) never implements this — it stores
// *JObject/*JArray directly on the Go heap and leans on Go's own GC. This
// package is instead grounded on original_source/vm/src/vm.rs's
// ObjectAllocator/do_garbage_collection: a Rust arena-backed allocator with
// explicit capacity and an explicit collection trigger, translated into
// idiomatic Go (slices instead of a typed_arena, a RootProvider interface
// instead of borrow-checked root scanning).
package heap

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/object"
)

// entry is one heap slot: either live (Obj != nil) or free.
type entry struct {
	obj object.Object
}

// sizeOf approximates an object's footprint in "words" for accounting
// against the configured capacity. The exact unit does not matter — only
// that allocation is monotonic and bounded — so this counts one word per
// slot plus a fixed per-object header cost, the same shape rjvm's
// ObjectAllocator uses to decide when do_garbage_collection runs.
func sizeOf(obj object.Object) int {
	const header = 2
	switch o := obj.(type) {
	case *object.Instance:
		return header + len(o.Slots)
	case *object.Array:
		return header + o.Len()
	default:
		return header
	}
}

// RootProvider supplies the GC's root set: every live reference the
// embedder (frames on the call stack, static fields, a throwable
// stack-trace side table) currently holds. Roots() is called once per
// collection; the returned slice must include every Ref the caller still
// intends to use afterward the heap will drop anything unreachable from it.
type RootProvider interface {
	Roots() []object.Ref
}

// Heap is a fixed-capacity region of objects addressed by object.Ref.
// Ref 0 is always nil/unused (the null reference); live objects occupy
// Ref values [1, len(entries)). Allocation bumps a high-water mark; when
// the region is full a mark-compact collection runs and slides surviving
// objects down, rewriting every Ref through a forwarding table so no
// reference the caller is still holding goes stale under it.
type Heap struct {
	capacityWords int
	usedWords     int
	entries       []entry // index 0 unused
	roots         RootProvider
	collections   int
}

// New creates a heap with the given capacity in words and a root provider
// used to find all currently-live references during collection.
func New(capacityWords int, roots RootProvider) *Heap {
	return &Heap{
		capacityWords: capacityWords,
		entries:       make([]entry, 1, 64), // slot 0 reserved for null
		roots:         roots,
	}
}

// ErrOutOfMemory is returned when allocation fails even after a collection
// — the VM-fatal case of spec §7 ("heap exhausted post-GC").
var ErrOutOfMemory = fmt.Errorf("heap exhausted")

// Allocate stores obj and returns its reference. If the region has no room,
// a mark-compact collection runs once before retrying; if it still does not
// fit, ErrOutOfMemory is returned and the VM must abort per spec §7.
func (h *Heap) Allocate(obj object.Object) (object.Ref, error) {
	need := sizeOf(obj)
	if h.usedWords+need > h.capacityWords {
		h.collect()
		if h.usedWords+need > h.capacityWords {
			return 0, ErrOutOfMemory
		}
	}
	h.entries = append(h.entries, entry{obj: obj})
	h.usedWords += need
	return object.Ref(len(h.entries) - 1), nil
}

// Get dereferences a live reference. A stale or null Ref is a VM-internal
// bug (the interpreter must NPE-check before dereferencing), so this panics
// rather than returning an error — mirroring how the teacher's *JObject
// pointer dereference would behave on a nil pointer.
func (h *Heap) Get(r object.Ref) object.Object {
	if r.IsNull() || int(r) >= len(h.entries) || h.entries[r].obj == nil {
		panic(fmt.Sprintf("heap: dereferencing invalid reference %d", r))
	}
	return h.entries[r].obj
}

// Stats reports current occupancy, for the embedder-facing VM.Stats()
// accessor (SPEC_FULL.md supplemental features, grounded on rjvm's
// debug_stats).
type Stats struct {
	UsedWords     int
	CapacityWords int
	LiveObjects   int
	Collections   int
}

func (h *Heap) Stats() Stats {
	live := 0
	for i := 1; i < len(h.entries); i++ {
		if h.entries[i].obj != nil {
			live++
		}
	}
	return Stats{
		UsedWords:     h.usedWords,
		CapacityWords: h.capacityWords,
		LiveObjects:   live,
		Collections:   h.collections,
	}
}

// collect runs one mark-compact cycle: mark every object reachable from
// the root set (transitively, through reference slots), then slide
// survivors to the front of the entries table, building a forwarding
// table that every surviving Ref is rewritten through — including the
// roots themselves, which the RootProvider's owner must re-read after
// collection via the rewritten Refs it's handed back through RewriteRoots.
func (h *Heap) collect() {
	h.collections++

	marked := make([]bool, len(h.entries))
	var stack []object.Ref
	for _, r := range h.roots.Roots() {
		if !r.IsNull() && int(r) < len(h.entries) && !marked[r] {
			marked[r] = true
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj := h.entries[r].obj
		if obj == nil {
			continue
		}
		for _, childRef := range tracedRefs(obj) {
			if !childRef.IsNull() && int(childRef) < len(h.entries) && !marked[childRef] {
				marked[childRef] = true
				stack = append(stack, childRef)
			}
		}
	}

	// Two-finger compaction: write surviving entries to the front,
	// recording old->new Ref in forward, then rewrite every reference
	// slot of every surviving object through forward.
	forward := make([]object.Ref, len(h.entries))
	newEntries := make([]entry, 1, len(h.entries))
	newUsed := 0
	for old := 1; old < len(h.entries); old++ {
		if !marked[old] {
			continue
		}
		newEntries = append(newEntries, h.entries[old])
		forward[old] = object.Ref(len(newEntries) - 1)
		newUsed += sizeOf(h.entries[old].obj)
	}
	for _, e := range newEntries[1:] {
		rewriteRefs(e.obj, forward)
	}

	h.entries = newEntries
	h.usedWords = newUsed

	if rw, ok := h.roots.(RootRewriter); ok {
		rw.RewriteRoots(forward)
	}
}

// RootRewriter lets a RootProvider fix up the Refs it owns (frame operand
// stacks/locals, static fields, the throwable stack-trace side table) after a
// collection slides objects around. Providers that only ever read roots
// without caching Refs elsewhere don't need this; the VM's root provider
// does, since it owns the long-lived static-field table.
type RootRewriter interface {
	RewriteRoots(forward []object.Ref)
}

func tracedRefs(obj object.Object) []object.Ref {
	switch o := obj.(type) {
	case *object.Instance:
		var refs []object.Ref
		for _, i := range instanceRefSlots(o) {
			refs = append(refs, o.Slots[i].Ref)
		}
		return refs
	case *object.Array:
		if o.Elem != object.ElemReference {
			return nil
		}
		refs := make([]object.Ref, len(o.Slots))
		for i, s := range o.Slots {
			refs[i] = s.Ref
		}
		return refs
	default:
		return nil
	}
}

func rewriteRefs(obj object.Object, forward []object.Ref) {
	switch o := obj.(type) {
	case *object.Instance:
		for _, i := range instanceRefSlots(o) {
			o.Slots[i].Ref = forwardOf(o.Slots[i].Ref, forward)
		}
	case *object.Array:
		if o.Elem != object.ElemReference {
			return
		}
		for i := range o.Slots {
			o.Slots[i].Ref = forwardOf(o.Slots[i].Ref, forward)
		}
	}
}

func forwardOf(r object.Ref, forward []object.Ref) object.Ref {
	if r.IsNull() || int(r) >= len(forward) {
		return 0
	}
	return forward[r]
}

// instanceRefSlots exposes the object-kind slot indices without requiring
// object.Instance to export its private field-kind slice; it re-derives
// them from Value.Kind since every reference slot's current Value carries
// KindObject regardless of its static field type.
func instanceRefSlots(o *object.Instance) []int {
	var idx []int
	for i, v := range o.Slots {
		if v.Kind == object.KindObject {
			idx = append(idx, i)
		}
	}
	return idx
}
