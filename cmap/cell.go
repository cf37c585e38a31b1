package cmap

import "github.com/joeycumines/go-lockfree/refcount"

// cell is the reference-counted allocation spec.md's glossary defines:
// one per occupied key or value slot. Cells here are never pooled or
// recycled — each Set allocates a fresh *cell[T] and lets it become
// garbage once its refcount reaches zero — so, unlike shared.block,
// cmap has no address-reuse hazard for hazard.Engine to guard against;
// refcount.Counter's resurrecting-increment protocol is used purely to
// arbitrate "is this cell still logically live," with Go's GC handling
// the actual memory safety for free. See DESIGN.md.
type cell[T any] struct {
	strong refcount.Counter
	value  T
}

// newCell returns a cell holding value with a strong count of one.
func newCell[T any](value T) *cell[T] {
	c := &cell[T]{value: value}
	c.strong.Reset(1)
	return c
}
