package locate

import (
	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/layout"
)

// ExtentLocation is the per-call view of one layout extent.
type ExtentLocation struct {
	Index  int            // position in the layout
	Extent *layout.Extent // borrowed from the layout
	Medium *dss.MediumInfo
	Owner  string // host holding the medium lock, "" if unlocked
}

// extentSlot is either a present location or a pruned one.
type extentSlot struct {
	loc     ExtentLocation
	present bool
}

// extentSlots has one slot per layout extent.
type extentSlots []extentSlot

func newExtentSlots(n int) extentSlots {
	return make(extentSlots, n)
}

// get returns the location at i if it has not been pruned.
func (s extentSlots) get(i int) (*ExtentLocation, bool) {
	if !s[i].present {
		return nil, false
	}
	return &s[i].loc, true
}

func (s extentSlots) set(i int, loc ExtentLocation) {
	s[i] = extentSlot{loc: loc, present: true}
}

// prune releases the location at i.
func (s extentSlots) prune(i int) {
	s[i] = extentSlot{}
}

// pruneAll releases every location.
func (s extentSlots) pruneAll() {
	for i := range s {
		s.prune(i)
	}
}

// presentIn counts present locations in [start, end).
func (s extentSlots) presentIn(start, end int) int {
	n := 0
	for i := start; i < end; i++ {
		if s[i].present {
			n++
		}
	}
	return n
}
