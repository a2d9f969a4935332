// Package layout describes how an object is stored: an ordered list of
// extents cut into equal redundancy groups (splits) of data+parity extents.
package layout

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cea-hpc/phobos/internal/dss"
)

// ErrInvalidLayout reports a layout whose redundancy shape cannot be split.
var ErrInvalidLayout = errors.New("invalid layout")

// Extent is one stored fragment of an object. Extents are owned by their
// Layout and referenced by index, never copied into working structures.
type Extent struct {
	UUID   uuid.UUID
	Medium dss.MediumID
	Size   int64
	Offset int64
}

// Layout is the read-only description of an object's extents.
type Layout struct {
	ObjectID string
	Version  int
	NData    int // data extents per split
	NParity  int // parity extents per split
	Extents  []Extent
}

// Width is the number of extents per split.
func (l *Layout) Width() int {
	return l.NData + l.NParity
}

// SplitCount is the number of splits in the layout.
func (l *Layout) SplitCount() int {
	if l.Width() == 0 {
		return 0
	}
	return len(l.Extents) / l.Width()
}

// Split returns the half-open extent index range of split s.
func (l *Layout) Split(s int) (start, end int) {
	w := l.Width()
	return s * w, (s + 1) * w
}

// SplitOf returns the split holding extent index i.
func (l *Layout) SplitOf(i int) int {
	return i / l.Width()
}

// Validate checks the redundancy shape: at least one data extent per split,
// at least one split, and an extent count that is a multiple of the width.
func (l *Layout) Validate() error {
	if l.NData <= 0 {
		return fmt.Errorf("%w: n_data_extents must be positive, got %d", ErrInvalidLayout, l.NData)
	}
	if l.NParity < 0 {
		return fmt.Errorf("%w: n_parity_extents must not be negative, got %d", ErrInvalidLayout, l.NParity)
	}
	if len(l.Extents) == 0 {
		return fmt.Errorf("%w: no extents", ErrInvalidLayout)
	}
	if len(l.Extents)%l.Width() != 0 {
		return fmt.Errorf("%w: %d extents do not fill splits of %d",
			ErrInvalidLayout, len(l.Extents), l.Width())
	}
	return nil
}

// Families returns the distinct medium families of the layout in order of
// first appearance.
func (l *Layout) Families() []dss.Family {
	var out []dss.Family
	seen := make(map[dss.Family]bool)
	for i := range l.Extents {
		f := l.Extents[i].Medium.Family
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// TotalSize is the sum of the data extent sizes, i.e. the object size.
func (l *Layout) TotalSize() int64 {
	var total int64
	for s := 0; s < l.SplitCount(); s++ {
		start, _ := l.Split(s)
		for i := start; i < start+l.NData; i++ {
			total += l.Extents[i].Size
		}
	}
	return total
}
