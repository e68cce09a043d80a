package compute

import (
	"fmt"
	"strconv"
	"strings"
)

// Index is a coordinate inside an Extent, one entry per dimension.
type Index []int

// Extent is the iteration space of a dispatch: a size per dimension.
// Its zero value has rank 0 and is not a valid domain.
type Extent struct {
	dims []int
}

// NewExtent builds an extent of rank len(dims). Every dimension must be positive.
func NewExtent(dims ...int) (Extent, error) {
	if len(dims) == 0 {
		return Extent{}, fmt.Errorf("%w: extent needs at least one dimension", ErrInvalidShape)
	}
	for i, d := range dims {
		if d <= 0 {
			return Extent{}, fmt.Errorf("%w: dimension %d is %d", ErrInvalidShape, i, d)
		}
	}
	return Extent{dims: append([]int(nil), dims...)}, nil
}

func (e Extent) Rank() int {
	return len(e.dims)
}

// Dim returns the size of dimension i.
func (e Extent) Dim(i int) int {
	return e.dims[i]
}

// Dims returns a copy of the per-dimension sizes.
func (e Extent) Dims() []int {
	return append([]int(nil), e.dims...)
}

// Size is the number of work-items, the product of all dimensions.
func (e Extent) Size() int {
	if len(e.dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range e.dims {
		n *= d
	}
	return n
}

// Equal reports whether both extents have the same rank and sizes.
func (e Extent) Equal(other Extent) bool {
	if len(e.dims) != len(other.dims) {
		return false
	}
	for i := range e.dims {
		if e.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// Contains reports whether idx lies inside the extent.
func (e Extent) Contains(idx Index) bool {
	if len(idx) != len(e.dims) {
		return false
	}
	for i, v := range idx {
		if v < 0 || v >= e.dims[i] {
			return false
		}
	}
	return true
}

// Linear maps idx to its row-major offset.
func (e Extent) Linear(idx Index) (int, error) {
	if !e.Contains(idx) {
		return 0, fmt.Errorf("%w: index %v outside extent %s", ErrInvalidShape, []int(idx), e)
	}
	off := 0
	for i, v := range idx {
		off = off*e.dims[i] + v
	}
	return off, nil
}

// Unravel maps a row-major offset back to an index.
func (e Extent) Unravel(linear int) Index {
	idx := make(Index, len(e.dims))
	e.unravelInto(linear, idx)
	return idx
}

func (e Extent) unravelInto(linear int, idx Index) {
	for i := len(e.dims) - 1; i >= 0; i-- {
		idx[i] = linear % e.dims[i]
		linear /= e.dims[i]
	}
}

// advance moves idx to the next row-major position.
func (e Extent) advance(idx Index) {
	for i := len(e.dims) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < e.dims[i] {
			return
		}
		idx[i] = 0
	}
}

func (e Extent) String() string {
	parts := make([]string, len(e.dims))
	for i, d := range e.dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}
