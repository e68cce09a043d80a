package compute

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Flatten2D converts a rectangular [][]T into a row-major slice.
func Flatten2D[T Number](matrix [][]T) (data []T, rows, cols int, err error) {
	if len(matrix) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty matrix", ErrInvalidShape)
	}
	rows, cols = len(matrix), len(matrix[0])
	data = make([]T, 0, rows*cols)
	for i, row := range matrix {
		if len(row) != cols {
			return nil, 0, 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidShape, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return data, rows, cols, nil
}

// ToDense copies the host contents of a rank-2 view into a gonum matrix.
// Synchronize the view first if kernels wrote to it.
func ToDense[T Number](v *View[T]) (*mat.Dense, error) {
	if v.Rank() != 2 {
		return nil, fmt.Errorf("%w: need a rank 2 view, got rank %d", ErrInvalidShape, v.Rank())
	}
	rows, cols := v.extent.Dim(0), v.extent.Dim(1)
	values := make([]float64, len(v.host))
	for i, x := range v.host {
		values[i] = float64(x)
	}
	return mat.NewDense(rows, cols, values), nil
}

// FromDense converts a gonum matrix into a row-major slice of T.
func FromDense[T Number](m mat.Matrix) (data []T, rows, cols int) {
	rows, cols = m.Dims()
	data = make([]T, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = T(m.At(i, j))
		}
	}
	return data, rows, cols
}
