package compute

import (
	"context"
	"fmt"
	"testing"

	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

var devicePaths = []string{"cpu", "ref", ""}

func deviceName(path string) string {
	if path == "" {
		return "host fallback"
	}
	return path
}

func TestDispatch_VectorAdd(t *testing.T) {
	for _, path := range devicePaths {
		t.Run(deviceName(path), func(t *testing.T) {
			s := newTestSession(t, path)
			ctx := context.Background()

			const n = 10
			pa, pb, pc := iota32(n, 1), iota32(n, 2), make([]int32, n)

			a, err := WrapSlice(pa, ReadOnly)
			require.NoError(t, err)
			b, err := WrapSlice(pb, ReadOnly)
			require.NoError(t, err)
			c, err := WrapSlice(pc, ReadWrite)
			require.NoError(t, err)
			require.NoError(t, c.MarkDiscard())

			k, err := Compile(c, Add(Load(a), Load(b)))
			require.NoError(t, err)
			require.NoError(t, Dispatch(ctx, s, c.Shape(), k))
			require.NoError(t, c.Synchronize(ctx))

			assert.Equal(t, iota32(n, 3), pc)
			assert.Equal(t, iota32(n, 1), pa)
			assert.Equal(t, iota32(n, 2), pb)
		})
	}
}

func TestDispatch_MatrixAdd(t *testing.T) {
	const rows, cols = 10, 10
	for _, path := range devicePaths {
		t.Run(deviceName(path), func(t *testing.T) {
			s := newTestSession(t, path)
			ctx := context.Background()

			pa := make([]int, rows*cols)
			pb := make([]int, rows*cols)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					pa[i*cols+j] = i + j
					pb[i*cols+j] = i + 2*j
				}
			}

			a, err := Wrap2D(pa, rows, cols, ReadOnly)
			require.NoError(t, err)
			b, err := Wrap2D(pb, rows, cols, ReadOnly)
			require.NoError(t, err)
			res, err := Wrap2D(make([]int, rows*cols), rows, cols, ReadWrite)
			require.NoError(t, err)
			require.NoError(t, res.MarkDiscard())

			k, err := Compile(res, Add(Load(a), Load(b)))
			require.NoError(t, err)
			require.NoError(t, Dispatch(ctx, s, res.Shape(), k))
			require.NoError(t, res.Synchronize(ctx))

			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					got, err := res.At(i, j)
					require.NoError(t, err)
					assert.Equal(t, 2*i+3*j, got, "Res[%d,%d]", i, j)
				}
			}

			// Cross-check against gonum
			da, err := ToDense(a)
			require.NoError(t, err)
			db, err := ToDense(b)
			require.NoError(t, err)
			dres, err := ToDense(res)
			require.NoError(t, err)
			var want mat.Dense
			want.Add(da, db)
			assert.True(t, mat.Equal(&want, dres))
		})
	}
}

func TestDispatch_CoordKernel2D(t *testing.T) {
	s := newTestSession(t, "cpu")
	ctx := context.Background()

	res, err := Wrap2D(make([]float64, 6*7), 6, 7, ReadWrite)
	require.NoError(t, err)
	// Res[i,j] = 2i + 3j computed from the index alone
	body := Add(Mul(Const(2.0), Coord[float64](0)), Mul(Const(3.0), Coord[float64](1)))
	k, err := Compile(res, body)
	require.NoError(t, err)
	require.NoError(t, Dispatch(ctx, s, res.Shape(), k))
	require.NoError(t, res.Synchronize(ctx))

	for i := 0; i < 6; i++ {
		for j := 0; j < 7; j++ {
			got, err := res.At(i, j)
			require.NoError(t, err)
			assert.Equal(t, float64(2*i+3*j), got)
		}
	}
}

func TestDispatch_LargeDomain(t *testing.T) {
	for _, n := range []int{1, 7, 8, 9, 1000, 100_003} {
		t.Run(fmt.Sprintf("n_%d", n), func(t *testing.T) {
			s := newTestSession(t, "cpu")
			ctx := context.Background()

			x := make([]float32, n)
			for i := range x {
				x[i] = float32(i % 97)
			}
			xv, err := WrapSlice(x, ReadOnly)
			require.NoError(t, err)
			yv, err := WrapSlice(make([]float32, n), ReadWrite)
			require.NoError(t, err)
			require.NoError(t, yv.MarkDiscard())

			// y = max(x - 48, 0) * 2
			k, err := Compile(yv, Mul(Max(Sub(Load(xv), Const[float32](48)), Const[float32](0)), Const[float32](2)))
			require.NoError(t, err)
			require.NoError(t, Dispatch(ctx, s, yv.Shape(), k))
			require.NoError(t, yv.Synchronize(ctx))

			for i, got := range yv.Data() {
				want := max(x[i]-48, 0) * 2
				if got != want {
					t.Fatalf("y[%d] = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestDispatch_ChainedKernels(t *testing.T) {
	s := newTestSession(t, "cpu")
	ctx := context.Background()

	a, err := WrapSlice(iota32(32, 1), ReadOnly)
	require.NoError(t, err)
	tmp, err := WrapSlice(make([]int32, 32), ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tmp.MarkDiscard())
	out, err := WrapSlice(make([]int32, 32), ReadWrite)
	require.NoError(t, err)
	require.NoError(t, out.MarkDiscard())

	square, err := Compile(tmp, Mul(Load(a), Load(a)))
	require.NoError(t, err)
	negate, err := Compile(out, Select(Sub(Load(tmp), Const[int32](100)), Neg(Load(tmp)), Load(tmp)))
	require.NoError(t, err)

	// The second launch reads the first one's device result without a sync in between
	require.NoError(t, Dispatch(ctx, s, a.Shape(), square))
	require.NoError(t, Dispatch(ctx, s, a.Shape(), negate))
	require.NoError(t, out.Synchronize(ctx))

	for i, got := range out.Data() {
		sq := int32(i * i)
		if sq > 100 {
			sq = -sq
		}
		assert.Equal(t, sq, got)
	}
}

func TestDispatch_ShapeMismatch(t *testing.T) {
	s := newTestSession(t, "cpu")
	ctx := context.Background()

	host := []int32{7, 7, 7, 7, 7, 7}
	out, err := WrapSlice(host, ReadWrite)
	require.NoError(t, err)
	in2D, err := Wrap2D(make([]int32, 6), 2, 3, ReadOnly)
	require.NoError(t, err)
	in1D, err := WrapSlice(make([]int32, 6), ReadOnly)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		domain []int
		body   Expr[int32]
	}{
		{name: "domain larger than output", domain: []int{7}, body: Load(in1D)},
		{name: "domain rank differs", domain: []int{2, 3}, body: Load(in1D)},
		{name: "input rank differs", domain: []int{6}, body: Load(in2D)},
		{name: "coord outside domain rank", domain: []int{6}, body: Coord[int32](1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			domain, err := NewExtent(tc.domain...)
			require.NoError(t, err)
			k, err := Compile(out, tc.body)
			require.NoError(t, err)

			err = Dispatch(ctx, s, domain, k)
			assert.ErrorIs(t, err, ErrInvalidShape)
			require.NoError(t, out.Synchronize(ctx))
			assert.Equal(t, []int32{7, 7, 7, 7, 7, 7}, host)
			assert.Nil(t, out.Device(), "rejected dispatch must not touch the view")
		})
	}

	t.Run("matching shape succeeds", func(t *testing.T) {
		k, err := Compile(out, Load(in1D))
		require.NoError(t, err)
		require.NoError(t, Dispatch(ctx, s, out.Shape(), k))
		require.NoError(t, out.Synchronize(ctx))
		assert.Equal(t, make([]int32, 6), host)
	})

	t.Run("empty domain", func(t *testing.T) {
		k, err := Compile(out, Load(in1D))
		require.NoError(t, err)
		assert.ErrorIs(t, Dispatch(ctx, s, Extent{}, k), ErrInvalidShape)
	})
}

func TestDispatch_ReadOnlyOutput(t *testing.T) {
	s := newTestSession(t, "cpu")
	out, err := WrapSlice(make([]int, 3), ReadOnly)
	require.NoError(t, err)
	k, err := Compile(out, Const(1))
	require.NoError(t, err)

	err = Dispatch(context.Background(), s, out.Shape(), k)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestDispatch_KernelCapability(t *testing.T) {
	double := func(v int32) int32 { return v * 2 }

	testCases := []struct {
		name string
		body func(in *View[int32]) Expr[int32]
		caps accel.Capability
		want []int32
	}{
		{
			name: "host call",
			body: func(in *View[int32]) Expr[int32] { return HostCall(double, Load(in)) },
			caps: accel.CapHostCallbacks,
			want: []int32{0, 2, 4, 6},
		},
		{
			name: "dynamic allocation",
			body: func(in *View[int32]) Expr[int32] { return Alloc(3, Load(in)) },
			caps: accel.CapDynamicAlloc,
			want: []int32{0, 3, 6, 9},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			for _, path := range []string{"cpu", "ref"} {
				s := newTestSession(t, path)
				host := []int32{-1, -1, -1, -1}
				in, err := WrapSlice(iota32(4, 1), ReadOnly)
				require.NoError(t, err)
				out, err := WrapSlice(host, ReadWrite)
				require.NoError(t, err)

				k, err := Compile(out, tc.body(in))
				require.NoError(t, err)
				assert.Equal(t, tc.caps, k.Requires())

				err = Dispatch(ctx, s, out.Shape(), k)
				assert.ErrorIs(t, err, ErrKernelCapability, path)
				require.NoError(t, out.Synchronize(ctx))
				assert.Equal(t, []int32{-1, -1, -1, -1}, host, "output modified on %s", path)
			}

			// The host fallback can run host-only operations
			s := newTestSession(t, "")
			in, err := WrapSlice(iota32(4, 1), ReadOnly)
			require.NoError(t, err)
			out, err := WrapSlice(make([]int32, 4), ReadWrite)
			require.NoError(t, err)
			k, err := Compile(out, tc.body(in))
			require.NoError(t, err)
			require.NoError(t, Dispatch(ctx, s, out.Shape(), k))
			require.NoError(t, out.Synchronize(ctx))
			assert.Equal(t, tc.want, out.Data())
		})
	}
}

func TestDispatch_KernelFaultLeavesHostUntouched(t *testing.T) {
	for _, path := range devicePaths {
		t.Run(deviceName(path), func(t *testing.T) {
			s := newTestSession(t, path)
			ctx := context.Background()

			num, err := WrapSlice([]int32{10, 20, 30, 40}, ReadOnly)
			require.NoError(t, err)
			den, err := WrapSlice([]int32{1, 2, 0, 4}, ReadOnly)
			require.NoError(t, err)
			host := []int32{-1, -1, -1, -1}
			out, err := WrapSlice(host, ReadWrite)
			require.NoError(t, err)

			k, err := Compile(out, Div(Load(num), Load(den)))
			require.NoError(t, err)
			require.NoError(t, Dispatch(ctx, s, out.Shape(), k))

			err = out.Synchronize(ctx)
			assert.ErrorIs(t, err, ErrKernelFault)
			assert.Equal(t, []int32{-1, -1, -1, -1}, host)

			// The failure is reported once; the view is usable again afterwards
			require.NoError(t, out.Synchronize(ctx))
			den.Data()[2] = 3
			den.Refresh()
			require.NoError(t, Dispatch(ctx, s, out.Shape(), k))
			require.NoError(t, out.Synchronize(ctx))
			assert.Equal(t, []int32{10, 10, 10, 10}, host)
		})
	}
}

func TestDispatch_FaultedInputIsNotRead(t *testing.T) {
	for _, path := range devicePaths {
		t.Run(deviceName(path), func(t *testing.T) {
			s := newTestSession(t, path)
			ctx := context.Background()

			num, err := WrapSlice([]int32{10, 20, 30, 40}, ReadOnly)
			require.NoError(t, err)
			den, err := WrapSlice([]int32{1, 2, 0, 4}, ReadOnly)
			require.NoError(t, err)
			midHost := []int32{-1, -1, -1, -1}
			mid, err := WrapSlice(midHost, ReadWrite)
			require.NoError(t, err)
			outHost := []int32{-1, -1, -1, -1}
			out, err := WrapSlice(outHost, ReadWrite)
			require.NoError(t, err)

			divide, err := Compile(mid, Div(Load(num), Load(den)))
			require.NoError(t, err)
			copyMid, err := Compile(out, Add(Load(mid), Const[int32](0)))
			require.NoError(t, err)

			require.NoError(t, Dispatch(ctx, s, mid.Shape(), divide))

			// Depending on timing the failure is seen at dispatch or at synchronize,
			// but never as a success.
			dispatchErr := Dispatch(ctx, s, out.Shape(), copyMid)
			syncErr := out.Synchronize(ctx)
			if dispatchErr != nil {
				assert.ErrorIs(t, dispatchErr, ErrKernelFault)
				assert.NoError(t, syncErr)
			} else {
				assert.ErrorIs(t, syncErr, ErrKernelFault)
			}
			assert.Equal(t, []int32{-1, -1, -1, -1}, outHost)

			assert.ErrorIs(t, mid.Synchronize(ctx), ErrKernelFault)
			assert.Equal(t, []int32{-1, -1, -1, -1}, midHost)

			// Once reported, the host copy of mid is what later kernels read.
			require.NoError(t, Dispatch(ctx, s, out.Shape(), copyMid))
			require.NoError(t, out.Synchronize(ctx))
			assert.Equal(t, []int32{-1, -1, -1, -1}, outHost)

			midHost[0] = 7
			mid.Refresh()
			require.NoError(t, Dispatch(ctx, s, out.Shape(), copyMid))
			require.NoError(t, out.Synchronize(ctx))
			assert.Equal(t, []int32{7, -1, -1, -1}, outHost)
		})
	}
}

func TestDispatch_DeviceUnavailable(t *testing.T) {
	m := newTestManager(t)
	s := NewSession(m, zaptest.NewLogger(t))
	_, err := s.Enumerate()
	require.NoError(t, err)
	require.NoError(t, s.SetDefaultPath("cpu"))
	require.NoError(t, m.Cleanup())

	host := []int32{1, 2}
	out, err := WrapSlice(host, ReadWrite)
	require.NoError(t, err)
	k, err := Compile(out, Const[int32](0))
	require.NoError(t, err)

	err = Dispatch(context.Background(), s, out.Shape(), k)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, []int32{1, 2}, host)
}

func TestDispatch_MovesViewBetweenDevices(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	host := make([]int64, 5)
	out, err := WrapSlice(host, ReadWrite)
	require.NoError(t, err)
	inc, err := Compile(out, Add(Load(out), Const[int64](1)))
	require.NoError(t, err)

	for _, path := range []string{"cpu", "ref"} {
		s := NewSession(m, zaptest.NewLogger(t))
		_, err := s.Enumerate()
		require.NoError(t, err)
		require.NoError(t, s.SetDefaultPath(path))
		require.NoError(t, Dispatch(ctx, s, out.Shape(), inc))
	}

	// The move to ref synchronized the cpu result first, so both increments land
	require.NoError(t, out.Synchronize(ctx))
	assert.Equal(t, []int64{2, 2, 2, 2, 2}, host)
	assert.Equal(t, "ref", out.Device().Info().Path)
}

func TestDispatch_CancelledContext(t *testing.T) {
	s := newTestSession(t, "cpu")
	out, err := WrapSlice(make([]int32, 2), ReadWrite)
	require.NoError(t, err)
	k, err := Compile(out, Const[int32](3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Dispatch(ctx, s, out.Shape(), k), context.Canceled)
	assert.Nil(t, out.Device())
}

func TestDispatch_NilKernel(t *testing.T) {
	s := newTestSession(t, "cpu")
	e, err := NewExtent(1)
	require.NoError(t, err)
	assert.ErrorIs(t, Dispatch[int](context.Background(), s, e, nil), ErrInvalidOperation)
}
