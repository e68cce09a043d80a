package accel

import (
	"fmt"
	"reflect"
)

// hostBuffer is device memory for backends that execute on the host CPU.
// It still owns a separate slice so host and device copies diverge exactly
// like they would on a discrete accelerator.
type hostBuffer struct {
	elem reflect.Type
	data reflect.Value
}

func newHostBuffer(elem reflect.Type, n int) (*hostBuffer, error) {
	if elem == nil {
		return nil, fmt.Errorf("%w: nil element type", ErrTypeMismatch)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrLengthMismatch, n)
	}
	return &hostBuffer{
		elem: elem,
		data: reflect.MakeSlice(reflect.SliceOf(elem), n, n),
	}, nil
}

func (b *hostBuffer) Len() int {
	if !b.data.IsValid() {
		return 0
	}
	return b.data.Len()
}

func (b *hostBuffer) check(host any) (reflect.Value, error) {
	if !b.data.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: buffer closed", ErrDeviceLost)
	}
	v := reflect.ValueOf(host)
	if v.Kind() != reflect.Slice || v.Type().Elem() != b.elem {
		return reflect.Value{}, fmt.Errorf("%w: want []%s, got %T", ErrTypeMismatch, b.elem, host)
	}
	if v.Len() < b.data.Len() {
		return reflect.Value{}, fmt.Errorf("%w: need %d elements, got %d", ErrLengthMismatch, b.data.Len(), v.Len())
	}
	return v, nil
}

func (b *hostBuffer) Upload(src any) error {
	v, err := b.check(src)
	if err != nil {
		return err
	}
	reflect.Copy(b.data, v)
	return nil
}

func (b *hostBuffer) Download(dst any) error {
	v, err := b.check(dst)
	if err != nil {
		return err
	}
	reflect.Copy(v, b.data)
	return nil
}

func (b *hostBuffer) Data() any {
	if !b.data.IsValid() {
		return nil
	}
	return b.data.Interface()
}

func (b *hostBuffer) Close() error {
	b.data = reflect.Value{}
	return nil
}
