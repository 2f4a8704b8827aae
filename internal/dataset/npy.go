package dataset

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/sbinet/npyio"
)

const (
	float32Descr = "<f4"
	int32Descr   = "<i4"
)

var (
	// ErrArtifactFormat is returned for artifacts that are not C-order arrays of the expected dtype.
	ErrArtifactFormat = errors.New("unexpected npy artifact")
	// ErrEmptyAxis is returned by Store when a leading axis has length zero;
	// such a tensor has no element to infer inner dimensions from.
	ErrEmptyAxis = errors.New("tensor has an empty leading axis")
)

type element interface{ float32 | int32 }

// writeArray writes flat as a C-order array of the given shape. Axes after
// the first are carried as fixed-size Go arrays built at run time, which is
// how npyio learns the full shape.
func writeArray[T element](w io.Writer, shape []int, flat []T) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(flat) {
		return fmt.Errorf("shape %v holds %d values, got %d", shape, n, len(flat))
	}
	if len(shape) == 1 {
		return npyio.Write(w, flat)
	}
	for _, d := range shape[:len(shape)-1] {
		if d == 0 {
			return fmt.Errorf("shape %v: %w", shape, ErrEmptyAxis)
		}
	}
	rt := reflect.TypeOf(flat).Elem()
	for i := len(shape) - 1; i >= 1; i-- {
		rt = reflect.ArrayOf(shape[i], rt)
	}
	v := reflect.MakeSlice(reflect.SliceOf(rt), shape[0], shape[0])
	fill(v, reflect.ValueOf(flat), 0)
	return npyio.Write(w, v.Interface())
}

// fill copies src into the leaves of dst starting at off and returns the next offset.
func fill(dst, src reflect.Value, off int) int {
	if dst.Type().Elem().Kind() != reflect.Array {
		return off + reflect.Copy(dst, src.Slice(off, off+dst.Len()))
	}
	for i := 0; i < dst.Len(); i++ {
		off = fill(dst.Index(i), src, off)
	}
	return off
}

// readArray reads a C-order array with dtype descr and returns its shape and flat data.
func readArray[T element](r io.Reader, descr string) ([]int, []T, error) {
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrArtifactFormat, err)
	}
	d := rd.Header.Descr
	if d.Type != descr {
		return nil, nil, fmt.Errorf("dtype %s, want %s: %w", d.Type, descr, ErrArtifactFormat)
	}
	if d.Fortran {
		return nil, nil, fmt.Errorf("fortran order: %w", ErrArtifactFormat)
	}
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	data := make([]T, n)
	if err := rd.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("payload: %w", err)
	}
	return d.Shape, data, nil
}
