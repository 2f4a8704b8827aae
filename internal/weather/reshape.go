package weather

import (
	"errors"
	"fmt"
)

// Hours is the length of the canonical time axis.
const Hours = 24

var (
	// ErrShortSeries is returned when a field's series has fewer than Hours points.
	ErrShortSeries = errors.New("weather series shorter than 24 hours")
	// ErrMissingField is returned when a requested field is absent from a mapping.
	ErrMissingField = errors.New("weather field missing")
	// ErrNotRectangular is returned when an hour-major matrix has ragged rows.
	ErrNotRectangular = errors.New("weather matrix is not 24 rectangular rows")
)

// Reshape transposes field-major series into an hour-major 24xF matrix:
// out[h][f] = series[f][h]. Points past the 24th hour are ignored.
func Reshape(series [][]float32) ([][]float32, error) {
	for f, s := range series {
		if len(s) < Hours {
			return nil, fmt.Errorf("field %d has %d points: %w", f, len(s), ErrShortSeries)
		}
	}
	out := make([][]float32, Hours)
	for h := range out {
		row := make([]float32, len(series))
		for f, s := range series {
			row[f] = s[h]
		}
		out[h] = row
	}
	return out, nil
}

// ReshapeFields is the mapping variant of Reshape. Feature order follows fields.
func ReshapeFields(fields []string, values map[string][]float32) ([][]float32, error) {
	series := make([][]float32, 0, len(fields))
	for _, name := range fields {
		s, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrMissingField)
		}
		if len(s) < Hours {
			return nil, fmt.Errorf("field %q has %d points: %w", name, len(s), ErrShortSeries)
		}
		series = append(series, s)
	}
	return Reshape(series)
}

// FieldMajor is the inverse of Reshape for a 24xF matrix.
func FieldMajor(m [][]float32) ([][]float32, error) {
	if len(m) != Hours {
		return nil, fmt.Errorf("%d rows: %w", len(m), ErrNotRectangular)
	}
	width := len(m[0])
	for h, row := range m {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", h, len(row), width, ErrNotRectangular)
		}
	}
	out := make([][]float32, width)
	for f := range out {
		s := make([]float32, Hours)
		for h := 0; h < Hours; h++ {
			s[h] = m[h][f]
		}
		out[f] = s
	}
	return out, nil
}
