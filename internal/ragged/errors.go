package ragged

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedOutfit is matched by every *MalformedOutfitError.
	ErrMalformedOutfit = errors.New("malformed outfit")
	// ErrExtentsExceeded is returned when an outfit does not fit supplied extents.
	ErrExtentsExceeded = errors.New("outfit exceeds padding extents")
)

// MalformedOutfitError identifies the record that aborted a normalization run.
type MalformedOutfitError struct {
	Index  int
	Source string
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *MalformedOutfitError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("malformed outfit %d (%s): %s", e.Index, e.Source, e.Reason)
	}
	return fmt.Sprintf("malformed outfit %d: %s", e.Index, e.Reason)
}

func (e *MalformedOutfitError) Is(target error) bool { return target == ErrMalformedOutfit }

func (e *MalformedOutfitError) Unwrap() error { return e.Err }

// Malformed wraps err as the reason outfit i from source was rejected.
func Malformed(i int, source string, err error) error {
	return &MalformedOutfitError{Index: i, Source: source, Reason: err.Error(), Err: err}
}

func malformed(i int, source, format string, args ...any) error {
	return &MalformedOutfitError{Index: i, Source: source, Reason: fmt.Sprintf(format, args...)}
}
