// Package chunk groups a lazy sequence into fixed-size batches.
package chunk

import (
	"errors"
	"iter"
)

// ErrInvalidSize is returned when the requested group size is below one.
var ErrInvalidSize = errors.New("chunk size must be >= 1")

// Group yields consecutive groups of size elements pulled from seq; the last
// group may be shorter but is never empty. seq is consumed once and lazily:
// at most one group is buffered, and stopping the range stops the source.
func Group[T any](seq iter.Seq[T], size int) (iter.Seq[[]T], error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	return func(yield func([]T) bool) {
		group := make([]T, 0, size)
		for item := range seq {
			group = append(group, item)
			if len(group) < size {
				continue
			}
			if !yield(group) {
				return
			}
			group = make([]T, 0, size)
		}
		if len(group) > 0 {
			yield(group)
		}
	}, nil
}
