// Package completion provides the one-shot flag producers' coordinator raises
// once no further items will be enqueued.
package completion

import (
	"sync"
	"sync/atomic"
)

// Signal is a monotonic flag: it moves from unset to set exactly once and
// never resets. It is safe for concurrent use.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// New returns an unset Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the flag. Calling it again has no effect.
func (s *Signal) Set() {
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
	})
}

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel closed when the flag is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
