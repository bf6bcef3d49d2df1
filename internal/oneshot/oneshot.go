// Package oneshot provides a single-use signal between goroutines.
package oneshot

import "sync"

// Signal is a single-use notification. It starts armed and can be fired
// exactly once. Firing an already fired Signal panics, since it indicates
// a logic defect rather than an environmental failure.
type Signal struct {
	mu    sync.Mutex
	fired bool
	done  chan struct{}
}

// NewSignal returns an armed Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire fires the signal. It panics on the second call.
func (s *Signal) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		panic("oneshot: signal fired twice")
	}
	s.fired = true
	close(s.done)
}

// Done returns a channel which is closed once the signal has fired.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
