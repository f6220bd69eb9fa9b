// Package reactive provides an explicit version signal: writers bump it,
// subscribers get a coalesced wake-up on their own channel.
package reactive

import "sync"

// Signal is a monotonically increasing version counter with change notification.
// The zero value is ready to use.
type Signal struct {
	mu      sync.Mutex
	version uint64
	nextID  uint64
	subs    map[uint64]chan<- struct{}
}

// Get returns the current version.
func (s *Signal) Get() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Bump increments the version and wakes every subscriber.
func (s *Signal) Bump() uint64 {
	s.mu.Lock()
	s.version++
	v := s.version
	for _, ch := range s.subs {
		wake(ch)
	}
	s.mu.Unlock()
	return v
}

// Notify registers ch to be woken on every Bump. Sends never block: use a
// channel with a buffer of one and bursts of bumps collapse into a single
// wake-up. One channel may be registered on several signals to fan them in.
// The returned func unregisters ch.
func (s *Signal) Notify(ch chan<- struct{}) (cancel func()) {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan<- struct{})
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func wake(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NotifyAll registers ch on every signal and returns a single cancel func.
func NotifyAll(ch chan<- struct{}, signals ...*Signal) (cancel func()) {
	cancels := make([]func(), 0, len(signals))
	for _, s := range signals {
		cancels = append(cancels, s.Notify(ch))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Versions is a snapshot of several signals, in order.
type Versions []uint64

// Snapshot reads the current version of every signal.
func Snapshot(signals ...*Signal) Versions {
	out := make(Versions, len(signals))
	for i, s := range signals {
		out[i] = s.Get()
	}
	return out
}

// Equal reports whether both snapshots hold the same versions.
func (v Versions) Equal(o Versions) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// AtLeast reports whether every version in v is >= its counterpart in o.
func (v Versions) AtLeast(o Versions) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] < o[i] {
			return false
		}
	}
	return true
}
